package metrics

import (
	"log/slog"
	"runtime"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// ResourceSampler publishes CPU, memory and thread gauges for supervised
// processes. It is driven by the supervision loop and is not safe for
// concurrent use.
type ResourceSampler struct {
	logger *slog.Logger
	procs  map[string]*process.Process // name -> handle for the current pid

	cpuPercent *prometheus.GaugeVec
	memoryRSS  *prometheus.GaugeVec
	numThreads *prometheus.GaugeVec
	numFDs     *prometheus.GaugeVec
}

// NewResourceSampler creates a sampler. Call Register before Sample.
func NewResourceSampler(logger *slog.Logger) *ResourceSampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceSampler{
		logger: logger,
		procs:  make(map[string]*process.Process),
		cpuPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "lumbergh",
				Subsystem: "service",
				Name:      "cpu_percent",
				Help:      "CPU usage percentage of the service's leader process.",
			}, []string{"name"},
		),
		memoryRSS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "lumbergh",
				Subsystem: "service",
				Name:      "memory_rss_bytes",
				Help:      "Resident set size of the service's leader process.",
			}, []string{"name"},
		),
		numThreads: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "lumbergh",
				Subsystem: "service",
				Name:      "threads",
				Help:      "Number of threads of the service's leader process.",
			}, []string{"name"},
		),
		numFDs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "lumbergh",
				Subsystem: "service",
				Name:      "fds",
				Help:      "Open file descriptors of the service's leader process (Unix only).",
			}, []string{"name"},
		),
	}
}

// Register registers the sampler's gauges with r.
func (s *ResourceSampler) Register(r prometheus.Registerer) error {
	collectors := []prometheus.Collector{s.cpuPercent, s.memoryRSS, s.numThreads}
	if runtime.GOOS != "windows" {
		collectors = append(collectors, s.numFDs)
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Sample updates the gauges for every name -> pid in running and drops the
// series of services that are no longer present or have no pid.
func (s *ResourceSampler) Sample(running map[string]int) {
	for name, pid := range running {
		if pid <= 0 {
			continue
		}
		p, ok := s.procs[name]
		if !ok || int(p.Pid) != pid {
			np, err := process.NewProcess(int32(pid))
			if err != nil {
				s.logger.Debug("failed to open process for sampling", "name", name, "pid", pid, "error", err)
				s.forget(name)
				continue
			}
			p = np
			s.procs[name] = p
		}
		if err := s.sample(name, p); err != nil {
			s.logger.Debug("failed to sample process", "name", name, "pid", pid, "error", err)
			s.forget(name)
		}
	}

	for name := range s.procs {
		if pid, ok := running[name]; !ok || pid <= 0 {
			s.forget(name)
		}
	}
}

func (s *ResourceSampler) sample(name string, p *process.Process) error {
	// The first call after NewProcess only primes the cpu counters.
	cpu, err := p.Percent(0)
	if err != nil {
		cpu = 0
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return errors.Wrap(err, "memory info")
	}
	threads, err := p.NumThreads()
	if err != nil {
		threads = 0
	}

	s.cpuPercent.WithLabelValues(name).Set(cpu)
	s.memoryRSS.WithLabelValues(name).Set(float64(mem.RSS))
	s.numThreads.WithLabelValues(name).Set(float64(threads))
	if runtime.GOOS != "windows" {
		if fds, err := p.NumFDs(); err == nil {
			s.numFDs.WithLabelValues(name).Set(float64(fds))
		}
	}
	return nil
}

func (s *ResourceSampler) forget(name string) {
	delete(s.procs, name)
	s.cpuPercent.DeleteLabelValues(name)
	s.memoryRSS.DeleteLabelValues(name)
	s.numThreads.DeleteLabelValues(name)
	s.numFDs.DeleteLabelValues(name)
}
