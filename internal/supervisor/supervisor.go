package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/rain-1/lumbergh/internal/history"
	"github.com/rain-1/lumbergh/internal/metrics"
	"github.com/rain-1/lumbergh/internal/process"
)

// DefaultInterval is the pause between ticks.
const DefaultInterval = time.Second

const sinkTimeout = 5 * time.Second

// Supervisor owns the process table of one service root and drives the
// reconcile, health check and relaunch cycle. All methods must be called from
// a single goroutine.
type Supervisor struct {
	mgr      *process.Manager
	rec      *Reconciler
	logger   *slog.Logger
	interval time.Duration
	sinks    []history.Sink
	sampler  *metrics.ResourceSampler
	notifier Notifier
	wake     <-chan struct{}
	now      func() time.Time

	started bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

func WithInterval(d time.Duration) Option { return func(s *Supervisor) { s.interval = d } }

func WithLogger(l *slog.Logger) Option { return func(s *Supervisor) { s.logger = l } }

// WithHistory appends lifecycle events to every sink. Sink failures are
// logged and never stop supervision.
func WithHistory(sinks ...history.Sink) Option {
	return func(s *Supervisor) { s.sinks = append(s.sinks, sinks...) }
}

func WithSampler(r *metrics.ResourceSampler) Option { return func(s *Supervisor) { s.sampler = r } }

func WithNotifier(n Notifier) Option { return func(s *Supervisor) { s.notifier = n } }

// WithWake ends the wait between ticks early whenever ch receives.
func WithWake(ch <-chan struct{}) Option { return func(s *Supervisor) { s.wake = ch } }

// New returns a supervisor for the service directories under root.
func New(root string, mgr *process.Manager, opts ...Option) *Supervisor {
	s := &Supervisor{
		mgr:      mgr,
		logger:   slog.Default(),
		interval: DefaultInterval,
		notifier: nopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	s.rec = NewReconciler(root, mgr, s.logger)
	return s
}

// Manager returns the process manager.
func (s *Supervisor) Manager() *process.Manager { return s.mgr }

// Snapshot returns the status of every supervised service.
func (s *Supervisor) Snapshot() []process.Status { return s.mgr.Table().Snapshot() }

// Start performs the initial scan. Any failure here is fatal to the caller.
func (s *Supervisor) Start() error {
	s.logger.Info("supervising directory", "root", s.rec.Root(), "capacity", s.mgr.Table().Cap(), "interval", s.interval)
	res, err := s.rec.Reconcile()
	s.reconciled(res)
	if err != nil {
		return errors.Wrap(err, "initial scan")
	}
	s.started = true
	if err := s.notifier.Ready(); err != nil {
		s.logger.Warn("unable to notify service manager", "error", err)
	}
	return nil
}

// Tick reconciles the table against the root and checks every live service.
// A failed rescan is reported and leaves the table as it was; only running
// out of table capacity is returned as an error.
func (s *Supervisor) Tick() error {
	begin := s.now()
	defer func() { metrics.ObserveTick(s.now().Sub(begin)) }()

	res, err := s.rec.Reconcile()
	s.reconciled(res)
	switch {
	case errors.Is(err, process.ErrTableFull):
		return err
	case err != nil:
		metrics.IncScanError()
		s.logger.Error("could not scan directory", "error", err)
	}

	s.monitor()
	if err := s.notifier.Watchdog(); err != nil {
		s.logger.Debug("watchdog notify failed", "error", err)
	}
	return nil
}

// Run starts supervision if needed and ticks until ctx is cancelled or a
// tick fails. It does not tear services down; call Shutdown for that.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.started {
		if err := s.Start(); err != nil {
			return err
		}
		s.monitor()
	}

	for {
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
			s.logger.Debug("service root changed, rescanning early")
		}

		if err := s.Tick(); err != nil {
			return err
		}
	}
}

// Shutdown kills and reaps every supervised service and empties the table.
// It returns the first teardown error; services that failed stay in the table.
func (s *Supervisor) Shutdown() error {
	if err := s.notifier.Stopping(); err != nil {
		s.logger.Debug("unable to notify service manager", "error", err)
	}
	var first error
	for _, h := range s.mgr.Table().Handles() {
		rec, err := s.mgr.Table().Get(h)
		if err != nil {
			continue
		}
		name := rec.Name
		if err := s.mgr.Disable(h); err != nil {
			s.logger.Error("unable to disable service", "name", name, "error", err)
			if first == nil {
				first = err
			}
			continue
		}
		s.disabled(name)
	}
	metrics.SetTable(s.mgr.Table().Len(), s.mgr.Table().Cap())
	return first
}

// monitor checks every live record once and relaunches any that is not
// running.
func (s *Supervisor) monitor() {
	table := s.mgr.Table()
	for _, h := range table.Handles() {
		rec, err := table.Get(h)
		if err != nil {
			continue
		}
		name, pid := rec.Name, rec.PID

		health, st, err := s.mgr.Check(h)
		if err != nil {
			s.logger.Error("unable to check service", "name", name, "error", err)
			continue
		}
		switch health {
		case process.Running:
			continue
		case process.Exited:
			metrics.IncExit(name)
			e := history.Event{Type: history.EventExit, Name: name, PID: pid}
			if st != nil {
				e.ExitCode, e.Signal = st.Code, st.Signal
			}
			s.record(e)
		case process.Dead:
			metrics.IncDeath(name)
			s.record(history.Event{Type: history.EventDeath, Name: name, PID: pid})
		}
		s.launch(h, name)
	}

	metrics.SetTable(table.Len(), table.Cap())
	if s.sampler != nil {
		s.sampler.Sample(s.running())
	}
}

func (s *Supervisor) launch(h process.Handle, name string) {
	pid, err := s.mgr.Launch(h)
	if err != nil {
		metrics.IncLaunchFailure(name)
		s.record(history.Event{Type: history.EventLaunchError, Name: name, Error: err.Error()})
		return
	}
	metrics.IncLaunch(name)
	s.record(history.Event{Type: history.EventLaunch, Name: name, PID: pid})
}

func (s *Supervisor) reconciled(res Result) {
	for _, name := range res.Disabled {
		s.disabled(name)
	}
	for _, e := range res.Enabled {
		metrics.IncEnabled()
		s.record(history.Event{Type: history.EventEnable, Name: e.Name})
	}
}

func (s *Supervisor) disabled(name string) {
	metrics.IncDisabled()
	metrics.Forget(name)
	s.record(history.Event{Type: history.EventDisable, Name: name})
}

func (s *Supervisor) running() map[string]int {
	out := make(map[string]int, s.mgr.Table().Len())
	s.mgr.Table().ForEachLive(func(_ process.Handle, r *process.Record) {
		out[r.Name] = r.PID
	})
	return out
}

func (s *Supervisor) record(e history.Event) {
	if len(s.sinks) == 0 {
		return
	}
	e.OccurredAt = s.now().UTC()
	for _, sink := range s.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := sink.Send(ctx, e); err != nil {
			s.logger.Warn("unable to record history", "event", string(e.Type), "name", e.Name, "error", err)
		}
		cancel()
	}
}
