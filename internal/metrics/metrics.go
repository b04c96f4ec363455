package metrics

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumbergh",
			Subsystem: "service",
			Name:      "launches_total",
			Help:      "Number of successful service launches.",
		}, []string{"name"},
	)
	launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumbergh",
			Subsystem: "service",
			Name:      "launch_failures_total",
			Help:      "Number of launches that failed to open logs or start the executable.",
		}, []string{"name"},
	)
	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumbergh",
			Subsystem: "service",
			Name:      "exits_total",
			Help:      "Number of reaped service exits.",
		}, []string{"name"},
	)
	deaths = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumbergh",
			Subsystem: "service",
			Name:      "deaths_total",
			Help:      "Number of services found gone without a reapable exit.",
		}, []string{"name"},
	)
	enabled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lumbergh",
			Subsystem: "service",
			Name:      "enabled_total",
			Help:      "Number of services added to the process table.",
		},
	)
	disabled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lumbergh",
			Subsystem: "service",
			Name:      "disabled_total",
			Help:      "Number of services torn down and removed from the process table.",
		},
	)
	scanErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lumbergh",
			Subsystem: "service",
			Name:      "scan_errors_total",
			Help:      "Number of failed rescans of the service root.",
		},
	)
	live = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lumbergh",
			Subsystem: "service",
			Name:      "live",
			Help:      "Live records in the process table.",
		},
	)
	capacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lumbergh",
			Subsystem: "service",
			Name:      "capacity",
			Help:      "Capacity of the process table.",
		},
	)
	tickSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lumbergh",
			Subsystem: "service",
			Name:      "tick_seconds",
			Help:      "Time spent reconciling and checking services per tick.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{launches, launchFailures, exits, deaths, enabled, disabled, scanErrors, live, capacity, tickSeconds}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "serve metrics on %s", addr)
	}
	return nil
}

// Below are lightweight helpers used by the supervisor to record metrics.
// They no-op if Register hasn't been called.

func IncLaunch(name string) {
	if regOK.Load() {
		launches.WithLabelValues(name).Inc()
	}
}
func IncLaunchFailure(name string) {
	if regOK.Load() {
		launchFailures.WithLabelValues(name).Inc()
	}
}
func IncExit(name string) {
	if regOK.Load() {
		exits.WithLabelValues(name).Inc()
	}
}
func IncDeath(name string) {
	if regOK.Load() {
		deaths.WithLabelValues(name).Inc()
	}
}
func IncEnabled() {
	if regOK.Load() {
		enabled.Inc()
	}
}
func IncDisabled() {
	if regOK.Load() {
		disabled.Inc()
	}
}
func IncScanError() {
	if regOK.Load() {
		scanErrors.Inc()
	}
}

// SetTable publishes the process table occupancy.
func SetTable(n, c int) {
	if regOK.Load() {
		live.Set(float64(n))
		capacity.Set(float64(c))
	}
}

func ObserveTick(d time.Duration) {
	if regOK.Load() {
		tickSeconds.Observe(d.Seconds())
	}
}

// Forget drops the per-service series of a disabled service.
func Forget(name string) {
	if regOK.Load() {
		launches.DeleteLabelValues(name)
		launchFailures.DeleteLabelValues(name)
		exits.DeleteLabelValues(name)
		deaths.DeleteLabelValues(name)
	}
}
