package lumbergh

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/rain-1/lumbergh/internal/config"
	"github.com/rain-1/lumbergh/internal/history"
	"github.com/rain-1/lumbergh/internal/history/factory"
	"github.com/rain-1/lumbergh/internal/metrics"
	"github.com/rain-1/lumbergh/internal/process"
	"github.com/rain-1/lumbergh/internal/supervisor"
)

// Re-export core types for external consumers.

type Status = process.Status

type ExitStatus = process.ExitStatus

type Config = cfg.Config

type HistoryEvent = history.Event

type HistorySink = history.Sink

// Sentinel errors callers may test with errors.Is.
var (
	ErrTableFull = process.ErrTableFull
	ErrScan      = supervisor.ErrScan
)

// Options configures a Supervisor. Zero values select the defaults.
type Options struct {
	Capacity int
	Interval time.Duration
	// Env is passed to every service; nil inherits the caller's environment.
	Env     []string
	Logger  *slog.Logger
	History []HistorySink
}

// Supervisor is a thin facade over internal/supervisor.Supervisor for
// embedding.
type Supervisor struct{ inner *supervisor.Supervisor }

// New returns a supervisor for the service directories under root.
func New(root string, o Options) *Supervisor {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mgr := process.NewManager(o.Capacity, process.WithEnv(o.Env), process.WithLogger(logger))
	opts := []supervisor.Option{supervisor.WithLogger(logger), supervisor.WithInterval(o.Interval)}
	if len(o.History) > 0 {
		opts = append(opts, supervisor.WithHistory(o.History...))
	}
	return &Supervisor{inner: supervisor.New(root, mgr, opts...)}
}

func (s *Supervisor) Start() error                  { return s.inner.Start() }
func (s *Supervisor) Tick() error                   { return s.inner.Tick() }
func (s *Supervisor) Run(ctx context.Context) error { return s.inner.Run(ctx) }
func (s *Supervisor) Shutdown() error               { return s.inner.Shutdown() }
func (s *Supervisor) Status() []Status              { return s.inner.Snapshot() }

func LoadConfig(path string) (*Config, error) { return cfg.LoadFile(path) }

// NewHistorySinkFromDSN opens a sqlite, postgres, clickhouse or opensearch
// history sink chosen by the DSN scheme.
func NewHistorySinkFromDSN(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics on addr until ctx is cancelled.
func ServeMetrics(ctx context.Context, addr string) error { return metrics.Serve(ctx, addr) }
