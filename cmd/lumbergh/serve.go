package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rain-1/lumbergh/internal/config"
	"github.com/rain-1/lumbergh/internal/history/factory"
	"github.com/rain-1/lumbergh/internal/lock"
	"github.com/rain-1/lumbergh/internal/logger"
	"github.com/rain-1/lumbergh/internal/metrics"
	"github.com/rain-1/lumbergh/internal/process"
	"github.com/rain-1/lumbergh/internal/supervisor"
)

func runServe(ctx context.Context, cfg *config.Config, flags *Flags, root string) error {
	if flags.Daemonize {
		pid, err := daemonize(os.Args[1:], flags.LogFile)
		if err != nil {
			return err
		}
		fmt.Printf("Daemon started with PID %d\n", pid)
		return nil
	}

	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return errors.Wrap(err, "failed to write PID file")
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	lg, closer, err := logger.New(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	if cfg.Setsid {
		detachSession(lg, setsid)
	}
	return supervise(ctx, cfg, root, lg)
}

// detachSession moves the supervisor into a new session. It fails for a
// process group leader, such as a shell job or a systemd unit.
func detachSession(lg *slog.Logger, setsid func() error) {
	if err := setsid(); err != nil {
		lg.Warn("setsid failed, staying in the current session; use --daemonize to detach", "error", err)
		return
	}
	lg.Debug("detached into a new session")
}

// supervise runs the supervision loop over root until ctx is cancelled, then
// tears every service down.
func supervise(ctx context.Context, cfg *config.Config, root string, lg *slog.Logger) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", root)
	}

	if cfg.Lock {
		l, err := lock.Acquire(abs)
		switch {
		case errors.Is(err, lock.ErrLockedElsewhere):
			return errors.Wrapf(err, "already supervising %s", abs)
		case err != nil:
			lg.Warn("unable to lock service root, continuing without lock", "root", abs, "error", err)
		default:
			defer func() { _ = l.Release() }()
		}
	}

	serviceEnv, err := cfg.ServiceEnv()
	if err != nil {
		return errors.Wrap(err, "service environment")
	}
	mgr := process.NewManager(cfg.Capacity, process.WithEnv(serviceEnv), process.WithLogger(lg))

	opts := []supervisor.Option{
		supervisor.WithInterval(cfg.Interval),
		supervisor.WithLogger(lg),
		supervisor.WithNotifier(supervisor.NewSystemdNotifier()),
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			lg.Warn("failed to register metrics", "error", err)
		}
		if cfg.Metrics.ProcessMetrics {
			sampler := metrics.NewResourceSampler(lg)
			if err := sampler.Register(prometheus.DefaultRegisterer); err != nil {
				lg.Warn("failed to register process metrics", "error", err)
			} else {
				opts = append(opts, supervisor.WithSampler(sampler))
			}
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
					lg.Error("metrics server error", "listen", cfg.Metrics.Listen, "error", err)
				}
			}()
			lg.Info("serving metrics", "listen", cfg.Metrics.Listen)
		}
	}

	if cfg.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			lg.Warn("history disabled", "error", err)
		} else {
			opts = append(opts, supervisor.WithHistory(sink))
			if c, ok := sink.(io.Closer); ok {
				defer func() { _ = c.Close() }()
			}
		}
	}

	if cfg.Watch {
		w, err := supervisor.NewWatcher(ctx, abs, lg)
		if err != nil {
			lg.Warn("unable to watch service root", "root", abs, "error", err)
		} else {
			opts = append(opts, supervisor.WithWake(w.Wake()))
		}
	}

	sup := supervisor.New(abs, mgr, opts...)
	runErr := sup.Run(ctx)
	if runErr == nil {
		lg.Info("shutting down")
	}
	if err := sup.Shutdown(); err != nil {
		lg.Error("unable to stop every service", "error", err)
	}
	return runErr
}
