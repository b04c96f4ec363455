package process

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Log file names created inside every service directory.
const (
	StdoutLog = "stdout.log"
	StderrLog = "stderr.log"
)

// ErrLogOpen wraps failures to open a service's log files.
var ErrLogOpen = errors.New("unable to open log files")

// Manager launches, checks and tears down the processes behind table slots.
// Every operation takes a Handle, so a pid is only ever reached through the
// live record that owns it.
type Manager struct {
	table  *Table
	os     OS
	env    []string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithOS replaces the process primitives, mainly for tests.
func WithOS(o OS) Option { return func(m *Manager) { m.os = o } }

// WithEnv sets the environment passed to every service. A nil env inherits
// the supervisor's environment.
func WithEnv(env []string) Option { return func(m *Manager) { m.env = env } }

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// NewManager returns a Manager over a fresh table of the given capacity.
func NewManager(capacity int, opts ...Option) *Manager {
	m := &Manager{
		table:  NewTable(capacity),
		os:     SystemOS(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Table exposes the underlying process table.
func (m *Manager) Table() *Table { return m.table }

// Enable allocates a record for the service directory root/name. The record
// has no pid; the next Check reports NotStarted.
func (m *Manager) Enable(root, name string) (Handle, error) {
	dir := filepath.Join(root, name)
	return m.table.Allocate(
		name,
		dir,
		filepath.Join(dir, name),
		filepath.Join(dir, StdoutLog),
		filepath.Join(dir, StderrLog),
	)
}

// Launch starts the executable behind h. On failure the record keeps pid 0
// and is retried by the next Check.
func (m *Manager) Launch(h Handle) (int, error) {
	rec, err := m.table.Get(h)
	if err != nil {
		return 0, err
	}
	m.logger.Info("launching process", "name", rec.Name)

	stdout, err := openLog(rec.StdoutPath)
	if err != nil {
		m.logger.Error("critical error: unable to log for program", "name", rec.Name, "error", err)
		return 0, errors.Wrapf(ErrLogOpen, "%s: %v", rec.Name, err)
	}
	defer func() { _ = stdout.Close() }()

	stderr, err := openLog(rec.StderrPath)
	if err != nil {
		m.logger.Error("critical error: unable to log for program", "name", rec.Name, "error", err)
		return 0, errors.Wrapf(ErrLogOpen, "%s: %v", rec.Name, err)
	}
	defer func() { _ = stderr.Close() }()

	pid, err := m.os.Start(rec.RunPath, m.env, stdout, stderr)
	if err != nil {
		m.logger.Error("critical error: unable to start program", "name", rec.Name, "path", rec.RunPath, "error", err)
		return 0, errors.Wrapf(err, "start %s", rec.RunPath)
	}

	rec.PID = pid
	rec.Launches++
	rec.StartedAt = m.now()
	m.logger.Info("process started", "name", rec.Name, "pid", pid)
	return pid, nil
}

// Check classifies the process behind h. On Exited and Dead the record's pid
// is cleared; relaunching is the caller's decision.
func (m *Manager) Check(h Handle) (Health, *ExitStatus, error) {
	rec, err := m.table.Get(h)
	if err != nil {
		return NotStarted, nil, err
	}
	if rec.PID == 0 {
		return NotStarted, nil, nil
	}

	pid := rec.PID
	st, reaped, err := m.os.Reap(pid)
	if err != nil && !errors.Is(err, ErrNotChild) {
		m.logger.Debug("non-blocking reap failed", "name", rec.Name, "pid", pid, "error", err)
	}
	if reaped {
		rec.PID = 0
		rec.LastExit = &st
		// The leader is gone; anything it left in its group goes with it.
		if err := m.os.KillGroup(pid); err != nil {
			m.logger.Debug("sweeping process group failed", "name", rec.Name, "pgid", pid, "error", err)
		}
		m.logger.Info("process exited", "name", rec.Name, "pid", pid, "status", st.String())
		return Exited, &st, nil
	}

	if !m.os.Alive(pid) {
		rec.PID = 0
		m.logger.Warn("process died", "name", rec.Name, "pid", pid)
		return Dead, nil, nil
	}
	return Running, nil, nil
}

// Disable kills the process group behind h, reaps its leader and releases the
// slot. A record that never launched is released immediately. If the group
// cannot be signalled the slot stays live.
func (m *Manager) Disable(h Handle) error {
	rec, err := m.table.Get(h)
	if err != nil {
		return err
	}
	name := rec.Name

	if pid := rec.PID; pid != 0 {
		if err := m.os.KillGroup(pid); err != nil {
			return errors.Wrapf(err, "kill process group of %s (pgid %d)", name, pid)
		}
		st, err := m.os.Wait(pid)
		switch {
		case errors.Is(err, ErrNotChild):
		case err != nil:
			return errors.Wrapf(err, "reap %s (pid %d)", name, pid)
		default:
			m.logger.Debug("reaped disabled process", "name", name, "pid", pid, "status", st.String())
		}
	}

	if err := m.table.Release(h); err != nil {
		return err
	}
	m.logger.Info("service disabled", "name", name)
	return nil
}

func openLog(path string) (*os.File, error) {
	// #nosec G302 G304
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
}
