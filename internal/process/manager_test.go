package process

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOS records calls and serves scripted process states.
type fakeOS struct {
	nextPID  int
	startErr error
	killErr  error

	started []string
	exited  map[int]ExitStatus // reapable on the next Reap
	gone    map[int]bool       // not reapable and not alive
	killed  []int
	waited  []int
}

func newFakeOS() *fakeOS {
	return &fakeOS{nextPID: 100, exited: map[int]ExitStatus{}, gone: map[int]bool{}}
}

func (f *fakeOS) Start(path string, _ []string, stdout, stderr *os.File) (int, error) {
	if f.startErr != nil {
		return 0, f.startErr
	}
	if stdout == nil || stderr == nil {
		return 0, errors.New("missing log files")
	}
	f.nextPID++
	f.started = append(f.started, path)
	return f.nextPID, nil
}

func (f *fakeOS) Reap(pid int) (ExitStatus, bool, error) {
	if st, ok := f.exited[pid]; ok {
		delete(f.exited, pid)
		return st, true, nil
	}
	if f.gone[pid] {
		return ExitStatus{}, false, ErrNotChild
	}
	return ExitStatus{}, false, nil
}

func (f *fakeOS) Alive(pid int) bool { return !f.gone[pid] }

func (f *fakeOS) KillGroup(pid int) error {
	if f.killErr != nil {
		return f.killErr
	}
	f.killed = append(f.killed, pid)
	return nil
}

func (f *fakeOS) Wait(pid int) (ExitStatus, error) {
	f.waited = append(f.waited, pid)
	if f.gone[pid] {
		return ExitStatus{}, ErrNotChild
	}
	return ExitStatus{PID: pid, Code: -1, Signal: "SIGKILL"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serviceRoot creates root/<name>/ for each name and returns root.
func serviceRoot(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, n), 0o755))
	}
	return root
}

func newFakeManager(t *testing.T, capacity int) (*Manager, *fakeOS) {
	t.Helper()
	f := newFakeOS()
	return NewManager(capacity, WithOS(f), WithLogger(discardLogger())), f
}

func TestManagerEnableBuildsPaths(t *testing.T) {
	m, _ := newFakeManager(t, 4)
	h, err := m.Enable("/srv", "web")
	require.NoError(t, err)

	rec, err := m.Table().Get(h)
	require.NoError(t, err)
	assert.Equal(t, "web", rec.Name)
	assert.Equal(t, "/srv/web", rec.Dir)
	assert.Equal(t, "/srv/web/web", rec.RunPath)
	assert.Equal(t, "/srv/web/stdout.log", rec.StdoutPath)
	assert.Equal(t, "/srv/web/stderr.log", rec.StderrPath)
	assert.Zero(t, rec.PID)
}

func TestManagerLaunchRecordsPID(t *testing.T) {
	root := serviceRoot(t, "web")
	m, f := newFakeManager(t, 4)
	h, err := m.Enable(root, "web")
	require.NoError(t, err)

	pid, err := m.Launch(h)
	require.NoError(t, err)
	assert.Equal(t, 101, pid)

	rec, _ := m.Table().Get(h)
	assert.Equal(t, 101, rec.PID)
	assert.Equal(t, 1, rec.Launches)
	assert.False(t, rec.StartedAt.IsZero())
	assert.Equal(t, []string{filepath.Join(root, "web", "web")}, f.started)

	for _, name := range []string{StdoutLog, StderrLog} {
		fi, err := os.Stat(filepath.Join(root, "web", name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}
}

func TestManagerLaunchLogOpenFailureLeavesPIDUnset(t *testing.T) {
	root := t.TempDir() // service directory deliberately missing
	m, f := newFakeManager(t, 4)
	h, err := m.Enable(root, "ghost")
	require.NoError(t, err)

	_, err = m.Launch(h)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLogOpen))
	assert.Empty(t, f.started)

	health, _, err := m.Check(h)
	require.NoError(t, err)
	assert.Equal(t, NotStarted, health)
}

func TestManagerLaunchStartFailureLeavesPIDUnset(t *testing.T) {
	root := serviceRoot(t, "bad")
	m, f := newFakeManager(t, 4)
	f.startErr = errors.New("exec format error")
	h, _ := m.Enable(root, "bad")

	_, err := m.Launch(h)
	require.Error(t, err)
	rec, _ := m.Table().Get(h)
	assert.Zero(t, rec.PID)
	assert.Zero(t, rec.Launches)
}

func TestManagerCheckStates(t *testing.T) {
	root := serviceRoot(t, "svc")
	m, f := newFakeManager(t, 4)
	h, _ := m.Enable(root, "svc")

	health, _, err := m.Check(h)
	require.NoError(t, err)
	assert.Equal(t, NotStarted, health)

	pid, err := m.Launch(h)
	require.NoError(t, err)

	health, _, err = m.Check(h)
	require.NoError(t, err)
	assert.Equal(t, Running, health)

	f.exited[pid] = ExitStatus{PID: pid, Code: 1}
	health, st, err := m.Check(h)
	require.NoError(t, err)
	assert.Equal(t, Exited, health)
	require.NotNil(t, st)
	assert.Equal(t, 1, st.Code)
	assert.Equal(t, []int{pid}, f.killed, "leftover group members are swept after exit")

	rec, _ := m.Table().Get(h)
	assert.Zero(t, rec.PID)
	require.NotNil(t, rec.LastExit)
	assert.Equal(t, "status 1", rec.LastExit.String())

	pid, err = m.Launch(h)
	require.NoError(t, err)
	f.gone[pid] = true
	health, _, err = m.Check(h)
	require.NoError(t, err)
	assert.Equal(t, Dead, health)
	rec, _ = m.Table().Get(h)
	assert.Zero(t, rec.PID)
}

func TestManagerCheckStaleHandle(t *testing.T) {
	m, _ := newFakeManager(t, 4)
	h, _ := m.Enable("/srv", "a")
	require.NoError(t, m.Disable(h))

	_, _, err := m.Check(h)
	assert.True(t, errors.Is(err, ErrStaleHandle))
	_, err = m.Launch(h)
	assert.True(t, errors.Is(err, ErrStaleHandle))
	assert.True(t, errors.Is(m.Disable(h), ErrStaleHandle))
}

func TestManagerDisableKillsGroupThenReleases(t *testing.T) {
	root := serviceRoot(t, "db")
	m, f := newFakeManager(t, 4)
	h, _ := m.Enable(root, "db")
	pid, err := m.Launch(h)
	require.NoError(t, err)

	require.NoError(t, m.Disable(h))
	assert.Equal(t, []int{pid}, f.killed)
	assert.Equal(t, []int{pid}, f.waited)
	assert.Equal(t, 0, m.Table().Len())
	_, ok := m.Table().Lookup("db")
	assert.False(t, ok)
}

func TestManagerDisableNeverLaunched(t *testing.T) {
	m, f := newFakeManager(t, 4)
	h, _ := m.Enable("/srv", "idle")

	require.NoError(t, m.Disable(h))
	assert.Empty(t, f.killed)
	assert.Empty(t, f.waited)
	assert.Equal(t, 0, m.Table().Len())
}

func TestManagerDisableToleratesAlreadyReaped(t *testing.T) {
	root := serviceRoot(t, "x")
	m, f := newFakeManager(t, 4)
	h, _ := m.Enable(root, "x")
	pid, _ := m.Launch(h)
	f.gone[pid] = true

	require.NoError(t, m.Disable(h))
	assert.Equal(t, 0, m.Table().Len())
}

func TestManagerDisableKillFailureKeepsSlot(t *testing.T) {
	root := serviceRoot(t, "x")
	m, f := newFakeManager(t, 4)
	h, _ := m.Enable(root, "x")
	_, err := m.Launch(h)
	require.NoError(t, err)
	f.killErr = errors.New("operation not permitted")

	require.Error(t, m.Disable(h))
	assert.Equal(t, 1, m.Table().Len())
	assert.Empty(t, f.waited, "must not block on a process that was never signalled")
}
