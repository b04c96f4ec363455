package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		" error ": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewWritesTextToStdout(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := New(Config{Level: "info"}, &buf)
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()

	l.Debug("hidden")
	l.Info("process started", "name", "web", "pid", 42)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `msg="process started"`)
	assert.Contains(t, out, "name=web")
	assert.Contains(t, out, "pid=42")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, _, err := New(Config{Level: "verbose"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNewAlsoWritesRotatedFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "lumbergh.log")
	l, closer, err := New(Config{File: path}, &buf)
	require.NoError(t, err)

	l.Warn("process died", "name", "db")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "process died")
	assert.Contains(t, buf.String(), "process died")
}

func TestFileWriterDefaults(t *testing.T) {
	w := Config{File: "x.log"}.fileWriter()
	assert.Equal(t, DefaultMaxSizeMB, w.MaxSize)
	assert.Equal(t, DefaultMaxBackups, w.MaxBackups)
	assert.Equal(t, DefaultMaxAgeDays, w.MaxAge)

	w = Config{File: "x.log", MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 2, Compress: true}.fileWriter()
	assert.Equal(t, 1, w.MaxSize)
	assert.Equal(t, 9, w.MaxBackups)
	assert.Equal(t, 2, w.MaxAge)
	assert.True(t, w.Compress)
}

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	l := slog.New(h).With("name", "web")

	l.Error("critical error: unable to start program")
	out := buf.String()
	// TextHandler quotes the control bytes.
	assert.Contains(t, out, `\x1b[31mERROR\x1b[0m`)
	assert.Contains(t, out, "name=web", "attrs survive WithAttrs")
	assert.NotContains(t, out, "time=")

	buf.Reset()
	l.WithGroup("g").Info("x", "k", "v")
	assert.Contains(t, buf.String(), `\x1b[32mINFO`)
	assert.Contains(t, buf.String(), "g.k=v")
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	l := slog.New(h).With("svc", "x")
	l.Info("one")
	l.Error("two")

	assert.Equal(t, 2, strings.Count(a.String(), "svc=x"))
	assert.NotContains(t, b.String(), "one")
	assert.Contains(t, b.String(), "two")
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestJournalHandlerFields(t *testing.T) {
	type sent struct {
		msg    string
		pri    journal.Priority
		fields map[string]string
	}
	var got []sent
	h := NewJournalHandler(slog.LevelInfo)
	h.send = func(msg string, pri journal.Priority, vars map[string]string) error {
		got = append(got, sent{msg, pri, vars})
		return nil
	}

	l := slog.New(h).With("name", "web").WithGroup("exit")
	l.Debug("dropped")
	l.Warn("process exited", "code", 1, "signaled", false)

	require.Len(t, got, 1)
	assert.Equal(t, "process exited", got[0].msg)
	assert.Equal(t, journal.PriWarning, got[0].pri)
	assert.Equal(t, map[string]string{
		"SYSLOG_IDENTIFIER": "lumbergh",
		"NAME":              "web",
		"EXIT_CODE":         "1",
		"EXIT_SIGNALED":     "false",
	}, got[0].fields)
}

func TestLevelPriority(t *testing.T) {
	assert.Equal(t, journal.PriErr, levelPriority(slog.LevelError))
	assert.Equal(t, journal.PriWarning, levelPriority(slog.LevelWarn))
	assert.Equal(t, journal.PriInfo, levelPriority(slog.LevelInfo))
	assert.Equal(t, journal.PriDebug, levelPriority(slog.LevelDebug))
}
