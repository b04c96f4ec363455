package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventArgs(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))

	exit := Event{Type: EventExit, OccurredAt: at, Name: "web", PID: 10, ExitCode: 2}
	assert.Equal(t, []any{at.UTC(), "exit", "web", 10, 2, nil, nil}, exit.Args())

	killed := Event{Type: EventExit, OccurredAt: at, Name: "web", PID: 11, ExitCode: -1, Signal: "SIGKILL"}
	assert.Equal(t, []any{at.UTC(), "exit", "web", 11, nil, "SIGKILL", nil}, killed.Args())

	failed := Event{Type: EventLaunchError, OccurredAt: at, Name: "db", Error: "permission denied"}
	assert.Equal(t, []any{at.UTC(), "launch_error", "db", 0, nil, nil, "permission denied"}, failed.Args())

	// exit_code stays NULL for events other than exit
	launch := Event{Type: EventLaunch, OccurredAt: at, Name: "db", PID: 12}
	assert.Nil(t, launch.Args()[4])
}
