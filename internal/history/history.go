package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventEnable      EventType = "enable"
	EventDisable     EventType = "disable"
	EventLaunch      EventType = "launch"
	EventLaunchError EventType = "launch_error"
	EventExit        EventType = "exit"
	EventDeath       EventType = "death"
)

// Event is one service lifecycle transition. ExitCode and Signal are only
// meaningful for EventExit; Error only for EventLaunchError.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	ExitCode   int       `json:"exit_code"`
	Signal     string    `json:"signal,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// nullString maps "" to a SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Args returns the column values of e in the order
// occurred_at, event, name, pid, exit_code, signal, error.
func (e Event) Args() []any {
	var code any
	if e.Type == EventExit && e.Signal == "" {
		code = e.ExitCode
	}
	return []any{e.OccurredAt.UTC(), string(e.Type), e.Name, e.PID, code, nullString(e.Signal), nullString(e.Error)}
}
