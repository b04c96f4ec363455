package process

import (
	"fmt"
	"time"
)

// Health is the outcome of one health check on a live record.
type Health int

const (
	NotStarted Health = iota
	Running
	Exited
	Dead
)

func (h Health) String() string {
	switch h {
	case NotStarted:
		return "not started"
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("Health(%d)", int(h))
	}
}

// ExitStatus is a reaped child's termination status. Signal is empty when the
// process exited normally; Code is -1 when it was killed by a signal.
type ExitStatus struct {
	PID    int    `json:"pid"`
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

func (s ExitStatus) String() string {
	if s.Signal != "" {
		return "signal " + s.Signal
	}
	return fmt.Sprintf("status %d", s.Code)
}

// Status is a read-only view of a live record.
type Status struct {
	Slot      int         `json:"slot"`
	Name      string      `json:"name"`
	PID       int         `json:"pid"`
	Running   bool        `json:"running"`
	Launches  int         `json:"launches"`
	StartedAt time.Time   `json:"started_at"`
	LastExit  *ExitStatus `json:"last_exit,omitempty"`
}

func (r *Record) status(h Handle) Status {
	st := Status{
		Slot:      h.index,
		Name:      r.Name,
		PID:       r.PID,
		Running:   r.PID != 0,
		Launches:  r.Launches,
		StartedAt: r.StartedAt,
	}
	if r.LastExit != nil {
		e := *r.LastExit
		st.LastExit = &e
	}
	return st
}
