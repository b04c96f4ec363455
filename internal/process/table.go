package process

import (
	"time"

	"github.com/pkg/errors"
)

// DefaultCapacity is the table size used when none is configured.
const DefaultCapacity = 1024

var (
	// ErrTableFull is returned when every slot is live and the table has
	// reached its capacity.
	ErrTableFull = errors.New("process table full")
	// ErrStaleHandle is returned for a handle whose slot has been released
	// or handed to another record since the handle was issued.
	ErrStaleHandle = errors.New("stale process handle")
	// ErrDuplicateName is returned when allocating a name that is already
	// live in the table.
	ErrDuplicateName = errors.New("service name already live")
)

// Handle identifies one allocation of a table slot. The generation makes a
// handle from a previous owner of the same slot detectably stale.
type Handle struct {
	index int
	gen   uint64
}

// Index returns the slot index the handle refers to.
func (h Handle) Index() int { return h.index }

// IsZero reports whether h was never issued by a table.
func (h Handle) IsZero() bool { return h.gen == 0 }

// Record describes one supervised service and its runtime state.
type Record struct {
	Name       string
	Dir        string
	RunPath    string
	StdoutPath string
	StderrPath string

	PID       int // 0 when not running
	Launches  int
	StartedAt time.Time
	LastExit  *ExitStatus
}

type slot struct {
	rec  Record
	gen  uint64
	live bool
}

// Table is a bounded arena of process records. It is not safe for concurrent
// use; a single supervisor loop owns it.
type Table struct {
	slots    []*slot
	capacity int
	live     int
}

// NewTable returns an empty table holding at most capacity live records.
// A non-positive capacity selects DefaultCapacity.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{capacity: capacity}
}

// Allocate binds a new record to the first free slot, or appends a slot
// while capacity remains.
func (t *Table) Allocate(name, dir, runPath, stdoutPath, stderrPath string) (Handle, error) {
	if _, ok := t.Lookup(name); ok {
		return Handle{}, errors.Wrapf(ErrDuplicateName, "allocate %q", name)
	}

	idx := -1
	for i := range t.slots {
		if !t.slots[i].live {
			idx = i
			break
		}
	}
	if idx == -1 {
		if len(t.slots) >= t.capacity {
			return Handle{}, errors.Wrapf(ErrTableFull, "allocate %q (capacity %d)", name, t.capacity)
		}
		t.slots = append(t.slots, &slot{})
		idx = len(t.slots) - 1
	}

	s := t.slots[idx]
	s.gen++
	s.live = true
	s.rec = Record{
		Name:       name,
		Dir:        dir,
		RunPath:    runPath,
		StdoutPath: stdoutPath,
		StderrPath: stderrPath,
	}
	t.live++

	return Handle{index: idx, gen: s.gen}, nil
}

// Release frees the slot behind h. The caller must have torn down the
// record's process group first.
func (t *Table) Release(h Handle) error {
	s, err := t.slot(h)
	if err != nil {
		return err
	}
	s.live = false
	s.rec = Record{}
	t.live--
	return nil
}

// Get returns the live record behind h. The pointer is valid until the slot
// is released.
func (t *Table) Get(h Handle) (*Record, error) {
	s, err := t.slot(h)
	if err != nil {
		return nil, err
	}
	return &s.rec, nil
}

// Lookup finds the live record with the given name.
func (t *Table) Lookup(name string) (Handle, bool) {
	for i, s := range t.slots {
		if s.live && s.rec.Name == name {
			return Handle{index: i, gen: s.gen}, true
		}
	}
	return Handle{}, false
}

// ForEachLive calls fn for every live slot in index order. fn may modify the
// record but must not allocate or release slots.
func (t *Table) ForEachLive(fn func(Handle, *Record)) {
	for i, s := range t.slots {
		if !s.live {
			continue
		}
		fn(Handle{index: i, gen: s.gen}, &s.rec)
	}
}

// Handles returns the handles of all live slots in index order.
func (t *Table) Handles() []Handle {
	hs := make([]Handle, 0, t.live)
	t.ForEachLive(func(h Handle, _ *Record) { hs = append(hs, h) })
	return hs
}

// Len returns the number of live records.
func (t *Table) Len() int { return t.live }

// Cap returns the table capacity.
func (t *Table) Cap() int { return t.capacity }

// Available returns how many more records can be allocated.
func (t *Table) Available() int { return t.capacity - t.live }

// Snapshot returns the status of every live record in slot order.
func (t *Table) Snapshot() []Status {
	out := make([]Status, 0, t.live)
	t.ForEachLive(func(h Handle, r *Record) {
		out = append(out, r.status(h))
	})
	return out
}

func (t *Table) slot(h Handle) (*slot, error) {
	if h.gen == 0 || h.index < 0 || h.index >= len(t.slots) {
		return nil, ErrStaleHandle
	}
	s := t.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil, ErrStaleHandle
	}
	return s, nil
}
