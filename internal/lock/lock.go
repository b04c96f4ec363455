// Package lock keeps two supervisors from managing the same service root.
package lock

import (
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// FileName is the lock file created inside the service root. It is a regular
// file, so directory scans never mistake it for a service.
const FileName = ".lumbergh.lock"

// ErrLockedElsewhere is returned if another process holds the lock.
var ErrLockedElsewhere = errors.New("service root already supervised elsewhere")

// Lock is a held flock on a service root.
type Lock struct {
	l *flock.Flock
}

// Path returns the lock file path for root.
func Path(root string) string { return filepath.Join(root, FileName) }

// Acquire takes a non-blocking exclusive flock on the lock file of root.
// It returns ErrLockedElsewhere if the lock is held by another process and a
// wrapped error if the lock file cannot be created or locked.
func Acquire(root string) (*Lock, error) {
	l := flock.New(Path(root))

	locked, err := l.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire lock")
	}
	if !locked {
		return nil, ErrLockedElsewhere
	}
	return &Lock{l: l}, nil
}

// Release unlocks and closes the lock file. The file itself is left in place.
func (l *Lock) Release() error {
	if l == nil || l.l == nil {
		return nil
	}
	return l.l.Unlock()
}
