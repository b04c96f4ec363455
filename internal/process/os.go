package process

import (
	"os"

	"github.com/pkg/errors"
)

// ErrNotChild is returned by OS.Reap and OS.Wait when pid is not (or no
// longer) a child of this process.
var ErrNotChild = errors.New("not a child process")

// OS abstracts the process primitives used by Manager so the lifecycle can be
// tested without forking.
type OS interface {
	// Start runs path with argv [path] as the leader of a new process group,
	// with stdout and stderr attached to the given files. It returns the new
	// process id.
	Start(path string, env []string, stdout, stderr *os.File) (int, error)
	// Reap is a non-blocking wait for pid. reaped is false while the process
	// is still running.
	Reap(pid int) (st ExitStatus, reaped bool, err error)
	// Alive probes pid with the null signal.
	Alive(pid int) bool
	// KillGroup sends SIGKILL to the process group led by pid. A group that
	// no longer exists is not an error.
	KillGroup(pid int) error
	// Wait blocks until pid is reaped.
	Wait(pid int) (ExitStatus, error)
}
