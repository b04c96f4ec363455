//go:build windows

package process

import (
	"os"

	"github.com/pkg/errors"
)

var errUnsupported = errors.New("process groups are not supported on windows")

type windowsOS struct{}

// SystemOS returns an OS whose operations all fail; supervision relies on
// POSIX process groups.
func SystemOS() OS { return windowsOS{} }

func (windowsOS) Start(string, []string, *os.File, *os.File) (int, error) {
	return 0, errUnsupported
}
func (windowsOS) Reap(int) (ExitStatus, bool, error) { return ExitStatus{}, false, errUnsupported }
func (windowsOS) Alive(int) bool                     { return false }
func (windowsOS) KillGroup(int) error                { return errUnsupported }
func (windowsOS) Wait(int) (ExitStatus, error)       { return ExitStatus{}, errUnsupported }
