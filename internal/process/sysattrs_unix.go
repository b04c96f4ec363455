//go:build !windows

package process

import "syscall"

// groupLeaderAttr places the child in a new process group whose id equals
// its pid, so the whole tree can be signalled with kill(-pid).
func groupLeaderAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
