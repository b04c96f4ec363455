//go:build !windows

package main

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureDaemonAttrs starts the daemon in a new session.
func configureDaemonAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}

// setsid detaches the supervisor from its controlling terminal. It fails
// with EPERM when the caller already leads a process group.
func setsid() error {
	_, err := unix.Setsid()
	return err
}
