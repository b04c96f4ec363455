//go:build !windows

package process

import (
	"os"

	"golang.org/x/sys/unix"
)

type unixOS struct{}

// SystemOS returns the OS implementation backed by fork/exec, wait4 and kill.
func SystemOS() OS { return unixOS{} }

func (unixOS) Start(path string, env []string, stdout, stderr *os.File) (int, error) {
	// #nosec G204
	p, err := os.StartProcess(path, []string{path}, &os.ProcAttr{
		Env:   env,
		Files: []*os.File{os.Stdin, stdout, stderr},
		Sys:   groupLeaderAttr(),
	})
	if err != nil {
		return 0, err
	}
	pid := p.Pid
	// The child is reaped with wait4 by pid; drop the runtime's handle.
	_ = p.Release()
	return pid, nil
}

func (unixOS) Reap(pid int) (ExitStatus, bool, error) {
	return wait4(pid, unix.WNOHANG)
}

func (unixOS) Wait(pid int) (ExitStatus, error) {
	st, _, err := wait4(pid, 0)
	return st, err
}

func (unixOS) Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

func (unixOS) KillGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}

func wait4(pid int, options int) (ExitStatus, bool, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, options, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			return ExitStatus{}, false, ErrNotChild
		case err != nil:
			return ExitStatus{}, false, err
		case wpid != pid:
			return ExitStatus{}, false, nil
		}
		return exitStatus(pid, ws), true, nil
	}
}

func exitStatus(pid int, ws unix.WaitStatus) ExitStatus {
	if ws.Signaled() {
		name := unix.SignalName(ws.Signal())
		if name == "" {
			name = ws.Signal().String()
		}
		return ExitStatus{PID: pid, Code: -1, Signal: name}
	}
	return ExitStatus{PID: pid, Code: ws.ExitStatus()}
}
