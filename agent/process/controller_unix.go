//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

func shellCommand(commandLine string) *exec.Cmd {
	return exec.Command("/bin/sh", "-c", commandLine)
}

// detach puts the child in its own process group so terminal signals sent to the agent do not reach it.
func detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func kill(pid int) error {
	return mapErrno(syscall.Kill(pid, syscall.SIGKILL))
}

// probe sends signal 0. EPERM means the process exists but belongs to someone else.
func probe(pid int) (bool, error) {
	err := syscall.Kill(pid, syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, syscall.EPERM) {
		return true, nil
	}
	return false, mapErrno(err)
}

func mapErrno(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, syscall.ESRCH):
		return ErrNotFound
	case errors.Is(err, syscall.EPERM):
		return ErrPermission
	default:
		return err
	}
}
