//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func shellCommand(commandLine string) *exec.Cmd {
	cmd := exec.Command("cmd")
	// cmd.exe does its own argument parsing, so pass the line through untouched.
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: "/C " + commandLine}
	return cmd
}

const createNewProcessGroup = 0x00000200

func detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= createNewProcessGroup
}

func kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	}
	defer p.Release()
	return p.Kill()
}

const (
	processQueryLimitedInformation = 0x1000
	stillActive                    = 259
)

// probe opens the process and checks that it has not exited.
// A handle can outlive its process, so a successful open alone does not mean alive.
func probe(pid int) (bool, error) {
	h, err := syscall.OpenProcess(processQueryLimitedInformation, false, uint32(pid))
	if err != nil {
		if errors.Is(err, syscall.ERROR_ACCESS_DENIED) {
			return true, nil
		}
		return false, fmt.Errorf("%w: %s", ErrNotFound, err)
	}
	defer syscall.CloseHandle(h)

	var code uint32
	if err := syscall.GetExitCodeProcess(h, &code); err != nil {
		return false, fmt.Errorf("reading exit code: %w", err)
	}
	return code == stillActive, nil
}
