//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// setupProcessAttributes puts the child in its own process group so a forced
// kill reaches the JVM and anything it spawned.
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// KillProcessGroup sends SIGKILL to the group led by pid.
func KillProcessGroup(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
