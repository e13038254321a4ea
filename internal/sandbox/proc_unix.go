//go:build !windows

package sandbox

import (
	"os/exec"
	"syscall"
)

// killGroupOnCancel starts cmd in its own process group and makes context
// cancellation kill the whole group, so helpers the runner spawned die with it.
func killGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
