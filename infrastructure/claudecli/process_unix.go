//go:build unix

package claudecli

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the child in a new process group and makes
// cancellation kill the whole group, so helpers spawned by the CLI die with it.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// negative pid targets the group
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

// killProcessGroup kills whatever is left of the group after the leader
// exited. ESRCH means nothing was left.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
