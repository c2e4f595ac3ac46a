//go:build !unix

package claudecli

import "os/exec"

// configureProcessGroup keeps exec's default cancellation (kill the child).
func configureProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {}
