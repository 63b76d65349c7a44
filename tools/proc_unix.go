//go:build !windows

package tools

import (
	"context"
	"os/exec"
	"syscall"
)

// shellCommand runs command via /bin/sh in its own process group so a
// timeout takes down every child.
func shellCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return cmd
}
