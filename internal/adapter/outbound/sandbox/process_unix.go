//go:build !windows

package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup isolates cmd into its own process group so
// killProcessGroup can terminate every descendant it spawns, and asks
// the kernel to kill the child if the Runner itself dies first.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
}

// killProcessGroup sends SIGKILL to cmd's entire process group, so a
// sandboxed tool cannot outlive the Runner by forking children of its
// own.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = unix.Kill(-pgid, unix.SIGKILL)
}

// resourceLimitedCommand wraps binPath in a shell invocation applying
// ulimit caps before exec'ing it, since os/exec has no pre-exec hook to
// set rlimits in the child directly.
func resourceLimitedCommand(ctx context.Context, binPath string, cfg Config) *exec.Cmd {
	script := ""
	if cfg.MaxMemoryBytes > 0 {
		script += fmt.Sprintf("ulimit -v %d; ", cfg.MaxMemoryBytes/1024)
	}
	if cfg.MaxCPUSeconds > 0 {
		script += fmt.Sprintf("ulimit -t %d; ", cfg.MaxCPUSeconds)
	}
	script += "exec " + shellQuote(binPath)
	return exec.CommandContext(ctx, "sh", "-c", script)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
