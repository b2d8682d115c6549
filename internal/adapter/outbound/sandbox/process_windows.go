//go:build windows

package sandbox

import (
	"context"
	"os/exec"
)

// setProcessGroup is a no-op on Windows: job objects (the closer
// analogue to a Unix process group) need CreationFlags and a handle the
// stdlib os/exec doesn't expose, so a killed tool may leave orphaned
// descendants on this platform.
func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup falls back to killing just the top-level process.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// resourceLimitedCommand has no Windows equivalent to ulimit; the caps
// are accepted but not enforced on this platform.
func resourceLimitedCommand(ctx context.Context, binPath string, cfg Config) *exec.Cmd {
	return exec.CommandContext(ctx, binPath)
}
