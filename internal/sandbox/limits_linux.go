//go:build linux

package sandbox

import (
	"os/exec"

	"golang.org/x/sys/unix"

	"patchwork/internal/policy"
)

// applyLimits applies resource ceilings to an already-started process via
// prlimit(2). Failures are ignored: a missing limit degrades to the
// wall-clock timeout, which is always enforced.
func applyLimits(cmd *exec.Cmd, limits policy.Limits) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid

	if limits.CPUSeconds > 0 {
		lim := unix.Rlimit{Cur: limits.CPUSeconds, Max: limits.CPUSeconds}
		_ = unix.Prlimit(pid, unix.RLIMIT_CPU, &lim, nil)
	}
	if limits.MemoryBytes > 0 {
		lim := unix.Rlimit{Cur: limits.MemoryBytes, Max: limits.MemoryBytes}
		_ = unix.Prlimit(pid, unix.RLIMIT_AS, &lim, nil)
	}
	if limits.MaxOpenFiles > 0 {
		lim := unix.Rlimit{Cur: limits.MaxOpenFiles, Max: limits.MaxOpenFiles}
		_ = unix.Prlimit(pid, unix.RLIMIT_NOFILE, &lim, nil)
	}
}
