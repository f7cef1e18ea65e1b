//go:build !linux

package sandbox

import (
	"os/exec"

	"patchwork/internal/policy"
)

// applyLimits is a no-op outside Linux; the wall-clock timeout still applies.
func applyLimits(_ *exec.Cmd, _ policy.Limits) {}
