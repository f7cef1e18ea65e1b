// Package sandbox confines all side-effecting tool operations: filesystem
// paths are resolved and checked against a session root, subprocess
// environments are scrubbed of secrets, and command execution is subject to
// wall-clock and resource ceilings.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"patchwork/internal/policy"
)

// ErrEscape is returned when a resolved path falls outside the sandbox root
// (and outside the designated temp directory).
var ErrEscape = errors.New("path escapes sandbox root")

// ErrTimeout is returned when a sandboxed command exceeds its wall-clock limit.
var ErrTimeout = errors.New("command timed out")

// Sandbox enforces filesystem root confinement and resource-limited
// subprocess execution for one session.
type Sandbox struct {
	root    string
	tempDir string
	limits  policy.Limits
}

// New creates a sandbox rooted at root. tempDir, if non-empty, is a narrow
// allowance outside the root (e.g. os.TempDir() scratch space). Both paths
// are made absolute and symlink-resolved at construction.
func New(root, tempDir string, limits policy.Limits) (*Sandbox, error) {
	absRoot, err := canonicalize(root)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("sandbox root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %q is not a directory", root)
	}

	absTemp := ""
	if tempDir != "" {
		absTemp, err = canonicalize(tempDir)
		if err != nil {
			return nil, fmt.Errorf("resolving temp dir: %w", err)
		}
	}

	return &Sandbox{root: absRoot, tempDir: absTemp, limits: limits}, nil
}

// Root returns the absolute, symlink-resolved session root.
func (s *Sandbox) Root() string { return s.root }

// Limits returns the resource ceilings this sandbox applies.
func (s *Sandbox) Limits() policy.Limits { return s.limits }

// Resolve confines path to the sandbox root. Relative paths are taken
// relative to the root. The path is symlink-resolved before the containment
// check, so a symlink pointing outside the root is rejected. Paths under the
// designated temp directory are allowed. Returns the resolved absolute path.
func (s *Sandbox) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.root, abs)
	}

	resolved, err := canonicalize(abs)
	if err != nil {
		return "", err
	}

	if within(resolved, s.root) {
		return resolved, nil
	}
	if s.tempDir != "" && within(resolved, s.tempDir) {
		return resolved, nil
	}

	return "", fmt.Errorf("%w: %s", ErrEscape, path)
}

// canonicalize cleans, absolutizes, and symlink-resolves a path. For paths
// that do not exist yet, the deepest existing ancestor is resolved and the
// remaining components are re-joined, so a pending file creation under a
// symlinked directory is still checked against the link target.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	remainder := ""
	probe := abs
	for {
		resolved, err := filepath.EvalSymlinks(probe)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return abs, nil
		}
		remainder = filepath.Join(filepath.Base(probe), remainder)
		probe = parent
	}
}

// within reports whether path equals dir or is nested under it.
func within(path, dir string) bool {
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
