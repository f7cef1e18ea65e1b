package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"patchwork/internal/policy"
)

// ExecSpec describes one sandboxed command execution. Argv runs the program
// directly with no shell, so caller-supplied strings cannot be interpreted;
// Command goes through sh -c. Exactly one of the two should be set.
type ExecSpec struct {
	Command string            // Shell command line, run via sh -c
	Argv    []string          // Program + arguments, executed without a shell
	Dir     string            // Working directory; must resolve inside the sandbox
	Env     map[string]string // Extra environment variables (scrubbed like the inherited ones)
	Timeout time.Duration     // Wall-clock limit; 0 uses the policy limit
}

func (s ExecSpec) display() string {
	if len(s.Argv) > 0 {
		return strings.Join(s.Argv, " ")
	}
	return s.Command
}

// ExecResult is the outcome of a sandboxed command.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Exec runs a shell command inside the sandbox: working directory confined to
// the root, environment scrubbed of secrets, wall-clock timeout enforced by
// killing the whole process group, and resource ceilings applied where the
// platform supports them.
func (s *Sandbox) Exec(ctx context.Context, spec ExecSpec) (ExecResult, error) {
	dir := spec.Dir
	if dir == "" {
		dir = s.root
	}
	resolvedDir, err := s.Resolve(dir)
	if err != nil {
		return ExecResult{}, err
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = s.limits.WallClock
	}
	execCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if len(spec.Argv) > 0 {
		cmd = exec.CommandContext(execCtx, spec.Argv[0], spec.Argv[1:]...)
	} else {
		cmd = exec.CommandContext(execCtx, "sh", "-c", spec.Command)
	}
	cmd.Dir = resolvedDir
	// New process group so the entire subprocess tree can be killed together.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	env := ScrubEnv(os.Environ())
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = ScrubEnv(env)

	start := time.Now()
	stdout, stderr, runErr := runDraining(cmd, s.limits)
	result := ExecResult{
		Stdout:   string(stdout),
		Stderr:   string(stderr),
		Duration: time.Since(start),
	}

	if execCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		return result, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, spec.display())
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("command exited %d: %s", result.ExitCode, spec.display())
		}
		result.ExitCode = -1
		return result, fmt.Errorf("command failed: %w", runErr)
	}

	return result, nil
}

// runDraining starts the command, applies resource limits to the started
// process, and drains stdout/stderr concurrently before Wait. Draining both
// pipes before Wait prevents deadlocks when output exceeds the pipe buffer.
func runDraining(cmd *exec.Cmd, limits policy.Limits) (stdout, stderr []byte, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start: %w", err)
	}

	// Best effort on platforms without prlimit support.
	applyLimits(cmd, limits)

	var wg sync.WaitGroup
	var outBuf, errBuf bytes.Buffer
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&outBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&errBuf, stderrPipe)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	return outBuf.Bytes(), errBuf.Bytes(), waitErr
}

// killProcessGroup kills the entire process group associated with the
// command, preventing orphaned grandchildren.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
