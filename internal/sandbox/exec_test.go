package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"patchwork/internal/policy"
)

func TestExecSuccess(t *testing.T) {
	sb, _ := newTestSandbox(t)

	res, err := sb.Exec(context.Background(), ExecSpec{Command: "echo hello"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got := strings.TrimSpace(res.Stdout); got != "hello" {
		t.Errorf("stdout = %q, want %q", got, "hello")
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if res.TimedOut {
		t.Error("unexpected TimedOut")
	}
}

func TestExecArgvBypassesShell(t *testing.T) {
	sb, root := newTestSandbox(t)

	res, err := sb.Exec(context.Background(), ExecSpec{
		Argv: []string{"echo", "$(touch pwned)", "`id`"},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got := strings.TrimSpace(res.Stdout); got != "$(touch pwned) `id`" {
		t.Errorf("stdout = %q, want the metacharacters verbatim", got)
	}
	if _, err := os.Stat(filepath.Join(root, "pwned")); !os.IsNotExist(err) {
		t.Error("argv argument was interpreted by a shell")
	}
}

func TestExecNonZeroExit(t *testing.T) {
	sb, _ := newTestSandbox(t)

	res, err := sb.Exec(context.Background(), ExecSpec{Command: "echo oops >&2; exit 3"})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("stderr = %q, want to contain %q", res.Stderr, "oops")
	}
}

func TestExecTimeout(t *testing.T) {
	sb, _ := newTestSandbox(t)

	start := time.Now()
	res, err := sb.Exec(context.Background(), ExecSpec{
		Command: "sleep 30",
		Timeout: 200 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if !res.TimedOut {
		t.Error("TimedOut = false, want true")
	}
	if elapsed > 5*time.Second {
		t.Errorf("timeout took %s, process group kill appears broken", elapsed)
	}
}

func TestExecTimeoutKillsChildren(t *testing.T) {
	sb, _ := newTestSandbox(t)

	// The inner sleep is a grandchild; group kill must take it down too or
	// Wait would block on the shared stdout pipe.
	start := time.Now()
	_, err := sb.Exec(context.Background(), ExecSpec{
		Command: "sh -c 'sleep 30' & wait",
		Timeout: 200 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("grandchild survived group kill, Exec took %s", elapsed)
	}
}

func TestExecEnvScrubbed(t *testing.T) {
	sb, _ := newTestSandbox(t)
	t.Setenv("LEAKY_API_KEY", "sk-should-not-appear")

	res, err := sb.Exec(context.Background(), ExecSpec{Command: "env"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if strings.Contains(res.Stdout, "LEAKY_API_KEY") {
		t.Error("secret variable leaked into child environment")
	}
}

func TestExecDirConfined(t *testing.T) {
	root := t.TempDir()
	sb, err := New(root, "", policy.Limits{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sb.Exec(context.Background(), ExecSpec{Command: "pwd", Dir: "/"}); !errors.Is(err, ErrEscape) {
		t.Errorf("Exec outside root error = %v, want ErrEscape", err)
	}
}
