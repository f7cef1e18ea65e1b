package shell

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"patchwork/internal/policy"
	"patchwork/internal/sandbox"
	"patchwork/internal/tools"
)

func newTestSandbox(t *testing.T) *sandbox.Sandbox {
	t.Helper()
	sb, err := sandbox.New(t.TempDir(), t.TempDir(), policy.Default().Limits)
	if err != nil {
		t.Fatal(err)
	}
	return sb
}

func TestRunCommandCapturesOutput(t *testing.T) {
	tool := RunCommandTool(newTestSandbox(t))

	res, err := tool.Execute(context.Background(), map[string]any{
		"command": "echo hello",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Errorf("output = %q, want hello", res.Output)
	}
	if !strings.Contains(res.Output, "exit 0") {
		t.Errorf("output = %q, missing exit marker", res.Output)
	}
}

func TestRunCommandMergesStderr(t *testing.T) {
	tool := RunCommandTool(newTestSandbox(t))

	res, err := tool.Execute(context.Background(), map[string]any{
		"command": "echo out; echo err >&2",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"out", "--- stderr ---", "err"} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("output = %q, missing %q", res.Output, want)
		}
	}
}

func TestRunCommandNonZeroExit(t *testing.T) {
	tool := RunCommandTool(newTestSandbox(t))

	res, err := tool.Execute(context.Background(), map[string]any{
		"command": "echo partial; exit 3",
	})
	if err == nil {
		t.Fatal("expected error for exit 3")
	}
	if !strings.Contains(res.Output, "partial") {
		t.Errorf("output before failure lost: %q", res.Output)
	}
}

func TestRunCommandTimeout(t *testing.T) {
	tool := RunCommandTool(newTestSandbox(t))

	start := time.Now()
	_, err := tool.Execute(context.Background(), map[string]any{
		"command":         "sleep 10",
		"timeout_seconds": float64(1),
	})
	if !errors.Is(err, sandbox.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestRunCommandMissingArg(t *testing.T) {
	tool := RunCommandTool(newTestSandbox(t))

	if _, err := tool.Execute(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error for missing command arg")
	}
	if _, err := tool.Execute(context.Background(), map[string]any{"command": 42}); err == nil {
		t.Fatal("expected error for non-string command arg")
	}
}

func TestRegisterAddsTool(t *testing.T) {
	reg := tools.NewRegistry()
	Register(reg, newTestSandbox(t))

	tool := reg.Get("run_command")
	if tool == nil {
		t.Fatal("run_command not registered")
	}
	if tool.Class != policy.ClassExecute {
		t.Errorf("class = %v, want execute", tool.Class)
	}
}
