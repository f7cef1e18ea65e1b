package agent

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

// stubCLI writes an executable that answers every call with a fixed JSON
// terminal response.
func stubCLI(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub")
	}
	path := filepath.Join(t.TempDir(), "model")
	script := "#!/bin/sh\necho '{\"session_id\":\"sess-1\",\"text\":\"done\",\"tool_calls\":[]}'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLICallerParsesOutput(t *testing.T) {
	caller, err := NewCLICaller(CLICallerConfig{Command: stubCLI(t), WorkDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	out, err := caller.Call(context.Background(), ContextBundle{Kind: KindSearch})
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "done" || len(out.Requests) != 0 {
		t.Errorf("output = %+v", out)
	}
	if caller.SessionID() != "sess-1" {
		t.Errorf("session = %q, want the CLI's", caller.SessionID())
	}
}

// One caller is shared by every concurrently running agent, so parallel
// calls must not race on the session state.
func TestCLICallerConcurrentCalls(t *testing.T) {
	caller, err := NewCLICaller(CLICallerConfig{Command: stubCLI(t), WorkDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = caller.Call(context.Background(), ContextBundle{Kind: KindSearch})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d: %v", i, err)
		}
	}
	if caller.SessionID() != "sess-1" {
		t.Errorf("session = %q after concurrent calls", caller.SessionID())
	}
}

func TestCLICallerRequiresCommand(t *testing.T) {
	if _, err := NewCLICaller(CLICallerConfig{}); err == nil {
		t.Fatal("expected error for empty command")
	}
}
