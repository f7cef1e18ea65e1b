package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"patchwork/internal/sandbox"
)

// CLICaller speaks to a model through a CLI subprocess: one invocation per
// call, the bundle on stdin as JSON, structured output on stdout. The first
// call opens a session; later calls resume it so the vendor side keeps
// conversation state. Safe for concurrent use: one caller is shared by every
// running agent.
type CLICaller struct {
	command string
	model   string
	workDir string

	mu        sync.Mutex // guards sessionID and started
	sessionID string
	started   bool
}

// CLICallerConfig configures a CLICaller. Command is the executable name;
// WorkDir is the directory the subprocess runs in (normally the sandbox
// root or a worktree path).
type CLICallerConfig struct {
	Command   string
	Model     string
	WorkDir   string
	SessionID string
}

// cliOutput is the JSON shape the CLI prints on stdout.
type cliOutput struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Requests  []struct {
		Tool string         `json:"tool"`
		Args map[string]any `json:"args"`
	} `json:"tool_calls"`
}

// NewCLICaller creates a CLI-backed model caller.
func NewCLICaller(cfg CLICallerConfig) (*CLICaller, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("cli caller: command is required")
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cli caller: resolving working directory: %w", err)
		}
	}
	return &CLICaller{
		command:   cfg.Command,
		model:     cfg.Model,
		workDir:   workDir,
		sessionID: sessionID,
	}, nil
}

// SessionID returns the session identifier the caller resumes across calls.
func (c *CLICaller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Call invokes the CLI once. The subprocess inherits a scrubbed environment;
// cancellation kills it.
func (c *CLICaller) Call(ctx context.Context, bundle ContextBundle) (Output, error) {
	input, err := json.Marshal(bundle)
	if err != nil {
		return Output{}, fmt.Errorf("cli caller: encoding bundle: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.command, c.buildArgs()...)
	cmd.Dir = c.workDir
	cmd.Env = sandbox.ScrubEnv(os.Environ())
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Output{}, fmt.Errorf("cli caller: %s failed: %w (stderr: %s)",
			c.command, err, stderr.String())
	}

	var out cliOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Output{}, fmt.Errorf("cli caller: parsing %s output: %w", c.command, err)
	}
	c.mu.Lock()
	c.started = true
	if out.SessionID != "" {
		c.sessionID = out.SessionID
	}
	c.mu.Unlock()

	result := Output{Text: out.Text}
	for _, req := range out.Requests {
		result.Requests = append(result.Requests, ToolRequest{Tool: req.Tool, Args: req.Args})
	}
	return result, nil
}

// buildArgs constructs the CLI argument list. The first call opens the
// session, subsequent calls resume it.
func (c *CLICaller) buildArgs() []string {
	c.mu.Lock()
	started, sessionID := c.started, c.sessionID
	c.mu.Unlock()

	args := []string{"--input-format", "json", "--output-format", "json"}
	if started {
		args = append(args, "--resume", sessionID)
	} else {
		args = append(args, "--session-id", sessionID)
	}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	return args
}
