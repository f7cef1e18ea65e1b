// Package shell provides the execute-class command tool.
package shell

import (
	"context"
	"fmt"
	"strings"
	"time"

	"patchwork/internal/policy"
	"patchwork/internal/sandbox"
	"patchwork/internal/tools"
)

const outputCap = 50_000

// RunCommandTool returns the execute-class shell tool. The bus has already
// checked the command text against the policy's allow/deny lists before this
// runs; the sandbox confines the working directory, scrubs the environment,
// and enforces the timeout and resource ceilings.
func RunCommandTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "run_command",
		Description: "Execute a shell command in the workspace and return its output",
		Class:       policy.ClassExecute,
		Schema: tools.Schema{
			Required: []string{"command"},
			Properties: map[string]tools.Property{
				"command":         {Type: "string", Description: "The command to execute"},
				"dir":             {Type: "string", Description: "Working directory relative to the workspace root"},
				"timeout_seconds": {Type: "integer", Description: "Timeout in seconds (default: policy limit)"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			command, err := tools.StringArg(args, "command")
			if err != nil {
				return tools.Result{}, err
			}

			var timeout time.Duration
			if secs := tools.OptionalInt(args, "timeout_seconds", 0); secs > 0 {
				timeout = time.Duration(secs) * time.Second
			}

			res, execErr := sb.Exec(ctx, sandbox.ExecSpec{
				Command: command,
				Dir:     tools.OptionalString(args, "dir"),
				Timeout: timeout,
			})

			output := res.Stdout
			if res.Stderr != "" {
				if output != "" {
					output += "\n--- stderr ---\n"
				}
				output += res.Stderr
			}
			if len(output) > outputCap {
				output = output[:outputCap] + "\n...[truncated]"
			}

			if execErr != nil {
				return tools.Result{Output: output}, execErr
			}
			return tools.Result{Output: strings.TrimRight(output, "\n") + fmt.Sprintf("\n(exit 0 in %s)", res.Duration.Round(time.Millisecond))}, nil
		},
	}
}

// Register adds the shell tool to the registry.
func Register(reg *tools.Registry, sb *sandbox.Sandbox) {
	reg.MustRegister(RunCommandTool(sb))
}
