// Package gitops provides the version-control tools. Status and diff are
// read-class; committing is git_write-class and subject to policy.
package gitops

import (
	"context"
	"fmt"
	"strings"

	"patchwork/internal/policy"
	"patchwork/internal/sandbox"
	"patchwork/internal/tools"
)

// GitStatusTool returns the read-class working tree status tool.
func GitStatusTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "git_status",
		Description: "Show the git working tree status",
		Class:       policy.ClassRead,
		Schema:      tools.Schema{Properties: map[string]tools.Property{}},
		Execute: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			res, err := sb.Exec(ctx, sandbox.ExecSpec{Command: "git status --porcelain=v1 -b"})
			if err != nil {
				return tools.Result{Output: res.Stderr}, err
			}
			return tools.Result{Output: res.Stdout}, nil
		},
	}
}

// GitDiffTool returns the read-class diff tool over uncommitted changes.
func GitDiffTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "git_diff",
		Description: "Show uncommitted changes as a unified diff",
		Class:       policy.ClassRead,
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"staged": {Type: "boolean", Description: "Diff staged changes instead of the working tree"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			cmd := "git diff"
			if tools.OptionalBool(args, "staged", false) {
				cmd = "git diff --cached"
			}
			res, err := sb.Exec(ctx, sandbox.ExecSpec{Command: cmd})
			if err != nil {
				return tools.Result{Output: res.Stderr}, err
			}
			return tools.Result{Output: res.Stdout}, nil
		},
	}
}

// GitCommitTool returns the git_write-class commit tool: stages everything
// in the workspace and commits with the given message.
func GitCommitTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "git_commit",
		Description: "Stage all changes and create a commit",
		Class:       policy.ClassGitWrite,
		Schema: tools.Schema{
			Required: []string{"message"},
			Properties: map[string]tools.Property{
				"message": {Type: "string", Description: "Commit message"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			message, err := tools.StringArg(args, "message")
			if err != nil {
				return tools.Result{}, err
			}

			if _, err := sb.Exec(ctx, sandbox.ExecSpec{Command: "git add -A"}); err != nil {
				return tools.Result{}, fmt.Errorf("staging changes: %w", err)
			}

			// Argv form: the message reaches git as a single argument and
			// never passes through a shell.
			res, err := sb.Exec(ctx, sandbox.ExecSpec{
				Argv: []string{"git", "commit", "-m", message},
			})
			if err != nil {
				return tools.Result{Output: res.Stdout + res.Stderr}, err
			}

			hashRes, err := sb.Exec(ctx, sandbox.ExecSpec{Command: "git rev-parse HEAD"})
			if err != nil {
				return tools.Result{Output: res.Stdout}, err
			}
			return tools.Result{Output: strings.TrimSpace(hashRes.Stdout)}, nil
		},
	}
}

// Register adds the git tools to the registry.
func Register(reg *tools.Registry, sb *sandbox.Sandbox) {
	reg.MustRegister(GitStatusTool(sb))
	reg.MustRegister(GitDiffTool(sb))
	reg.MustRegister(GitCommitTool(sb))
}
