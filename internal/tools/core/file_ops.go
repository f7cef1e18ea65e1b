// Package core provides the file operation and search tools.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"patchwork/internal/history"
	"patchwork/internal/policy"
	"patchwork/internal/sandbox"
	"patchwork/internal/tools"
)

// ReadFileTool returns the read-class file read tool.
func ReadFileTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "read_file",
		Description: "Read the contents of a file",
		Class:       policy.ClassRead,
		Schema: tools.Schema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path":       {Type: "string", Description: "The file path to read"},
				"start_line": {Type: "integer", Description: "Starting line number (1-indexed, optional)"},
				"end_line":   {Type: "integer", Description: "Ending line number (inclusive, optional)"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			path, err := tools.StringArg(args, "path")
			if err != nil {
				return tools.Result{}, err
			}
			resolved, err := sb.Resolve(path)
			if err != nil {
				return tools.Result{}, err
			}

			content, err := os.ReadFile(resolved)
			if err != nil {
				return tools.Result{}, fmt.Errorf("reading %s: %w", path, err)
			}
			result := string(content)

			start := tools.OptionalInt(args, "start_line", 0)
			end := tools.OptionalInt(args, "end_line", 0)
			if start > 0 || end > 0 {
				lines := strings.Split(result, "\n")
				if start < 1 {
					start = 1
				}
				if end < 1 || end > len(lines) {
					end = len(lines)
				}
				if start > len(lines) {
					start = len(lines)
				}
				result = strings.Join(lines[start-1:end], "\n")
			}

			return tools.Result{Output: result}, nil
		},
	}
}

// WriteFileTool returns the write-class file write tool. The bus serializes
// concurrent writers to one path, so reading the previous content here is
// race-free with respect to other write calls.
func WriteFileTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "write_file",
		Description: "Write content to a file, creating it if it doesn't exist",
		Class:       policy.ClassWrite,
		Schema: tools.Schema{
			Required: []string{"path", "content"},
			Properties: map[string]tools.Property{
				"path":    {Type: "string", Description: "The file path to write"},
				"content": {Type: "string", Description: "The content to write"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			path, err := tools.StringArg(args, "path")
			if err != nil {
				return tools.Result{}, err
			}
			content, ok := args["content"].(string)
			if !ok {
				return tools.Result{}, fmt.Errorf("%w: content", tools.ErrMissingArg)
			}

			resolved, err := sb.Resolve(path)
			if err != nil {
				return tools.Result{}, err
			}

			previous := ""
			existed := false
			if prev, readErr := os.ReadFile(resolved); readErr == nil {
				previous = string(prev)
				existed = true
			} else if !os.IsNotExist(readErr) {
				return tools.Result{}, fmt.Errorf("reading previous content of %s: %w", path, readErr)
			}

			if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
				return tools.Result{}, fmt.Errorf("creating parent directories: %w", err)
			}
			if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
				return tools.Result{}, fmt.Errorf("writing %s: %w", path, err)
			}

			return tools.Result{
				Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path),
				Mutation: &tools.Mutation{
					Path:        resolved,
					PrevExisted: existed,
					Previous:    previous,
					NextExists:  true,
					Next:        content,
					Diff:        unifiedDiff(previous, content),
				},
			}, nil
		},
	}
}

// UndoEditTool returns the write-class undo tool: it pops the most recent
// not-yet-undone edit for a path and restores the prior content. The
// reversal is recorded in the history store, so undo is auditable rather
// than an erasure.
func UndoEditTool(sb *sandbox.Sandbox, hist *history.Store) *tools.Tool {
	return &tools.Tool{
		Name:        "undo_edit",
		Description: "Undo the most recent edit to a file",
		Class:       policy.ClassWrite,
		Schema: tools.Schema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {Type: "string", Description: "The file path to revert"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			path, err := tools.StringArg(args, "path")
			if err != nil {
				return tools.Result{}, err
			}
			resolved, err := sb.Resolve(path)
			if err != nil {
				return tools.Result{}, err
			}

			// The reversal record is appended before the filesystem changes:
			// after a crash the log never under-reports what was attempted.
			rec, err := hist.Undo(ctx, resolved, tools.CallIDFromContext(ctx))
			if err != nil {
				return tools.Result{}, err
			}

			if rec.NextExists {
				if err := os.WriteFile(resolved, []byte(rec.Next), 0o644); err != nil {
					return tools.Result{}, fmt.Errorf("restoring %s: %w", path, err)
				}
				return tools.Result{Output: fmt.Sprintf("restored %s to previous content", path)}, nil
			}

			if err := os.Remove(resolved); err != nil && !os.IsNotExist(err) {
				return tools.Result{}, fmt.Errorf("removing %s: %w", path, err)
			}
			return tools.Result{Output: fmt.Sprintf("removed %s (undid its creation)", path)}, nil
		},
	}
}

// unifiedDiff renders a line-based +/- diff between two contents, readable
// as-is in events and review material.
func unifiedDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lineIndex := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineIndex)

	var out strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" && d.Text != "\n" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			out.WriteString(prefix)
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}
	return out.String()
}
