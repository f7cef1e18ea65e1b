// Package tools provides the tool registry and the permission-gated,
// sandboxed bus through which every filesystem, process, and version-control
// side effect must pass.
package tools

import (
	"context"
	"fmt"

	"patchwork/internal/policy"
)

// Property describes a single parameter for a tool's argument schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
}

// Schema defines a tool's argument schema, used both for validation and for
// exposing tool definitions to the model boundary.
type Schema struct {
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
}

// Mutation describes a file change a tool made, recorded in the edit history.
type Mutation struct {
	Path        string // Sandbox-resolved absolute path
	PrevExisted bool
	Previous    string
	NextExists  bool
	Next        string
	Diff        string // Unified diff, attached to review material
}

// Result is a tool's structured output.
type Result struct {
	Output   string
	Mutation *Mutation // Non-nil iff the call mutated file content
}

// ExecuteFunc is the signature for tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any) (Result, error)

// Tool is one registered capability. Tools declare exactly one permission
// class; the bus enforces policy per class, not per tool.
type Tool struct {
	Name        string
	Description string
	Class       policy.Class
	Schema      Schema
	Execute     ExecuteFunc
}

// Validate checks a tool definition before registration.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return fmt.Errorf("%w: %s", ErrToolExecuteNil, t.Name)
	}
	if !t.Class.Valid() {
		return fmt.Errorf("tool %s has unknown permission class %q", t.Name, t.Class)
	}
	return nil
}

// Call is one request to the bus.
type Call struct {
	Tool    string
	Args    map[string]any
	AgentID string
}

// StringArg extracts a required string argument.
func StringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingArg, key)
	}
	return v, nil
}

// OptionalString extracts an optional string argument.
func OptionalString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// OptionalInt extracts an optional integer argument, accepting the float64
// that JSON decoding produces.
func OptionalInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// OptionalBool extracts an optional boolean argument.
func OptionalBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}
