package agent

import (
	"context"

	"patchwork/internal/tools"
)

// ToolRequest is one tool invocation the model asks for.
type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Exchange is one completed step of the work loop: the tool calls the model
// requested and the outcomes it saw. The transcript accumulates across steps
// so the model can react to results.
type Exchange struct {
	Text     string        `json:"text,omitempty"`
	Requests []ToolRequest `json:"requests,omitempty"`
	Results  []StepResult  `json:"results,omitempty"`
}

// StepResult is one tool outcome fed back to the model.
type StepResult struct {
	Tool   string `json:"tool"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ContextBundle is everything the model sees for one call: system
// instructions, recalled memory, the available tool definitions, the node's
// payload, and the transcript so far. The bundle is plain data; how it is
// serialized to a concrete model is the Caller's business.
type ContextBundle struct {
	Kind       Kind          `json:"kind"`
	System     string        `json:"system"`
	Memory     string        `json:"memory,omitempty"`
	Tools      []*tools.Tool `json:"tools"`
	Payload    string        `json:"payload"`
	Transcript []Exchange    `json:"transcript,omitempty"`
}

// Output is the model's answer: either tool requests to execute (the loop
// continues) or terminal text (the node is done). A Caller returning both
// gets the requests executed first; the text becomes terminal only when no
// requests accompany it.
type Output struct {
	Requests []ToolRequest `json:"requests,omitempty"`
	Text     string        `json:"text,omitempty"`
}

// Caller is the model boundary. The execution core never parses a vendor
// wire format; it hands over a ContextBundle and receives structured output.
type Caller interface {
	Call(ctx context.Context, bundle ContextBundle) (Output, error)
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, bundle ContextBundle) (Output, error)

// Call implements Caller.
func (f CallerFunc) Call(ctx context.Context, bundle ContextBundle) (Output, error) {
	return f(ctx, bundle)
}
