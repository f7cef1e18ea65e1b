package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"patchwork/internal/tools"
)

// Task is one unit of work handed to the Runner: the node it belongs to,
// what kind of agent to run, the node's payload, and any recalled memory.
type Task struct {
	NodeID  string
	Kind    Kind
	Payload string
	Memory  string
}

// Report is the structured outcome of one task execution.
type Report struct {
	NodeID    string
	Kind      Kind
	Output    string
	ToolCalls int
	Err       error
	TimedOut  bool
	Duration  time.Duration
}

// Config wires a Runner.
type Config struct {
	Bus    *tools.Bus
	Caller Caller
	// Timeout bounds one task's whole work loop; zero disables.
	Timeout time.Duration
	// MaxSteps bounds model round-trips per task (default 16).
	MaxSteps int
	Logger   *zap.Logger
}

// Runner executes one task's work loop: build context, call the model,
// execute requested tools through the bus, feed results back, repeat until
// the model answers with terminal text or a bound is hit.
type Runner struct {
	bus      *tools.Bus
	caller   Caller
	timeout  time.Duration
	maxSteps int
	log      *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 16
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		bus:      cfg.Bus,
		caller:   cfg.Caller,
		timeout:  cfg.Timeout,
		maxSteps: cfg.MaxSteps,
		log:      log,
	}
}

// Run executes the task to completion. The report carries the outcome; Run
// itself never panics or leaks the loop past the timeout.
func (r *Runner) Run(ctx context.Context, task Task) Report {
	start := time.Now()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	report := r.loop(ctx, task)
	report.NodeID = task.NodeID
	report.Kind = task.Kind
	report.Duration = time.Since(start)

	if report.Err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		report.TimedOut = true
		report.Err = fmt.Errorf("%w: agent %s exceeded its time budget: %v",
			tools.ErrTimeout, task.NodeID, report.Err)
	}

	if report.Err != nil {
		r.log.Debug("agent task failed",
			zap.String("node", task.NodeID),
			zap.String("kind", task.Kind.String()),
			zap.Bool("timed_out", report.TimedOut),
			zap.Error(report.Err))
	} else {
		r.log.Debug("agent task done",
			zap.String("node", task.NodeID),
			zap.String("kind", task.Kind.String()),
			zap.Int("tool_calls", report.ToolCalls),
			zap.Duration("duration", report.Duration))
	}
	return report
}

func (r *Runner) loop(ctx context.Context, task Task) Report {
	bundle := ContextBundle{
		Kind:    task.Kind,
		System:  systemPrompt(task.Kind),
		Memory:  task.Memory,
		Tools:   r.bus.Registry().All(),
		Payload: task.Payload,
	}

	var report Report
	for step := 0; step < r.maxSteps; step++ {
		// Cancellation is observed at call boundaries only; an in-flight
		// tool execution finishes or times out on its own.
		if err := ctx.Err(); err != nil {
			report.Err = err
			return report
		}

		out, err := r.caller.Call(ctx, bundle)
		if err != nil {
			report.Err = fmt.Errorf("model call: %w", err)
			return report
		}

		if len(out.Requests) == 0 {
			report.Output = out.Text
			return report
		}

		exchange := Exchange{Text: out.Text, Requests: out.Requests}
		for _, req := range out.Requests {
			if err := ctx.Err(); err != nil {
				report.Err = err
				return report
			}

			res, callErr := r.bus.Call(ctx, tools.Call{
				Tool:    req.Tool,
				Args:    req.Args,
				AgentID: task.NodeID,
			})
			report.ToolCalls++

			sr := StepResult{Tool: req.Tool, Output: res.Output}
			if callErr != nil {
				sr.Error = callErr.Error()
				// Policy refusals and sandbox escapes are a defect in the
				// requesting agent, not a transient fault: the node fails.
				if tools.Fatal(callErr) {
					report.Err = callErr
					return report
				}
			}
			exchange.Results = append(exchange.Results, sr)
		}
		bundle.Transcript = append(bundle.Transcript, exchange)
	}

	report.Err = fmt.Errorf("%w: agent %s exhausted %d steps without a terminal answer",
		tools.ErrExecutionFailed, task.NodeID, r.maxSteps)
	return report
}

// systemPrompt returns the per-kind system instructions.
func systemPrompt(kind Kind) string {
	switch kind {
	case KindRepoScan:
		return "Survey the repository structure and summarize the parts relevant to the task."
	case KindMemoryRecall:
		return "Recall prior session knowledge relevant to the task and return it as context."
	case KindPatchGenerate:
		return "Produce the code change for the task using the file tools. Keep edits minimal."
	case KindTestRun:
		return "Run the project's tests and report pass/fail with the failure detail."
	case KindDebugFix:
		return "Diagnose the reported failure and apply a fix using the file tools."
	case KindSearch:
		return "Search the repository for the requested pattern and report the matches."
	case KindConstraintCheck:
		return "Verify the stated constraints hold for the current working tree."
	default:
		return "Complete the task using the available tools."
	}
}
