package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"patchwork/internal/events"
	"patchwork/internal/history"
	"patchwork/internal/policy"
	"patchwork/internal/sandbox"
)

// BusConfig wires a Bus. Registry, Policy, Sandbox, History, and Events are
// required; Confirmer may be nil when no class is in ask mode.
type BusConfig struct {
	Registry  *Registry
	Policy    *policy.Policy
	Sandbox   *sandbox.Sandbox
	History   *history.Store
	Events    *events.Bus
	Confirmer Confirmer
	Logger    *zap.Logger
}

// Bus routes every tool call through permission evaluation, the sandbox, and
// the edit history. One Bus instance per session.
type Bus struct {
	registry  *Registry
	pol       *policy.Policy
	sb        *sandbox.Sandbox
	locks     *sandbox.PathLocks
	hist      *history.Store
	events    *events.Bus
	confirmer Confirmer
	log       *zap.Logger
}

// NewBus creates the session's tool bus.
func NewBus(cfg BusConfig) *Bus {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		registry:  cfg.Registry,
		pol:       cfg.Policy,
		sb:        cfg.Sandbox,
		locks:     sandbox.NewPathLocks(),
		hist:      cfg.History,
		events:    cfg.Events,
		confirmer: cfg.Confirmer,
		log:       log,
	}
}

// Registry returns the bus's tool registry, for exposing tool definitions to
// the model boundary.
func (b *Bus) Registry() *Registry { return b.registry }

// Call executes one tool call through the full gate sequence: registry
// lookup, permission evaluation, command-list check, sandboxed execution,
// edit-history append. Exactly one ToolCalled/ToolResult event pair is
// emitted per call, success or failure, and every call lands in the audit
// trail.
func (b *Bus) Call(ctx context.Context, call Call) (Result, error) {
	callID := uuid.NewString()
	start := time.Now()

	b.events.Publish(events.TopicTool, events.ToolCalledEvent{
		CallID:    callID,
		Tool:      call.Tool,
		AgentID:   call.AgentID,
		Timestamp: start,
	})

	result, err := b.dispatch(ctx, callID, call)
	duration := time.Since(start)

	errText := ""
	if err != nil {
		errText = err.Error()
	}
	diff := ""
	if result.Mutation != nil {
		diff = result.Mutation.Diff
	}
	b.events.Publish(events.TopicTool, events.ToolResultEvent{
		CallID:    callID,
		Tool:      call.Tool,
		AgentID:   call.AgentID,
		Success:   err == nil,
		Err:       errText,
		Diff:      diff,
		Duration:  duration,
		Timestamp: time.Now(),
	})

	args, _ := json.Marshal(call.Args)
	if auditErr := b.hist.RecordCall(ctx, &history.CallRecord{
		ID:         callID,
		Tool:       call.Tool,
		AgentID:    call.AgentID,
		Args:       string(args),
		Success:    err == nil,
		Error:      errText,
		DurationMS: duration.Milliseconds(),
	}); auditErr != nil {
		b.log.Warn("failed to record tool call in audit trail",
			zap.String("call_id", callID), zap.Error(auditErr))
	}

	if err != nil {
		b.log.Debug("tool call failed",
			zap.String("tool", call.Tool),
			zap.String("agent", call.AgentID),
			zap.Duration("duration", duration),
			zap.Error(err))
		return result, err
	}

	b.log.Debug("tool call completed",
		zap.String("tool", call.Tool),
		zap.String("agent", call.AgentID),
		zap.Duration("duration", duration))
	return result, nil
}

// dispatch runs the gate sequence. Steps are ordered and none is skippable.
func (b *Bus) dispatch(ctx context.Context, callID string, call Call) (Result, error) {
	// Cancellation is checked at call boundaries; an aborted session stops
	// issuing new side effects here.
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	tool := b.registry.Get(call.Tool)
	if tool == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, call.Tool)
	}

	if err := validateArgs(tool, call.Args); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	// Read-class calls bypass permission evaluation entirely.
	if tool.Class != policy.ClassRead {
		switch policy.Evaluate(tool.Class, b.pol) {
		case policy.Deny:
			return Result{}, fmt.Errorf("%w: class %s is denied by policy", ErrPermissionDenied, tool.Class)
		case policy.Ask:
			if err := b.confirm(ctx, callID, tool, call); err != nil {
				return Result{}, err
			}
		case policy.Allow:
		}
	}

	// Command text check for execute-class calls. Deny-list matches win
	// regardless of mode.
	if tool.Class == policy.ClassExecute {
		cmdline := OptionalString(call.Args, "command")
		if err := policy.CheckCommand(cmdline, b.pol); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
	}

	// Writes to one path serialize so the second writer observes the first
	// writer's edit record as its previous-content baseline.
	if tool.Class == policy.ClassWrite {
		if path := OptionalString(call.Args, "path"); path != "" {
			resolved, err := b.sb.Resolve(path)
			if err != nil {
				return Result{}, classifySandboxErr(err)
			}
			b.locks.Lock(resolved)
			defer b.locks.Unlock(resolved)
		}
	}

	result, err := tool.Execute(WithCallID(ctx, callID), call.Args)
	if err != nil {
		return result, classifySandboxErr(err)
	}

	if result.Mutation != nil {
		m := result.Mutation
		if err := b.hist.Append(ctx, &history.EditRecord{
			Path:        m.Path,
			PrevExisted: m.PrevExisted,
			Previous:    m.Previous,
			NextExists:  m.NextExists,
			Next:        m.Next,
			CallID:      callID,
		}); err != nil {
			return result, fmt.Errorf("%w: recording edit: %v", ErrExecutionFailed, err)
		}
	}

	return result, nil
}

// confirm suspends the call on an ask-mode class until the session answers
// or the ask timeout expires. Timeout is a deny, never a silent approval.
func (b *Bus) confirm(ctx context.Context, callID string, tool *Tool, call Call) error {
	if b.confirmer == nil {
		return fmt.Errorf("%w: class %s requires confirmation and no confirmer is configured", ErrPermissionDenied, tool.Class)
	}

	askCtx := ctx
	if b.pol.AskTimeout > 0 {
		var cancel context.CancelFunc
		askCtx, cancel = context.WithTimeout(ctx, b.pol.AskTimeout)
		defer cancel()
	}

	detail, _ := json.Marshal(call.Args)
	ok, err := b.confirmer.Confirm(askCtx, ConfirmRequest{
		CallID:  callID,
		Tool:    tool.Name,
		AgentID: call.AgentID,
		Class:   tool.Class,
		Detail:  string(detail),
	})
	if err != nil {
		return fmt.Errorf("%w: confirmation not received: %v", ErrPermissionDenied, err)
	}
	if !ok {
		return fmt.Errorf("%w: confirmation declined", ErrPermissionDenied)
	}
	return nil
}

// classifySandboxErr maps sandbox failures onto the bus error taxonomy.
func classifySandboxErr(err error) error {
	switch {
	case errors.Is(err, sandbox.ErrEscape):
		return fmt.Errorf("%w: %v", ErrSandboxViolation, err)
	case errors.Is(err, sandbox.ErrTimeout):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrSandboxViolation), errors.Is(err, ErrExecutionFailed),
		errors.Is(err, ErrTimeout):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
}

// validateArgs checks required arguments against the tool's schema.
func validateArgs(tool *Tool, args map[string]any) error {
	for _, req := range tool.Schema.Required {
		if _, ok := args[req]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingArg, req)
		}
	}
	return nil
}
