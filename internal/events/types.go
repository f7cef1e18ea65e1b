package events

import (
	"time"
)

// Event is the base interface for all events. Emission order matches the
// causal order of the underlying state transitions.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants.
const (
	TopicTask      = "task"
	TopicTool      = "tool"
	TopicReview    = "review"
	TopicLifecycle = "lifecycle"
)

// Event type constants.
const (
	EventTypeTaskStarted    = "task.started"
	EventTypeTaskCompleted  = "task.completed"
	EventTypeTaskFailed     = "task.failed"
	EventTypeToolCalled     = "tool.called"
	EventTypeToolResult     = "tool.result"
	EventTypeDiffGenerated  = "diff.generated"
	EventTypeDiffApproved   = "diff.approved"
	EventTypeDiffRejected   = "diff.rejected"
	EventTypeTestResult     = "test.result"
	EventTypeDebugIteration = "debug.iteration"
	EventTypeCommitCreated  = "commit.created"
)

// TaskStartedEvent is published when a task node begins execution.
type TaskStartedEvent struct {
	ID        string
	Kind      string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task node finishes successfully.
type TaskCompletedEvent struct {
	ID        string
	Kind      string
	Output    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task node fails.
type TaskFailedEvent struct {
	ID        string
	Kind      string
	Err       string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// ToolCalledEvent is published when the tool bus accepts a call, before the
// tool runs. Exactly one is emitted per call.
type ToolCalledEvent struct {
	CallID    string
	Tool      string
	AgentID   string
	Timestamp time.Time
}

func (e ToolCalledEvent) EventType() string { return EventTypeToolCalled }
func (e ToolCalledEvent) TaskID() string    { return e.AgentID }

// ToolResultEvent is published when a tool call resolves, success or failure.
// Exactly one is emitted per call, paired with its ToolCalledEvent. Diff is
// the unified diff of the change when the call mutated file content.
type ToolResultEvent struct {
	CallID    string
	Tool      string
	AgentID   string
	Success   bool
	Err       string
	Diff      string
	Duration  time.Duration
	Timestamp time.Time
}

func (e ToolResultEvent) EventType() string { return EventTypeToolResult }
func (e ToolResultEvent) TaskID() string    { return e.AgentID }

// DiffGeneratedEvent is published when a patch is assembled for review.
type DiffGeneratedEvent struct {
	SessionID string
	Diff      string
	Files     []string
	Timestamp time.Time
}

func (e DiffGeneratedEvent) EventType() string { return EventTypeDiffGenerated }
func (e DiffGeneratedEvent) TaskID() string    { return e.SessionID }

// DiffApprovedEvent is published when the external reviewer approves.
type DiffApprovedEvent struct {
	SessionID string
	Timestamp time.Time
}

func (e DiffApprovedEvent) EventType() string { return EventTypeDiffApproved }
func (e DiffApprovedEvent) TaskID() string    { return e.SessionID }

// DiffRejectedEvent is published when the external reviewer rejects.
type DiffRejectedEvent struct {
	SessionID string
	Reason    string
	Timestamp time.Time
}

func (e DiffRejectedEvent) EventType() string { return EventTypeDiffRejected }
func (e DiffRejectedEvent) TaskID() string    { return e.SessionID }

// TestResultEvent is published after each test-execution run.
type TestResultEvent struct {
	SessionID string
	Passed    bool
	Detail    string
	Timestamp time.Time
}

func (e TestResultEvent) EventType() string { return EventTypeTestResult }
func (e TestResultEvent) TaskID() string    { return e.SessionID }

// DebugIterationEvent is published once per debug-loop iteration.
type DebugIterationEvent struct {
	SessionID string
	Iteration int
	Fixed     bool
	Detail    string
	Timestamp time.Time
}

func (e DebugIterationEvent) EventType() string { return EventTypeDebugIteration }
func (e DebugIterationEvent) TaskID() string    { return e.SessionID }

// CommitCreatedEvent is published when the final change is committed.
type CommitCreatedEvent struct {
	SessionID string
	Commit    string
	Message   string
	Timestamp time.Time
}

func (e CommitCreatedEvent) EventType() string { return EventTypeCommitCreated }
func (e CommitCreatedEvent) TaskID() string    { return e.SessionID }
