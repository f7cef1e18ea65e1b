package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"patchwork/internal/agent"
	"patchwork/internal/events"
	"patchwork/internal/memory"
	"patchwork/internal/scheduler"
	"patchwork/internal/tools"
)

// Config wires an Orchestrator. Runner and Bus are required; everything else
// has a default.
type Config struct {
	Planner  Planner         // default StandardPlan
	Runner   *agent.Runner   // executes graph nodes and phase agents
	Bus      *tools.Bus      // diff + commit tool access
	Reviewer Reviewer        // default AutoApprove
	Recaller memory.Recaller // default no-op
	Events   *events.Bus     // may be nil

	// Concurrency is the scheduler budget; DebugCeiling bounds debug-loop
	// iterations (0 means fail on first test failure). Both come from the
	// session tier.
	Concurrency  int
	DebugCeiling int

	SessionID string
	Logger    *zap.Logger
}

// Attempt is one recorded debug-loop iteration.
type Attempt struct {
	Iteration int
	FixOutput string
	FixErr    string
	Passed    bool
	Detail    string
}

// Result is the session outcome. Phase is Committing or Aborted; an aborted
// session carries the last concrete error and the full attempt history,
// never a silent summary.
type Result struct {
	SessionID string
	Phase     Phase
	Commit    string
	Attempts  []Attempt
	Err       error
}

// Orchestrator drives one session through the lifecycle
// Building → Running → Reviewing → Testing → (DebugLoop ⇄ Testing) →
// Committing | Aborted.
type Orchestrator struct {
	planner   Planner
	runner    *agent.Runner
	bus       *tools.Bus
	reviewer  Reviewer
	recaller  memory.Recaller
	events    *events.Bus
	budget    int
	ceiling   int
	sessionID string
	log       *zap.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	planner := cfg.Planner
	if planner == nil {
		planner = PlannerFunc(StandardPlan)
	}
	reviewer := cfg.Reviewer
	if reviewer == nil {
		reviewer = AutoApprove{}
	}
	recaller := cfg.Recaller
	if recaller == nil {
		recaller = memory.NopRecaller{}
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		planner:   planner,
		runner:    cfg.Runner,
		bus:       cfg.Bus,
		reviewer:  reviewer,
		recaller:  recaller,
		events:    cfg.Events,
		budget:    cfg.Concurrency,
		ceiling:   cfg.DebugCeiling,
		sessionID: sessionID,
		log:       log,
	}
}

// Run executes one prompt to completion. The returned error is non-nil
// exactly when the session aborted, and mirrors Result.Err.
func (o *Orchestrator) Run(ctx context.Context, prompt string) (*Result, error) {
	res := &Result{SessionID: o.sessionID, Phase: PhaseBuilding}
	o.logPhase(res.Phase)

	recalled, err := o.recaller.Recall(ctx, prompt)
	if err != nil {
		// Missing memory degrades context, it does not stop the session.
		o.log.Warn("memory recall failed", zap.Error(err))
		recalled = ""
	}

	graph, err := o.planner.Plan(ctx, prompt)
	if err != nil {
		return o.abort(res, fmt.Errorf("building task graph: %w", err))
	}

	res.Phase = PhaseRunning
	o.logPhase(res.Phase)
	if err := o.runGraph(ctx, graph, recalled); err != nil {
		return o.abort(res, err)
	}

	res.Phase = PhaseReviewing
	o.logPhase(res.Phase)
	if err := o.review(ctx); err != nil {
		return o.abort(res, err)
	}

	res.Phase = PhaseTesting
	o.logPhase(res.Phase)
	passed, detail, err := o.runTests(ctx, prompt)
	if err != nil {
		return o.abort(res, err)
	}

	for !passed {
		if len(res.Attempts) >= o.ceiling {
			return o.abort(res, fmt.Errorf("debug ceiling exhausted, last failure: %s", detail))
		}

		res.Phase = PhaseDebugLoop
		o.logPhase(res.Phase)

		attempt := Attempt{Iteration: len(res.Attempts) + 1, Detail: detail}
		fixReport := o.runner.Run(ctx, agent.Task{
			NodeID:  fmt.Sprintf("debug-%d", attempt.Iteration),
			Kind:    agent.KindDebugFix,
			Payload: debugPayload(prompt, detail, res.Attempts),
			Memory:  recalled,
		})
		attempt.FixOutput = fixReport.Output
		if fixReport.Err != nil {
			attempt.FixErr = fixReport.Err.Error()
		}

		if fixReport.Err == nil {
			res.Phase = PhaseTesting
			o.logPhase(res.Phase)
			passed, detail, err = o.runTests(ctx, prompt)
			if err != nil {
				res.Attempts = append(res.Attempts, attempt)
				return o.abort(res, err)
			}
			attempt.Passed = passed
		}
		res.Attempts = append(res.Attempts, attempt)

		o.publish(events.TopicLifecycle, events.DebugIterationEvent{
			SessionID: o.sessionID,
			Iteration: attempt.Iteration,
			Fixed:     attempt.Passed,
			Detail:    attempt.Detail,
			Timestamp: time.Now(),
		})

		// A policy refusal or sandbox escape during fixing is a defect,
		// never something to iterate on.
		if fixReport.Err != nil && tools.Fatal(fixReport.Err) {
			return o.abort(res, fixReport.Err)
		}
	}

	res.Phase = PhaseCommitting
	o.logPhase(res.Phase)
	commit, err := o.commit(ctx, prompt)
	if err != nil {
		return o.abort(res, fmt.Errorf("committing approved change: %w", err))
	}
	res.Commit = commit
	return res, nil
}

// runGraph schedules the graph and inspects the outcome: the session
// proceeds only if every node is Done.
func (o *Orchestrator) runGraph(ctx context.Context, graph *scheduler.Graph, recalled string) error {
	exec := scheduler.ExecutorFunc(func(ctx context.Context, node *scheduler.Node) agent.Report {
		return o.runner.Run(ctx, agent.Task{
			NodeID:  node.ID,
			Kind:    node.Kind,
			Payload: node.Payload,
			Memory:  recalled,
		})
	})

	dispatcher := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Executor: exec,
		Budget:   o.budget,
		Events:   o.events,
		Logger:   o.log,
	})
	if err := dispatcher.Run(ctx, graph); err != nil {
		return err
	}

	failed := graph.Failed()
	if len(failed) == 0 {
		return nil
	}
	// Surface the first fatal failure if any, otherwise the first failure.
	first := failed[0]
	for _, node := range failed {
		if node.Report != nil && tools.Fatal(node.Report.Err) {
			first = node
			break
		}
	}
	return fmt.Errorf("node %s (%s) failed: %w", first.ID, first.Kind, first.Report.Err)
}

// review assembles the patch, exposes it for the synchronous decision, and
// proceeds only on approval.
func (o *Orchestrator) review(ctx context.Context) error {
	// A review against a missing diff would be a review of nothing, so a
	// failed diff fails the phase.
	res, err := o.bus.Call(ctx, tools.Call{
		Tool:    "git_diff",
		AgentID: "review",
	})
	if err != nil {
		return fmt.Errorf("assembling diff for review: %w", err)
	}
	diff := res.Output

	patch := Patch{SessionID: o.sessionID, Diff: diff, Files: diffFiles(diff)}
	o.publish(events.TopicReview, events.DiffGeneratedEvent{
		SessionID: o.sessionID,
		Diff:      patch.Diff,
		Files:     patch.Files,
		Timestamp: time.Now(),
	})

	verdict, err := o.reviewer.Review(ctx, patch)
	if err != nil {
		return fmt.Errorf("review decision: %w", err)
	}
	if !verdict.Approved {
		o.publish(events.TopicReview, events.DiffRejectedEvent{
			SessionID: o.sessionID,
			Reason:    verdict.Reason,
			Timestamp: time.Now(),
		})
		return fmt.Errorf("patch rejected in review: %s", verdict.Reason)
	}

	o.publish(events.TopicReview, events.DiffApprovedEvent{
		SessionID: o.sessionID,
		Timestamp: time.Now(),
	})
	return nil
}

// runTests runs the test-execution agent. A nil report error means the tests
// passed; a retryable error is a test failure the debug loop may address; a
// fatal error aborts the session.
func (o *Orchestrator) runTests(ctx context.Context, prompt string) (passed bool, detail string, err error) {
	report := o.runner.Run(ctx, agent.Task{
		NodeID:  "test",
		Kind:    agent.KindTestRun,
		Payload: prompt,
	})

	passed = report.Err == nil
	if passed {
		detail = report.Output
	} else {
		detail = report.Err.Error()
	}

	o.publish(events.TopicLifecycle, events.TestResultEvent{
		SessionID: o.sessionID,
		Passed:    passed,
		Detail:    detail,
		Timestamp: time.Now(),
	})

	if report.Err != nil && tools.Fatal(report.Err) {
		return false, detail, report.Err
	}
	if err := ctx.Err(); err != nil {
		return false, detail, err
	}
	return passed, detail, nil
}

// commit records the approved change and returns the commit hash.
func (o *Orchestrator) commit(ctx context.Context, prompt string) (string, error) {
	message := commitMessage(prompt)
	res, err := o.bus.Call(ctx, tools.Call{
		Tool:    "git_commit",
		Args:    map[string]any{"message": message},
		AgentID: "commit",
	})
	if err != nil {
		return "", err
	}

	commit := strings.TrimSpace(res.Output)
	o.publish(events.TopicLifecycle, events.CommitCreatedEvent{
		SessionID: o.sessionID,
		Commit:    commit,
		Message:   message,
		Timestamp: time.Now(),
	})
	return commit, nil
}

func (o *Orchestrator) abort(res *Result, err error) (*Result, error) {
	res.Phase = PhaseAborted
	res.Err = fmt.Errorf("session aborted after %d debug attempts: %w", len(res.Attempts), err)
	o.log.Error("session aborted",
		zap.String("session", o.sessionID),
		zap.Int("attempts", len(res.Attempts)),
		zap.Error(err))
	return res, res.Err
}

func (o *Orchestrator) publish(topic string, ev events.Event) {
	if o.events != nil {
		o.events.Publish(topic, ev)
	}
}

func (o *Orchestrator) logPhase(p Phase) {
	o.log.Info("phase", zap.String("session", o.sessionID), zap.String("phase", p.String()))
}

// debugPayload seeds the fix agent with the failure and every prior attempt,
// so repeated failures are distinguishable from progress.
func debugPayload(prompt, detail string, attempts []Attempt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nTests failed:\n%s\n", prompt, detail)
	if len(attempts) > 0 {
		b.WriteString("\nPrior fix attempts:\n")
		for _, a := range attempts {
			outcome := "tests still failed"
			if a.FixErr != "" {
				outcome = "fix agent error: " + a.FixErr
			}
			fmt.Fprintf(&b, "%d. %s (%s)\n", a.Iteration, firstLine(a.FixOutput), outcome)
		}
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// commitMessage derives a one-line commit message from the prompt,
// truncated to 72 runes on a rune boundary.
func commitMessage(prompt string) string {
	msg := firstLine(strings.TrimSpace(prompt))
	if utf8.RuneCountInString(msg) > 72 {
		runes := []rune(msg)
		msg = string(runes[:69]) + "..."
	}
	if msg == "" {
		msg = "automated change"
	}
	return msg
}

// diffFiles extracts the touched file paths from a unified diff.
func diffFiles(diff string) []string {
	var files []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(diff, "\n") {
		if !strings.HasPrefix(line, "+++ b/") {
			continue
		}
		path := strings.TrimPrefix(line, "+++ b/")
		if path != "" && !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}
	return files
}
