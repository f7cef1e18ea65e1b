package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"patchwork/internal/agent"
	"patchwork/internal/events"
)

// Executor runs one node's agent body. The dispatcher never looks inside a
// kind; the executor decides what an agent of that kind does.
type Executor interface {
	Execute(ctx context.Context, node *Node) agent.Report
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, node *Node) agent.Report

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, node *Node) agent.Report {
	return f(ctx, node)
}

// DispatcherConfig wires a Dispatcher. Budget is the concurrency ceiling
// (default 4); Events may be nil.
type DispatcherConfig struct {
	Executor Executor
	Budget   int
	Events   *events.Bus
	Logger   *zap.Logger
}

// Dispatcher drives one graph to completion. All status transitions happen
// on the dispatch goroutine; agent bodies run in parallel under the budget.
type Dispatcher struct {
	exec   Executor
	budget int64
	events *events.Bus
	log    *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	budget := cfg.Budget
	if budget <= 0 {
		budget = 4
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		exec:   cfg.Executor,
		budget: int64(budget),
		events: cfg.Events,
		log:    log,
	}
}

type completion struct {
	id     string
	report agent.Report
}

// Run executes the graph until every node is terminal or the context is
// cancelled. The graph is validated first; a cyclic graph is rejected before
// anything runs. Any node failures are reflected in node statuses, not the
// return value; Run errs only on admission failure or cancellation.
func (d *Dispatcher) Run(ctx context.Context, graph *Graph) error {
	if _, err := graph.Validate(); err != nil {
		return fmt.Errorf("graph not admitted: %w", err)
	}
	graph.AdmitInitial()

	sem := semaphore.NewWeighted(d.budget)
	completions := make(chan completion)
	inFlight := 0

	for {
		// Dispatch while budget remains and ready work exists.
		for sem.TryAcquire(1) {
			node, ok := graph.NextReady()
			if !ok {
				sem.Release(1)
				break
			}

			d.publish(events.TopicTask, events.TaskStartedEvent{
				ID:        node.ID,
				Kind:      node.Kind.String(),
				Timestamp: time.Now(),
			})
			d.log.Debug("dispatching node",
				zap.String("node", node.ID),
				zap.String("kind", node.Kind.String()))

			inFlight++
			go func(n *Node) {
				defer sem.Release(1)
				completions <- completion{id: n.ID, report: d.exec.Execute(ctx, n)}
			}(node)
		}

		if inFlight == 0 {
			// Nothing running and nothing dispatchable: the graph has
			// settled (remaining non-terminal nodes can only be Blocked
			// descendants, which MarkFailed already settled).
			return nil
		}

		select {
		case c := <-completions:
			inFlight--
			d.record(graph, c)
		case <-ctx.Done():
			// In-flight agents observe the same context; collect their
			// reports so no goroutine is left writing to a dead channel.
			for inFlight > 0 {
				c := <-completions
				inFlight--
				d.record(graph, c)
			}
			return ctx.Err()
		}
	}
}

// record applies one completion to the graph. Runs only on the dispatch
// goroutine: the single writer for status transitions.
func (d *Dispatcher) record(graph *Graph, c completion) {
	report := c.report
	if report.Err != nil {
		if err := graph.MarkFailed(c.id, &report); err != nil {
			d.log.Error("recording failure", zap.String("node", c.id), zap.Error(err))
		}
		d.publish(events.TopicTask, events.TaskFailedEvent{
			ID:        c.id,
			Kind:      report.Kind.String(),
			Err:       report.Err.Error(),
			Duration:  report.Duration,
			Timestamp: time.Now(),
		})
		return
	}

	if err := graph.MarkDone(c.id, &report); err != nil {
		d.log.Error("recording completion", zap.String("node", c.id), zap.Error(err))
	}
	d.publish(events.TopicTask, events.TaskCompletedEvent{
		ID:        c.id,
		Kind:      report.Kind.String(),
		Output:    report.Output,
		Duration:  report.Duration,
		Timestamp: time.Now(),
	})
}

func (d *Dispatcher) publish(topic string, ev events.Event) {
	if d.events != nil {
		d.events.Publish(topic, ev)
	}
}
