package orchestrator

import (
	"context"

	"patchwork/internal/agent"
	"patchwork/internal/scheduler"
)

// Planner decomposes a prompt into a task graph. The strategy is pluggable;
// the core only requires that the result validates as acyclic.
type Planner interface {
	Plan(ctx context.Context, prompt string) (*scheduler.Graph, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, prompt string) (*scheduler.Graph, error)

// Plan implements Planner.
func (f PlannerFunc) Plan(ctx context.Context, prompt string) (*scheduler.Graph, error) {
	return f(ctx, prompt)
}

// StandardPlan is the default decomposition: context-building nodes (scan,
// recall, search) in parallel, then patch generation depending on all three.
// Testing and committing are orchestrator phases, not graph nodes.
func StandardPlan(ctx context.Context, prompt string) (*scheduler.Graph, error) {
	g := scheduler.NewGraph()

	nodes := []*scheduler.Node{
		{ID: "scan", Kind: agent.KindRepoScan, Payload: prompt},
		{ID: "recall", Kind: agent.KindMemoryRecall, Payload: prompt},
		{ID: "search", Kind: agent.KindSearch, Payload: prompt},
		{ID: "patch", Kind: agent.KindPatchGenerate, Payload: prompt,
			DependsOn: []string{"scan", "recall", "search"}},
	}
	for _, n := range nodes {
		if err := g.Add(n); err != nil {
			return nil, err
		}
	}
	return g, nil
}
