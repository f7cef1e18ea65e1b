package scheduler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/toposort"

	"patchwork/internal/agent"
)

// ErrCycle marks a graph rejected at admission because its dependency
// relation is not acyclic. A cyclic graph is never scheduled.
var ErrCycle = errors.New("task graph contains a cycle")

// Graph is a DAG of task nodes for one prompt. Created once, mutated only by
// status transitions, all of which go through the dispatch loop.
type Graph struct {
	mu         sync.RWMutex
	nodes      map[string]*Node
	dependents map[string][]string
	insertions int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[string]*Node),
		dependents: make(map[string][]string),
	}
}

// Add inserts a node in Pending status. IDs are unique; the agent kind must
// be known.
func (g *Graph) Add(node *Node) error {
	if node.ID == "" {
		return fmt.Errorf("node has no id")
	}
	if !node.Kind.Valid() {
		return fmt.Errorf("node %q has unknown agent kind %q", node.ID, node.Kind)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[node.ID]; exists {
		return fmt.Errorf("node %q already exists", node.ID)
	}

	n := cloneNode(node)
	n.Status = StatusPending
	n.Report = nil
	n.order = g.insertions
	g.insertions++

	g.nodes[n.ID] = n
	for _, depID := range n.DependsOn {
		g.dependents[depID] = append(g.dependents[depID], n.ID)
	}
	return nil
}

// Validate checks that every dependency exists and the graph is acyclic.
// Returns a topological order of node IDs. Must pass before dispatch.
func (g *Graph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, node := range g.nodes {
		for _, depID := range node.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return nil, fmt.Errorf("node %q depends on unknown node %q", id, depID)
			}
		}
	}

	var edges []toposort.Edge
	for id, node := range g.nodes {
		if len(node.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range node.DependsOn {
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCycle, err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

// AdmitInitial promotes every dependency-free Pending node to Ready.
func (g *Graph) AdmitInitial() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, node := range g.nodes {
		if node.Status == StatusPending && len(node.DependsOn) == 0 {
			node.Status = StatusReady
		}
	}
}

// NextReady pops the highest-priority Ready node and marks it Running.
// Equal priorities break by ascending insertion order, so scheduling is
// deterministic and reproducible. Returns false when nothing is Ready.
func (g *Graph) NextReady() (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var best *Node
	for _, node := range g.nodes {
		if node.Status != StatusReady {
			continue
		}
		if best == nil || betterCandidate(node, best) {
			best = node
		}
	}
	if best == nil {
		return nil, false
	}

	best.Status = StatusRunning
	return cloneNode(best), true
}

func betterCandidate(a, b *Node) bool {
	pa, pb := a.Kind.Priority(), b.Kind.Priority()
	if pa != pb {
		return pa > pb
	}
	return a.order < b.order
}

// MarkDone records a success and promotes every dependent whose dependencies
// are now all Done.
func (g *Graph) MarkDone(id string, report *agent.Report) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, exists := g.nodes[id]
	if !exists {
		return fmt.Errorf("node %q not found", id)
	}
	node.Status = StatusDone
	node.Report = report

	for _, depID := range g.dependents[id] {
		dep := g.nodes[depID]
		if dep.Status == StatusPending && g.depsAllDone(dep) {
			dep.Status = StatusReady
		}
	}
	return nil
}

// MarkFailed records a failure and blocks every direct and transitive
// dependent. Independent branches are untouched; failure never cancels
// unrelated work.
func (g *Graph) MarkFailed(id string, report *agent.Report) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, exists := g.nodes[id]
	if !exists {
		return fmt.Errorf("node %q not found", id)
	}
	node.Status = StatusFailed
	node.Report = report

	g.blockDependents(id)
	return nil
}

func (g *Graph) blockDependents(id string) {
	for _, depID := range g.dependents[id] {
		dep := g.nodes[depID]
		if dep.Status == StatusPending || dep.Status == StatusReady {
			dep.Status = StatusBlocked
			g.blockDependents(depID)
		}
	}
}

func (g *Graph) depsAllDone(node *Node) bool {
	for _, depID := range node.DependsOn {
		if dep, ok := g.nodes[depID]; !ok || dep.Status != StatusDone {
			return false
		}
	}
	return true
}

// Settled reports whether no node is Pending, Ready, or Running: the loop's
// termination condition.
func (g *Graph) Settled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, node := range g.nodes {
		if !node.Status.Terminal() {
			return false
		}
	}
	return true
}

// Get returns a copy of a node.
func (g *Graph) Get(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[id]
	if !exists {
		return nil, false
	}
	return cloneNode(node), true
}

// Nodes returns copies of all nodes.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		out = append(out, cloneNode(node))
	}
	return out
}

// Failed returns copies of all Failed nodes.
func (g *Graph) Failed() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*Node
	for _, node := range g.nodes {
		if node.Status == StatusFailed {
			out = append(out, cloneNode(node))
		}
	}
	return out
}
