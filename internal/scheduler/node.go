// Package scheduler turns a task graph into dependency-ordered parallel
// execution: a single-writer dispatch loop owns every status transition while
// agent bodies run fully in parallel under a concurrency budget.
package scheduler

import (
	"patchwork/internal/agent"
)

// Status is a node's position in its lifecycle. Done, Failed, and Blocked
// are terminal.
type Status int

const (
	StatusPending Status = iota // Waiting on dependencies
	StatusReady                 // All dependencies Done, awaiting dispatch
	StatusRunning               // An agent is executing it
	StatusDone                  // Finished successfully
	StatusFailed                // Finished with an error
	StatusBlocked               // A dependency failed; never run
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusBlocked
}

// Node is one unit of work in the graph. The payload is opaque here; the
// Agent Runner interprets it. The graph owns the node for its lifetime and
// hands out copies only.
type Node struct {
	ID        string
	Kind      agent.Kind
	Payload   string
	DependsOn []string
	Status    Status
	Report    *agent.Report // Set only in Done/Failed

	// order is the graph-insertion index, the deterministic tie-break among
	// equal-priority ready nodes.
	order int
}

func cloneNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	cp := *n
	if n.DependsOn != nil {
		cp.DependsOn = append([]string(nil), n.DependsOn...)
	}
	return &cp
}
