// Package agent defines the agent kinds, the model boundary, and the Agent
// Runner that executes one task node's work loop against the tool bus.
package agent

import "fmt"

// Kind is the closed enumeration of agent kinds. The scheduler dispatches on
// priority only; kind-specific behavior lives behind the Runner.
type Kind string

const (
	KindRepoScan        Kind = "repo-scan"
	KindMemoryRecall    Kind = "memory-recall"
	KindPatchGenerate   Kind = "patch-generate"
	KindTestRun         Kind = "test-run"
	KindDebugFix        Kind = "debug-fix"
	KindSearch          Kind = "search"
	KindConstraintCheck Kind = "constraint-check"
)

// kindPriorities assigns the static dispatch priority per kind. Higher runs
// first among simultaneously ready nodes. Context-building kinds outrank
// generic search; generation and test kinds normally wait on dependencies
// anyway.
var kindPriorities = map[Kind]int{
	KindMemoryRecall:    70,
	KindRepoScan:        60,
	KindConstraintCheck: 50,
	KindSearch:          40,
	KindPatchGenerate:   30,
	KindDebugFix:        25,
	KindTestRun:         20,
}

// Valid reports whether k is a known agent kind.
func (k Kind) Valid() bool {
	_, ok := kindPriorities[k]
	return ok
}

// Priority returns the static dispatch priority for the kind. Unknown kinds
// sort last.
func (k Kind) Priority() int {
	return kindPriorities[k]
}

func (k Kind) String() string { return string(k) }

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown agent kind %q", s)
	}
	return k, nil
}
