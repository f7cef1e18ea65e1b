// Package orchestrator drives one session end to end: build the task graph,
// schedule it, expose the patch for review, test, debug within the tier's
// ceiling, and commit or abort.
package orchestrator

// Phase is the session's lifecycle position.
type Phase int

const (
	PhaseBuilding Phase = iota
	PhaseRunning
	PhaseReviewing
	PhaseTesting
	PhaseDebugLoop
	PhaseCommitting
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseBuilding:
		return "building"
	case PhaseRunning:
		return "running"
	case PhaseReviewing:
		return "reviewing"
	case PhaseTesting:
		return "testing"
	case PhaseDebugLoop:
		return "debug-loop"
	case PhaseCommitting:
		return "committing"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
