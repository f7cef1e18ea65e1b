// Package worktree isolates a session's file changes in a git worktree and
// merges them back with conflict detection, so concurrent sessions never
// trample the checked-out tree.
package worktree

// Strategy selects the git merge strategy used when folding a session branch
// back into the base branch.
type Strategy int

const (
	StrategyOrt    Strategy = iota // Default ort merge
	StrategyOurs                   // Favor the base branch
	StrategyTheirs                 // Favor the session branch
)

func (s Strategy) String() string {
	switch s {
	case StrategyOurs:
		return "ours"
	case StrategyTheirs:
		return "theirs"
	default:
		return "ort"
	}
}

// Tree describes one active session worktree.
type Tree struct {
	Path      string // Absolute path to the worktree directory
	Branch    string // Session branch name
	SessionID string
	Head      string // HEAD commit at creation
}

// MergeOutcome is the result of folding a session branch into the base.
// Merged false with a nil error never happens; conflicts carry the file
// list.
type MergeOutcome struct {
	Merged        bool
	ConflictFiles []string
	Err           error
}

// Config configures a Manager.
type Config struct {
	RepoPath   string // Absolute path to the git repository
	BaseBranch string // Branch sessions fork from, e.g. "main"
	Dir        string // Directory under the repo for worktrees (default ".worktrees")
}
