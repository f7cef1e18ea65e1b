package worktree

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const branchPrefix = "patchwork/"

// Manager creates, merges, and removes session worktrees. Merge operations
// serialize: git holds repo-level locks and concurrent merges into one base
// branch corrupt each other.
type Manager struct {
	cfg     Config
	log     *zap.Logger
	mergeMu sync.Mutex
}

// NewManager creates a Manager.
func NewManager(cfg Config, log *zap.Logger) *Manager {
	if cfg.Dir == "" {
		cfg.Dir = ".worktrees"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{cfg: cfg, log: log}
}

func (m *Manager) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w (output: %s)",
			strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Create adds a worktree on a fresh session branch forked from the base.
func (m *Manager) Create(ctx context.Context, sessionID string) (*Tree, error) {
	branch := branchPrefix + sessionID
	path := filepath.Join(m.cfg.RepoPath, m.cfg.Dir, sessionID)

	if _, err := m.git(ctx, m.cfg.RepoPath,
		"worktree", "add", "-b", branch, path, m.cfg.BaseBranch); err != nil {
		return nil, fmt.Errorf("creating worktree for session %s: %w", sessionID, err)
	}

	head, err := m.git(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("reading worktree HEAD: %w", err)
	}

	return &Tree{
		Path:      path,
		Branch:    branch,
		SessionID: sessionID,
		Head:      strings.TrimSpace(head),
	}, nil
}

// Commit stages and commits everything in the worktree. Returns the commit
// hash, or empty when the tree is clean.
func (m *Manager) Commit(ctx context.Context, tree *Tree, message string) (string, error) {
	status, err := m.git(ctx, tree.Path, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(status) == "" {
		return "", nil
	}

	if _, err := m.git(ctx, tree.Path, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := m.git(ctx, tree.Path, "commit", "-m", message); err != nil {
		return "", err
	}

	head, err := m.git(ctx, tree.Path, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(head), nil
}

// Merge folds the session branch into the base branch. Conflicts are
// detected with a dry-run merge-tree before anything touches the base; a
// conflicted outcome leaves the base untouched and names the files.
func (m *Manager) Merge(ctx context.Context, tree *Tree, strategy Strategy) (*MergeOutcome, error) {
	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()

	if _, err := m.git(ctx, m.cfg.RepoPath, "checkout", m.cfg.BaseBranch); err != nil {
		return &MergeOutcome{Err: fmt.Errorf("checking out base branch: %w", err)}, nil
	}

	detect, err := m.git(ctx, m.cfg.RepoPath,
		"merge-tree", "--write-tree", m.cfg.BaseBranch, tree.Branch)
	if err != nil || strings.Contains(detect, "CONFLICT") {
		outcome := &MergeOutcome{
			Err:           fmt.Errorf("merge conflict between %s and %s", tree.Branch, m.cfg.BaseBranch),
			ConflictFiles: conflictFiles(detect),
		}
		m.log.Warn("session merge conflict",
			zap.String("session", tree.SessionID),
			zap.Strings("files", outcome.ConflictFiles))
		return outcome, nil
	}

	args := []string{"merge", "--no-ff", tree.Branch}
	if strategy != StrategyOrt {
		args = []string{"merge", "--no-ff", "-s", strategy.String(), tree.Branch}
	}
	if out, err := m.git(ctx, m.cfg.RepoPath, args...); err != nil {
		return &MergeOutcome{Err: fmt.Errorf("merge failed: %w (output: %s)", err, out)}, nil
	}

	return &MergeOutcome{Merged: true}, nil
}

// conflictFiles extracts conflicting paths from merge-tree output.
func conflictFiles(output string) []string {
	var files []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "CONFLICT") && strings.Contains(line, "in ") {
			parts := strings.Split(line, "in ")
			files = append(files, strings.TrimSpace(parts[len(parts)-1]))
		}
	}
	return files
}

// Remove deletes the worktree and its branch, escalating to force flags when
// the polite forms fail.
func (m *Manager) Remove(ctx context.Context, tree *Tree) error {
	var problems []string

	if _, err := m.git(ctx, m.cfg.RepoPath, "worktree", "remove", tree.Path); err != nil {
		if _, err := m.git(ctx, m.cfg.RepoPath, "worktree", "remove", "--force", tree.Path); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if _, err := m.git(ctx, m.cfg.RepoPath, "branch", "-d", tree.Branch); err != nil {
		if _, err := m.git(ctx, m.cfg.RepoPath, "branch", "-D", tree.Branch); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("removing worktree for session %s: %s",
			tree.SessionID, strings.Join(problems, "; "))
	}
	return nil
}

// List returns the session worktrees currently present in the repository.
func (m *Manager) List(ctx context.Context) ([]Tree, error) {
	out, err := m.git(ctx, m.cfg.RepoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	var trees []Tree
	var current Tree
	flush := func() {
		if current.Path != "" && current.SessionID != "" {
			trees = append(trees, current)
		}
		current = Tree{}
	}

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			branch := strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
			current.Branch = branch
			if strings.HasPrefix(branch, branchPrefix) {
				current.SessionID = strings.TrimPrefix(branch, branchPrefix)
			}
		}
	}
	flush()

	return trees, nil
}

// Prune drops stale worktree metadata left by crashed sessions.
func (m *Manager) Prune(ctx context.Context) error {
	if _, err := m.git(ctx, m.cfg.RepoPath, "worktree", "prune"); err != nil {
		return fmt.Errorf("pruning worktrees: %w", err)
	}
	return nil
}
