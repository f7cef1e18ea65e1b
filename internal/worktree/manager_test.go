package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// newTestRepo initializes a git repository with one commit on main.
func newTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	repo := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(repo, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "-A")
	run("commit", "-m", "initial")
	return repo
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	repo := newTestRepo(t)
	return NewManager(Config{RepoPath: repo, BaseBranch: "main"}, nil), repo
}

func TestCreateCommitMerge(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	tree, err := m.Create(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if tree.Branch != "patchwork/s1" || tree.Head == "" {
		t.Errorf("tree = %+v", tree)
	}

	if err := os.WriteFile(filepath.Join(tree.Path, "feature.go"), []byte("package x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	commit, err := m.Commit(ctx, tree, "add feature")
	if err != nil {
		t.Fatal(err)
	}
	if commit == "" {
		t.Fatal("commit hash empty for a dirty tree")
	}

	outcome, err := m.Merge(ctx, tree, StrategyOrt)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Merged {
		t.Fatalf("merge outcome = %+v", outcome)
	}

	// The change is now visible on the base branch.
	if _, err := os.Stat(filepath.Join(repo, "feature.go")); err != nil {
		t.Errorf("merged file missing on base: %v", err)
	}

	if err := m.Remove(ctx, tree); err != nil {
		t.Error(err)
	}
}

func TestCommitCleanTreeIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	tree, err := m.Create(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Remove(ctx, tree)

	commit, err := m.Commit(ctx, tree, "nothing")
	if err != nil {
		t.Fatal(err)
	}
	if commit != "" {
		t.Errorf("clean tree commit = %q, want empty", commit)
	}
}

func TestMergeConflictLeavesBaseUntouched(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	tree, err := m.Create(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Remove(ctx, tree)

	// Conflicting edits to README on both branches.
	if err := os.WriteFile(filepath.Join(tree.Path, "README.md"), []byte("session\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Commit(ctx, tree, "session edit"); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(repo, "README.md"), []byte("base\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, args := range [][]string{{"add", "-A"}, {"commit", "-m", "base edit"}} {
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	outcome, err := m.Merge(ctx, tree, StrategyOrt)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Merged {
		t.Fatal("conflicting merge reported success")
	}
	if len(outcome.ConflictFiles) == 0 || outcome.ConflictFiles[0] != "README.md" {
		t.Errorf("conflict files = %v", outcome.ConflictFiles)
	}

	data, err := os.ReadFile(filepath.Join(repo, "README.md"))
	if err != nil || strings.TrimSpace(string(data)) != "base" {
		t.Errorf("base branch content changed: %q, %v", data, err)
	}
}

func TestListAndPrune(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	t1, err := m.Create(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	t2, err := m.Create(ctx, "s2")
	if err != nil {
		t.Fatal(err)
	}

	trees, err := m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ids := make(map[string]bool)
	for _, tree := range trees {
		ids[tree.SessionID] = true
	}
	if !ids["s1"] || !ids["s2"] {
		t.Errorf("listed sessions = %v", ids)
	}

	// Simulate a crash: the directory vanishes without git knowing.
	if err := m.Remove(ctx, t2); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(t1.Path); err != nil {
		t.Fatal(err)
	}
	if err := m.Prune(ctx); err != nil {
		t.Fatal(err)
	}

	trees, err = m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, tree := range trees {
		if tree.SessionID == "s1" && tree.Path == filepath.Join(repo, ".worktrees", "s1") {
			t.Error("stale worktree survived prune")
		}
	}
}
