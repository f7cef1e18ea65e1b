package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"patchwork/internal/agent"
	"patchwork/internal/config"
	"patchwork/internal/events"
	"patchwork/internal/history"
	"patchwork/internal/orchestrator"
	"patchwork/internal/sandbox"
	"patchwork/internal/tools"
	"patchwork/internal/tools/core"
	"patchwork/internal/tools/gitops"
	"patchwork/internal/tools/shell"
	"patchwork/internal/worktree"
)

func main() {
	tier := flag.String("tier", "", "session tier: fast, standard, or deep (overrides config)")
	yes := flag.Bool("yes", false, "auto-approve tool confirmation prompts")
	isolate := flag.Bool("worktree", false, "run the session in a throwaway git worktree and merge on success")
	flag.Parse()

	prompt := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "usage: patchwork [flags] <prompt>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, prompt, *tier, *yes, *isolate); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, prompt, tierOverride string, autoApprove, isolate bool) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if tierOverride != "" {
		cfg.Tier = config.Tier(tierOverride)
	}
	preset, err := cfg.Tier.Preset()
	if err != nil {
		return err
	}

	root := cfg.Root
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return err
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	sessionID := uuid.NewString()

	// With isolation on, the session edits a worktree on its own branch and
	// the root repo only changes if the merge goes through.
	var tree *worktree.Tree
	var trees *worktree.Manager
	workDir := root
	if isolate {
		trees = worktree.NewManager(worktree.Config{RepoPath: root, BaseBranch: "main"}, logger)
		if tree, err = trees.Create(ctx, sessionID); err != nil {
			return fmt.Errorf("creating session worktree: %w", err)
		}
		defer trees.Remove(context.Background(), tree)
		workDir = tree.Path
	}

	sb, err := sandbox.New(workDir, cfg.TempDir, cfg.Policy.Limits)
	if err != nil {
		return fmt.Errorf("creating sandbox: %w", err)
	}

	historyPath := cfg.HistoryPath
	if !filepath.IsAbs(historyPath) {
		historyPath = filepath.Join(root, historyPath)
	}
	hist, err := history.Open(ctx, historyPath)
	if err != nil {
		return fmt.Errorf("opening edit history: %w", err)
	}
	defer hist.Close()

	bus := events.NewBus()
	defer bus.Close()
	go logEvents(bus.SubscribeAll(256), logger)

	registry := tools.NewRegistry()
	core.Register(registry, sb, hist)
	shell.Register(registry, sb)
	gitops.Register(registry, sb)

	var confirmer tools.Confirmer
	if !autoApprove {
		confirmer = terminalConfirmer()
	}

	toolBus := tools.NewBus(tools.BusConfig{
		Registry:  registry,
		Policy:    cfg.Policy,
		Sandbox:   sb,
		History:   hist,
		Events:    bus,
		Confirmer: confirmer,
		Logger:    logger,
	})

	caller, err := agent.NewCLICaller(agent.CLICallerConfig{
		Command:   cfg.Model.Command,
		Model:     cfg.Model.Model,
		WorkDir:   workDir,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("creating model caller: %w", err)
	}
	breakers := orchestrator.NewBreakerRegistry(logger)
	resilient := orchestrator.NewResilientCaller(
		caller, breakers.Get(cfg.Model.Command), orchestrator.DefaultRetryConfig())

	runner := agent.NewRunner(agent.Config{
		Bus:     toolBus,
		Caller:  resilient,
		Timeout: preset.AgentTimeout,
		Logger:  logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Runner:       runner,
		Bus:          toolBus,
		Events:       bus,
		Concurrency:  preset.Concurrency,
		DebugCeiling: preset.DebugCeiling,
		SessionID:    sessionID,
		Logger:       logger,
	})

	result, err := orch.Run(ctx, prompt)
	if err != nil {
		return err
	}

	fmt.Printf("session %s finished in phase %s\n", result.SessionID, result.Phase)
	for _, a := range result.Attempts {
		status := "failed"
		if a.Passed {
			status = "passed"
		}
		fmt.Printf("  debug attempt %d: %s\n", a.Iteration, status)
	}
	if result.Commit != "" {
		fmt.Printf("committed %s\n", result.Commit)
	}

	if isolate && result.Commit != "" {
		outcome, err := trees.Merge(ctx, tree, worktree.StrategyOrt)
		if err != nil {
			return fmt.Errorf("merging session branch: %w", err)
		}
		if !outcome.Merged {
			return fmt.Errorf("session branch %s has conflicts in %s; resolve manually",
				tree.Branch, strings.Join(outcome.ConflictFiles, ", "))
		}
		fmt.Printf("merged %s\n", tree.Branch)
	}
	return nil
}

// terminalConfirmer answers permission prompts from stdin. Reads happen on a
// goroutine so a shutdown signal still cancels a pending prompt.
func terminalConfirmer() tools.Confirmer {
	lines := make(chan string)
	reader := bufio.NewReader(os.Stdin)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- strings.TrimSpace(line)
		}
	}()

	return tools.ConfirmerFunc(func(ctx context.Context, req tools.ConfirmRequest) (bool, error) {
		fmt.Fprintf(os.Stderr, "agent %s wants to run %s (%s) [y/N]: ", req.AgentID, req.Tool, req.Detail)
		select {
		case line, ok := <-lines:
			if !ok {
				return false, nil
			}
			return line == "y" || line == "yes", nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	})
}

func logEvents(ch <-chan events.Event, logger *zap.Logger) {
	for ev := range ch {
		logger.Info("event",
			zap.String("type", ev.EventType()),
			zap.String("task", ev.TaskID()))
	}
}
