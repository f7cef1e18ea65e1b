package core

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"patchwork/internal/policy"
	"patchwork/internal/sandbox"
	"patchwork/internal/tools"
)

const (
	searchMaxMatches  = 200
	searchMaxFileSize = 1 << 20 // Skip files larger than 1 MiB
)

// SearchTool returns the read-class content search tool: a regexp grep over
// the sandbox root.
func SearchTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "search",
		Description: "Search file contents under the workspace for a regular expression",
		Class:       policy.ClassRead,
		Schema: tools.Schema{
			Required: []string{"pattern"},
			Properties: map[string]tools.Property{
				"pattern": {Type: "string", Description: "Regular expression to search for"},
				"dir":     {Type: "string", Description: "Subdirectory to search (default: workspace root)"},
				"glob":    {Type: "string", Description: "Filename glob filter, e.g. *.go"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			pattern, err := tools.StringArg(args, "pattern")
			if err != nil {
				return tools.Result{}, err
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return tools.Result{}, fmt.Errorf("invalid pattern: %w", err)
			}

			dir := tools.OptionalString(args, "dir")
			if dir == "" {
				dir = "."
			}
			root, err := sb.Resolve(dir)
			if err != nil {
				return tools.Result{}, err
			}
			glob := tools.OptionalString(args, "glob")

			var matches []string
			walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil // Unreadable entries are skipped, not fatal
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if d.IsDir() {
					if d.Name() == ".git" || d.Name() == ".worktrees" {
						return filepath.SkipDir
					}
					return nil
				}
				if glob != "" {
					if ok, _ := filepath.Match(glob, d.Name()); !ok {
						return nil
					}
				}
				if info, err := d.Info(); err != nil || info.Size() > searchMaxFileSize {
					return nil
				}

				found, err := scanFile(path, re, root, &matches)
				if err != nil {
					return nil
				}
				if found && len(matches) >= searchMaxMatches {
					return fs.SkipAll
				}
				return nil
			})
			if walkErr != nil && walkErr != fs.SkipAll {
				return tools.Result{}, fmt.Errorf("search failed: %w", walkErr)
			}

			if len(matches) == 0 {
				return tools.Result{Output: "no matches"}, nil
			}
			return tools.Result{Output: strings.Join(matches, "\n")}, nil
		},
	}
}

// scanFile appends "relpath:line: text" entries for each matching line.
func scanFile(path string, re *regexp.Regexp, root string, matches *[]string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if re.MatchString(line) {
			found = true
			*matches = append(*matches, fmt.Sprintf("%s:%d: %s", rel, lineNo, strings.TrimSpace(line)))
			if len(*matches) >= searchMaxMatches {
				return true, nil
			}
		}
	}
	return found, scanner.Err()
}
