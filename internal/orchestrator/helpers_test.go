package orchestrator

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCommitMessage(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"short prompt kept", "add a flag", "add a flag"},
		{"first line only", "add a flag\nwith details", "add a flag"},
		{"empty prompt", "  \n  ", "automated change"},
		{
			"long ascii truncated",
			strings.Repeat("a", 100),
			strings.Repeat("a", 69) + "...",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commitMessage(tt.prompt); got != tt.want {
				t.Errorf("commitMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommitMessageMultibyteTruncation(t *testing.T) {
	// 100 three-byte runes; byte-indexed truncation would split one.
	prompt := strings.Repeat("修", 100)

	got := commitMessage(prompt)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated message is not valid UTF-8: %q", got)
	}
	if want := strings.Repeat("修", 69) + "..."; got != want {
		t.Errorf("commitMessage = %q, want %q", got, want)
	}
}

func TestDiffFiles(t *testing.T) {
	diff := "+++ b/main.go\n+one\n+++ b/internal/x.go\n+two\n+++ b/main.go\n+again\n"
	files := diffFiles(diff)
	if len(files) != 2 || files[0] != "main.go" || files[1] != "internal/x.go" {
		t.Errorf("diffFiles = %v", files)
	}
}
