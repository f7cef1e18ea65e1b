package policy

import (
	"fmt"
	"strings"
	"time"
)

// Class is the permission level a tool operates at. Every registered tool
// declares exactly one class.
type Class string

const (
	ClassRead     Class = "read"
	ClassWrite    Class = "write"
	ClassExecute  Class = "execute"
	ClassGitWrite Class = "git_write"
)

// Valid reports whether c is a known permission class.
func (c Class) Valid() bool {
	switch c {
	case ClassRead, ClassWrite, ClassExecute, ClassGitWrite:
		return true
	}
	return false
}

// Mode is the configured behavior for a permission class.
type Mode string

const (
	ModeAuto Mode = "auto" // Proceed without confirmation
	ModeAsk  Mode = "ask"  // Suspend the call until confirmed
	ModeDeny Mode = "deny" // Fail immediately
)

// Decision is the outcome of evaluating a class against a policy.
type Decision int

const (
	Allow Decision = iota
	Ask
	Deny
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Ask:
		return "ask"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Limits are the resource ceilings applied to sandboxed subprocess execution.
type Limits struct {
	WallClock    time.Duration `yaml:"wall_clock"`     // Per-command timeout
	CPUSeconds   uint64        `yaml:"cpu_seconds"`    // RLIMIT_CPU
	MemoryBytes  uint64        `yaml:"memory_bytes"`   // RLIMIT_AS
	MaxOpenFiles uint64        `yaml:"max_open_files"` // RLIMIT_NOFILE
}

// Policy is the session's permission configuration. Loaded once at session
// start and treated as immutable for the session's duration.
type Policy struct {
	Modes         map[Class]Mode `yaml:"modes"`
	AllowCommands []string       `yaml:"allow_commands"`
	DenyCommands  []string       `yaml:"deny_commands"`
	AskTimeout    time.Duration  `yaml:"ask_timeout"`
	Limits        Limits         `yaml:"limits"`
}

// hardDeny contains command substrings that are unconditionally blocked,
// regardless of policy mode or allow-list entries.
var hardDeny = []string{
	"rm -rf ",
	"rm -fr ",
	"sudo ",
	"mkfs.",
	"> /dev/sd",
	"chmod 777 /",
	":(){ :|:& };:", // fork bomb
	"curl | sh",
	"wget | sh",
	"| bash",
	"| sh",
}

// Evaluate is the permission evaluator: it maps a permission class and a
// loaded policy to a decision. Read-class operations are always allowed.
// It is a pure function of its inputs.
func Evaluate(class Class, pol *Policy) Decision {
	if class == ClassRead {
		return Allow
	}

	mode, ok := pol.Modes[class]
	if !ok {
		// Unconfigured classes require confirmation rather than defaulting open.
		return Ask
	}

	switch mode {
	case ModeAuto:
		return Allow
	case ModeAsk:
		return Ask
	case ModeDeny:
		return Deny
	default:
		return Deny
	}
}

// CheckCommand validates a shell command line against the policy's command
// lists. A deny-list match always wins over an allow-list match, and the
// built-in hard deny list wins over everything. Matching is case-insensitive
// substring matching on the trimmed command line.
func CheckCommand(cmdline string, pol *Policy) error {
	lower := strings.ToLower(strings.TrimSpace(cmdline))
	if lower == "" {
		return fmt.Errorf("empty command")
	}

	for _, deny := range hardDeny {
		if strings.Contains(lower, strings.ToLower(deny)) {
			return fmt.Errorf("command blocked: contains %q", strings.TrimSpace(deny))
		}
	}

	for _, deny := range pol.DenyCommands {
		if deny == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(deny)) {
			return fmt.Errorf("command blocked by deny list: contains %q", deny)
		}
	}

	// An empty allow list permits everything not denied.
	if len(pol.AllowCommands) == 0 {
		return nil
	}

	for _, allow := range pol.AllowCommands {
		if allow == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(allow)) {
			return nil
		}
	}

	return fmt.Errorf("command not in allow list: %q", cmdline)
}
