package policy

import "time"

// Default returns the default session policy: writes and git operations
// proceed automatically, arbitrary command execution requires confirmation.
func Default() *Policy {
	return &Policy{
		Modes: map[Class]Mode{
			ClassWrite:    ModeAuto,
			ClassExecute:  ModeAsk,
			ClassGitWrite: ModeAuto,
		},
		DenyCommands: []string{
			"git push --force",
			"git reset --hard",
			"git filter-branch",
		},
		AskTimeout: 60 * time.Second,
		Limits: Limits{
			WallClock:    2 * time.Minute,
			CPUSeconds:   120,
			MemoryBytes:  2 << 30, // 2 GiB
			MaxOpenFiles: 512,
		},
	}
}
