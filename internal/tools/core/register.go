package core

import (
	"patchwork/internal/history"
	"patchwork/internal/sandbox"
	"patchwork/internal/tools"
)

// Register adds the file operation and search tools to the registry.
func Register(reg *tools.Registry, sb *sandbox.Sandbox, hist *history.Store) {
	reg.MustRegister(ReadFileTool(sb))
	reg.MustRegister(WriteFileTool(sb))
	reg.MustRegister(UndoEditTool(sb, hist))
	reg.MustRegister(SearchTool(sb))
}
