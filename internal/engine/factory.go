// Package engine provides snapshot engines for copying worktree data.
// Engines support different cloning strategies: hardlink, juicefs-clone, reflink-copy, and copy.
package engine

import (
	"github.com/jvs-project/taleforge/pkg/model"
)

// NewEngine creates an engine based on the specified type.
// Falls back to HardlinkEngine, the default snapshot mechanism, if the
// requested engine type is unset or unrecognized.
func NewEngine(engineType model.EngineType) Engine {
	switch engineType {
	case model.EngineJuiceFSClone:
		return NewJuiceFSEngine()
	case model.EngineReflinkCopy:
		return NewReflinkEngine()
	case model.EngineCopy:
		return NewCopyEngine()
	default:
		return NewHardlinkEngine()
	}
}
