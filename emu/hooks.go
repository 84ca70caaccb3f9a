package emu

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/m0sim/insts"
)

// Hook positions invoked by the emulator. Hooks are only invoked, and the
// state they need only captured, while at least one hook is attached.
var (
	// HookPosInstRetired fires after an instruction completes. The item is
	// the *insts.Instruction and the detail an InstRetired.
	HookPosInstRetired = &sim.HookPos{Name: "InstRetired"}

	// HookPosMemAccess fires for every data access. The item is a MemAccess.
	HookPosMemAccess = &sim.HookPos{Name: "MemAccess"}

	// HookPosBranch fires when an instruction redirects the PC. The item is
	// a Branch.
	HookPosBranch = &sim.HookPos{Name: "Branch"}

	// HookPosBreakpoint fires when BKPT executes. The item is the
	// *insts.Instruction.
	HookPosBreakpoint = &sim.HookPos{Name: "Breakpoint"}
)

// InstRetired is the hook detail for a completed instruction.
type InstRetired struct {
	PC     uint32
	Count  uint64
	Before RegSnapshot
	After  RegSnapshot
}

// Branch records a PC redirection.
type Branch struct {
	From uint32
	To   uint32
	Op   insts.Op
}

func (e *Emulator) observed() bool {
	return e.NumHooks() > 0
}

func (e *Emulator) invoke(pos *sim.HookPos, item, detail interface{}) {
	e.InvokeHook(sim.HookCtx{
		Domain: e,
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}

func (e *Emulator) observeMemAccess(a MemAccess) {
	if e.observed() {
		e.invoke(HookPosMemAccess, a, nil)
	}
}
