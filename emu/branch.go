package emu

import "github.com/sarchlab/m0sim/insts"

// ConditionPassed evaluates a condition code against the flags.
func (p PSR) ConditionPassed(cond insts.Cond) bool {
	switch cond {
	case insts.CondEQ:
		return p.Z
	case insts.CondNE:
		return !p.Z
	case insts.CondCS:
		return p.C
	case insts.CondCC:
		return !p.C
	case insts.CondMI:
		return p.N
	case insts.CondPL:
		return !p.N
	case insts.CondVS:
		return p.V
	case insts.CondVC:
		return !p.V
	case insts.CondHI:
		return p.C && !p.Z
	case insts.CondLS:
		return !p.C || p.Z
	case insts.CondGE:
		return p.N == p.V
	case insts.CondLT:
		return p.N != p.V
	case insts.CondGT:
		return !p.Z && (p.N == p.V)
	case insts.CondLE:
		return p.Z || (p.N != p.V)
	case insts.CondAL:
		return true
	default:
		return false
	}
}

// excReturnMask selects the bits that mark an EXC_RETURN value.
const excReturnMask = 0xF0000000

// BranchUnit implements the ARMv6-M PC write helpers. Every write marks the
// step as redirected so the sequential PC increment is skipped.
type BranchUnit struct {
	regFile    *RegFile
	redirected bool
}

// NewBranchUnit creates a new BranchUnit connected to the given register file.
func NewBranchUnit(regFile *RegFile) *BranchUnit {
	return &BranchUnit{regFile: regFile}
}

// Redirected reports whether the PC was written since the last Clear.
func (b *BranchUnit) Redirected() bool {
	return b.redirected
}

// Clear resets the redirect flag before an instruction executes.
func (b *BranchUnit) Clear() {
	b.redirected = false
}

// BranchWritePC jumps to addr with bit 0 cleared.
func (b *BranchUnit) BranchWritePC(addr uint32) {
	b.regFile.PC = addr &^ 1
	b.redirected = true
}

// BXWritePC jumps to addr with interworking: bit 0 becomes the Thumb bit.
// In Handler mode an EXC_RETURN value would start an exception return,
// which raises ErrExceptionReturn.
func (b *BranchUnit) BXWritePC(addr uint32) {
	if b.regFile.Mode == ModeHandler && addr&excReturnMask == excReturnMask {
		raiseAt(ErrExceptionReturn, addr)
	}
	b.BLXWritePC(addr)
}

// BLXWritePC jumps to addr, taking the Thumb bit from bit 0.
func (b *BranchUnit) BLXWritePC(addr uint32) {
	b.regFile.PSR.T = addr&1 == 1
	b.regFile.PC = addr &^ 1
	b.redirected = true
}

// LoadWritePC writes a loaded value to the PC.
func (b *BranchUnit) LoadWritePC(addr uint32) {
	b.BXWritePC(addr)
}

// ALUWritePC writes a data-processing result to the PC.
func (b *BranchUnit) ALUWritePC(addr uint32) {
	b.BranchWritePC(addr)
}
