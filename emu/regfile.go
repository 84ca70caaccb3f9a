// Package emu provides functional ARMv6-M (Cortex-M0) emulation.
package emu

import "fmt"

// Register numbers with a dedicated role.
const (
	RegSP = 13
	RegLR = 14
	RegPC = 15
)

// Mode is the processor mode.
type Mode uint8

// Processor modes.
const (
	ModeThread Mode = iota
	ModeHandler
)

func (m Mode) String() string {
	if m == ModeHandler {
		return "Handler"
	}
	return "Thread"
}

// PSR holds the program status: the APSR condition flags, the EPSR Thumb
// bit and the IPSR exception number.
type PSR struct {
	// N is the negative flag.
	N bool
	// Z is the zero flag.
	Z bool
	// C is the carry flag.
	C bool
	// V is the overflow flag.
	V bool

	// T is the Thumb execution state bit.
	T bool

	// Exception is the number of the exception being handled.
	Exception uint32
}

// APSR returns the flags in their xPSR bit positions [31:28].
func (p PSR) APSR() uint32 {
	var v uint32
	if p.N {
		v |= 1 << 31
	}
	if p.Z {
		v |= 1 << 30
	}
	if p.C {
		v |= 1 << 29
	}
	if p.V {
		v |= 1 << 28
	}
	return v
}

// SetAPSR loads the flags from bits [31:28] of v.
func (p *PSR) SetAPSR(v uint32) {
	p.N = v&(1<<31) != 0
	p.Z = v&(1<<30) != 0
	p.C = v&(1<<29) != 0
	p.V = v&(1<<28) != 0
}

// XPSR returns the combined program status register.
func (p PSR) XPSR() uint32 {
	v := p.APSR() | p.Exception&0x3F
	if p.T {
		v |= 1 << 24
	}
	return v
}

// Control is the CONTROL special register.
type Control struct {
	// NPriv makes Thread mode unprivileged.
	NPriv bool

	// SPSel selects the process stack in Thread mode.
	SPSel bool
}

// Value returns the register encoding.
func (c Control) Value() uint32 {
	var v uint32
	if c.NPriv {
		v |= 1
	}
	if c.SPSel {
		v |= 2
	}
	return v
}

// RegFile represents the Cortex-M0 register file.
type RegFile struct {
	// R holds the general-purpose registers R0-R12.
	R [13]uint32

	// MSP and PSP are the banked main and process stack pointers.
	MSP uint32
	PSP uint32

	// LR is the link register.
	LR uint32

	// PC is the address of the executing instruction.
	PC uint32

	PSR     PSR
	Control Control
	PRIMASK bool
	Mode    Mode
}

// usePSP reports whether register 13 currently names the process stack.
func (r *RegFile) usePSP() bool {
	return r.Control.SPSel && r.Mode == ModeThread
}

// SP returns the active stack pointer.
func (r *RegFile) SP() uint32 {
	if r.usePSP() {
		return r.PSP
	}
	return r.MSP
}

// SetSP writes the active stack pointer. Bits [1:0] are always cleared.
func (r *RegFile) SetSP(v uint32) {
	v &^= 3
	if r.usePSP() {
		r.PSP = v
		return
	}
	r.MSP = v
}

// ReadReg reads a register as an instruction sees it. Register 13 is the
// active stack pointer and register 15 reads as the instruction address
// plus 4.
func (r *RegFile) ReadReg(reg uint8) uint32 {
	switch {
	case reg < RegSP:
		return r.R[reg]
	case reg == RegSP:
		return r.SP()
	case reg == RegLR:
		return r.LR
	case reg == RegPC:
		return r.PC + 4
	}
	panic(fmt.Sprintf("register %d out of range", reg))
}

// WriteReg writes a general-purpose register, SP or LR. Writes to the PC
// must go through the branch unit.
func (r *RegFile) WriteReg(reg uint8, value uint32) {
	switch {
	case reg < RegSP:
		r.R[reg] = value
	case reg == RegSP:
		r.SetSP(value)
	case reg == RegLR:
		r.LR = value
	default:
		panic(fmt.Sprintf("register %d is not writable", reg))
	}
}

// Privileged reports whether the current mode may access privileged state.
func (r *RegFile) Privileged() bool {
	return r.Mode == ModeHandler || !r.Control.NPriv
}

// Reset puts the core in its reset state: MSP loaded, the stack select
// cleared, Handler mode, and execution starting at entry with bit 0 of
// entry selecting the Thumb state.
func (r *RegFile) Reset(msp, entry uint32) {
	*r = RegFile{}
	r.MSP = msp &^ 3
	r.PC = entry &^ 1
	r.PSR.T = entry&1 == 1
	r.Mode = ModeHandler
}

// RegSnapshot is a copy of the architectural state at one point in time.
type RegSnapshot struct {
	// R holds R0-R12, the active SP, LR and the instruction address.
	R       [16]uint32
	XPSR    uint32
	Control uint32
	PRIMASK bool
	Mode    Mode
}

// Snapshot captures the current register state.
func (r *RegFile) Snapshot() RegSnapshot {
	var s RegSnapshot
	copy(s.R[:], r.R[:])
	s.R[RegSP] = r.SP()
	s.R[RegLR] = r.LR
	s.R[RegPC] = r.PC
	s.XPSR = r.PSR.XPSR()
	s.Control = r.Control.Value()
	s.PRIMASK = r.PRIMASK
	s.Mode = r.Mode
	return s
}

// RegXPSR is the pseudo register number used for xPSR in a RegDelta.
const RegXPSR = 16

// RegDelta records one register that changed between two snapshots.
type RegDelta struct {
	Reg uint8
	Old uint32
	New uint32
}

func (d RegDelta) String() string {
	return fmt.Sprintf("%s: 0x%08X -> 0x%08X", RegName(d.Reg), d.Old, d.New)
}

// Diff lists the registers, excluding the PC, that differ in next.
func (s RegSnapshot) Diff(next RegSnapshot) []RegDelta {
	var deltas []RegDelta
	for i := uint8(0); i < RegPC; i++ {
		if s.R[i] != next.R[i] {
			deltas = append(deltas, RegDelta{Reg: i, Old: s.R[i], New: next.R[i]})
		}
	}
	if s.XPSR != next.XPSR {
		deltas = append(deltas, RegDelta{Reg: RegXPSR, Old: s.XPSR, New: next.XPSR})
	}
	return deltas
}

// RegName returns the assembler name of a register number.
func RegName(reg uint8) string {
	switch reg {
	case RegSP:
		return "SP"
	case RegLR:
		return "LR"
	case RegPC:
		return "PC"
	case RegXPSR:
		return "xPSR"
	}
	return fmt.Sprintf("R%d", reg)
}
