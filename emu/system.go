package emu

import (
	"fmt"

	"github.com/sarchlab/m0sim/insts"
)

// Special register selectors for MRS and MSR.
const (
	SYSmAPSR    = 0
	SYSmIAPSR   = 1
	SYSmEAPSR   = 2
	SYSmXPSR    = 3
	SYSmIPSR    = 5
	SYSmEPSR    = 6
	SYSmIEPSR   = 7
	SYSmMSP     = 8
	SYSmPSP     = 9
	SYSmPRIMASK = 16
	SYSmCONTROL = 20
)

func (e *Emulator) executeSystem(inst *insts.Instruction) {
	switch inst.Op {
	case insts.OpCPS:
		// CPSID sets PRIMASK, CPSIE clears it; ignored when unprivileged.
		if e.regFile.Privileged() {
			e.regFile.PRIMASK = inst.Imm == 1
		}
	case insts.OpMRS:
		e.regFile.WriteReg(inst.Rd, e.readSpecial(inst.SYSm, inst.Rd))
	case insts.OpMSR:
		checkSysReg(inst.Rn)
		e.writeSpecial(inst.SYSm, e.regFile.ReadReg(inst.Rn))
	}
}

func checkSysReg(reg uint8) {
	if reg == RegSP || reg == RegPC {
		raise(fmt.Errorf("%s as system register operand: %w", RegName(reg), ErrUnpredictable))
	}
}

// readSpecial implements MRS. EPSR reads as zero.
func (e *Emulator) readSpecial(sysm, rd uint8) uint32 {
	checkSysReg(rd)
	rf := e.regFile

	var v uint32
	switch sysm >> 3 {
	case 0:
		if sysm&1 != 0 {
			v |= rf.PSR.Exception & 0x3F
		}
		if sysm&4 == 0 {
			v |= rf.PSR.APSR()
		}
	case 1:
		if !rf.Privileged() {
			break
		}
		switch sysm & 7 {
		case 0:
			v = rf.MSP
		case 1:
			v = rf.PSP
		}
	case 2:
		switch sysm & 7 {
		case 0:
			if rf.PRIMASK {
				v = 1
			}
		case 4:
			v = rf.Control.Value()
		}
	}

	return v
}

// writeSpecial implements MSR.
func (e *Emulator) writeSpecial(sysm uint8, v uint32) {
	rf := e.regFile

	switch sysm >> 3 {
	case 0:
		if sysm&4 == 0 {
			rf.PSR.SetAPSR(v)
		}
	case 1:
		if !rf.Privileged() {
			return
		}
		switch sysm & 7 {
		case 0:
			rf.MSP = v &^ 3
		case 1:
			rf.PSP = v &^ 3
		}
	case 2:
		if !rf.Privileged() {
			return
		}
		switch sysm & 7 {
		case 0:
			rf.PRIMASK = v&1 == 1
		case 4:
			rf.Control.NPriv = v&1 == 1
			if rf.Mode == ModeThread {
				rf.Control.SPSel = v&2 != 0
			}
		}
	}
}
