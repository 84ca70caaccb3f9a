package emu

import (
	"fmt"
	"math/bits"

	"github.com/sarchlab/m0sim/insts"
)

// execute dispatches and executes a decoded instruction.
//
//nolint:gocyclo // one case per instruction form
func (e *Emulator) execute(inst *insts.Instruction) StepResult {
	switch inst.Op {
	case insts.OpUnknown:
		raise(fmt.Errorf("encoding 0x%X: %w", inst.Raw, ErrUndefined))

	case insts.OpLSLImm, insts.OpLSRImm, insts.OpASRImm,
		insts.OpMOVSReg, insts.OpADDReg, insts.OpSUBReg,
		insts.OpADDImm3, insts.OpSUBImm3,
		insts.OpMOVImm, insts.OpCMPImm, insts.OpADDImm8, insts.OpSUBImm8:
		e.executeShiftAddSubMovCmp(inst)

	case insts.OpAND, insts.OpEOR, insts.OpLSLReg, insts.OpLSRReg,
		insts.OpASRReg, insts.OpADC, insts.OpSBC, insts.OpRORReg,
		insts.OpTST, insts.OpRSB, insts.OpCMPReg, insts.OpCMN,
		insts.OpORR, insts.OpMUL, insts.OpBIC, insts.OpMVN:
		e.executeDataProcessing(inst)

	case insts.OpADDRegHi, insts.OpCMPRegHi, insts.OpMOVRegHi,
		insts.OpBX, insts.OpBLX:
		e.executeSpecialData(inst)

	case insts.OpLDRLit, insts.OpSTRReg, insts.OpSTRHReg, insts.OpSTRBReg,
		insts.OpLDRSBReg, insts.OpLDRReg, insts.OpLDRHReg, insts.OpLDRBReg,
		insts.OpLDRSHReg, insts.OpSTRImm, insts.OpLDRImm, insts.OpSTRBImm,
		insts.OpLDRBImm, insts.OpSTRHImm, insts.OpLDRHImm,
		insts.OpSTRSP, insts.OpLDRSP:
		e.executeLoadStore(inst)

	case insts.OpADR, insts.OpADDSPImm8, insts.OpADDSPImm7, insts.OpSUBSPImm7:
		e.executeAddressGen(inst)

	case insts.OpSXTH, insts.OpSXTB, insts.OpUXTH, insts.OpUXTB,
		insts.OpREV, insts.OpREV16, insts.OpREVSH:
		e.executeExtendReverse(inst)

	case insts.OpPUSH, insts.OpPOP, insts.OpSTM, insts.OpLDM:
		e.executeMultiple(inst)

	case insts.OpBCond, insts.OpB, insts.OpBL:
		e.executeBranch(inst)

	case insts.OpSVC:
		return e.executeSVC(inst)

	case insts.OpUDF, insts.OpUDFW:
		raise(fmt.Errorf("UDF #%d: %w", inst.Imm, ErrUndefined))

	case insts.OpYIELD:
		return e.halt(0)

	case insts.OpBKPT:
		if e.observed() {
			e.invoke(HookPosBreakpoint, inst, e.regFile.PC)
		}

	case insts.OpCPS, insts.OpMRS, insts.OpMSR:
		e.executeSystem(inst)

	case insts.OpNOP, insts.OpWFE, insts.OpWFI, insts.OpSEV,
		insts.OpDMB, insts.OpDSB, insts.OpISB:
		// No architectural effect on a single in-order core.

	default:
		raise(fmt.Errorf("%v: %w", inst.Op, ErrUnimplemented))
	}

	return StepResult{}
}

func (e *Emulator) executeShiftAddSubMovCmp(inst *insts.Instruction) {
	rf := e.regFile

	switch inst.Op {
	case insts.OpLSLImm:
		typ, n := DecodeImmShift(0, inst.Imm)
		rf.WriteReg(inst.Rd, e.alu.ShiftFlags(rf.ReadReg(inst.Rm), typ, n))
	case insts.OpLSRImm:
		typ, n := DecodeImmShift(1, inst.Imm)
		rf.WriteReg(inst.Rd, e.alu.ShiftFlags(rf.ReadReg(inst.Rm), typ, n))
	case insts.OpASRImm:
		typ, n := DecodeImmShift(2, inst.Imm)
		rf.WriteReg(inst.Rd, e.alu.ShiftFlags(rf.ReadReg(inst.Rm), typ, n))
	case insts.OpMOVSReg:
		v := rf.ReadReg(inst.Rm)
		e.alu.SetNZ(v)
		rf.WriteReg(inst.Rd, v)
	case insts.OpADDReg:
		rf.WriteReg(inst.Rd, e.alu.Add(rf.ReadReg(inst.Rn), rf.ReadReg(inst.Rm), false, true))
	case insts.OpSUBReg:
		rf.WriteReg(inst.Rd, e.alu.Sub(rf.ReadReg(inst.Rn), rf.ReadReg(inst.Rm), true, true))
	case insts.OpADDImm3, insts.OpADDImm8:
		rf.WriteReg(inst.Rd, e.alu.Add(rf.ReadReg(inst.Rn), inst.Imm, false, true))
	case insts.OpSUBImm3, insts.OpSUBImm8:
		rf.WriteReg(inst.Rd, e.alu.Sub(rf.ReadReg(inst.Rn), inst.Imm, true, true))
	case insts.OpMOVImm:
		e.alu.SetNZ(inst.Imm)
		rf.WriteReg(inst.Rd, inst.Imm)
	case insts.OpCMPImm:
		e.alu.Sub(rf.ReadReg(inst.Rn), inst.Imm, true, true)
	}
}

func (e *Emulator) executeDataProcessing(inst *insts.Instruction) {
	rf := e.regFile
	n := rf.ReadReg(inst.Rn)
	m := rf.ReadReg(inst.Rm)

	var result uint32
	write := true

	switch inst.Op {
	case insts.OpAND:
		result = n & m
		e.alu.SetNZ(result)
	case insts.OpEOR:
		result = n ^ m
		e.alu.SetNZ(result)
	case insts.OpORR:
		result = n | m
		e.alu.SetNZ(result)
	case insts.OpBIC:
		result = n &^ m
		e.alu.SetNZ(result)
	case insts.OpMVN:
		result = ^m
		e.alu.SetNZ(result)
	case insts.OpMUL:
		result = n * m
		e.alu.SetNZ(result)
	case insts.OpLSLReg:
		result = e.alu.ShiftFlags(n, ShiftLSL, uint(m&0xFF))
	case insts.OpLSRReg:
		result = e.alu.ShiftFlags(n, ShiftLSR, uint(m&0xFF))
	case insts.OpASRReg:
		result = e.alu.ShiftFlags(n, ShiftASR, uint(m&0xFF))
	case insts.OpRORReg:
		result = e.alu.ShiftFlags(n, ShiftROR, uint(m&0xFF))
	case insts.OpADC:
		result = e.alu.Add(n, m, rf.PSR.C, true)
	case insts.OpSBC:
		result = e.alu.Sub(n, m, rf.PSR.C, true)
	case insts.OpRSB:
		result = e.alu.Sub(0, n, true, true)
	case insts.OpTST:
		e.alu.SetNZ(n & m)
		write = false
	case insts.OpCMPReg:
		e.alu.Sub(n, m, true, true)
		write = false
	case insts.OpCMN:
		e.alu.Add(n, m, false, true)
		write = false
	}

	if write {
		rf.WriteReg(inst.Rd, result)
	}
}

func (e *Emulator) executeSpecialData(inst *insts.Instruction) {
	rf := e.regFile

	switch inst.Op {
	case insts.OpADDRegHi:
		if inst.Rd == RegPC && inst.Rm == RegPC {
			raise(fmt.Errorf("ADD PC, PC: %w", ErrUnpredictable))
		}
		result := rf.ReadReg(inst.Rn) + rf.ReadReg(inst.Rm)
		e.writeResult(inst.Rd, result)
	case insts.OpCMPRegHi:
		e.alu.Sub(rf.ReadReg(inst.Rn), rf.ReadReg(inst.Rm), true, true)
	case insts.OpMOVRegHi:
		e.writeResult(inst.Rd, rf.ReadReg(inst.Rm))
	case insts.OpBX:
		e.branchUnit.BXWritePC(rf.ReadReg(inst.Rm))
	case insts.OpBLX:
		if inst.Rm == RegPC {
			raise(fmt.Errorf("BLX PC: %w", ErrUnpredictable))
		}
		target := rf.ReadReg(inst.Rm)
		rf.LR = (rf.PC + 2) | 1
		e.branchUnit.BLXWritePC(target)
	}
}

// writeResult writes a data-processing result, sending writes to the PC
// through ALUWritePC.
func (e *Emulator) writeResult(rd uint8, v uint32) {
	if rd == RegPC {
		e.branchUnit.ALUWritePC(v)
		return
	}
	e.regFile.WriteReg(rd, v)
}

// align rounds addr down to a multiple of n.
func align(addr, n uint32) uint32 {
	return addr &^ (n - 1)
}

func (e *Emulator) executeLoadStore(inst *insts.Instruction) {
	rf := e.regFile
	lsu := e.lsu

	var addr uint32
	switch inst.Op {
	case insts.OpLDRLit:
		addr = align(rf.ReadReg(RegPC), 4) + inst.Imm
	case insts.OpSTRReg, insts.OpSTRHReg, insts.OpSTRBReg, insts.OpLDRSBReg,
		insts.OpLDRReg, insts.OpLDRHReg, insts.OpLDRBReg, insts.OpLDRSHReg:
		addr = rf.ReadReg(inst.Rn) + rf.ReadReg(inst.Rm)
	default:
		addr = rf.ReadReg(inst.Rn) + inst.Imm
	}

	switch inst.Op {
	case insts.OpSTRReg, insts.OpSTRImm, insts.OpSTRSP:
		lsu.STR(addr, rf.ReadReg(inst.Rt))
	case insts.OpSTRHReg, insts.OpSTRHImm:
		lsu.STRH(addr, rf.ReadReg(inst.Rt))
	case insts.OpSTRBReg, insts.OpSTRBImm:
		lsu.STRB(addr, rf.ReadReg(inst.Rt))
	case insts.OpLDRLit, insts.OpLDRReg, insts.OpLDRImm, insts.OpLDRSP:
		rf.WriteReg(inst.Rt, lsu.LDR(addr))
	case insts.OpLDRHReg, insts.OpLDRHImm:
		rf.WriteReg(inst.Rt, lsu.LDRH(addr))
	case insts.OpLDRBReg, insts.OpLDRBImm:
		rf.WriteReg(inst.Rt, lsu.LDRB(addr))
	case insts.OpLDRSHReg:
		rf.WriteReg(inst.Rt, lsu.LDRSH(addr))
	case insts.OpLDRSBReg:
		rf.WriteReg(inst.Rt, lsu.LDRSB(addr))
	}
}

func (e *Emulator) executeAddressGen(inst *insts.Instruction) {
	rf := e.regFile

	switch inst.Op {
	case insts.OpADR:
		rf.WriteReg(inst.Rd, align(rf.ReadReg(RegPC), 4)+inst.Imm)
	case insts.OpADDSPImm8, insts.OpADDSPImm7:
		rf.WriteReg(inst.Rd, rf.SP()+inst.Imm)
	case insts.OpSUBSPImm7:
		rf.SetSP(rf.SP() - inst.Imm)
	}
}

func (e *Emulator) executeExtendReverse(inst *insts.Instruction) {
	rf := e.regFile
	m := rf.ReadReg(inst.Rm)

	var result uint32
	switch inst.Op {
	case insts.OpSXTH:
		result = uint32(int32(int16(m)))
	case insts.OpSXTB:
		result = uint32(int32(int8(m)))
	case insts.OpUXTH:
		result = m & 0xFFFF
	case insts.OpUXTB:
		result = m & 0xFF
	case insts.OpREV:
		result = bits.ReverseBytes32(m)
	case insts.OpREV16:
		result = (m&0x00FF00FF)<<8 | (m&0xFF00FF00)>>8
	case insts.OpREVSH:
		result = uint32(int32(int16(bits.ReverseBytes16(uint16(m)))))
	}

	rf.WriteReg(inst.Rd, result)
}

func (e *Emulator) executeMultiple(inst *insts.Instruction) {
	rf := e.regFile
	lsu := e.lsu
	list := inst.RegList
	count := uint32(bits.OnesCount16(list))

	if count == 0 {
		raise(fmt.Errorf("%v with an empty register list: %w", inst.Op, ErrUnpredictable))
	}

	switch inst.Op {
	case insts.OpPUSH:
		sp := rf.SP() - 4*count
		addr := sp
		for r := uint8(0); r < RegPC; r++ {
			if list&(1<<r) != 0 {
				lsu.STR(addr, rf.ReadReg(r))
				addr += 4
			}
		}
		rf.SetSP(sp)

	case insts.OpPOP:
		addr := rf.SP()
		for r := uint8(0); r < 8; r++ {
			if list&(1<<r) != 0 {
				rf.WriteReg(r, lsu.LDR(addr))
				addr += 4
			}
		}
		if list&(1<<RegPC) != 0 {
			target := lsu.LDR(addr)
			rf.SetSP(rf.SP() + 4*count)
			e.branchUnit.LoadWritePC(target)
			return
		}
		rf.SetSP(rf.SP() + 4*count)

	case insts.OpSTM:
		addr := rf.ReadReg(inst.Rn)
		for r := uint8(0); r < 8; r++ {
			if list&(1<<r) != 0 {
				lsu.STR(addr, rf.ReadReg(r))
				addr += 4
			}
		}
		rf.WriteReg(inst.Rn, addr)

	case insts.OpLDM:
		addr := rf.ReadReg(inst.Rn)
		for r := uint8(0); r < 8; r++ {
			if list&(1<<r) != 0 {
				rf.WriteReg(r, lsu.LDR(addr))
				addr += 4
			}
		}
		if list&(1<<inst.Rn) == 0 {
			rf.WriteReg(inst.Rn, addr)
		}
	}
}

func (e *Emulator) executeBranch(inst *insts.Instruction) {
	rf := e.regFile
	target := uint32(int32(rf.ReadReg(RegPC)) + inst.BranchOffset)

	switch inst.Op {
	case insts.OpBCond:
		if rf.PSR.ConditionPassed(inst.Cond) {
			e.branchUnit.BranchWritePC(target)
		}
	case insts.OpB:
		e.branchUnit.BranchWritePC(target)
	case insts.OpBL:
		rf.LR = (rf.PC + 4) | 1
		e.branchUnit.BranchWritePC(target)
	}
}

func (e *Emulator) executeSVC(inst *insts.Instruction) StepResult {
	rf := e.regFile
	rf.LR = (rf.PC + inst.Size()) | 1

	res := e.supervisor.Handle(uint8(inst.Imm), rf)
	if res.Err != nil {
		raise(res.Err)
	}

	if res.Halted {
		return e.halt(res.ExitCode)
	}

	if res.Branch {
		e.branchUnit.BLXWritePC(res.Target)
	}

	return StepResult{}
}
