// Package insts provides ARMv6-M Thumb instruction definitions and decoding.
//
// This package classifies raw 16- and 32-bit Thumb encodings into
// instruction forms and extracts their operand fields. It supports the
// complete ARMv6-M instruction set:
//   - 16-bit data processing, shifts, moves and compares
//   - Loads and stores (register, immediate, SP-relative, literal, multiple)
//   - Stack, extend, byte-reverse, hint and barrier instructions
//   - Branches: B, B<cond>, BX, BLX, BL, and SVC / UDF
//   - System register access: MRS, MSR, CPS
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x1C48, false) // ADDS R0, R1, #1
//	fmt.Printf("Op: %v, Rd: %d, Rn: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Rn, inst.Imm)
package insts

// Op identifies an instruction form.
type Op uint16

// Instruction forms. The suffix names the operand form where one mnemonic
// has several encodings.
const (
	OpUnknown Op = iota

	// Shift (immediate), add, subtract, move, and compare
	OpLSLImm
	OpLSRImm
	OpASRImm
	OpMOVSReg
	OpADDReg
	OpSUBReg
	OpADDImm3
	OpSUBImm3
	OpMOVImm
	OpCMPImm
	OpADDImm8
	OpSUBImm8

	// Data processing
	OpAND
	OpEOR
	OpLSLReg
	OpLSRReg
	OpASRReg
	OpADC
	OpSBC
	OpRORReg
	OpTST
	OpRSB
	OpCMPReg
	OpCMN
	OpORR
	OpMUL
	OpBIC
	OpMVN

	// Special data instructions and branch and exchange
	OpADDRegHi
	OpCMPRegHi
	OpMOVRegHi
	OpBX
	OpBLX

	// Load/store
	OpLDRLit
	OpSTRReg
	OpSTRHReg
	OpSTRBReg
	OpLDRSBReg
	OpLDRReg
	OpLDRHReg
	OpLDRBReg
	OpLDRSHReg
	OpSTRImm
	OpLDRImm
	OpSTRBImm
	OpLDRBImm
	OpSTRHImm
	OpLDRHImm
	OpSTRSP
	OpLDRSP

	// PC/SP relative address generation
	OpADR
	OpADDSPImm8
	OpADDSPImm7
	OpSUBSPImm7

	// Miscellaneous 16-bit instructions
	OpSXTH
	OpSXTB
	OpUXTH
	OpUXTB
	OpPUSH
	OpCPS
	OpREV
	OpREV16
	OpREVSH
	OpPOP
	OpBKPT
	OpNOP
	OpYIELD
	OpWFE
	OpWFI
	OpSEV

	// Multiple load/store, branches, exceptions
	OpSTM
	OpLDM
	OpBCond
	OpUDF
	OpSVC
	OpB

	// 32-bit instructions
	OpBL
	OpMSR
	OpMRS
	OpDMB
	OpDSB
	OpISB
	OpUDFW

	numOps
)

var opNames = [numOps]string{
	OpUnknown:   "UNKNOWN",
	OpLSLImm:    "LSLS(imm)",
	OpLSRImm:    "LSRS(imm)",
	OpASRImm:    "ASRS(imm)",
	OpMOVSReg:   "MOVS(reg)",
	OpADDReg:    "ADDS(reg)",
	OpSUBReg:    "SUBS(reg)",
	OpADDImm3:   "ADDS(imm3)",
	OpSUBImm3:   "SUBS(imm3)",
	OpMOVImm:    "MOVS(imm)",
	OpCMPImm:    "CMP(imm)",
	OpADDImm8:   "ADDS(imm8)",
	OpSUBImm8:   "SUBS(imm8)",
	OpAND:       "ANDS",
	OpEOR:       "EORS",
	OpLSLReg:    "LSLS(reg)",
	OpLSRReg:    "LSRS(reg)",
	OpASRReg:    "ASRS(reg)",
	OpADC:       "ADCS",
	OpSBC:       "SBCS",
	OpRORReg:    "RORS",
	OpTST:       "TST",
	OpRSB:       "RSBS",
	OpCMPReg:    "CMP(reg)",
	OpCMN:       "CMN",
	OpORR:       "ORRS",
	OpMUL:       "MULS",
	OpBIC:       "BICS",
	OpMVN:       "MVNS",
	OpADDRegHi:  "ADD(hi)",
	OpCMPRegHi:  "CMP(hi)",
	OpMOVRegHi:  "MOV(hi)",
	OpBX:        "BX",
	OpBLX:       "BLX",
	OpLDRLit:    "LDR(lit)",
	OpSTRReg:    "STR(reg)",
	OpSTRHReg:   "STRH(reg)",
	OpSTRBReg:   "STRB(reg)",
	OpLDRSBReg:  "LDRSB",
	OpLDRReg:    "LDR(reg)",
	OpLDRHReg:   "LDRH(reg)",
	OpLDRBReg:   "LDRB(reg)",
	OpLDRSHReg:  "LDRSH",
	OpSTRImm:    "STR(imm)",
	OpLDRImm:    "LDR(imm)",
	OpSTRBImm:   "STRB(imm)",
	OpLDRBImm:   "LDRB(imm)",
	OpSTRHImm:   "STRH(imm)",
	OpLDRHImm:   "LDRH(imm)",
	OpSTRSP:     "STR(sp)",
	OpLDRSP:     "LDR(sp)",
	OpADR:       "ADR",
	OpADDSPImm8: "ADD(sp,imm8)",
	OpADDSPImm7: "ADD(sp,imm7)",
	OpSUBSPImm7: "SUB(sp,imm7)",
	OpSXTH:      "SXTH",
	OpSXTB:      "SXTB",
	OpUXTH:      "UXTH",
	OpUXTB:      "UXTB",
	OpPUSH:      "PUSH",
	OpCPS:       "CPS",
	OpREV:       "REV",
	OpREV16:     "REV16",
	OpREVSH:     "REVSH",
	OpPOP:       "POP",
	OpBKPT:      "BKPT",
	OpNOP:       "NOP",
	OpYIELD:     "YIELD",
	OpWFE:       "WFE",
	OpWFI:       "WFI",
	OpSEV:       "SEV",
	OpSTM:       "STM",
	OpLDM:       "LDM",
	OpBCond:     "B<c>",
	OpUDF:       "UDF",
	OpSVC:       "SVC",
	OpB:         "B",
	OpBL:        "BL",
	OpMSR:       "MSR",
	OpMRS:       "MRS",
	OpDMB:       "DMB",
	OpDSB:       "DSB",
	OpISB:       "ISB",
	OpUDFW:      "UDF.W",
}

// String returns the mnemonic of the instruction form.
func (op Op) String() string {
	if op < numOps && opNames[op] != "" {
		return opNames[op]
	}
	return "UNKNOWN"
}

// Cond represents a condition code.
type Cond uint8

// Condition codes.
const (
	CondEQ Cond = 0b0000 // Equal (Z == 1)
	CondNE Cond = 0b0001 // Not Equal (Z == 0)
	CondCS Cond = 0b0010 // Carry Set / Unsigned higher or same (C == 1)
	CondCC Cond = 0b0011 // Carry Clear / Unsigned lower (C == 0)
	CondMI Cond = 0b0100 // Minus / Negative (N == 1)
	CondPL Cond = 0b0101 // Plus / Positive or zero (N == 0)
	CondVS Cond = 0b0110 // Overflow (V == 1)
	CondVC Cond = 0b0111 // No overflow (V == 0)
	CondHI Cond = 0b1000 // Unsigned higher (C == 1 && Z == 0)
	CondLS Cond = 0b1001 // Unsigned lower or same (C == 0 || Z == 1)
	CondGE Cond = 0b1010 // Signed greater than or equal (N == V)
	CondLT Cond = 0b1011 // Signed less than (N != V)
	CondGT Cond = 0b1100 // Signed greater than (Z == 0 && N == V)
	CondLE Cond = 0b1101 // Signed less than or equal (Z == 1 || N != V)
	CondAL Cond = 0b1110 // Always (unconditional)
)

// Instruction represents a decoded Thumb instruction.
type Instruction struct {
	Op      Op     // Instruction form
	Raw     uint32 // Encoding; for 32-bit forms the first halfword is in bits [31:16]
	Is32Bit bool   // true for 32-bit encodings

	Rd uint8 // Destination register
	Rn uint8 // First operand / base register
	Rm uint8 // Second operand / offset register
	Rt uint8 // Transfer register for loads and stores

	// Imm is the zero-extended, already scaled immediate.
	Imm uint32

	// BranchOffset is the sign-extended branch offset in bytes, relative
	// to the PC read value (instruction address + 4).
	BranchOffset int32

	Cond    Cond   // Condition code for B<cond>
	RegList uint16 // Register list for PUSH, POP, LDM, STM (bit i = Ri)
	SYSm    uint8  // Special register selector for MRS, MSR
}

// Size returns the encoding size in bytes.
func (i *Instruction) Size() uint32 {
	if i.Is32Bit {
		return 4
	}
	return 2
}
