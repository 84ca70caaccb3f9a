package insts

// Is32Bit reports whether first is the leading halfword of a 32-bit Thumb
// encoding. Only the 0b11110 prefix is recognized; the other 32-bit
// prefixes (0b11101, 0b11111) carry no ARMv6-M instructions.
func Is32Bit(first uint16) bool {
	return first>>11 == 0b11110
}

type pattern struct {
	bits string
	op   Op
}

// thumb16 lists the 16-bit encodings. Where two patterns overlap the trie
// picks the more specific one, e.g. MOVS (register) over LSLS #0 and SVC
// over B<cond>.
var thumb16 = []pattern{
	// Shift (immediate), add, subtract, move, and compare
	{"000'00'xxxxx'xxx'xxx", OpLSLImm},
	{"000'00'00000'xxx'xxx", OpMOVSReg},
	{"000'01'xxxxx'xxx'xxx", OpLSRImm},
	{"000'10'xxxxx'xxx'xxx", OpASRImm},
	{"000'11'0'0'xxx'xxx'xxx", OpADDReg},
	{"000'11'0'1'xxx'xxx'xxx", OpSUBReg},
	{"000'11'1'0'xxx'xxx'xxx", OpADDImm3},
	{"000'11'1'1'xxx'xxx'xxx", OpSUBImm3},
	{"001'00'xxx'xxxxxxxx", OpMOVImm},
	{"001'01'xxx'xxxxxxxx", OpCMPImm},
	{"001'10'xxx'xxxxxxxx", OpADDImm8},
	{"001'11'xxx'xxxxxxxx", OpSUBImm8},

	// Data processing
	{"010000'0000'xxx'xxx", OpAND},
	{"010000'0001'xxx'xxx", OpEOR},
	{"010000'0010'xxx'xxx", OpLSLReg},
	{"010000'0011'xxx'xxx", OpLSRReg},
	{"010000'0100'xxx'xxx", OpASRReg},
	{"010000'0101'xxx'xxx", OpADC},
	{"010000'0110'xxx'xxx", OpSBC},
	{"010000'0111'xxx'xxx", OpRORReg},
	{"010000'1000'xxx'xxx", OpTST},
	{"010000'1001'xxx'xxx", OpRSB},
	{"010000'1010'xxx'xxx", OpCMPReg},
	{"010000'1011'xxx'xxx", OpCMN},
	{"010000'1100'xxx'xxx", OpORR},
	{"010000'1101'xxx'xxx", OpMUL},
	{"010000'1110'xxx'xxx", OpBIC},
	{"010000'1111'xxx'xxx", OpMVN},

	// Special data instructions and branch and exchange
	{"010001'00'x'xxxx'xxx", OpADDRegHi},
	{"010001'01'x'xxxx'xxx", OpCMPRegHi},
	{"010001'10'x'xxxx'xxx", OpMOVRegHi},
	{"010001'110'xxxx'000", OpBX},
	{"010001'111'xxxx'000", OpBLX},

	// Loads and stores
	{"01001'xxx'xxxxxxxx", OpLDRLit},
	{"0101'000'xxx'xxx'xxx", OpSTRReg},
	{"0101'001'xxx'xxx'xxx", OpSTRHReg},
	{"0101'010'xxx'xxx'xxx", OpSTRBReg},
	{"0101'011'xxx'xxx'xxx", OpLDRSBReg},
	{"0101'100'xxx'xxx'xxx", OpLDRReg},
	{"0101'101'xxx'xxx'xxx", OpLDRHReg},
	{"0101'110'xxx'xxx'xxx", OpLDRBReg},
	{"0101'111'xxx'xxx'xxx", OpLDRSHReg},
	{"0110'0'xxxxx'xxx'xxx", OpSTRImm},
	{"0110'1'xxxxx'xxx'xxx", OpLDRImm},
	{"0111'0'xxxxx'xxx'xxx", OpSTRBImm},
	{"0111'1'xxxxx'xxx'xxx", OpLDRBImm},
	{"1000'0'xxxxx'xxx'xxx", OpSTRHImm},
	{"1000'1'xxxxx'xxx'xxx", OpLDRHImm},
	{"1001'0'xxx'xxxxxxxx", OpSTRSP},
	{"1001'1'xxx'xxxxxxxx", OpLDRSP},

	// PC/SP relative address generation
	{"1010'0'xxx'xxxxxxxx", OpADR},
	{"1010'1'xxx'xxxxxxxx", OpADDSPImm8},

	// Miscellaneous
	{"1011'0000'0'xxxxxxx", OpADDSPImm7},
	{"1011'0000'1'xxxxxxx", OpSUBSPImm7},
	{"1011'0010'00'xxx'xxx", OpSXTH},
	{"1011'0010'01'xxx'xxx", OpSXTB},
	{"1011'0010'10'xxx'xxx", OpUXTH},
	{"1011'0010'11'xxx'xxx", OpUXTB},
	{"1011'010'x'xxxxxxxx", OpPUSH},
	{"1011'0110'011'x'0010", OpCPS},
	{"1011'1010'00'xxx'xxx", OpREV},
	{"1011'1010'01'xxx'xxx", OpREV16},
	{"1011'1010'11'xxx'xxx", OpREVSH},
	{"1011'110'x'xxxxxxxx", OpPOP},
	{"1011'1110'xxxxxxxx", OpBKPT},
	{"1011'1111'0000'0000", OpNOP},
	{"1011'1111'0001'0000", OpYIELD},
	{"1011'1111'0010'0000", OpWFE},
	{"1011'1111'0011'0000", OpWFI},
	{"1011'1111'0100'0000", OpSEV},

	// Load/store multiple
	{"1100'0'xxx'xxxxxxxx", OpSTM},
	{"1100'1'xxx'xxxxxxxx", OpLDM},

	// Conditional branch, UDF and SVC
	{"1101'xxxx'xxxxxxxx", OpBCond},
	{"1101'1110'xxxxxxxx", OpUDF},
	{"1101'1111'xxxxxxxx", OpSVC},

	// Unconditional branch
	{"11100'xxxxxxxxxxx", OpB},
}

// thumb32 lists the 32-bit encodings, first halfword in the upper 16 bits.
var thumb32 = []pattern{
	{"11110'x'xxxxxxxxxx 11'x'1'x'xxxxxxxxxxx", OpBL},
	{"11110'0'1110'0'0'xxxx 10'0'0'1000'xxxxxxxx", OpMSR},
	{"11110'0'1111'1'0'1111 10'0'0'xxxx'xxxxxxxx", OpMRS},
	{"11110'0'1110'1'1'1111 10'0'0'1111'0100'xxxx", OpDSB},
	{"11110'0'1110'1'1'1111 10'0'0'1111'0101'xxxx", OpDMB},
	{"11110'0'1110'1'1'1111 10'0'0'1111'0110'xxxx", OpISB},
	{"11110'1111111'xxxx 1010'xxxxxxxxxxxx", OpUDFW},
}

// Decoder decodes Thumb machine code into instructions.
//
// Decoded instructions are memoized per encoding, so the returned
// *Instruction is shared and must not be modified by callers.
type Decoder struct {
	narrow *Trie
	wide   *Trie
	cache  map[uint64]*Instruction
}

// NewDecoder creates a new Thumb instruction decoder. It panics if the
// built-in pattern table is inconsistent.
func NewDecoder() *Decoder {
	d := &Decoder{
		narrow: NewTrie(),
		wide:   NewTrie(),
		cache:  make(map[uint64]*Instruction),
	}

	for _, p := range thumb16 {
		if err := d.narrow.Insert(p.bits, p.op); err != nil {
			panic(err)
		}
	}

	for _, p := range thumb32 {
		if err := d.wide.Insert(p.bits, p.op); err != nil {
			panic(err)
		}
	}

	return d
}

// Decode decodes raw. For a 32-bit encoding raw holds the first halfword in
// bits [31:16] and the second in bits [15:0]. Unmatched encodings decode to
// OpUnknown.
func (d *Decoder) Decode(raw uint32, is32 bool) *Instruction {
	key := uint64(raw)
	if is32 {
		key |= 1 << 32
	}

	if inst, ok := d.cache[key]; ok {
		return inst
	}

	inst := &Instruction{Raw: raw, Is32Bit: is32}
	if is32 {
		inst.Op, _ = d.wide.Lookup(raw, 32)
		decode32(raw, inst)
	} else {
		raw &= 0xFFFF
		inst.Raw = raw
		inst.Op, _ = d.narrow.Lookup(raw, 16)
		decode16(uint16(raw), inst)
	}

	d.cache[key] = inst

	return inst
}

// bits extracts word[hi:lo].
func bits(word uint32, hi, lo uint) uint32 {
	return (word >> lo) & ((1 << (hi - lo + 1)) - 1)
}

func reg(word uint32, hi, lo uint) uint8 {
	return uint8(bits(word, hi, lo))
}

// signExtend sign-extends the low n bits of v.
func signExtend(v uint32, n uint) int32 {
	shift := 32 - n
	return int32(v<<shift) >> shift
}

//nolint:gocyclo // one case per encoding family
func decode16(hw uint16, inst *Instruction) {
	w := uint32(hw)

	switch inst.Op {
	case OpLSLImm, OpLSRImm, OpASRImm:
		inst.Imm = bits(w, 10, 6)
		inst.Rm = reg(w, 5, 3)
		inst.Rd = reg(w, 2, 0)

	case OpMOVSReg:
		inst.Rm = reg(w, 5, 3)
		inst.Rd = reg(w, 2, 0)

	case OpADDReg, OpSUBReg:
		inst.Rm = reg(w, 8, 6)
		inst.Rn = reg(w, 5, 3)
		inst.Rd = reg(w, 2, 0)

	case OpADDImm3, OpSUBImm3:
		inst.Imm = bits(w, 8, 6)
		inst.Rn = reg(w, 5, 3)
		inst.Rd = reg(w, 2, 0)

	case OpMOVImm, OpCMPImm, OpADDImm8, OpSUBImm8:
		inst.Rd = reg(w, 10, 8)
		inst.Rn = inst.Rd
		inst.Imm = bits(w, 7, 0)

	case OpRSB, OpMUL:
		// RSBS Rd, Rn, #0 and MULS Rdm, Rn, Rdm
		inst.Rn = reg(w, 5, 3)
		inst.Rd = reg(w, 2, 0)
		inst.Rm = inst.Rd

	case OpAND, OpEOR, OpLSLReg, OpLSRReg, OpASRReg, OpADC, OpSBC, OpRORReg,
		OpTST, OpCMPReg, OpCMN, OpORR, OpBIC, OpMVN:
		inst.Rm = reg(w, 5, 3)
		inst.Rd = reg(w, 2, 0)
		inst.Rn = inst.Rd

	case OpADDRegHi, OpCMPRegHi, OpMOVRegHi:
		inst.Rd = reg(w, 7, 7)<<3 | reg(w, 2, 0)
		inst.Rn = inst.Rd
		inst.Rm = reg(w, 6, 3)

	case OpBX, OpBLX:
		inst.Rm = reg(w, 6, 3)

	case OpLDRLit:
		inst.Rt = reg(w, 10, 8)
		inst.Rn = 15
		inst.Imm = bits(w, 7, 0) << 2

	case OpSTRReg, OpSTRHReg, OpSTRBReg, OpLDRSBReg,
		OpLDRReg, OpLDRHReg, OpLDRBReg, OpLDRSHReg:
		inst.Rm = reg(w, 8, 6)
		inst.Rn = reg(w, 5, 3)
		inst.Rt = reg(w, 2, 0)

	case OpSTRImm, OpLDRImm:
		inst.Imm = bits(w, 10, 6) << 2
		inst.Rn = reg(w, 5, 3)
		inst.Rt = reg(w, 2, 0)

	case OpSTRBImm, OpLDRBImm:
		inst.Imm = bits(w, 10, 6)
		inst.Rn = reg(w, 5, 3)
		inst.Rt = reg(w, 2, 0)

	case OpSTRHImm, OpLDRHImm:
		inst.Imm = bits(w, 10, 6) << 1
		inst.Rn = reg(w, 5, 3)
		inst.Rt = reg(w, 2, 0)

	case OpSTRSP, OpLDRSP:
		inst.Rt = reg(w, 10, 8)
		inst.Rn = 13
		inst.Imm = bits(w, 7, 0) << 2

	case OpADR:
		inst.Rd = reg(w, 10, 8)
		inst.Rn = 15
		inst.Imm = bits(w, 7, 0) << 2

	case OpADDSPImm8:
		inst.Rd = reg(w, 10, 8)
		inst.Rn = 13
		inst.Imm = bits(w, 7, 0) << 2

	case OpADDSPImm7, OpSUBSPImm7:
		inst.Rd = 13
		inst.Rn = 13
		inst.Imm = bits(w, 6, 0) << 2

	case OpSXTH, OpSXTB, OpUXTH, OpUXTB, OpREV, OpREV16, OpREVSH:
		inst.Rm = reg(w, 5, 3)
		inst.Rd = reg(w, 2, 0)

	case OpPUSH:
		inst.RegList = uint16(bits(w, 7, 0)) | uint16(bits(w, 8, 8))<<14

	case OpPOP:
		inst.RegList = uint16(bits(w, 7, 0)) | uint16(bits(w, 8, 8))<<15

	case OpCPS:
		inst.Imm = bits(w, 4, 4)

	case OpBKPT, OpUDF, OpSVC:
		inst.Imm = bits(w, 7, 0)

	case OpSTM, OpLDM:
		inst.Rn = reg(w, 10, 8)
		inst.RegList = uint16(bits(w, 7, 0))

	case OpBCond:
		inst.Cond = Cond(bits(w, 11, 8))
		inst.BranchOffset = signExtend(bits(w, 7, 0)<<1, 9)

	case OpB:
		inst.BranchOffset = signExtend(bits(w, 10, 0)<<1, 12)
	}
}

func decode32(word uint32, inst *Instruction) {
	hw1 := word >> 16
	hw2 := word & 0xFFFF

	switch inst.Op {
	case OpBL:
		s := bits(hw1, 10, 10)
		imm10 := bits(hw1, 9, 0)
		j1 := bits(hw2, 13, 13)
		j2 := bits(hw2, 11, 11)
		imm11 := bits(hw2, 10, 0)

		i1 := ^(j1 ^ s) & 1
		i2 := ^(j2 ^ s) & 1

		imm := s<<24 | i1<<23 | i2<<22 | imm10<<12 | imm11<<1
		inst.BranchOffset = signExtend(imm, 25)

	case OpMSR:
		inst.Rn = reg(hw1, 3, 0)
		inst.SYSm = uint8(bits(hw2, 7, 0))

	case OpMRS:
		inst.Rd = reg(hw2, 11, 8)
		inst.SYSm = uint8(bits(hw2, 7, 0))

	case OpDMB, OpDSB, OpISB:
		inst.Imm = bits(hw2, 3, 0)

	case OpUDFW:
		inst.Imm = bits(hw1, 3, 0)<<12 | bits(hw2, 11, 0)
	}
}
