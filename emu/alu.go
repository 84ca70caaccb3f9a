package emu

// ShiftType selects a barrel shifter operation.
type ShiftType uint8

// Shift types. RRX is only produced by DecodeImmShift.
const (
	ShiftLSL ShiftType = 0b00 // Logical shift left
	ShiftLSR ShiftType = 0b01 // Logical shift right
	ShiftASR ShiftType = 0b10 // Arithmetic shift right
	ShiftROR ShiftType = 0b11 // Rotate right
	ShiftRRX ShiftType = 0b100
)

// AddWithCarry returns x + y + carryIn truncated to 32 bits together with
// the unsigned carry out and the signed overflow.
func AddWithCarry(x, y uint32, carryIn bool) (result uint32, carry, overflow bool) {
	var c uint64
	if carryIn {
		c = 1
	}

	unsigned := uint64(x) + uint64(y) + c
	signed := int64(int32(x)) + int64(int32(y)) + int64(c)

	result = uint32(unsigned)
	carry = uint64(result) != unsigned
	overflow = int64(int32(result)) != signed

	return result, carry, overflow
}

// LSLC shifts x left by n > 0 bits. The carry is the last bit shifted out.
func LSLC(x uint32, n uint) (uint32, bool) {
	extended := uint64(x) << n
	return uint32(extended), (extended>>32)&1 == 1
}

// LSL shifts x left by n bits.
func LSL(x uint32, n uint) uint32 {
	if n == 0 {
		return x
	}
	r, _ := LSLC(x, n)
	return r
}

// LSRC shifts x right by n > 0 bits, filling with zeros.
func LSRC(x uint32, n uint) (uint32, bool) {
	carry := n <= 32 && (x>>(n-1))&1 == 1
	return x >> n, carry
}

// LSR shifts x right by n bits, filling with zeros.
func LSR(x uint32, n uint) uint32 {
	if n == 0 {
		return x
	}
	r, _ := LSRC(x, n)
	return r
}

// ASRC shifts x right by n > 0 bits, replicating the sign bit.
func ASRC(x uint32, n uint) (uint32, bool) {
	if n >= 32 {
		sign := x>>31 == 1
		if sign {
			return 0xFFFFFFFF, true
		}
		return 0, false
	}
	return uint32(int32(x) >> n), (x>>(n-1))&1 == 1
}

// ASR shifts x right by n bits, replicating the sign bit.
func ASR(x uint32, n uint) uint32 {
	if n == 0 {
		return x
	}
	r, _ := ASRC(x, n)
	return r
}

// RORC rotates x right by n > 0 bits. The carry is the new bit 31.
func RORC(x uint32, n uint) (uint32, bool) {
	m := n % 32
	r := x>>m | x<<(32-m)
	return r, r>>31 == 1
}

// ROR rotates x right by n bits.
func ROR(x uint32, n uint) uint32 {
	if n == 0 {
		return x
	}
	r, _ := RORC(x, n)
	return r
}

// RRXC rotates x right by one bit through the carry.
func RRXC(x uint32, carryIn bool) (uint32, bool) {
	r := x >> 1
	if carryIn {
		r |= 1 << 31
	}
	return r, x&1 == 1
}

// ShiftC applies a shift of the given type. A zero amount returns the
// value and carry unchanged.
func ShiftC(value uint32, typ ShiftType, amount uint, carryIn bool) (uint32, bool) {
	if amount == 0 {
		return value, carryIn
	}

	switch typ {
	case ShiftLSL:
		return LSLC(value, amount)
	case ShiftLSR:
		return LSRC(value, amount)
	case ShiftASR:
		return ASRC(value, amount)
	case ShiftROR:
		return RORC(value, amount)
	default:
		return RRXC(value, carryIn)
	}
}

// Shift applies a shift of the given type, discarding the carry.
func Shift(value uint32, typ ShiftType, amount uint, carryIn bool) uint32 {
	r, _ := ShiftC(value, typ, amount, carryIn)
	return r
}

// DecodeImmShift maps the two-bit type and five-bit immediate of a shift
// encoding to a shift type and amount. LSR and ASR #0 mean 32; ROR #0 is RRX.
func DecodeImmShift(typ uint8, imm5 uint32) (ShiftType, uint) {
	switch typ & 3 {
	case 0:
		return ShiftLSL, uint(imm5)
	case 1:
		if imm5 == 0 {
			return ShiftLSR, 32
		}
		return ShiftLSR, uint(imm5)
	case 2:
		if imm5 == 0 {
			return ShiftASR, 32
		}
		return ShiftASR, uint(imm5)
	default:
		if imm5 == 0 {
			return ShiftRRX, 1
		}
		return ShiftROR, uint(imm5)
	}
}

// ALU updates the condition flags for data-processing results.
type ALU struct {
	regFile *RegFile
}

// NewALU creates a new ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

// SetNZ sets N and Z from result.
func (a *ALU) SetNZ(result uint32) {
	a.regFile.PSR.N = result>>31 == 1
	a.regFile.PSR.Z = result == 0
}

// SetNZC sets N and Z from result and C from the shifter.
func (a *ALU) SetNZC(result uint32, carry bool) {
	a.SetNZ(result)
	a.regFile.PSR.C = carry
}

// SetNZCV sets all four flags.
func (a *ALU) SetNZCV(result uint32, carry, overflow bool) {
	a.SetNZ(result)
	a.regFile.PSR.C = carry
	a.regFile.PSR.V = overflow
}

// Add computes x + y + carryIn and optionally sets NZCV.
func (a *ALU) Add(x, y uint32, carryIn, setFlags bool) uint32 {
	r, c, v := AddWithCarry(x, y, carryIn)
	if setFlags {
		a.SetNZCV(r, c, v)
	}
	return r
}

// Sub computes x - y - !carryIn and optionally sets NZCV.
func (a *ALU) Sub(x, y uint32, carryIn, setFlags bool) uint32 {
	return a.Add(x, ^y, carryIn, setFlags)
}

// ShiftFlags shifts value and sets N, Z and C.
func (a *ALU) ShiftFlags(value uint32, typ ShiftType, amount uint) uint32 {
	r, c := ShiftC(value, typ, amount, a.regFile.PSR.C)
	a.SetNZC(r, c)
	return r
}
