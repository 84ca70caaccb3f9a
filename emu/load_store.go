package emu

import (
	"github.com/sarchlab/m0sim/bus"
)

// MemAccess describes one data access made by an instruction.
type MemAccess struct {
	Addr  uint32
	Width bus.Width
	Value uint32
	Write bool
}

// LoadStoreUnit performs aligned data accesses on the bus. Any bus error or
// misalignment aborts the instruction with a fault.
type LoadStoreUnit struct {
	bus      *bus.Bus
	observer func(MemAccess)
}

// NewLoadStoreUnit creates a new LoadStoreUnit connected to the given bus.
func NewLoadStoreUnit(b *bus.Bus) *LoadStoreUnit {
	return &LoadStoreUnit{bus: b}
}

// Observe installs a function that sees every completed access.
func (lsu *LoadStoreUnit) Observe(fn func(MemAccess)) {
	lsu.observer = fn
}

func (lsu *LoadStoreUnit) checkAlign(addr uint32, width bus.Width) {
	if addr%uint32(width.Bytes()) != 0 {
		raiseAt(ErrUnaligned, addr)
	}
}

func (lsu *LoadStoreUnit) notify(a MemAccess) {
	if lsu.observer != nil {
		lsu.observer(a)
	}
}

// Read loads a zero-extended value of the given width.
func (lsu *LoadStoreUnit) Read(width bus.Width, addr uint32) uint32 {
	lsu.checkAlign(addr, width)

	v, err := lsu.bus.Read(width, addr)
	if err != nil {
		raiseAt(err, addr)
	}

	lsu.notify(MemAccess{Addr: addr, Width: width, Value: uint32(v)})

	return uint32(v)
}

// Write stores the low bits of value at the given width.
func (lsu *LoadStoreUnit) Write(width bus.Width, addr, value uint32) {
	lsu.checkAlign(addr, width)

	if err := lsu.bus.Write(width, addr, uint64(value)); err != nil {
		raiseAt(err, addr)
	}

	lsu.notify(MemAccess{Addr: addr, Width: width, Value: value, Write: true})
}

// LDR loads a word.
func (lsu *LoadStoreUnit) LDR(addr uint32) uint32 {
	return lsu.Read(bus.Width32, addr)
}

// LDRH loads a halfword with zero extension.
func (lsu *LoadStoreUnit) LDRH(addr uint32) uint32 {
	return lsu.Read(bus.Width16, addr)
}

// LDRB loads a byte with zero extension.
func (lsu *LoadStoreUnit) LDRB(addr uint32) uint32 {
	return lsu.Read(bus.Width8, addr)
}

// LDRSH loads a halfword with sign extension.
func (lsu *LoadStoreUnit) LDRSH(addr uint32) uint32 {
	return uint32(int32(int16(lsu.Read(bus.Width16, addr))))
}

// LDRSB loads a byte with sign extension.
func (lsu *LoadStoreUnit) LDRSB(addr uint32) uint32 {
	return uint32(int32(int8(lsu.Read(bus.Width8, addr))))
}

// STR stores a word.
func (lsu *LoadStoreUnit) STR(addr, value uint32) {
	lsu.Write(bus.Width32, addr, value)
}

// STRH stores the low halfword.
func (lsu *LoadStoreUnit) STRH(addr, value uint32) {
	lsu.Write(bus.Width16, addr, value&0xFFFF)
}

// STRB stores the low byte.
func (lsu *LoadStoreUnit) STRB(addr, value uint32) {
	lsu.Write(bus.Width8, addr, value&0xFF)
}
