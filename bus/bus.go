// Package bus provides the address space of the simulated machine: a bus
// that routes sized accesses to registered devices, and the devices that
// can be attached to it.
package bus

import (
	"errors"
	"fmt"
	"sort"
)

// Bus errors.
var (
	// ErrOverlap is returned when a device region intersects an existing one.
	ErrOverlap = errors.New("device region overlaps an existing region")

	// ErrUnmapped is returned when no device contains the accessed address.
	ErrUnmapped = errors.New("no device mapped at address")

	// ErrPermission is returned by devices that refuse an access.
	ErrPermission = errors.New("permission denied")

	// ErrBadWidth is returned for access widths other than 8, 16, 32 and 64.
	ErrBadWidth = errors.New("unsupported access width")
)

// Width is the size of a bus transfer in bits.
type Width uint8

// Supported transfer widths.
const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// Bytes returns the number of bytes moved by a transfer of this width.
func (w Width) Bytes() int {
	return int(w) / 8
}

// Valid reports whether w is one of the supported widths.
func (w Width) Valid() bool {
	switch w {
	case Width8, Width16, Width32, Width64:
		return true
	}
	return false
}

// Device is anything that can be attached to the bus.
//
// Offsets are device-local. A device decides for itself what happens when
// a transfer runs past its end.
type Device interface {
	// Name identifies the device in diagnostics.
	Name() string

	// Size is the number of bytes the device occupies on the bus.
	Size() uint64

	// Read fills buf with the bytes starting at offset.
	Read(offset uint64, buf []byte) error

	// Write stores data starting at offset.
	Write(offset uint64, data []byte) error
}

// Executable is implemented by devices that can refuse instruction fetches.
type Executable interface {
	Executable() bool
}

type region struct {
	base   uint64
	size   uint64
	device Device
}

func (r region) end() uint64 {
	return r.base + r.size
}

func (r region) contains(addr uint64) bool {
	return addr >= r.base && addr < r.end()
}

// Bus maps 32-bit addresses to devices.
type Bus struct {
	regions []region
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Register attaches dev at base. Regions must not overlap.
func (b *Bus) Register(dev Device, base uint32) error {
	size := dev.Size()
	if size == 0 {
		return fmt.Errorf("register %s: zero-sized device", dev.Name())
	}

	r := region{base: uint64(base), size: size, device: dev}
	if r.end() > 1<<32 {
		return fmt.Errorf("register %s at 0x%08X: region exceeds the 32-bit address space",
			dev.Name(), base)
	}

	for _, other := range b.regions {
		if r.base < other.end() && other.base < r.end() {
			return fmt.Errorf("register %s at 0x%08X (size 0x%X): %w with %s at 0x%08X",
				dev.Name(), base, size, ErrOverlap, other.device.Name(), other.base)
		}
	}

	b.regions = append(b.regions, r)
	sort.Slice(b.regions, func(i, j int) bool {
		return b.regions[i].base < b.regions[j].base
	})

	return nil
}

// Devices returns the registered devices ordered by base address.
func (b *Bus) Devices() []Device {
	devs := make([]Device, len(b.regions))
	for i, r := range b.regions {
		devs[i] = r.device
	}
	return devs
}

// Lookup returns the device containing addr and the device-local offset.
func (b *Bus) Lookup(addr uint32) (Device, uint64, error) {
	r, err := b.find(addr)
	if err != nil {
		return nil, 0, err
	}
	return r.device, uint64(addr) - r.base, nil
}

func (b *Bus) find(addr uint32) (region, error) {
	a := uint64(addr)

	// First region whose base is above a; the candidate is the one before.
	i := sort.Search(len(b.regions), func(i int) bool {
		return b.regions[i].base > a
	})
	if i > 0 && b.regions[i-1].contains(a) {
		return b.regions[i-1], nil
	}

	return region{}, fmt.Errorf("0x%08X: %w", addr, ErrUnmapped)
}

// loadChunk bounds the bytes handed to a device per Load or Zero step.
const loadChunk = 64 << 10

// initializer is implemented by devices whose contents can be set regardless
// of their guest write permission.
type initializer interface {
	LoadAt(offset uint64, data []byte) error
}

// CheckRange returns ErrUnmapped unless every byte in [addr, addr+n) falls
// inside a registered region.
func (b *Bus) CheckRange(addr uint32, n uint64) error {
	a, end := uint64(addr), uint64(addr)+n
	if end > 1<<32 {
		return fmt.Errorf("0x%08X+0x%X: %w", addr, n, ErrUnmapped)
	}

	for a < end {
		r, err := b.find(uint32(a))
		if err != nil {
			return err
		}
		a = r.end()
	}

	return nil
}

// Load copies data to addr, splitting it across the regions it spans. The
// whole range must be mapped; nothing is written otherwise.
func (b *Bus) Load(addr uint32, data []byte) error {
	return b.load(addr, uint64(len(data)), func(off, n uint64) []byte {
		return data[off : off+n]
	})
}

// Zero clears n bytes starting at addr.
func (b *Bus) Zero(addr uint32, n uint64) error {
	zeros := make([]byte, min(n, loadChunk))
	return b.load(addr, n, func(_, k uint64) []byte {
		return zeros[:k]
	})
}

func (b *Bus) load(addr uint32, n uint64, chunk func(off, n uint64) []byte) error {
	if err := b.CheckRange(addr, n); err != nil {
		return fmt.Errorf("load 0x%X bytes at 0x%08X: %w", n, addr, err)
	}

	for off := uint64(0); off < n; {
		a := uint64(addr) + off
		r, err := b.find(uint32(a))
		if err != nil {
			return err
		}

		step := min(n-off, r.end()-a, loadChunk)
		data := chunk(off, step)

		if init, ok := r.device.(initializer); ok {
			err = init.LoadAt(a-r.base, data)
		} else {
			err = r.device.Write(a-r.base, data)
		}
		if err != nil {
			return fmt.Errorf("load %s at 0x%08X: %w", r.device.Name(), a, err)
		}

		off += step
	}

	return nil
}

// Read performs a little-endian read of the given width.
func (b *Bus) Read(width Width, addr uint32) (uint64, error) {
	if !width.Valid() {
		return 0, fmt.Errorf("read %d bits at 0x%08X: %w", width, addr, ErrBadWidth)
	}

	r, err := b.find(addr)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, width.Bytes())
	if err := r.device.Read(uint64(addr)-r.base, buf); err != nil {
		return 0, fmt.Errorf("read %s at 0x%08X: %w", r.device.Name(), addr, err)
	}

	var v uint64
	for i := len(buf) - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}

	return v, nil
}

// Write performs a little-endian write of the given width.
func (b *Bus) Write(width Width, addr uint32, value uint64) error {
	if !width.Valid() {
		return fmt.Errorf("write %d bits at 0x%08X: %w", width, addr, ErrBadWidth)
	}

	r, err := b.find(addr)
	if err != nil {
		return err
	}

	buf := make([]byte, width.Bytes())
	for i := range buf {
		buf[i] = byte(value >> (8 * i))
	}

	if err := r.device.Write(uint64(addr)-r.base, buf); err != nil {
		return fmt.Errorf("write %s at 0x%08X: %w", r.device.Name(), addr, err)
	}

	return nil
}

// Fetch16 reads an instruction halfword. Devices that report themselves as
// non-executable refuse the fetch.
func (b *Bus) Fetch16(addr uint32) (uint16, error) {
	r, err := b.find(addr)
	if err != nil {
		return 0, err
	}

	if x, ok := r.device.(Executable); ok && !x.Executable() {
		return 0, fmt.Errorf("fetch %s at 0x%08X: %w", r.device.Name(), addr, ErrPermission)
	}

	v, err := b.Read(Width16, addr)
	return uint16(v), err
}

// Read8 reads one byte.
func (b *Bus) Read8(addr uint32) (uint8, error) {
	v, err := b.Read(Width8, addr)
	return uint8(v), err
}

// Read16 reads a little-endian halfword.
func (b *Bus) Read16(addr uint32) (uint16, error) {
	v, err := b.Read(Width16, addr)
	return uint16(v), err
}

// Read32 reads a little-endian word.
func (b *Bus) Read32(addr uint32) (uint32, error) {
	v, err := b.Read(Width32, addr)
	return uint32(v), err
}

// Read64 reads a little-endian doubleword.
func (b *Bus) Read64(addr uint32) (uint64, error) {
	return b.Read(Width64, addr)
}

// Write8 writes one byte.
func (b *Bus) Write8(addr uint32, v uint8) error {
	return b.Write(Width8, addr, uint64(v))
}

// Write16 writes a little-endian halfword.
func (b *Bus) Write16(addr uint32, v uint16) error {
	return b.Write(Width16, addr, uint64(v))
}

// Write32 writes a little-endian word.
func (b *Bus) Write32(addr uint32, v uint32) error {
	return b.Write(Width32, addr, uint64(v))
}

// Write64 writes a little-endian doubleword.
func (b *Bus) Write64(addr uint32, v uint64) error {
	return b.Write(Width64, addr, v)
}
