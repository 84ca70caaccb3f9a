package bus

import "time"

// Peripheral footprints on the bus.
const (
	RTCSize        = 8
	KeyboardSize   = 4
	VGAControlSize = 8
)

// copyRegs copies the window [offset, offset+len(buf)) of regs into buf,
// zero-filling anything past the end.
func copyRegs(regs []byte, offset uint64, buf []byte) {
	for i := range buf {
		pos := offset + uint64(i)
		if pos < uint64(len(regs)) {
			buf[i] = regs[pos]
		} else {
			buf[i] = 0
		}
	}
}

// RTC exposes a free-running microsecond counter: the low word at +0 and
// the high word at +4. Writes are ignored.
type RTC struct {
	name  string
	now   func() time.Time
	start time.Time
}

// NewRTC creates a real-time clock that starts counting now. A nil clock
// uses time.Now.
func NewRTC(name string, clock func() time.Time) *RTC {
	if clock == nil {
		clock = time.Now
	}
	return &RTC{name: name, now: clock, start: clock()}
}

// Name implements Device.
func (r *RTC) Name() string { return r.name }

// Size implements Device.
func (r *RTC) Size() uint64 { return RTCSize }

// Executable implements the Executable capability.
func (r *RTC) Executable() bool { return false }

// Uptime returns the microseconds elapsed since the clock was created.
func (r *RTC) Uptime() uint64 {
	return uint64(r.now().Sub(r.start).Microseconds())
}

// Read implements Device.
func (r *RTC) Read(offset uint64, buf []byte) error {
	us := r.Uptime()

	var regs [RTCSize]byte
	for i := range regs {
		regs[i] = byte(us >> (8 * i))
	}
	copyRegs(regs[:], offset, buf)

	return nil
}

// Write implements Device.
func (r *RTC) Write(offset uint64, data []byte) error {
	return nil
}

// Key event encoding of the keyboard data register.
const (
	KeyDownMask = 0x8000
	KeyCodeMask = 0x7FFF
)

// Keyboard is a queue of key events. A read at offset 0 dequeues one event
// encoded as keydown<<15 | keycode; an empty queue reads as zero.
type Keyboard struct {
	name   string
	events []uint32
}

// NewKeyboard creates a keyboard with an empty event queue.
func NewKeyboard(name string) *Keyboard {
	return &Keyboard{name: name}
}

// Name implements Device.
func (k *Keyboard) Name() string { return k.name }

// Size implements Device.
func (k *Keyboard) Size() uint64 { return KeyboardSize }

// Executable implements the Executable capability.
func (k *Keyboard) Executable() bool { return false }

// Push queues a key event.
func (k *Keyboard) Push(code uint16, down bool) {
	ev := uint32(code) & KeyCodeMask
	if down {
		ev |= KeyDownMask
	}
	k.events = append(k.events, ev)
}

// Pending returns the number of queued events.
func (k *Keyboard) Pending() int {
	return len(k.events)
}

// Read implements Device.
func (k *Keyboard) Read(offset uint64, buf []byte) error {
	var ev uint32
	if offset == 0 && len(k.events) > 0 {
		ev = k.events[0]
		k.events = k.events[1:]
	}

	var regs [KeyboardSize]byte
	for i := range regs {
		regs[i] = byte(ev >> (8 * i))
	}
	copyRegs(regs[:], offset, buf)

	return nil
}

// Write implements Device.
func (k *Keyboard) Write(offset uint64, data []byte) error {
	return nil
}

// VGAControl publishes the screen geometry (height at +0, width at +2) and
// latches frame sync requests written to +4.
type VGAControl struct {
	name   string
	width  uint16
	height uint16
	syncs  uint64
}

// NewVGAControl creates a VGA control block for a width x height screen.
func NewVGAControl(name string, width, height uint16) *VGAControl {
	return &VGAControl{name: name, width: width, height: height}
}

// Name implements Device.
func (v *VGAControl) Name() string { return v.name }

// Size implements Device.
func (v *VGAControl) Size() uint64 { return VGAControlSize }

// Executable implements the Executable capability.
func (v *VGAControl) Executable() bool { return false }

// Syncs returns how many non-zero sync writes have been seen.
func (v *VGAControl) Syncs() uint64 { return v.syncs }

// Read implements Device.
func (v *VGAControl) Read(offset uint64, buf []byte) error {
	regs := [VGAControlSize]byte{
		byte(v.height), byte(v.height >> 8),
		byte(v.width), byte(v.width >> 8),
	}
	copyRegs(regs[:], offset, buf)

	return nil
}

// Write implements Device.
func (v *VGAControl) Write(offset uint64, data []byte) error {
	for i, b := range data {
		if pos := offset + uint64(i); pos >= 4 && pos < VGAControlSize && b != 0 {
			v.syncs++
			break
		}
	}
	return nil
}
