// Package trace records a bounded history of execution for post-mortem
// inspection. A Recorder is attached to an emulator as an akita hook.
package trace

import (
	"fmt"
	"io"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/insts"
)

// DefaultRegisterDepth is the number of register-delta records kept unless
// WithRegisterDepth says otherwise.
const DefaultRegisterDepth = 4

// RegisterRecord lists the registers one instruction changed.
type RegisterRecord struct {
	PC     uint32
	Deltas []emu.RegDelta
}

// InstructionRecord is one retired instruction.
type InstructionRecord struct {
	PC      uint32
	Raw     uint32
	Is32Bit bool
	Op      insts.Op
}

func (r InstructionRecord) String() string {
	if r.Is32Bit {
		return fmt.Sprintf("0x%08X: %04X %04X  %s", r.PC, r.Raw>>16, r.Raw&0xFFFF, r.Op)
	}
	return fmt.Sprintf("0x%08X: %04X       %s", r.PC, r.Raw, r.Op)
}

// Recorder keeps the most recent register deltas, instructions, memory
// accesses and branches. Each history is capped independently.
type Recorder struct {
	registers    *ring[RegisterRecord]
	instructions *ring[InstructionRecord]
	memory       *ring[emu.MemAccess]
	branches     *ring[emu.Branch]
}

// Option configures a Recorder.
type Option func(*recorderOptions)

type recorderOptions struct {
	registerDepth int
}

// WithRegisterDepth sets the capacity of the register-delta history.
func WithRegisterDepth(n int) Option {
	return func(o *recorderOptions) {
		o.registerDepth = n
	}
}

// NewRecorder creates a Recorder keeping depth instructions, memory accesses
// and branches.
func NewRecorder(depth int, opts ...Option) *Recorder {
	o := recorderOptions{registerDepth: DefaultRegisterDepth}
	for _, opt := range opts {
		opt(&o)
	}

	if depth < 0 {
		depth = 0
	}
	if o.registerDepth < 0 {
		o.registerDepth = 0
	}

	return &Recorder{
		registers:    newRing[RegisterRecord](o.registerDepth),
		instructions: newRing[InstructionRecord](depth),
		memory:       newRing[emu.MemAccess](depth),
		branches:     newRing[emu.Branch](depth),
	}
}

// Func implements sim.Hook.
func (r *Recorder) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case emu.HookPosInstRetired:
		r.recordInstruction(ctx)
	case emu.HookPosMemAccess:
		if a, ok := ctx.Item.(emu.MemAccess); ok {
			r.memory.push(a)
		}
	case emu.HookPosBranch:
		if b, ok := ctx.Item.(emu.Branch); ok {
			r.branches.push(b)
		}
	}
}

func (r *Recorder) recordInstruction(ctx sim.HookCtx) {
	inst, ok := ctx.Item.(*insts.Instruction)
	if !ok {
		return
	}
	detail, ok := ctx.Detail.(emu.InstRetired)
	if !ok {
		return
	}

	r.instructions.push(InstructionRecord{
		PC:      detail.PC,
		Raw:     inst.Raw,
		Is32Bit: inst.Is32Bit,
		Op:      inst.Op,
	})

	if deltas := detail.Before.Diff(detail.After); len(deltas) > 0 {
		r.registers.push(RegisterRecord{PC: detail.PC, Deltas: deltas})
	}
}

// Registers returns the recorded register deltas, oldest first.
func (r *Recorder) Registers() []RegisterRecord {
	return r.registers.items()
}

// Instructions returns the recorded instructions, oldest first.
func (r *Recorder) Instructions() []InstructionRecord {
	return r.instructions.items()
}

// MemoryAccesses returns the recorded data accesses, oldest first.
func (r *Recorder) MemoryAccesses() []emu.MemAccess {
	return r.memory.items()
}

// Branches returns the recorded PC redirections, oldest first.
func (r *Recorder) Branches() []emu.Branch {
	return r.branches.items()
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.registers.reset()
	r.instructions.reset()
	r.memory.reset()
	r.branches.reset()
}

// Dump writes a human-readable report of all four histories.
func (r *Recorder) Dump(w io.Writer) error {
	p := &printer{w: w}

	p.printf("Instructions:\n")
	for _, inst := range r.Instructions() {
		p.printf("  %s\n", inst)
	}

	p.printf("Register changes:\n")
	for _, rec := range r.Registers() {
		p.printf("  0x%08X:", rec.PC)
		for _, d := range rec.Deltas {
			p.printf(" %s;", d)
		}
		p.printf("\n")
	}

	p.printf("Memory accesses:\n")
	for _, a := range r.MemoryAccesses() {
		dir := "R"
		if a.Write {
			dir = "W"
		}
		p.printf("  %s%-2d 0x%08X = 0x%08X\n", dir, a.Width, a.Addr, a.Value)
	}

	p.printf("Branches:\n")
	for _, b := range r.Branches() {
		p.printf("  0x%08X -> 0x%08X (%s)\n", b.From, b.To, b.Op)
	}

	return p.err
}

// printer stops writing after the first error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
