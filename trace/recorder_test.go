package trace_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/bus"
	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/insts"
	"github.com/sarchlab/m0sim/trace"
)

const codeBase = uint32(0x1000)

var program = []uint16{
	0x2005, // MOVS R0, #5
	0x6008, // STR R0, [R1, #0]
	0x680A, // LDR R2, [R1, #0]
	0xE7FF, // B next
	0xBF10, // YIELD
}

func newEmulator() *emu.Emulator {
	b := bus.NewBus()
	Expect(b.Register(bus.NewMemory("ram", 0x10000), 0)).To(Succeed())
	for i, hw := range program {
		Expect(b.Write16(codeBase+uint32(2*i), hw)).To(Succeed())
	}

	e := emu.NewEmulator(b)
	e.Reset(0x8000, codeBase|1)
	e.RegFile().R[1] = 0x2000

	return e
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("closed")
}

var _ = Describe("Recorder", func() {
	var e *emu.Emulator

	BeforeEach(func() {
		e = newEmulator()
	})

	It("should record every retired instruction", func() {
		rec := trace.NewRecorder(100)
		e.AcceptHook(rec)

		Expect(e.Run()).To(Succeed())

		records := rec.Instructions()
		Expect(records).To(HaveLen(5))
		Expect(records[0]).To(Equal(trace.InstructionRecord{
			PC: codeBase, Raw: 0x2005, Op: insts.OpMOVImm,
		}))
		Expect(records[4].Op).To(Equal(insts.OpYIELD))
	})

	It("should record memory accesses in order", func() {
		rec := trace.NewRecorder(100)
		e.AcceptHook(rec)

		Expect(e.Run()).To(Succeed())

		Expect(rec.MemoryAccesses()).To(Equal([]emu.MemAccess{
			{Addr: 0x2000, Width: bus.Width32, Value: 5, Write: true},
			{Addr: 0x2000, Width: bus.Width32, Value: 5},
		}))
	})

	It("should record branches", func() {
		rec := trace.NewRecorder(100)
		e.AcceptHook(rec)

		Expect(e.Run()).To(Succeed())

		Expect(rec.Branches()).To(Equal([]emu.Branch{
			{From: codeBase + 6, To: codeBase + 8, Op: insts.OpB},
		}))
	})

	It("should record only the registers that changed", func() {
		rec := trace.NewRecorder(100)
		e.AcceptHook(rec)

		Expect(e.Run()).To(Succeed())

		regs := rec.Registers()
		Expect(regs).To(HaveLen(2))
		Expect(regs[0].PC).To(Equal(codeBase))
		Expect(regs[0].Deltas).To(Equal([]emu.RegDelta{{Reg: 0, Old: 0, New: 5}}))
		Expect(regs[1].Deltas).To(Equal([]emu.RegDelta{{Reg: 2, Old: 0, New: 5}}))
	})

	It("should cap each history independently", func() {
		rec := trace.NewRecorder(2, trace.WithRegisterDepth(1))
		e.AcceptHook(rec)

		Expect(e.Run()).To(Succeed())

		records := rec.Instructions()
		Expect(records).To(HaveLen(2))
		Expect(records[0].Op).To(Equal(insts.OpB))
		Expect(records[1].Op).To(Equal(insts.OpYIELD))

		Expect(rec.Registers()).To(HaveLen(1))
		Expect(rec.Registers()[0].PC).To(Equal(codeBase + 4))
		Expect(rec.MemoryAccesses()).To(HaveLen(2))
		Expect(rec.Branches()).To(HaveLen(1))
	})

	It("should keep nothing at depth zero", func() {
		rec := trace.NewRecorder(0, trace.WithRegisterDepth(0))
		e.AcceptHook(rec)

		Expect(e.Run()).To(Succeed())

		Expect(rec.Instructions()).To(BeEmpty())
		Expect(rec.Registers()).To(BeEmpty())
	})

	It("should not change execution", func() {
		plain := newEmulator()
		Expect(plain.Run()).To(Succeed())

		e.AcceptHook(trace.NewRecorder(100))
		Expect(e.Run()).To(Succeed())

		Expect(e.RegFile().Snapshot()).To(Equal(plain.RegFile().Snapshot()))
		Expect(e.InstructionCount()).To(Equal(plain.InstructionCount()))
	})

	It("should forget everything on Reset", func() {
		rec := trace.NewRecorder(100)
		e.AcceptHook(rec)
		Expect(e.Run()).To(Succeed())

		rec.Reset()

		Expect(rec.Instructions()).To(BeEmpty())
		Expect(rec.Registers()).To(BeEmpty())
		Expect(rec.MemoryAccesses()).To(BeEmpty())
		Expect(rec.Branches()).To(BeEmpty())
	})

	Describe("Dump", func() {
		It("should print all four histories", func() {
			rec := trace.NewRecorder(100)
			e.AcceptHook(rec)
			Expect(e.Run()).To(Succeed())

			out := &bytes.Buffer{}
			Expect(rec.Dump(out)).To(Succeed())

			text := out.String()
			Expect(text).To(ContainSubstring("0x00001000: 2005       MOVS(imm)"))
			Expect(text).To(ContainSubstring("R0: 0x00000000 -> 0x00000005;"))
			Expect(text).To(ContainSubstring("W32 0x00002000 = 0x00000005"))
			Expect(text).To(ContainSubstring("R32 0x00002000 = 0x00000005"))
			Expect(text).To(ContainSubstring("0x00001006 -> 0x00001008 (B)"))
		})

		It("should print 32-bit encodings first halfword first", func() {
			b := e.Bus()
			Expect(b.Write32(codeBase, 0xF800F000)).To(Succeed()) // BL +0
			Expect(b.Write16(codeBase+4, 0xBF10)).To(Succeed())   // YIELD

			rec := trace.NewRecorder(100)
			e.AcceptHook(rec)
			Expect(e.Run()).To(Succeed())

			records := rec.Instructions()
			Expect(records[0].Is32Bit).To(BeTrue())
			Expect(records[0].Raw).To(Equal(uint32(0xF000F800)))

			out := &bytes.Buffer{}
			Expect(rec.Dump(out)).To(Succeed())
			Expect(out.String()).To(ContainSubstring("0x00001000: F000 F800  BL"))
			Expect(out.String()).To(ContainSubstring("0x00001000 -> 0x00001004 (BL)"))
		})

		It("should report write errors", func() {
			rec := trace.NewRecorder(10)
			Expect(rec.Dump(failingWriter{})).To(MatchError("closed"))
		})
	})
})
