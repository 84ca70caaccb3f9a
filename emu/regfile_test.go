package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/bus"
	"github.com/sarchlab/m0sim/emu"
)

var _ = Describe("RegFile", func() {
	var rf *emu.RegFile

	BeforeEach(func() {
		rf = &emu.RegFile{}
		rf.Reset(0x20040000, 0x8041)
	})

	It("should read the PC as the instruction address plus 4", func() {
		Expect(rf.ReadReg(emu.RegPC)).To(Equal(uint32(0x8044)))
	})

	It("should keep only bits 31:2 of stack pointer writes", func() {
		rf.WriteReg(emu.RegSP, 0x20000007)
		Expect(rf.ReadReg(emu.RegSP)).To(Equal(uint32(0x20000004)))
	})

	It("should bank the stack pointer by SPSel in Thread mode", func() {
		rf.PSP = 0x1000
		rf.Control.SPSel = true

		Expect(rf.ReadReg(emu.RegSP)).To(Equal(uint32(0x20040000)))

		rf.Mode = emu.ModeThread
		Expect(rf.ReadReg(emu.RegSP)).To(Equal(uint32(0x1000)))

		rf.WriteReg(emu.RegSP, 0x2000)
		Expect(rf.PSP).To(Equal(uint32(0x2000)))
		Expect(rf.MSP).To(Equal(uint32(0x20040000)))
	})

	It("should refuse direct PC writes", func() {
		Expect(func() { rf.WriteReg(emu.RegPC, 0) }).To(Panic())
	})

	It("should encode xPSR", func() {
		rf.PSR.N = true
		rf.PSR.C = true
		rf.PSR.Exception = 11

		Expect(rf.PSR.XPSR()).To(Equal(uint32(0xA100000B)))
	})

	It("should report privilege", func() {
		Expect(rf.Privileged()).To(BeTrue())

		rf.Mode = emu.ModeThread
		rf.Control.NPriv = true
		Expect(rf.Privileged()).To(BeFalse())
	})

	It("should diff snapshots", func() {
		before := rf.Snapshot()
		rf.R[3] = 9
		rf.PSR.Z = true
		after := rf.Snapshot()

		deltas := before.Diff(after)
		Expect(deltas).To(HaveLen(2))
		Expect(deltas[0].String()).To(Equal("R3: 0x00000000 -> 0x00000009"))
		Expect(emu.RegName(deltas[1].Reg)).To(Equal("xPSR"))
	})
})

var _ = Describe("System instructions", func() {
	var (
		e  *emu.Emulator
		b  *bus.Bus
		rf *emu.RegFile
	)

	BeforeEach(func() {
		b = bus.NewBus()
		Expect(b.Register(bus.NewMemory("ram", 0x10000), 0)).To(Succeed())
		e = emu.NewEmulator(b)
		e.Reset(stackTop, codeBase|1)
		rf = e.RegFile()
	})

	It("should mask interrupts with CPSID and read PRIMASK back", func() {
		loadCode(b, codeBase,
			0xB672,         // CPSID i
			0xF3EF, 0x8010, // MRS R0, PRIMASK
		)

		Expect(e.RunN(2).Err).NotTo(HaveOccurred())
		Expect(rf.PRIMASK).To(BeTrue())
		Expect(rf.R[0]).To(Equal(uint32(1)))
		Expect(rf.PC).To(Equal(codeBase + 6))
	})

	It("should ignore SPSEL writes in Handler mode", func() {
		loadCode(b, codeBase, 0xF381, 0x8814) // MSR CONTROL, R1
		rf.R[1] = 3

		Expect(e.Step().Err).NotTo(HaveOccurred())
		Expect(rf.Control.NPriv).To(BeTrue())
		Expect(rf.Control.SPSel).To(BeFalse())
	})

	It("should switch to the process stack in Thread mode", func() {
		loadCode(b, codeBase, 0xF381, 0x8814) // MSR CONTROL, R1
		rf.Mode = emu.ModeThread
		rf.PSP = 0x3000
		rf.R[1] = 2

		Expect(e.Step().Err).NotTo(HaveOccurred())
		Expect(rf.Control.SPSel).To(BeTrue())
		Expect(rf.ReadReg(emu.RegSP)).To(Equal(uint32(0x3000)))
	})

	It("should move flags through APSR", func() {
		loadCode(b, codeBase,
			0xF380, 0x8800, // MSR APSR, R0
			0xF3EF, 0x8100, // MRS R1, APSR
		)
		rf.R[0] = 0x60000000

		Expect(e.RunN(2).Err).NotTo(HaveOccurred())
		Expect(rf.PSR.Z).To(BeTrue())
		Expect(rf.PSR.C).To(BeTrue())
		Expect(rf.PSR.N).To(BeFalse())
		Expect(rf.R[1]).To(Equal(uint32(0x60000000)))
	})

	It("should treat barriers as no-ops", func() {
		loadCode(b, codeBase,
			0xF3BF, 0x8F4F, // DSB
			0xF3BF, 0x8F5F, // DMB
			0xF3BF, 0x8F6F, // ISB
		)

		Expect(e.RunN(3).Err).NotTo(HaveOccurred())
		Expect(rf.PC).To(Equal(codeBase + 12))
	})
})
