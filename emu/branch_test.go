package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/insts"
)

var _ = Describe("BranchUnit", func() {
	var (
		regFile    *emu.RegFile
		branchUnit *emu.BranchUnit
	)

	BeforeEach(func() {
		regFile = &emu.RegFile{}
		regFile.Reset(0x20001000, 0x1001)
		branchUnit = emu.NewBranchUnit(regFile)
	})

	Describe("BranchWritePC", func() {
		It("should clear bit 0 and mark the redirect", func() {
			branchUnit.BranchWritePC(0x2001)

			Expect(regFile.PC).To(Equal(uint32(0x2000)))
			Expect(branchUnit.Redirected()).To(BeTrue())
		})

		It("should leave the Thumb bit alone", func() {
			branchUnit.BranchWritePC(0x2000)
			Expect(regFile.PSR.T).To(BeTrue())
		})
	})

	Describe("BLXWritePC", func() {
		It("should take the Thumb bit from bit 0", func() {
			branchUnit.BLXWritePC(0x3000)

			Expect(regFile.PC).To(Equal(uint32(0x3000)))
			Expect(regFile.PSR.T).To(BeFalse())

			branchUnit.BLXWritePC(0x3001)
			Expect(regFile.PSR.T).To(BeTrue())
		})
	})

	Describe("BXWritePC", func() {
		It("should interwork like BLXWritePC", func() {
			branchUnit.BXWritePC(0x4001)

			Expect(regFile.PC).To(Equal(uint32(0x4000)))
			Expect(regFile.PSR.T).To(BeTrue())
		})

		It("should fault on EXC_RETURN in Handler mode", func() {
			Expect(func() { branchUnit.BXWritePC(0xFFFFFFF9) }).To(Panic())
			Expect(regFile.PC).To(Equal(uint32(0x1000)))
		})

		It("should branch to 0xFxxxxxxx in Thread mode", func() {
			regFile.Mode = emu.ModeThread
			branchUnit.BXWritePC(0xFFFFFFF9)

			Expect(regFile.PC).To(Equal(uint32(0xFFFFFFF8)))
		})
	})

	Describe("Clear", func() {
		It("should reset the redirect flag", func() {
			branchUnit.ALUWritePC(0x2000)
			branchUnit.Clear()
			Expect(branchUnit.Redirected()).To(BeFalse())
		})
	})
})

var _ = Describe("ConditionPassed", func() {
	DescribeTable("flag combinations",
		func(psr emu.PSR, cond insts.Cond, want bool) {
			Expect(psr.ConditionPassed(cond)).To(Equal(want))
		},
		Entry("EQ with Z", emu.PSR{Z: true}, insts.CondEQ, true),
		Entry("EQ without Z", emu.PSR{}, insts.CondEQ, false),
		Entry("NE without Z", emu.PSR{}, insts.CondNE, true),
		Entry("CS with C", emu.PSR{C: true}, insts.CondCS, true),
		Entry("CC with C", emu.PSR{C: true}, insts.CondCC, false),
		Entry("MI with N", emu.PSR{N: true}, insts.CondMI, true),
		Entry("PL with N", emu.PSR{N: true}, insts.CondPL, false),
		Entry("VS with V", emu.PSR{V: true}, insts.CondVS, true),
		Entry("VC without V", emu.PSR{}, insts.CondVC, true),
		Entry("HI with C and Z", emu.PSR{C: true, Z: true}, insts.CondHI, false),
		Entry("HI with C only", emu.PSR{C: true}, insts.CondHI, true),
		Entry("LS with Z", emu.PSR{C: true, Z: true}, insts.CondLS, true),
		Entry("GE with N and V", emu.PSR{N: true, V: true}, insts.CondGE, true),
		Entry("LT with N only", emu.PSR{N: true}, insts.CondLT, true),
		Entry("GT with Z", emu.PSR{Z: true}, insts.CondGT, false),
		Entry("GT with N and V", emu.PSR{N: true, V: true}, insts.CondGT, true),
		Entry("LE with Z", emu.PSR{Z: true}, insts.CondLE, true),
		Entry("LE with N only", emu.PSR{N: true}, insts.CondLE, true),
		Entry("AL", emu.PSR{}, insts.CondAL, true),
	)
})
