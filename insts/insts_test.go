package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/insts"
)

var _ = Describe("Insts Package", func() {
	It("should have an Instruction type", func() {
		var i insts.Instruction
		Expect(i).To(BeZero())
		Expect(i.Op).To(Equal(insts.OpUnknown))
	})

	It("should name instruction forms", func() {
		Expect(insts.OpADDImm3.String()).To(Equal("ADDS(imm3)"))
		Expect(insts.OpUDFW.String()).To(Equal("UDF.W"))
		Expect(insts.Op(0xFFFF).String()).To(Equal("UNKNOWN"))
	})

	It("should report encoding sizes", func() {
		Expect((&insts.Instruction{}).Size()).To(Equal(uint32(2)))
		Expect((&insts.Instruction{Is32Bit: true}).Size()).To(Equal(uint32(4)))
	})
})
