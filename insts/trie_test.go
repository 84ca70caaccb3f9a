package insts_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/insts"
)

var _ = Describe("Trie", func() {
	var trie *insts.Trie

	BeforeEach(func() {
		trie = insts.NewTrie()
	})

	It("should match exact patterns", func() {
		Expect(trie.Insert("1011'1111'0000'0000", insts.OpNOP)).To(Succeed())

		op, ok := trie.Lookup(0xBF00, 16)
		Expect(ok).To(BeTrue())
		Expect(op).To(Equal(insts.OpNOP))

		_, ok = trie.Lookup(0xBF01, 16)
		Expect(ok).To(BeFalse())
	})

	It("should reject duplicate patterns", func() {
		Expect(trie.Insert("1101'xxxx'xxxxxxxx", insts.OpBCond)).To(Succeed())
		err := trie.Insert("1101 xxxx xxxxxxxx", insts.OpSVC)
		Expect(errors.Is(err, insts.ErrDuplicatePattern)).To(BeTrue())
	})

	It("should reject malformed patterns", func() {
		err := trie.Insert("1101'xxxx'xxxx", insts.OpBCond)
		Expect(errors.Is(err, insts.ErrBadPattern)).To(BeTrue())

		err = trie.Insert("1101'xxxx'xxxxxxx2", insts.OpBCond)
		Expect(errors.Is(err, insts.ErrBadPattern)).To(BeTrue())
	})

	It("should prefer the concrete branch", func() {
		Expect(trie.Insert("1101'xxxx'xxxxxxxx", insts.OpBCond)).To(Succeed())
		Expect(trie.Insert("1101'1111'xxxxxxxx", insts.OpSVC)).To(Succeed())

		op, _ := trie.Lookup(0xDF00, 16)
		Expect(op).To(Equal(insts.OpSVC))

		op, _ = trie.Lookup(0xD000, 16)
		Expect(op).To(Equal(insts.OpBCond))
	})

	It("should backtrack into the wildcard when the concrete subtree fails", func() {
		Expect(trie.Insert("1000'0000'0000'0000", insts.OpNOP)).To(Succeed())
		Expect(trie.Insert("1xxx'xxxx'xxxx'xxxx", insts.OpB)).To(Succeed())

		op, ok := trie.Lookup(0x8001, 16)
		Expect(ok).To(BeTrue())
		Expect(op).To(Equal(insts.OpB))

		op, _ = trie.Lookup(0x8000, 16)
		Expect(op).To(Equal(insts.OpNOP))
	})

	It("should keep 16- and 32-bit patterns apart", func() {
		Expect(trie.Insert("1111'0xxx'xxxx'xxxx", insts.OpB)).To(Succeed())

		_, ok := trie.Lookup(0xF000F800, 32)
		Expect(ok).To(BeFalse())
	})
})
