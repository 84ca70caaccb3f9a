package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/config"
)

var _ = Describe("MachineConfig", func() {
	Describe("Default", func() {
		It("should reproduce the standard address map", func() {
			c := config.Default()

			Expect(c.RAMBase).To(Equal(uint32(0)))
			Expect(c.RAMSize).To(Equal(uint32(0x200000)))
			Expect(c.ImageBase).To(Equal(uint32(0x8000)))
			Expect(c.StackBase).To(Equal(uint32(0x20000000)))
			Expect(c.StackSize).To(Equal(uint32(0x40000)))
			Expect(c.MMIOBase).To(Equal(uint32(0xA0000000)))
			Expect(c.SVCVector()).To(Equal(uint32(0x802C)))
		})

		It("should be valid", func() {
			Expect(config.Default().Validate()).To(Succeed())
		})
	})

	Describe("Validation", func() {
		It("should reject an empty RAM", func() {
			c := config.Default()
			c.RAMSize = 0
			Expect(c.Validate()).To(HaveOccurred())
		})

		It("should reject an image outside RAM", func() {
			c := config.Default()
			c.ImageBase = 0x300000
			Expect(c.Validate()).To(HaveOccurred())
		})

		It("should reject a misaligned SVC vector", func() {
			c := config.Default()
			c.SVCVectorOffset = 0x2E
			Expect(c.Validate()).To(HaveOccurred())
		})

		It("should reject overlapping devices", func() {
			c := config.Default()
			c.KbdOffset = c.RTCOffset + 4
			Expect(c.Validate()).To(MatchError(ContainSubstring("overlap")))
		})

		It("should reject a stack overlapping RAM", func() {
			c := config.Default()
			c.StackBase = 0x100000
			Expect(c.Validate()).To(HaveOccurred())
		})

		It("should reject regions past the end of the address space", func() {
			c := config.Default()
			c.FBOffset = 0x5FFFFFF0
			Expect(c.Validate()).To(HaveOccurred())
		})
	})

	Describe("Clone", func() {
		It("should create an independent copy", func() {
			original := config.Default()
			clone := original.Clone()
			clone.RAMSize = 1

			Expect(original.RAMSize).To(Equal(uint32(0x200000)))
		})
	})

	Describe("File Operations", func() {
		var tempDir string

		BeforeEach(func() {
			var err error
			tempDir, err = os.MkdirTemp("", "config-test")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			_ = os.RemoveAll(tempDir)
		})

		It("should save and load config", func() {
			original := config.Default()
			original.MaxInstructions = 5000
			original.TraceDepth = 16

			path := filepath.Join(tempDir, "machine.json")
			Expect(original.Save(path)).To(Succeed())

			loaded, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(original))
		})

		It("should keep defaults for missing fields", func() {
			path := filepath.Join(tempDir, "partial.json")
			Expect(os.WriteFile(path, []byte(`{"max_instructions": 42}`), 0644)).To(Succeed())

			loaded, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.MaxInstructions).To(Equal(uint64(42)))
			Expect(loaded.ImageBase).To(Equal(uint32(0x8000)))
		})

		It("should return error for non-existent file", func() {
			_, err := config.Load("/nonexistent/path/machine.json")
			Expect(err).To(HaveOccurred())
		})

		It("should return error for invalid JSON", func() {
			path := filepath.Join(tempDir, "invalid.json")
			Expect(os.WriteFile(path, []byte("not valid json"), 0644)).To(Succeed())

			_, err := config.Load(path)
			Expect(err).To(HaveOccurred())
		})
	})
})
