package loader_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/loader"
)

var _ = Describe("Image Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "image-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	writeFile := func(name string, data []byte) string {
		path := filepath.Join(tempDir, name)
		Expect(os.WriteFile(path, data, 0644)).To(Succeed())
		return path
	}

	Describe("LoadImage", func() {
		It("should use the file verbatim", func() {
			data := append(vectorTable(0x20040000, 0x8041, 0x8101), 0x10, 0xBF)
			path := writeFile("prog.bin", data)

			img, err := loader.LoadImage(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Base).To(Equal(uint32(loader.DefaultBase)))
			Expect(img.InitialSP).To(Equal(uint32(0x20040000)))
			Expect(img.Entry).To(Equal(uint32(0x8041)))
			Expect(img.SVCHandler).To(Equal(uint32(0x8101)))
			Expect(img.Segments).To(HaveLen(1))
			Expect(img.Segments[0].LoadAddr).To(Equal(uint32(loader.DefaultBase)))
			Expect(img.Segments[0].Data).To(Equal(data))
			Expect(img.Size()).To(Equal(uint64(len(data))))
		})

		It("should leave the SVC handler unset for short images", func() {
			path := writeFile("short.bin", []byte{0, 0, 4, 0x20, 0x09, 0x80, 0, 0})

			img, err := loader.LoadImage(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.InitialSP).To(Equal(uint32(0x20040000)))
			Expect(img.Entry).To(Equal(uint32(0x8009)))
			Expect(img.SVCHandler).To(BeZero())
		})

		It("should reject images without a vector table", func() {
			path := writeFile("tiny.bin", []byte{1, 2, 3})

			_, err := loader.LoadImage(path)
			Expect(err).To(MatchError(ContainSubstring("no vector table")))
		})

		It("should return error for non-existent file", func() {
			_, err := loader.LoadImage(filepath.Join(tempDir, "missing.bin"))
			Expect(err).To(MatchError(ContainSubstring("failed to read")))
		})
	})

	Describe("Load", func() {
		It("should detect ELF files", func() {
			path := filepath.Join(tempDir, "prog.elf")
			createARMELF(path, 0x8041, 40, testSegment{
				vaddr: 0x8000, flags: 0x5, data: vectorTable(0x20040000, 0x8041, 0), memSize: 0x30,
			})

			img, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Segments).To(HaveLen(1))
			Expect(img.Entry).To(Equal(uint32(0x8041)))
		})

		It("should fall back to flat binaries", func() {
			path := writeFile("prog.bin", vectorTable(0x20040000, 0x8041, 0))

			img, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Segments).To(HaveLen(1))
			Expect(img.Segments[0].Data).To(HaveLen(0x30))
		})

		It("should treat files shorter than the ELF magic as flat", func() {
			path := writeFile("tiny.bin", []byte{0x7f, 'E'})

			_, err := loader.Load(path)
			Expect(err).To(MatchError(ContainSubstring("no vector table")))
		})

		It("should report header read failures", func() {
			_, err := loader.Load(tempDir)
			Expect(err).To(MatchError(ContainSubstring("failed to read image header")))
		})

		It("should return error for non-existent file", func() {
			_, err := loader.Load(filepath.Join(tempDir, "missing"))
			Expect(err).To(MatchError(ContainSubstring("failed to open")))
		})
	})
})
