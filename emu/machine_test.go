package emu_test

import (
	"bytes"
	"encoding/binary"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/bus"
	"github.com/sarchlab/m0sim/config"
	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/loader"
)

// buildImage lays out a vector table followed by code at offset 0x40.
func buildImage(sp uint32, code []uint16, literals ...uint32) []byte {
	image := make([]byte, 0x40)
	binary.LittleEndian.PutUint32(image[0:], sp)
	binary.LittleEndian.PutUint32(image[4:], 0x8040|1)

	for _, hw := range code {
		image = binary.LittleEndian.AppendUint16(image, hw)
	}
	for _, lit := range literals {
		image = binary.LittleEndian.AppendUint32(image, lit)
	}

	return image
}

var _ = Describe("Machine", func() {
	It("should reset from the image's vector table", func() {
		image := buildImage(0x20040000, []uint16{0xBF10})

		m, err := emu.NewMachine(nil, image)
		Expect(err).NotTo(HaveOccurred())

		rf := m.RegFile()
		Expect(rf.MSP).To(Equal(uint32(0x20040000)))
		Expect(rf.PC).To(Equal(uint32(0x8040)))
		Expect(rf.PSR.T).To(BeTrue())
		Expect(rf.Mode).To(Equal(emu.ModeHandler))
		Expect(m.Bus().Devices()).To(HaveLen(7))
	})

	It("should print through the serial port", func() {
		out := &bytes.Buffer{}
		image := buildImage(0x20040000, []uint16{
			0x4901, // LDR R1, [PC, #4]
			0x2048, // MOVS R0, #'H'
			0x7008, // STRB R0, [R1, #0]
			0xBF10, // YIELD
		}, 0xA00003F8)

		m, err := emu.NewMachine(config.Default(), image, emu.WithStdout(out))
		Expect(err).NotTo(HaveOccurred())

		Expect(m.Run()).To(Succeed())
		Expect(out.String()).To(Equal("H"))
	})

	It("should use the stack memory", func() {
		image := buildImage(0x20040000, []uint16{
			0xB401, // PUSH {R0}
			0xBF10, // YIELD
		})

		m, err := emu.NewMachine(nil, image)
		Expect(err).NotTo(HaveOccurred())
		m.RegFile().R[0] = 0x55

		Expect(m.Run()).To(Succeed())

		buf := make([]byte, 4)
		Expect(m.Stack.Read(0x40000-4, buf)).To(Succeed())
		Expect(binary.LittleEndian.Uint32(buf)).To(Equal(uint32(0x55)))
	})

	It("should refuse to execute from the stack", func() {
		image := buildImage(0x20040000, []uint16{0x4700}) // BX R0

		m, err := emu.NewMachine(nil, image)
		Expect(err).NotTo(HaveOccurred())
		m.RegFile().R[0] = 0x20000001
		m.RegFile().Mode = emu.ModeThread

		err = m.Run()
		Expect(errors.Is(err, bus.ErrPermission)).To(BeTrue())
	})

	It("should service host calls when enabled", func() {
		out := &bytes.Buffer{}
		image := buildImage(0x20040000, []uint16{
			0x2041, // MOVS R0, #'A'
			0xDF01, // SVC #1
			0x2007, // MOVS R0, #7
			0xDF00, // SVC #0
		})

		m, err := emu.NewMachine(nil, image, emu.WithStdout(out), emu.WithHostCalls())
		Expect(err).NotTo(HaveOccurred())

		Expect(m.Run()).To(Succeed())
		Expect(out.String()).To(Equal("A"))
		Expect(m.Halted()).To(BeTrue())
		Expect(m.ExitCode()).To(Equal(int64(7)))
	})

	It("should apply the configured instruction limit", func() {
		cfg := config.Default()
		cfg.MaxInstructions = 5
		image := buildImage(0x20040000, []uint16{0xE7FE})

		m, err := emu.NewMachine(cfg, image)
		Expect(err).NotTo(HaveOccurred())

		Expect(errors.Is(m.Run(), emu.ErrMaxInstructions)).To(BeTrue())
	})

	DescribeTable("ADDS with a 3-bit immediate from the reset vector",
		func(rn, want uint32, n, z, c, v bool) {
			image := buildImage(0x20040000, []uint16{
				0x1DC8, // ADDS R0, R1, #7
				0xBF10, // YIELD
			})

			m, err := emu.NewMachine(nil, image)
			Expect(err).NotTo(HaveOccurred())
			m.RegFile().R[1] = rn

			Expect(m.Run()).To(Succeed())

			rf := m.RegFile()
			Expect(rf.R[0]).To(Equal(want))
			Expect(rf.R[1]).To(Equal(rn))
			Expect([]bool{rf.PSR.N, rf.PSR.Z, rf.PSR.C, rf.PSR.V}).To(Equal([]bool{n, z, c, v}))
		},
		Entry("plain sum", uint32(2), uint32(9), false, false, false, false),
		Entry("unsigned carry out", uint32(0xFFFFFFFF), uint32(6), false, false, true, false),
		Entry("wrap to zero", uint32(0xFFFFFFF9), uint32(0), false, true, true, false),
		Entry("signed overflow", uint32(0x7FFFFFFC), uint32(0x80000003), true, false, false, true),
	)

	It("should refuse flat images that overrun RAM", func() {
		cfg := config.Default()
		image := make([]byte, cfg.RAMSize)
		binary.LittleEndian.PutUint32(image[0:], 0x20040000)
		binary.LittleEndian.PutUint32(image[4:], 0x8041)

		_, err := emu.NewMachine(cfg, image)
		Expect(errors.Is(err, bus.ErrUnmapped)).To(BeTrue())
	})

	Describe("loading segmented images", func() {
		var img *loader.Image

		BeforeEach(func() {
			img = &loader.Image{
				Base: 0x8000,
				Segments: []loader.Segment{
					{LoadAddr: 0x8000, Data: buildImage(0x20040000, []uint16{0xBF10}), MemSize: 0x42},
					{LoadAddr: 0x20000000, Data: []byte{0xEF, 0xBE, 0xAD, 0xDE}, MemSize: 0x10},
				},
			}
		})

		It("should write each segment at its load address", func() {
			m, err := emu.NewMachineFromImage(nil, img)
			Expect(err).NotTo(HaveOccurred())

			v, err := m.Bus().Read32(0x20000000)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0xDEADBEEF)))
			Expect(m.RegFile().PC).To(Equal(uint32(0x8040)))
			Expect(m.RegFile().MSP).To(Equal(uint32(0x20040000)))
		})

		It("should reject zero fill running past mapped memory", func() {
			img.Segments[1].LoadAddr = 0x2003FFFC

			_, err := emu.NewMachineFromImage(nil, img)
			Expect(errors.Is(err, bus.ErrUnmapped)).To(BeTrue())
		})

		It("should reject segments outside every region", func() {
			img.Segments[1].LoadAddr = 0x30000000

			_, err := emu.NewMachineFromImage(nil, img)
			Expect(errors.Is(err, bus.ErrUnmapped)).To(BeTrue())
			Expect(err).To(MatchError(ContainSubstring("0x30000000")))
		})

		It("should reject an image built for another base", func() {
			img.Base = 0x10000

			_, err := emu.NewMachineFromImage(nil, img)
			Expect(err).To(MatchError(ContainSubstring("does not match")))
		})
	})

	It("should reject invalid configurations", func() {
		cfg := config.Default()
		cfg.RAMSize = 0

		_, err := emu.NewMachine(cfg, nil)
		Expect(err).To(HaveOccurred())
	})
})
