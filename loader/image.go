// Package loader reads program images for the simulated machine. A flat
// binary becomes a single segment at the image base; a 32-bit ARM ELF file
// keeps one segment per PT_LOAD header, each at its own load address.
package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultBase is the address the image is placed at unless WithBase says
// otherwise.
const DefaultBase = 0x8000

// Offsets into the vector table at the start of every image.
const (
	InitialSPOffset  = 0x00
	ResetOffset      = 0x04
	SVCVectorOffset  = 0x2C
	vectorTableBytes = 8
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// Image is a program ready to be copied into the machine, segment by
// segment.
type Image struct {
	// Base is the address of the vector table.
	Base uint32
	// InitialSP, Entry and SVCHandler are read from the vector table.
	// SVCHandler is zero when the image is too short to hold it.
	InitialSP  uint32
	Entry      uint32
	SVCHandler uint32
	// Segments lists what to place where. A flat binary has exactly one.
	Segments []Segment
}

// Size returns the number of bytes the image occupies once loaded.
func (img *Image) Size() uint64 {
	var n uint64
	for _, seg := range img.Segments {
		n += uint64(seg.MemSize)
	}
	return n
}

// Option configures how an image is loaded.
type Option func(*options)

type options struct {
	base uint32
}

// WithBase sets the address the image is loaded at.
func WithBase(base uint32) Option {
	return func(o *options) {
		o.base = base
	}
}

func buildOptions(opts []Option) options {
	o := options{base: DefaultBase}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LoadImage reads a flat binary image.
func LoadImage(path string, opts ...Option) (*Image, error) {
	o := buildOptions(opts)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	if uint64(len(data)) > 1<<32-uint64(o.base) {
		return nil, fmt.Errorf("image of %d bytes does not fit above 0x%08X", len(data), o.base)
	}

	img := &Image{
		Base: o.base,
		Segments: []Segment{{
			VirtAddr: o.base,
			LoadAddr: o.base,
			Data:     data,
			MemSize:  uint32(len(data)),
			Flags:    SegmentFlagRead | SegmentFlagWrite | SegmentFlagExecute,
		}},
	}
	if err := img.readVectors(); err != nil {
		return nil, err
	}

	return img, nil
}

// Load reads an image, detecting ELF files by their magic number and
// treating anything else as a flat binary.
func Load(path string, opts ...Option) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	magic := make([]byte, len(elfMagic))
	_, err = io.ReadFull(f, magic)
	_ = f.Close()

	switch {
	case err == nil:
		if bytes.Equal(magic, elfMagic) {
			return LoadELF(path, opts...)
		}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// Shorter than the magic, so not ELF. LoadImage reports the size.
	default:
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}

	return LoadImage(path, opts...)
}

// word reads the little-endian word at addr from the file contents of the
// segment loaded there.
func (img *Image) word(addr uint32) (uint32, bool) {
	for _, seg := range img.Segments {
		if addr < seg.LoadAddr {
			continue
		}
		off := uint64(addr - seg.LoadAddr)
		if off+4 <= uint64(len(seg.Data)) {
			return binary.LittleEndian.Uint32(seg.Data[off:]), true
		}
	}
	return 0, false
}

func (img *Image) readVectors() error {
	sp, okSP := img.word(img.Base + InitialSPOffset)
	entry, okEntry := img.word(img.Base + ResetOffset)
	if !okSP || !okEntry {
		return fmt.Errorf("no vector table at image base 0x%08X", img.Base)
	}

	img.InitialSP = sp
	img.Entry = entry
	img.SVCHandler, _ = img.word(img.Base + SVCVectorOffset)

	return nil
}
