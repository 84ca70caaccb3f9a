package loader

import (
	"debug/elf"
	"fmt"
	"io"
	"os"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the address the segment is linked to run at.
	VirtAddr uint32
	// LoadAddr is the address the segment is copied to: the physical
	// address, or VirtAddr when the header leaves it zero.
	LoadAddr uint32
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint32
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// LoadELF parses a 32-bit little-endian ARM ELF file into one segment per
// PT_LOAD header. The vector table is read from the segment loaded at the
// image base.
func LoadELF(path string, opts ...Option) (*Image, error) {
	o := buildOptions(opts)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}

	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("not a 32-bit ELF file")
	}

	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("not a little-endian ELF file")
	}

	if f.Machine != elf.EM_ARM {
		return nil, fmt.Errorf("not an ARM ELF file (machine type: %v)", f.Machine)
	}

	img := &Image{Base: o.base}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD || phdr.Memsz == 0 {
			continue
		}

		seg, err := readSegment(phdr, uint64(info.Size()))
		if err != nil {
			return nil, err
		}

		img.Segments = append(img.Segments, seg)
	}

	if len(img.Segments) == 0 {
		return nil, fmt.Errorf("ELF file has no loadable segments")
	}

	if err := img.readVectors(); err != nil {
		return nil, err
	}

	return img, nil
}

func readSegment(phdr *elf.Prog, fileSize uint64) (Segment, error) {
	if phdr.Filesz > phdr.Memsz {
		return Segment{}, fmt.Errorf("segment at 0x%x has file size larger than memory size", phdr.Vaddr)
	}

	if phdr.Filesz > fileSize || phdr.Off > fileSize-phdr.Filesz {
		return Segment{}, fmt.Errorf("segment at 0x%x extends past the end of the file", phdr.Vaddr)
	}

	load := phdr.Paddr
	if load == 0 {
		load = phdr.Vaddr
	}

	if load+phdr.Memsz > 1<<32 {
		return Segment{}, fmt.Errorf("segment at 0x%x runs off the 32-bit address space", load)
	}

	data := make([]byte, phdr.Filesz)
	if phdr.Filesz > 0 {
		n, err := phdr.ReadAt(data, 0)
		if err != nil && err != io.EOF {
			return Segment{}, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
		}
		if uint64(n) != phdr.Filesz {
			return Segment{}, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
				phdr.Vaddr, n, phdr.Filesz)
		}
	}

	var flags SegmentFlags
	if phdr.Flags&elf.PF_X != 0 {
		flags |= SegmentFlagExecute
	}
	if phdr.Flags&elf.PF_W != 0 {
		flags |= SegmentFlagWrite
	}
	if phdr.Flags&elf.PF_R != 0 {
		flags |= SegmentFlagRead
	}

	return Segment{
		VirtAddr: uint32(phdr.Vaddr),
		LoadAddr: uint32(load),
		Data:     data,
		MemSize:  uint32(phdr.Memsz),
		Flags:    flags,
	}, nil
}
