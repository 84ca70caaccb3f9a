package bus

import (
	"fmt"

	"github.com/sarchlab/akita/v4/mem/mem"
)

// Memory is a byte-addressable RAM/ROM device.
//
// Transfers that run past the end of the device are truncated to the
// remaining capacity instead of failing. Reads of the truncated part leave
// the corresponding bytes of the caller's buffer untouched.
type Memory struct {
	name    string
	size    uint64
	storage *mem.Storage

	writable   bool
	readable   bool
	executable bool
}

// MemoryOption configures a Memory.
type MemoryOption func(*Memory)

// WithWrite sets whether the memory accepts writes.
func WithWrite(allowed bool) MemoryOption {
	return func(m *Memory) {
		m.writable = allowed
	}
}

// WithRead sets whether the memory accepts data reads.
func WithRead(allowed bool) MemoryOption {
	return func(m *Memory) {
		m.readable = allowed
	}
}

// WithExecute sets whether instructions may be fetched from the memory.
func WithExecute(allowed bool) MemoryOption {
	return func(m *Memory) {
		m.executable = allowed
	}
}

// NewMemory creates a zero-filled memory of the given size. All accesses
// are permitted unless restricted by options.
func NewMemory(name string, size uint64, opts ...MemoryOption) *Memory {
	m := &Memory{
		name:       name,
		size:       size,
		storage:    mem.NewStorage(size),
		writable:   true,
		readable:   true,
		executable: true,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Name implements Device.
func (m *Memory) Name() string {
	return m.name
}

// Size implements Device.
func (m *Memory) Size() uint64 {
	return m.size
}

// Executable implements the Executable capability.
func (m *Memory) Executable() bool {
	return m.executable
}

// clamp returns how many bytes of an n-byte transfer at offset fit.
func (m *Memory) clamp(offset uint64, n int) uint64 {
	if offset >= m.size {
		return 0
	}
	if remaining := m.size - offset; uint64(n) > remaining {
		return remaining
	}
	return uint64(n)
}

// Read implements Device.
func (m *Memory) Read(offset uint64, buf []byte) error {
	if !m.readable {
		return fmt.Errorf("%s: read: %w", m.name, ErrPermission)
	}

	n := m.clamp(offset, len(buf))
	if n == 0 {
		return nil
	}

	data, err := m.storage.Read(offset, n)
	if err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}
	copy(buf, data)

	return nil
}

// Write implements Device.
func (m *Memory) Write(offset uint64, data []byte) error {
	if !m.writable {
		return fmt.Errorf("%s: write: %w", m.name, ErrPermission)
	}

	return m.store(offset, data)
}

func (m *Memory) store(offset uint64, data []byte) error {
	n := m.clamp(offset, len(data))
	if n == 0 {
		return nil
	}

	if err := m.storage.Write(offset, data[:n]); err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}

	return nil
}

// Load overwrites the memory from offset 0 with image. An image larger than
// the memory is an error. Loading ignores the write permission so that
// read-only memories can be initialized.
func (m *Memory) Load(image []byte) error {
	return m.LoadAt(0, image)
}

// LoadAt copies image into the memory starting at offset.
func (m *Memory) LoadAt(offset uint64, image []byte) error {
	if offset > m.size || uint64(len(image)) > m.size-offset {
		return fmt.Errorf("%s: load of 0x%X bytes at 0x%X exceeds size 0x%X",
			m.name, len(image), offset, m.size)
	}

	return m.store(offset, image)
}
