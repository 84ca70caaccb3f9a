package bus

import (
	"fmt"
	"io"
)

// SerialSize is the bus footprint of a Serial port.
const SerialSize = 1

// Serial is a write-only character sink. Only the low byte of each transfer
// is emitted; the rest of a wide transfer is ignored. Reads return zero.
type Serial struct {
	name string
	out  io.Writer
}

// NewSerial creates a serial port writing to out.
func NewSerial(name string, out io.Writer) *Serial {
	return &Serial{name: name, out: out}
}

// Name implements Device.
func (s *Serial) Name() string {
	return s.name
}

// Size implements Device.
func (s *Serial) Size() uint64 {
	return SerialSize
}

// Executable implements the Executable capability.
func (s *Serial) Executable() bool {
	return false
}

// Read implements Device.
func (s *Serial) Read(offset uint64, buf []byte) error {
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

// Write implements Device.
func (s *Serial) Write(offset uint64, data []byte) error {
	if len(data) == 0 || offset != 0 {
		return nil
	}

	if _, err := s.out.Write(data[:1]); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}

	return nil
}
