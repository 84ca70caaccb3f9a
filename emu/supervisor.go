package emu

import (
	"fmt"
	"io"

	"github.com/sarchlab/m0sim/bus"
)

// SVCVectorOffset is the offset of the SVC handler address in the vector
// table at the start of the image.
const SVCVectorOffset = 0x2C

// Host call numbers serviced by HostSupervisor.
const (
	HostCallExit    uint8 = 0x00 // exit(R0)
	HostCallPutChar uint8 = 0x01 // putchar(R0)
	HostCallWrite   uint8 = 0x02 // write(R0 = buf, R1 = len), returns len in R0
)

// SupervisorResult tells the emulator how to continue after an SVC.
type SupervisorResult struct {
	// Branch requests a jump to Target with BLX semantics.
	Branch bool
	Target uint32

	// Halted ends execution with ExitCode.
	Halted   bool
	ExitCode int64

	// Err is raised as a fault.
	Err error
}

// SupervisorHandler services SVC instructions. The emulator has already set
// LR to the return address when Handle is called.
type SupervisorHandler interface {
	Handle(imm uint8, regs *RegFile) SupervisorResult
}

// VectorSupervisor dispatches every SVC to the handler whose address is
// stored in the vector table.
type VectorSupervisor struct {
	bus    *bus.Bus
	vector uint32
}

// NewVectorSupervisor creates a supervisor that reads the handler address
// from the word at vector.
func NewVectorSupervisor(b *bus.Bus, vector uint32) *VectorSupervisor {
	return &VectorSupervisor{bus: b, vector: vector}
}

// Handle implements SupervisorHandler.
func (s *VectorSupervisor) Handle(imm uint8, regs *RegFile) SupervisorResult {
	target, err := s.bus.Read32(s.vector)
	if err != nil {
		return SupervisorResult{Err: fmt.Errorf("SVC vector: %w", err)}
	}
	return SupervisorResult{Branch: true, Target: target}
}

// HostSupervisor services a few calls directly on the host and hands every
// other SVC to a fallback handler.
type HostSupervisor struct {
	bus      *bus.Bus
	stdout   io.Writer
	fallback SupervisorHandler
}

// NewHostSupervisor creates a host supervisor. A nil fallback makes unknown
// calls undefined.
func NewHostSupervisor(b *bus.Bus, stdout io.Writer, fallback SupervisorHandler) *HostSupervisor {
	return &HostSupervisor{bus: b, stdout: stdout, fallback: fallback}
}

// Handle implements SupervisorHandler.
func (s *HostSupervisor) Handle(imm uint8, regs *RegFile) SupervisorResult {
	switch imm {
	case HostCallExit:
		return SupervisorResult{Halted: true, ExitCode: int64(int32(regs.R[0]))}
	case HostCallPutChar:
		return s.handleWrite([]byte{byte(regs.R[0])})
	case HostCallWrite:
		return s.handleWriteBuffer(regs)
	}

	if s.fallback != nil {
		return s.fallback.Handle(imm, regs)
	}

	return SupervisorResult{Err: fmt.Errorf("SVC #%d: %w", imm, ErrUndefined)}
}

// hostWriteChunk is the most guest memory copied per host write.
const hostWriteChunk = 256

// handleWriteBuffer writes R1 bytes starting at R0. The whole range must be
// mapped before anything is written.
func (s *HostSupervisor) handleWriteBuffer(regs *RegFile) SupervisorResult {
	addr := regs.R[0]
	n := regs.R[1]

	if err := s.bus.CheckRange(addr, uint64(n)); err != nil {
		return SupervisorResult{Err: fmt.Errorf("write buffer: %w", err)}
	}

	buf := make([]byte, min(n, hostWriteChunk))
	var written uint32
	for written < n {
		chunk := buf[:min(n-written, hostWriteChunk)]
		for i := range chunk {
			b, err := s.bus.Read8(addr + written + uint32(i))
			if err != nil {
				return SupervisorResult{Err: fmt.Errorf("write buffer: %w", err)}
			}
			chunk[i] = b
		}

		k, err := s.stdout.Write(chunk)
		written += uint32(k)
		if err != nil {
			return SupervisorResult{Err: fmt.Errorf("host write: %w", err)}
		}
	}

	regs.R[0] = written
	return SupervisorResult{}
}

func (s *HostSupervisor) handleWrite(data []byte) SupervisorResult {
	if _, err := s.stdout.Write(data); err != nil {
		return SupervisorResult{Err: fmt.Errorf("host write: %w", err)}
	}
	return SupervisorResult{}
}
