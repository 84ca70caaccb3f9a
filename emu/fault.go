package emu

import (
	"errors"
	"fmt"

	"github.com/sarchlab/m0sim/insts"
)

// Execution faults. None of them is recoverable.
var (
	// ErrUndefined is raised by UDF and by encodings that decode to nothing.
	ErrUndefined = errors.New("undefined instruction")

	// ErrUnaligned is raised by a misaligned halfword or word access.
	ErrUnaligned = errors.New("unaligned memory access")

	// ErrUnpredictable is raised by encodings whose behavior is unpredictable.
	ErrUnpredictable = errors.New("unpredictable instruction")

	// ErrUnimplemented is raised for architectural features not modelled.
	ErrUnimplemented = errors.New("unimplemented")

	// ErrExceptionReturn is raised by a branch to an EXC_RETURN value in
	// Handler mode. Exception entry and exit are not modelled.
	ErrExceptionReturn = errors.New("exception return not supported")

	// ErrMaxInstructions is returned once the instruction limit is reached.
	ErrMaxInstructions = errors.New("max instructions reached")
)

// Fault describes an execution fault and where it happened.
type Fault struct {
	Err  error
	Addr uint32 // Faulting data address, if any

	PC  uint32
	Raw uint32
	Op  insts.Op
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%v at PC=0x%08X (%v 0x%X)", f.Err, f.PC, f.Op, f.Raw)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// raise aborts the executing instruction. Step recovers the fault.
func raise(err error) {
	panic(&Fault{Err: err})
}

func raiseAt(err error, addr uint32) {
	panic(&Fault{Err: fmt.Errorf("0x%08X: %w", addr, err), Addr: addr})
}
