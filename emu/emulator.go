package emu

import (
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/m0sim/bus"
	"github.com/sarchlab/m0sim/insts"
)

// DefaultImageBase is the address the image, and with it the vector table,
// is loaded at.
const DefaultImageBase = 0x8000

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Halted is true once the program stopped, by YIELD or a host exit.
	Halted bool

	// ExitCode is the exit status if the program exited through the host.
	ExitCode int64

	// Err is set if the instruction faulted.
	Err error
}

// Emulator executes Thumb instructions functionally.
type Emulator struct {
	*sim.HookableBase

	regFile    *RegFile
	bus        *bus.Bus
	decoder    *insts.Decoder
	supervisor SupervisorHandler

	// Execution units
	alu        *ALU
	lsu        *LoadStoreUnit
	branchUnit *BranchUnit

	log    *logrus.Logger
	stdout io.Writer

	svcVector uint32
	hostCalls bool

	// Execution state
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
	halted           bool
	exitCode         int64
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithStdout sets the writer used for console output.
func WithStdout(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stdout = w
	}
}

// WithLogger sets the logger for diagnostics.
func WithLogger(log *logrus.Logger) EmulatorOption {
	return func(e *Emulator) {
		e.log = log
	}
}

// WithSupervisor sets a custom SVC handler.
func WithSupervisor(handler SupervisorHandler) EmulatorOption {
	return func(e *Emulator) {
		e.supervisor = handler
	}
}

// WithSVCVector sets the address of the SVC vector read by the default
// supervisor.
func WithSVCVector(addr uint32) EmulatorOption {
	return func(e *Emulator) {
		e.svcVector = addr
	}
}

// WithHostCalls services the host call numbers on the host and passes
// every other SVC to the configured supervisor.
func WithHostCalls() EmulatorOption {
	return func(e *Emulator) {
		e.hostCalls = true
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates a new emulator executing from the given bus.
func NewEmulator(b *bus.Bus, opts ...EmulatorOption) *Emulator {
	regFile := &RegFile{}

	e := &Emulator{
		HookableBase: sim.NewHookableBase(),
		regFile:      regFile,
		bus:          b,
		decoder:      insts.NewDecoder(),
		stdout:       os.Stdout,
		svcVector:    DefaultImageBase + SVCVectorOffset,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.log == nil {
		e.log = logrus.New()
		e.log.SetLevel(logrus.WarnLevel)
	}

	e.alu = NewALU(regFile)
	e.lsu = NewLoadStoreUnit(b)
	e.lsu.Observe(e.observeMemAccess)
	e.branchUnit = NewBranchUnit(regFile)

	if e.supervisor == nil {
		e.supervisor = NewVectorSupervisor(b, e.svcVector)
	}

	if e.hostCalls {
		e.supervisor = NewHostSupervisor(b, e.stdout, e.supervisor)
	}

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Bus returns the bus the emulator executes from.
func (e *Emulator) Bus() *bus.Bus {
	return e.bus
}

// Stdout returns the console writer.
func (e *Emulator) Stdout() io.Writer {
	return e.stdout
}

// Logger returns the diagnostics logger.
func (e *Emulator) Logger() *logrus.Logger {
	return e.log
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Halted reports whether the program has stopped.
func (e *Emulator) Halted() bool {
	return e.halted
}

// ExitCode returns the exit status reported through the host, or 0.
func (e *Emulator) ExitCode() int64 {
	return e.exitCode
}

// Reset loads the initial stack pointer and entry point and clears the
// execution state.
func (e *Emulator) Reset(msp, entry uint32) {
	e.regFile.Reset(msp, entry)
	e.instructionCount = 0
	e.halted = false
	e.exitCode = 0
}

// ResetFromVectorTable resets the core from the vector table at base:
// the initial MSP at +0 and the reset vector at +4.
func (e *Emulator) ResetFromVectorTable(base uint32) error {
	msp, err := e.bus.Read32(base)
	if err != nil {
		return fmt.Errorf("read initial SP: %w", err)
	}

	entry, err := e.bus.Read32(base + 4)
	if err != nil {
		return fmt.Errorf("read reset vector: %w", err)
	}

	e.Reset(msp, entry)

	return nil
}

// fetch reads and decodes the instruction at pc. The second halfword is
// only fetched for 32-bit encodings.
func (e *Emulator) fetch(pc uint32) *insts.Instruction {
	first, err := e.bus.Fetch16(pc)
	if err != nil {
		raiseAt(err, pc)
	}

	if !insts.Is32Bit(first) {
		return e.decoder.Decode(uint32(first), false)
	}

	second, err := e.bus.Fetch16(pc + 2)
	if err != nil {
		raiseAt(err, pc+2)
	}

	return e.decoder.Decode(uint32(first)<<16|uint32(second), true)
}

// Step executes a single instruction.
func (e *Emulator) Step() (result StepResult) {
	if e.halted {
		return StepResult{Halted: true, ExitCode: e.exitCode}
	}

	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{
			Err: fmt.Errorf("%d instructions: %w", e.instructionCount, ErrMaxInstructions),
		}
	}

	pc := e.regFile.PC
	var inst *insts.Instruction

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		f, ok := r.(*Fault)
		if !ok {
			panic(r)
		}

		f.PC = pc
		if inst != nil {
			f.Raw = inst.Raw
			f.Op = inst.Op
		}
		result = StepResult{Err: f}
	}()

	inst = e.fetch(pc)

	observed := e.observed()
	var before RegSnapshot
	if observed {
		before = e.regFile.Snapshot()
	}

	if e.log.IsLevelEnabled(logrus.TraceLevel) {
		e.log.WithFields(logrus.Fields{
			"pc":   fmt.Sprintf("0x%08X", pc),
			"inst": fmt.Sprintf("0x%X", inst.Raw),
			"op":   inst.Op,
		}).Trace("step")
	}

	e.branchUnit.Clear()
	result = e.execute(inst)

	redirected := e.branchUnit.Redirected()
	if !redirected {
		e.regFile.PC = pc + inst.Size()
	}

	e.instructionCount++

	if observed {
		if redirected {
			e.invoke(HookPosBranch, Branch{From: pc, To: e.regFile.PC, Op: inst.Op}, nil)
		}
		e.invoke(HookPosInstRetired, inst, InstRetired{
			PC:     pc,
			Count:  e.instructionCount,
			Before: before,
			After:  e.regFile.Snapshot(),
		})
	}

	return result
}

// Run executes instructions until the program halts or faults.
func (e *Emulator) Run() error {
	for {
		result := e.Step()
		if result.Err != nil {
			e.logFault(result.Err)
			return result.Err
		}
		if result.Halted {
			return nil
		}
	}
}

// RunN executes at most n instructions and returns the last result. It
// stops early when the program halts or faults.
func (e *Emulator) RunN(n uint64) StepResult {
	var result StepResult
	for i := uint64(0); i < n; i++ {
		result = e.Step()
		if result.Err != nil || result.Halted {
			break
		}
	}
	return result
}

func (e *Emulator) logFault(err error) {
	fields := logrus.Fields{
		"pc":    fmt.Sprintf("0x%08X", e.regFile.PC),
		"count": e.instructionCount,
	}

	if f, ok := err.(*Fault); ok {
		fields["inst"] = fmt.Sprintf("0x%X", f.Raw)
		fields["op"] = f.Op
	}

	e.log.WithFields(fields).Error("execution fault")
}

func (e *Emulator) halt(code int64) StepResult {
	e.halted = true
	e.exitCode = code
	return StepResult{Halted: true, ExitCode: code}
}
