// Package debugger provides a line-oriented interactive debugger that drives
// an emulator one instruction at a time.
//
// Commands, one per line:
//
//	s [N]     execute N instructions (default 1) before prompting again
//	c         continue until a breakpoint, BKPT or the end of the program
//	b ADDR    set a breakpoint
//	d ADDR    delete a breakpoint
//	p         print the execution trace
//	r         print the registers
//	q         quit
//
// An empty line repeats a single step. End of input continues the program
// without further prompts.
package debugger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/trace"
)

// Prompt is printed before reading each command.
const Prompt = "(dbg) "

// ErrQuit is returned by Run when the user quits.
var ErrQuit = errors.New("debugger: quit")

// Debugger controls an Emulator from commands read line by line.
type Debugger struct {
	emu      *emu.Emulator
	in       *bufio.Scanner
	out      io.Writer
	log      *logrus.Logger
	recorder *trace.Recorder

	breakpoints map[uint32]bool
	skip        uint64
	continuing  bool
	stopped     bool
	eof         bool
}

// Option configures a Debugger.
type Option func(*Debugger)

// WithRecorder lets the p command print the recorder's trace.
func WithRecorder(rec *trace.Recorder) Option {
	return func(d *Debugger) {
		d.recorder = rec
	}
}

// WithBreakpoints sets the initial breakpoints.
func WithBreakpoints(addrs ...uint32) Option {
	return func(d *Debugger) {
		for _, a := range addrs {
			d.breakpoints[a] = true
		}
	}
}

// NewDebugger creates a Debugger reading commands from in and writing to out.
// It attaches itself to e to stop on BKPT.
func NewDebugger(e *emu.Emulator, in io.Reader, out io.Writer, opts ...Option) *Debugger {
	d := &Debugger{
		emu:         e,
		in:          bufio.NewScanner(in),
		out:         out,
		log:         e.Logger(),
		breakpoints: make(map[uint32]bool),
	}

	for _, opt := range opts {
		opt(d)
	}

	e.AcceptHook(d)

	return d
}

// Func implements sim.Hook.
func (d *Debugger) Func(ctx sim.HookCtx) {
	if ctx.Pos == emu.HookPosBreakpoint {
		d.stopped = true
	}
}

// Breakpoints returns the breakpoint addresses in ascending order.
func (d *Debugger) Breakpoints() []uint32 {
	addrs := make([]uint32, 0, len(d.breakpoints))
	for a := range d.breakpoints {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Run executes the program under debugger control until it halts, faults or
// the user quits.
func (d *Debugger) Run() error {
	for {
		if d.shouldPrompt() {
			if quit := d.prompt(); quit {
				return ErrQuit
			}
		}

		result := d.emu.Step()
		if result.Err != nil {
			d.printf("fault: %v\n", result.Err)
			d.printTrace()
			return result.Err
		}

		if result.Halted {
			d.printf("halted after %d instructions (exit code %d)\n",
				d.emu.InstructionCount(), result.ExitCode)
			return nil
		}
	}
}

func (d *Debugger) shouldPrompt() bool {
	pc := d.emu.RegFile().PC

	switch {
	case d.stopped:
		d.stopped = false
		d.skip = 0
		d.printf("BKPT before 0x%08X\n", pc)
		d.log.WithField("pc", fmt.Sprintf("0x%08X", pc)).Debug("BKPT")
		return !d.eof
	case d.breakpoints[pc]:
		d.skip = 0
		d.printf("breakpoint at 0x%08X\n", pc)
		d.log.WithField("pc", fmt.Sprintf("0x%08X", pc)).Debug("breakpoint hit")
		return !d.eof
	case d.eof, d.continuing:
		return false
	case d.skip > 0:
		d.skip--
		return false
	}

	return true
}

// prompt reads commands until one resumes execution. It reports whether
// the user quit.
func (d *Debugger) prompt() bool {
	d.continuing = false

	for {
		d.printf("0x%08X %s", d.emu.RegFile().PC, Prompt)

		if !d.in.Scan() {
			d.eof = true
			d.printf("\n")
			return false
		}

		fields := strings.Fields(d.in.Text())
		if len(fields) == 0 {
			return false
		}

		switch fields[0] {
		case "s":
			n, err := parseCount(fields)
			if err != nil {
				d.printf("%v\n", err)
				continue
			}
			d.skip = n - 1
			return false
		case "c":
			d.continuing = true
			return false
		case "b", "d":
			d.editBreakpoint(fields)
		case "p":
			d.printTrace()
		case "r":
			d.printRegisters()
		case "q":
			return true
		default:
			d.printf("unknown command %q (s [N], c, b ADDR, d ADDR, p, r, q)\n", fields[0])
		}
	}
}

func parseCount(fields []string) (uint64, error) {
	if len(fields) < 2 {
		return 1, nil
	}

	n, err := strconv.ParseUint(fields[1], 0, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid step count %q", fields[1])
	}

	return n, nil
}

func (d *Debugger) editBreakpoint(fields []string) {
	if len(fields) < 2 {
		d.printf("usage: %s ADDR\n", fields[0])
		return
	}

	addr, err := strconv.ParseUint(fields[1], 0, 32)
	if err != nil {
		d.printf("invalid address %q\n", fields[1])
		return
	}

	if fields[0] == "b" {
		d.breakpoints[uint32(addr)] = true
		d.printf("breakpoint set at 0x%08X\n", addr)
		return
	}

	delete(d.breakpoints, uint32(addr))
	d.printf("breakpoint cleared at 0x%08X\n", addr)
}

func (d *Debugger) printTrace() {
	if d.recorder == nil {
		d.printf("no trace recorder attached\n")
		return
	}

	if err := d.recorder.Dump(d.out); err != nil {
		d.log.WithError(err).Warn("failed to print trace")
	}
}

func (d *Debugger) printRegisters() {
	PrintRegisters(d.out, d.emu.RegFile().Snapshot())
}

// PrintRegisters writes a register dump, four registers per line.
func PrintRegisters(w io.Writer, s emu.RegSnapshot) {
	for i := uint8(0); i <= emu.RegPC; i++ {
		sep := "  "
		if i%4 == 3 || i == emu.RegPC {
			sep = "\n"
		}
		_, _ = fmt.Fprintf(w, "%-4s 0x%08X%s", emu.RegName(i), s.R[i], sep)
	}

	_, _ = fmt.Fprintf(w, "xPSR 0x%08X  CONTROL 0x%X  PRIMASK %t  %s\n",
		s.XPSR, s.Control, s.PRIMASK, s.Mode)
}

func (d *Debugger) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(d.out, format, args...)
}
