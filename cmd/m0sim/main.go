// Package main provides the m0sim command line: it loads a Cortex-M0 image
// and runs it on the functional emulator.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/m0sim/config"
	"github.com/sarchlab/m0sim/debugger"
	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/loader"
	"github.com/sarchlab/m0sim/trace"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	configPath  string
	writeConfig string
	verbose     bool
	veryVerbose bool
	max         uint64
	traceDepth  int
	debug       bool
	hostCalls   bool
}

func parseFlags(args []string, stderr io.Writer) (*flag.FlagSet, *options, error) {
	o := &options{}

	fs := flag.NewFlagSet("m0sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Path to machine configuration JSON file")
	fs.StringVar(&o.writeConfig, "write-config", "", "Write the effective configuration to this file and exit")
	fs.BoolVar(&o.verbose, "v", false, "Verbose output")
	fs.BoolVar(&o.veryVerbose, "vv", false, "Trace every instruction")
	fs.Uint64Var(&o.max, "max", 0, "Stop after this many instructions (0 keeps the configured limit)")
	fs.IntVar(&o.traceDepth, "trace", -1, "Execution trace depth (-1 keeps the configured depth, 0 disables)")
	fs.BoolVar(&o.debug, "debug", false, "Run under the interactive debugger")
	fs.BoolVar(&o.hostCalls, "host", false, "Service SVC host calls (exit, putchar, write) on the host")

	err := fs.Parse(args)

	return fs, o, err
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, "Usage: m0sim [options] <image>\n")
	fmt.Fprintf(w, "\nOptions:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func newLogger(o *options, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)

	switch {
	case o.veryVerbose:
		log.SetLevel(logrus.TraceLevel)
	case o.verbose:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}

	return log
}

func loadConfig(o *options) (*config.MachineConfig, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		cfg, err = config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
	}

	if o.max > 0 {
		cfg.MaxInstructions = o.max
	}
	if o.traceDepth >= 0 {
		cfg.TraceDepth = o.traceDepth
	}

	return cfg, cfg.Validate()
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs, o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	if o.writeConfig != "" {
		if err := cfg.Save(o.writeConfig); err != nil {
			fmt.Fprintf(stderr, "Error writing config: %v\n", err)
			return 1
		}
		return 0
	}

	if fs.NArg() < 1 {
		usage(fs, stdout)
		return 0
	}

	log := newLogger(o, stderr)
	imagePath := fs.Arg(0)

	img, err := loader.Load(imagePath, loader.WithBase(cfg.ImageBase))
	if err != nil {
		fmt.Fprintf(stderr, "Error loading image: %v\n", err)
		return 1
	}

	log.WithFields(logrus.Fields{
		"image":    imagePath,
		"bytes":    img.Size(),
		"segments": len(img.Segments),
		"sp":       fmt.Sprintf("0x%08X", img.InitialSP),
		"entry":    fmt.Sprintf("0x%08X", img.Entry),
	}).Info("image loaded")

	emuOpts := []emu.EmulatorOption{
		emu.WithStdout(stdout),
		emu.WithLogger(log),
	}
	if o.hostCalls {
		emuOpts = append(emuOpts, emu.WithHostCalls())
	}

	m, err := emu.NewMachineFromImage(cfg, img, emuOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating machine: %v\n", err)
		return 1
	}

	var rec *trace.Recorder
	if cfg.TraceDepth > 0 {
		rec = trace.NewRecorder(cfg.TraceDepth)
		m.AcceptHook(rec)
	}

	if o.debug {
		err = debugger.NewDebugger(m.Emulator, stdin, stdout, debugger.WithRecorder(rec)).Run()
		if errors.Is(err, debugger.ErrQuit) {
			return 0
		}
	} else {
		err = m.Run()
	}

	log.WithFields(logrus.Fields{
		"instructions": m.InstructionCount(),
		"exit_code":    m.ExitCode(),
	}).Info("simulation finished")

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if rec != nil && !o.debug {
			_ = rec.Dump(stderr)
		}
		return 1
	}

	return int(m.ExitCode())
}
