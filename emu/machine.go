package emu

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/m0sim/bus"
	"github.com/sarchlab/m0sim/config"
	"github.com/sarchlab/m0sim/loader"
)

// Machine is an emulator wired to the standard set of devices.
type Machine struct {
	*Emulator

	Config *config.MachineConfig

	RAM         *bus.Memory
	Stack       *bus.Memory
	Framebuffer *bus.Memory
	Serial      *bus.Serial
	Keyboard    *bus.Keyboard
	RTC         *bus.RTC
	VGA         *bus.VGAControl
}

// NewMachine builds the bus described by cfg, loads a flat image at the
// image base and resets the core from the image's vector table. A nil cfg
// uses config.Default. An image that does not fit the mapped memory at the
// image base is an error.
func NewMachine(cfg *config.MachineConfig, image []byte, opts ...EmulatorOption) (*Machine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	load := func(b *bus.Bus) error {
		return b.Load(cfg.ImageBase, image)
	}

	return newMachine(cfg, load, uint64(len(image)), opts)
}

// NewMachineFromImage builds the machine like NewMachine and writes every
// segment of img to its load address, zero filling past the file contents.
// img.Base must match the configured image base.
func NewMachineFromImage(cfg *config.MachineConfig, img *loader.Image, opts ...EmulatorOption) (*Machine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	if img.Base != cfg.ImageBase {
		return nil, fmt.Errorf("image base 0x%08X does not match the configured 0x%08X",
			img.Base, cfg.ImageBase)
	}

	load := func(b *bus.Bus) error {
		for _, seg := range img.Segments {
			if err := b.Load(seg.LoadAddr, seg.Data); err != nil {
				return fmt.Errorf("segment at 0x%08X: %w", seg.LoadAddr, err)
			}

			fileSize := uint32(len(seg.Data))
			if seg.MemSize > fileSize {
				if err := b.Zero(seg.LoadAddr+fileSize, uint64(seg.MemSize-fileSize)); err != nil {
					return fmt.Errorf("segment at 0x%08X: %w", seg.LoadAddr, err)
				}
			}
		}
		return nil
	}

	return newMachine(cfg, load, img.Size(), opts)
}

func newMachine(
	cfg *config.MachineConfig,
	load func(*bus.Bus) error,
	size uint64,
	opts []EmulatorOption,
) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid machine config: %w", err)
	}

	b := bus.NewBus()

	opts = append([]EmulatorOption{
		WithSVCVector(cfg.SVCVector()),
		WithMaxInstructions(cfg.MaxInstructions),
	}, opts...)
	e := NewEmulator(b, opts...)

	m := &Machine{
		Emulator:    e,
		Config:      cfg,
		RAM:         bus.NewMemory("ram", uint64(cfg.RAMSize)),
		Stack:       bus.NewMemory("stack", uint64(cfg.StackSize), bus.WithExecute(false)),
		Framebuffer: bus.NewMemory("framebuffer", uint64(cfg.FBSize), bus.WithExecute(false)),
		Serial:      bus.NewSerial("serial", e.Stdout()),
		Keyboard:    bus.NewKeyboard("keyboard"),
		RTC:         bus.NewRTC("rtc", nil),
		VGA:         bus.NewVGAControl("vgactl", cfg.FBWidth, cfg.FBHeight),
	}

	devices := []struct {
		dev  bus.Device
		base uint32
	}{
		{m.RAM, cfg.RAMBase},
		{m.Stack, cfg.StackBase},
		{m.Serial, cfg.MMIOBase + cfg.SerialOffset},
		{m.Keyboard, cfg.MMIOBase + cfg.KbdOffset},
		{m.RTC, cfg.MMIOBase + cfg.RTCOffset},
		{m.VGA, cfg.MMIOBase + cfg.VGACtlOffset},
		{m.Framebuffer, cfg.MMIOBase + cfg.FBOffset},
	}

	for _, d := range devices {
		if err := b.Register(d.dev, d.base); err != nil {
			return nil, err
		}
	}

	if err := load(b); err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}

	if err := e.ResetFromVectorTable(cfg.ImageBase); err != nil {
		return nil, err
	}

	e.Logger().WithFields(logrus.Fields{
		"image_base": fmt.Sprintf("0x%08X", cfg.ImageBase),
		"size":       size,
		"sp":         fmt.Sprintf("0x%08X", e.RegFile().MSP),
		"entry":      fmt.Sprintf("0x%08X", e.RegFile().PC),
	}).Info("machine reset")

	return m, nil
}
