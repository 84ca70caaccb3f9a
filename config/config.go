// Package config holds the machine configuration: the address map, device
// sizes and execution limits.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// MachineConfig describes the simulated machine.
// Offsets of memory-mapped devices are relative to MMIOBase.
type MachineConfig struct {
	// RAMBase and RAMSize place the main memory. Default: 2 MiB at 0.
	RAMBase uint32 `json:"ram_base"`
	RAMSize uint32 `json:"ram_size"`

	// ImageBase is where the image and its vector table are loaded.
	// It must lie inside RAM. Default: 0x8000.
	ImageBase uint32 `json:"image_base"`

	// StackBase and StackSize place the stack memory.
	// Default: 256 KiB at 0x20000000.
	StackBase uint32 `json:"stack_base"`
	StackSize uint32 `json:"stack_size"`

	// MMIOBase is the base of the device window. Default: 0xA0000000.
	MMIOBase uint32 `json:"mmio_base"`

	SerialOffset uint32 `json:"serial_offset"`
	KbdOffset    uint32 `json:"kbd_offset"`
	RTCOffset    uint32 `json:"rtc_offset"`
	VGACtlOffset uint32 `json:"vgactl_offset"`

	// FBOffset and FBSize place the framebuffer; FBWidth and FBHeight are
	// published through the VGA control block.
	FBOffset uint32 `json:"fb_offset"`
	FBSize   uint32 `json:"fb_size"`
	FBWidth  uint16 `json:"fb_width"`
	FBHeight uint16 `json:"fb_height"`

	// SVCVectorOffset locates the SVC handler address in the vector table.
	SVCVectorOffset uint32 `json:"svc_vector_offset"`

	// MaxInstructions stops runaway programs. 0 means no limit.
	MaxInstructions uint64 `json:"max_instructions"`

	// TraceDepth is the capacity of each execution trace ring.
	TraceDepth int `json:"trace_depth"`
}

// Default returns the standard machine layout.
func Default() *MachineConfig {
	return &MachineConfig{
		RAMBase:         0x00000000,
		RAMSize:         2 << 20,
		ImageBase:       0x00008000,
		StackBase:       0x20000000,
		StackSize:       256 << 10,
		MMIOBase:        0xA0000000,
		SerialOffset:    0x3F8,
		KbdOffset:       0x60,
		RTCOffset:       0x48,
		VGACtlOffset:    0x100,
		FBOffset:        0x01000000,
		FBSize:          400 * 300 * 4,
		FBWidth:         400,
		FBHeight:        300,
		SVCVectorOffset: 0x2C,
		MaxInstructions: 0,
		TraceDepth:      100,
	}
}

// Load reads a MachineConfig from a JSON file. Fields missing from the file
// keep their default values.
func Load(path string) (*MachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse machine config: %w", err)
	}

	return config, nil
}

// Save writes the MachineConfig to a JSON file.
func (c *MachineConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize machine config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write machine config file: %w", err)
	}

	return nil
}

// Region is a named address range.
type Region struct {
	Name string
	Base uint32
	Size uint32
}

func (r Region) end() uint64 {
	return uint64(r.Base) + uint64(r.Size)
}

// Regions lists the address ranges the configuration occupies.
func (c *MachineConfig) Regions() []Region {
	return []Region{
		{"ram", c.RAMBase, c.RAMSize},
		{"stack", c.StackBase, c.StackSize},
		{"serial", c.MMIOBase + c.SerialOffset, 1},
		{"keyboard", c.MMIOBase + c.KbdOffset, 4},
		{"rtc", c.MMIOBase + c.RTCOffset, 8},
		{"vgactl", c.MMIOBase + c.VGACtlOffset, 8},
		{"framebuffer", c.MMIOBase + c.FBOffset, c.FBSize},
	}
}

// SVCVector returns the absolute address of the SVC handler vector.
func (c *MachineConfig) SVCVector() uint32 {
	return c.ImageBase + c.SVCVectorOffset
}

// Validate checks that the layout is consistent.
func (c *MachineConfig) Validate() error {
	if c.RAMSize == 0 {
		return fmt.Errorf("ram_size must be > 0")
	}
	if c.StackSize == 0 {
		return fmt.Errorf("stack_size must be > 0")
	}
	if c.FBSize == 0 {
		return fmt.Errorf("fb_size must be > 0")
	}
	if c.ImageBase < c.RAMBase || uint64(c.ImageBase)+0x30 > uint64(c.RAMBase)+uint64(c.RAMSize) {
		return fmt.Errorf("image_base 0x%08X must leave room for the vector table inside RAM", c.ImageBase)
	}
	if c.ImageBase%4 != 0 {
		return fmt.Errorf("image_base must be word aligned")
	}
	if c.SVCVectorOffset%4 != 0 {
		return fmt.Errorf("svc_vector_offset must be word aligned")
	}
	if c.TraceDepth < 0 {
		return fmt.Errorf("trace_depth must be >= 0")
	}

	regions := c.Regions()
	for i, a := range regions {
		if a.end() > 1<<32 {
			return fmt.Errorf("%s region exceeds the 32-bit address space", a.Name)
		}
		for _, b := range regions[i+1:] {
			if uint64(a.Base) < b.end() && uint64(b.Base) < a.end() {
				return fmt.Errorf("%s and %s regions overlap", a.Name, b.Name)
			}
		}
	}

	return nil
}

// Clone returns a copy of the MachineConfig.
func (c *MachineConfig) Clone() *MachineConfig {
	clone := *c
	return &clone
}
