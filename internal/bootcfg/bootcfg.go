// Package bootcfg loads the kernel's boot configuration from a TOML
// file: a flat struct with toml tags, defaults applied before parse,
// validated after.
package bootcfg

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the boot-time configuration read before bringing up memory,
// traps, IRQs, the filesystem and init: how many harts to boot, the
// scheduler quantum, where the SD image lives, and which extra PLIC
// sources to register.
type Config struct {
	// NumHarts is the number of harts booted.
	NumHarts int `toml:"num_harts"`

	// QuantumTicks is the configured number of simulated timer ticks
	// between preemptions. It is loaded and validated here, but the kernel
	// does not read it: every Kernel.Preempt call preempts.
	QuantumTicks int64 `toml:"quantum_ticks"`

	// SDImagePath is the backing file for the RAM-disk BlockDevice, or
	// empty for a purely in-memory disk with nothing persisted.
	SDImagePath string `toml:"sd_image_path"`

	// SDBlocks is the simulated disk's size in 512-byte blocks.
	SDBlocks int `toml:"sd_blocks"`

	// PLICSources lists the interrupt source numbers register_irq
	// enables at boot, beyond the fixed DMA0/UART sources the kernel
	// always registers.
	PLICSources []int `toml:"plic_sources"`

	// MaxTasks bounds the number of simultaneously live tasks across all
	// processes.
	MaxTasks int64 `toml:"max_tasks"`
}

// Defaults returns the configuration used when no TOML file is supplied,
// matching the values exercised by this repo's own tests and scenarios.
func Defaults() Config {
	return Config{
		NumHarts:     2,
		QuantumTicks: 10,
		SDBlocks:     2048,
		PLICSources:  nil,
		MaxTasks:     4096,
	}
}

// Load reads and parses the TOML file at path over top of Defaults(),
// then validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("bootcfg: decoding %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the boot sequence could not act on.
func (c Config) Validate() error {
	if c.NumHarts < 1 {
		return fmt.Errorf("bootcfg: num_harts must be >= 1, got %d", c.NumHarts)
	}
	if c.QuantumTicks < 1 {
		return fmt.Errorf("bootcfg: quantum_ticks must be >= 1, got %d", c.QuantumTicks)
	}
	if c.SDBlocks < 1 {
		return fmt.Errorf("bootcfg: sd_blocks must be >= 1, got %d", c.SDBlocks)
	}
	if c.MaxTasks < 1 {
		return fmt.Errorf("bootcfg: max_tasks must be >= 1, got %d", c.MaxTasks)
	}
	return nil
}
