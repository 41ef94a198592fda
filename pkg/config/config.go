// Package config holds the programmer's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/pinand/pinand/pkg/devices"
)

type Config struct {
	Board  devices.Board `yaml:"board"`
	Pins   PinsConfig    `yaml:"pins"`
	SPI    SPIConfig     `yaml:"spi"`
	NAND   NANDConfig    `yaml:"nand"`
	Server ServerConfig  `yaml:"server"`
	Dump   DumpConfig    `yaml:"dump"`
}

// ---- PINS ----

// PinsConfig overrides single lines of the board pinout. A missing key keeps
// the board default.
type PinsConfig struct {
	XX *int `yaml:"xx"`
	EJ *int `yaml:"ej"`
	SS *int `yaml:"ss"`
}

// ---- SPI ----

type SPIConfig struct {
	// Port is the periph.io name of the SPI port.
	Port    string `yaml:"port"`
	ClockHz int64  `yaml:"clock_hz"`
}

// ---- NAND ----

type NANDConfig struct {
	PollLimit      int `yaml:"poll_limit"`
	PollIntervalUs int `yaml:"poll_interval_us"`
}

// ---- SERVER ----

type ServerConfig struct {
	Device      string `yaml:"device"`
	IdleDelayMs int    `yaml:"idle_delay_ms"`
}

// ---- DUMP ----

type DumpConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Board: devices.Pi4,
		SPI: SPIConfig{
			Port:    "SPI0.0",
			ClockHz: 10_000_000,
		},
		NAND: NANDConfig{
			PollLimit:      0x1000,
			PollIntervalUs: 100,
		},
		Server: ServerConfig{
			Device:      "/dev/ttyGS0",
			IdleDelayMs: 100,
		},
	}
}

// Load reads a YAML file on top of the defaults. Keys missing from the file
// keep their default value.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// DefaultPath is the per-user configuration file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "pinand", "config.yaml")
}

// Find loads path if given, else the per-user configuration file if it
// exists, else the defaults.
func Find(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	found, err := xdg.SearchConfigFile(filepath.Join("pinand", "config.yaml"))
	if err != nil {
		return Default(), nil
	}
	cfg, err := Load(found)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// ResolvePins returns the control lines: the board pinout with overrides
// applied.
func (c *Config) ResolvePins() (devices.Pins, error) {
	desc, err := c.Board.Description()
	if err != nil {
		return devices.Pins{}, err
	}
	p := desc.Pins
	if c.Pins.XX != nil {
		p.XX = devices.Pin(*c.Pins.XX)
	}
	if c.Pins.EJ != nil {
		p.EJ = devices.Pin(*c.Pins.EJ)
	}
	if c.Pins.SS != nil {
		p.SS = devices.Pin(*c.Pins.SS)
	}
	return p, nil
}

func (c *Config) Clock() physic.Frequency {
	return physic.Frequency(c.SPI.ClockHz) * physic.Hertz
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.NAND.PollIntervalUs) * time.Microsecond
}

func (c *Config) IdleDelay() time.Duration {
	return time.Duration(c.Server.IdleDelayMs) * time.Millisecond
}
