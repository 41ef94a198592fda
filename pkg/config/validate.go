package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Validate checks configuration correctness and reports every problem found.
// It does not mutate the configuration.
func Validate(cfg *Config) error {
	var errs error
	add := func(format string, args ...interface{}) {
		errs = multierror.Append(errs, fmt.Errorf(format, args...))
	}

	if _, err := cfg.Board.Description(); err != nil {
		add("board: %w", err)
	}

	pins := map[string]*int{"xx": cfg.Pins.XX, "ej": cfg.Pins.EJ, "ss": cfg.Pins.SS}
	for name, p := range pins {
		if p != nil && (*p < 0 || *p > 53) {
			add("pins.%s: GPIO%d does not exist", name, *p)
		}
	}
	if p, err := cfg.ResolvePins(); err == nil {
		if p.XX == p.EJ || p.XX == p.SS || p.EJ == p.SS {
			add("pins: control lines must be distinct, got xx=%d ej=%d ss=%d", p.XX, p.EJ, p.SS)
		}
	}

	if cfg.SPI.Port == "" {
		add("spi.port must be set")
	}
	if cfg.SPI.ClockHz <= 0 || cfg.SPI.ClockHz > 20_000_000 {
		add("spi.clock_hz: %d out of range (1..20000000)", cfg.SPI.ClockHz)
	}

	if cfg.NAND.PollLimit <= 0 {
		add("nand.poll_limit must be positive")
	}
	if cfg.NAND.PollIntervalUs < 0 {
		add("nand.poll_interval_us must not be negative")
	}

	if cfg.Server.Device == "" {
		add("server.device must be set")
	}
	if cfg.Server.IdleDelayMs <= 0 {
		add("server.idle_delay_ms must be positive")
	}
	return errs
}
