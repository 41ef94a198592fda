package main

import (
	"fmt"

	"github.com/pinand/pinand/pkg/app"
	"github.com/pinand/pinand/pkg/config"
	"github.com/pinand/pinand/pkg/devices"
	"github.com/pinand/pinand/pkg/sim"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Find(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if boardName != "" {
		cfg.Board = devices.Board(boardName)
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newBus(cfg *config.Config) (devices.Bus, error) {
	if !simulate {
		return newPiBus(cfg.SPI.Port)
	}
	raw, err := parseNumber(simConfig)
	if err != nil {
		return nil, fmt.Errorf("invalid simulated configuration word")
	}
	pins, err := cfg.ResolvePins()
	if err != nil {
		return nil, err
	}
	return sim.New(raw, sim.WithPins(pins)), nil
}

// newSession returns an uninitialized session. Callers that need the NAND
// right away use newApp.
func newSession() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	bus, err := newBus(cfg)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, bus)
	if err != nil {
		bus.Close()
		return nil, err
	}
	return a, nil
}

func newApp() (*app.App, error) {
	a, err := newSession()
	if err != nil {
		return nil, err
	}
	if err := a.Init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
