// Package app wires a configuration and a transport into a ready NAND
// controller session.
package app

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/pinand/pinand/pkg/config"
	"github.com/pinand/pinand/pkg/devices"
	"github.com/pinand/pinand/pkg/link"
	"github.com/pinand/pinand/pkg/nand"
)

type App struct {
	Config *config.Config
	Bus    devices.Bus
	Pins   devices.Pins
	Link   *link.Link
	NAND   *nand.Controller
}

// New builds a session on top of bus. Nothing is sent to the console until
// the controller is initialized.
func New(cfg *config.Config, bus devices.Bus, opts ...nand.Option) (*App, error) {
	pins, err := cfg.ResolvePins()
	if err != nil {
		return nil, err
	}
	l := link.New(bus, pins, cfg.Clock())
	opts = append([]nand.Option{
		nand.WithPollLimit(cfg.NAND.PollLimit),
		nand.WithPollInterval(cfg.PollInterval()),
	}, opts...)
	return &App{
		Config: cfg,
		Bus:    bus,
		Pins:   pins,
		Link:   l,
		NAND:   nand.New(l, opts...),
	}, nil
}

// Init initializes the controller, logging what was found.
func (a *App) Init() error {
	if err := a.NAND.Init(); err != nil {
		return fmt.Errorf("initializing NAND: %w", err)
	}
	g := a.NAND.Geometry()
	slog.Info("NAND ready", "config", fmt.Sprintf("0x%08x", g.Raw), "model", g.Model(), "sectors", g.TotalSectors())
	return nil
}

// Close ends the session: the console leaves flash mode, the link and the
// bus are released.
func (a *App) Close() error {
	var errs error
	if err := a.NAND.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("when closing NAND: %w", err))
	}
	// A failed Init can leave the link open behind an uninitialized
	// controller.
	if a.Link.IsOpen() {
		if err := a.Link.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("when closing link: %w", err))
		}
	}
	if err := a.Bus.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("when closing bus: %w", err))
	}
	return errs
}
