package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/pinand/pinand/pkg/devices"
)

var hostInitialized atomic.Bool

// piBus drives the console from the Raspberry Pi header through periph.io.
type piBus struct {
	port     string
	pins     map[devices.Pin]gpio.PinIO
	portConn spi.PortCloser
	conn     spi.Conn
}

func newPiBus(port string) (*piBus, error) {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host initialization failed: %w", err)
		}
	}
	return &piBus{
		port: port,
		pins: make(map[devices.Pin]gpio.PinIO),
	}, nil
}

func (b *piBus) pin(p devices.Pin) (gpio.PinIO, error) {
	if io, ok := b.pins[p]; ok {
		return io, nil
	}
	io := gpioreg.ByName(p.String())
	if io == nil {
		return nil, fmt.Errorf("no such pin %s", p)
	}
	b.pins[p] = io
	return io, nil
}

func (b *piBus) SetDirection(p devices.Pin, d devices.Direction) error {
	io, err := b.pin(p)
	if err != nil {
		return err
	}
	if d == devices.Output {
		// Idle level of every control line.
		return io.Out(gpio.High)
	}
	return io.In(gpio.PullNoChange, gpio.NoEdge)
}

func (b *piBus) SetLevel(p devices.Pin, l gpio.Level) error {
	io, err := b.pin(p)
	if err != nil {
		return err
	}
	return io.Out(l)
}

func (b *piBus) Level(p devices.Pin) (gpio.Level, error) {
	io, err := b.pin(p)
	if err != nil {
		return gpio.Low, err
	}
	return io.Read(), nil
}

func (b *piBus) OpenSPI(f physic.Frequency) error {
	if b.conn != nil {
		return nil
	}
	port, err := spireg.Open(b.port)
	if err != nil {
		return fmt.Errorf("failed to open SPI port %s: %w", b.port, err)
	}
	conn, err := port.Connect(f, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return fmt.Errorf("failed to connect to SPI port %s: %w", b.port, err)
	}
	b.portConn = port
	b.conn = conn
	return nil
}

func (b *piBus) CloseSPI() error {
	if b.portConn == nil {
		return nil
	}
	err := b.portConn.Close()
	b.portConn = nil
	b.conn = nil
	return err
}

func (b *piBus) Transfer(w, r []byte) error {
	if b.conn == nil {
		return devices.ErrSPIClosed
	}
	return b.conn.Tx(w, r)
}

func (b *piBus) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (b *piBus) Close() error {
	var errs error
	if err := b.CloseSPI(); err != nil {
		errs = multierror.Append(errs, err)
	}
	for p, io := range b.pins {
		if err := io.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("releasing %s: %w", p, err))
		}
	}
	return errs
}
