// Package link implements the register transaction protocol spoken by the
// console's flash controller over SPI, and the GPIO handshake that puts the
// console into flash mode.
package link

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/pinand/pinand/pkg/bitrev"
	"github.com/pinand/pinand/pkg/devices"
)

const (
	// DefaultClock is the SPI clock known to be reliable with the console.
	DefaultClock = 10 * physic.MegaHertz

	// HandshakeDelay separates the phases of the flash mode handshake.
	HandshakeDelay = 50 * time.Millisecond
	// SettleDelay elapses between asserting chip select and clocking.
	SettleDelay = 2 * time.Microsecond

	opRead  = 1
	opWrite = 2

	// turnaround is clocked after a read command while the controller
	// fetches the register.
	turnaround = 0xff

	readFrameSize  = 6
	writeFrameSize = 5
)

// Link frames register reads and writes into SPI transactions. It assumes
// exclusive, sequential access to the bus.
type Link struct {
	bus   devices.Bus
	pins  devices.Pins
	clock physic.Frequency
	open  bool
}

func New(bus devices.Bus, pins devices.Pins, clock physic.Frequency) *Link {
	if clock == 0 {
		clock = DefaultClock
	}
	return &Link{
		bus:   bus,
		pins:  pins,
		clock: clock,
	}
}

// IsOpen returns whether Open succeeded and Close has not been called since.
func (l *Link) IsOpen() bool {
	return l.open
}

// Open configures the control lines as outputs at their idle (high) level
// and opens the SPI channel. Calling Open on an open link does nothing.
func (l *Link) Open() error {
	if l.open {
		return nil
	}
	for _, p := range l.controlPins() {
		if err := l.bus.SetDirection(p, devices.Output); err != nil {
			return fmt.Errorf("configuring %s: %w", p, err)
		}
	}
	for _, p := range l.controlPins() {
		if err := l.bus.SetLevel(p, gpio.High); err != nil {
			return fmt.Errorf("driving %s: %w", p, err)
		}
	}
	if err := l.bus.OpenSPI(l.clock); err != nil {
		return fmt.Errorf("opening SPI at %s: %w", l.clock, err)
	}
	l.open = true
	return nil
}

// Close closes the SPI channel and returns the control lines to idle.
func (l *Link) Close() error {
	var errs error
	if l.open {
		if err := l.bus.CloseSPI(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing SPI: %w", err))
		}
		l.open = false
	}
	for _, p := range l.controlPins() {
		if err := l.bus.SetLevel(p, gpio.High); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("releasing %s: %w", p, err))
		}
	}
	return errs
}

func (l *Link) controlPins() []devices.Pin {
	return []devices.Pin{l.pins.XX, l.pins.EJ, l.pins.SS}
}

type step struct {
	pin   devices.Pin
	level gpio.Level
}

// sequence drives each group of steps, waiting after every group except when
// the wait is zero.
func (l *Link) sequence(groups [][]step, waits []time.Duration) error {
	for i, g := range groups {
		for _, s := range g {
			if err := l.bus.SetLevel(s.pin, s.level); err != nil {
				return fmt.Errorf("driving %s %s: %w", s.pin, s.level, err)
			}
		}
		if waits[i] > 0 {
			l.bus.Sleep(waits[i])
		}
	}
	return nil
}

// EnterFlashMode runs the timed reset sequence that makes the console's NAND
// addressable. The delays are physical requirements, nothing is polled.
func (l *Link) EnterFlashMode() error {
	glog.V(1).Infof("Entering flash mode...")
	p := l.pins
	return l.sequence([][]step{
		{{p.XX, gpio.Low}},
		{{p.SS, gpio.Low}, {p.EJ, gpio.Low}},
		{{p.XX, gpio.High}, {p.EJ, gpio.High}},
		{{p.SS, gpio.Low}},
	}, []time.Duration{HandshakeDelay, HandshakeDelay, HandshakeDelay, 0})
}

// LeaveFlashMode returns the console to normal operation.
func (l *Link) LeaveFlashMode() error {
	glog.V(1).Infof("Leaving flash mode...")
	p := l.pins
	return l.sequence([][]step{
		{{p.SS, gpio.High}, {p.EJ, gpio.Low}},
		{{p.XX, gpio.Low}, {p.EJ, gpio.High}},
		{{p.XX, gpio.High}},
	}, []time.Duration{HandshakeDelay, HandshakeDelay, 0})
}

// ReadFrame builds the 6-byte transaction reading reg.
func ReadFrame(reg uint8) []byte {
	return []byte{bitrev.Reverse(reg<<2 | opRead), turnaround, 0, 0, 0, 0}
}

// WriteFrame builds the 5-byte transaction writing v to reg, already in wire
// bit order.
func WriteFrame(reg uint8, v uint32) []byte {
	tx := make([]byte, writeFrameSize)
	tx[0] = reg<<2 | opWrite
	binary.LittleEndian.PutUint32(tx[1:], v)
	bitrev.ReverseBuffer(tx)
	return tx
}

// ReadRegister reads a 32-bit controller register.
func (l *Link) ReadRegister(reg uint8) (uint32, error) {
	tx := ReadFrame(reg)
	rx := make([]byte, readFrameSize)
	if err := l.transact(tx, rx); err != nil {
		return 0, fmt.Errorf("reading register %#02x: %w", reg, err)
	}
	bitrev.ReverseBuffer(rx[2:])
	v := binary.LittleEndian.Uint32(rx[2:])
	glog.V(3).Infof("read  reg %#02x = %#08x", reg, v)
	return v, nil
}

// WriteRegister writes a 32-bit controller register.
func (l *Link) WriteRegister(reg uint8, v uint32) error {
	tx := WriteFrame(reg, v)
	rx := make([]byte, writeFrameSize)
	if err := l.transact(tx, rx); err != nil {
		return fmt.Errorf("writing register %#02x: %w", reg, err)
	}
	glog.V(3).Infof("write reg %#02x = %#08x", reg, v)
	return nil
}

// transact exchanges one frame with chip select asserted around it.
func (l *Link) transact(tx, rx []byte) (err error) {
	if !l.open {
		return devices.ErrSPIClosed
	}
	if err := l.bus.SetLevel(l.pins.SS, gpio.Low); err != nil {
		return err
	}
	defer func() {
		if csErr := l.bus.SetLevel(l.pins.SS, gpio.High); csErr != nil && err == nil {
			err = csErr
		}
	}()
	l.bus.Sleep(SettleDelay)
	return l.bus.Transfer(tx, rx)
}
