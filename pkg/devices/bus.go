package devices

import (
	"errors"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Bus describes the host capabilities needed to talk to the console: a few
// GPIO lines, one full-duplex SPI channel and a delay primitive.
type Bus interface {
	// SetDirection configures a GPIO line as input or output.
	SetDirection(p Pin, d Direction) error

	// SetLevel drives an output line.
	SetLevel(p Pin, l gpio.Level) error

	// Level samples a line.
	Level(p Pin) (gpio.Level, error)

	// OpenSPI opens the SPI channel at the given clock, mode 0, 8 bits per
	// word.
	OpenSPI(f physic.Frequency) error

	CloseSPI() error

	// Transfer performs one synchronous full-duplex transfer. w and r must
	// be the same length.
	Transfer(w, r []byte) error

	// Sleep waits for a relative duration.
	Sleep(d time.Duration)

	// Close disposes of this bus. No other functions may be called on the
	// interface afterwards.
	Close() error
}

var ErrSPIClosed = errors.New("SPI channel not open")
