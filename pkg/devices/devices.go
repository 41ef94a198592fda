package devices

import "fmt"

// Board is the kind of single-board computer the programmer runs on. Boards
// only differ in which header pin carries the flash chip-select line.
type Board string

const (
	Pi4  Board = "pi4"
	Pi1B Board = "pi1b"
)

func (b Board) String() string {
	switch b {
	case Pi4:
		return "Raspberry Pi 4"
	case Pi1B:
		return "Raspberry Pi 1 Model B"
	}
	return "UNKNOWN"
}

// Description returns the pinout for a board.
func (b Board) Description() (Description, error) {
	for _, d := range Descriptions {
		if d.Board == b {
			return d, nil
		}
	}
	return Description{}, fmt.Errorf("unknown board %q", string(b))
}

// Pin is a Broadcom GPIO number.
type Pin int

func (p Pin) String() string {
	return fmt.Sprintf("GPIO%d", int(p))
}

// Pins are the three control lines wired to the console.
type Pins struct {
	// XX drives SMC_RST_XDK_N (active low).
	XX Pin
	// EJ drives SMC_DBG_EN (active low).
	EJ Pin
	// SS is the software-driven SPI chip select (active low).
	SS Pin
}

type Description struct {
	Board Board
	Pins  Pins
}

var Descriptions = []Description{
	{
		Board: Pi4,
		Pins:  Pins{XX: 23, EJ: 24, SS: 26},
	},
	{
		// GPIO26 is not on the 26-pin header, CE0 is used instead.
		Board: Pi1B,
		Pins:  Pins{XX: 23, EJ: 24, SS: 8},
	},
}
