// Package sim implements a simulated console: a devices.Bus that tracks the
// control lines, decodes register transactions and emulates the flash
// controller on top of an in-memory NAND.
package sim

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/pinand/pinand/pkg/bitrev"
	"github.com/pinand/pinand/pkg/devices"
	"github.com/pinand/pinand/pkg/geometry"
)

// Controller registers and commands, as seen by the console.
const (
	regConfig = 0x00
	regStatus = 0x04
	regCmd    = 0x08
	regAddr   = 0x0c
	regData   = 0x10

	cmdNull      = 0x00
	cmdWrite     = 0x01
	cmdRead      = 0x03
	cmdExecWrite = 0x04
	cmdExecErase = 0x05
	cmdUnlock    = 0x55
	cmdConfirm   = 0xaa

	statusBusy  = 0x01
	configWrite = 0x08

	dataSize   = geometry.PageSize
	sectorSize = dataSize + 16
	words      = sectorSize / 4
)

// Stats counts what the controller has been asked to do.
type Stats struct {
	Transfers   int
	StatusReads int
	Reads       int
	Programs    int
	Erases      int
	Handshakes  int
}

type Option func(c *Console)

// WithPins overrides the control line assignment (Pi 4 by default).
func WithPins(p devices.Pins) Option {
	return func(c *Console) {
		c.pins = p
	}
}

// WithBusyPolls sets how many status reads report busy after each command.
func WithBusyPolls(n int) Option {
	return func(c *Console) {
		c.busyPolls = n
	}
}

// WithStuckBusy makes the status register report busy forever.
func WithStuckBusy() Option {
	return func(c *Console) {
		c.stuck = true
	}
}

// Console is a simulated console. It is not safe for concurrent use, just
// like the hardware bus it replaces.
type Console struct {
	pins      devices.Pins
	levels    map[devices.Pin]gpio.Level
	dirs      map[devices.Pin]devices.Direction
	spiOpen   bool
	clock     physic.Frequency
	flashMode bool

	raw             uint32
	sectorsPerBlock uint32
	totalSectors    uint32
	configReads     int

	config uint32
	status uint32
	addr   uint32
	data   uint32
	busy   int

	busyPolls int
	stuck     bool

	// history holds the last two commands, for unlock/confirm sequences.
	history [2]uint32
	buf     [words]uint32
	ptr     int
	sectors map[uint32]*[sectorSize]byte

	stats Stats
	slept time.Duration
}

// New returns a console whose flash controller reports the given
// configuration word. An undecodable word is allowed, the console then
// behaves like a 16MB small block part for addressing.
func New(raw uint32, opts ...Option) *Console {
	c := &Console{
		pins:            devices.Descriptions[0].Pins,
		levels:          make(map[devices.Pin]gpio.Level),
		dirs:            make(map[devices.Pin]devices.Direction),
		raw:             raw,
		config:          raw,
		sectorsPerBlock: 0x20,
		totalSectors:    0x20 * 0x400,
		busyPolls:       1,
		sectors:         make(map[uint32]*[sectorSize]byte),
	}
	if g, err := geometry.Decode(raw); err == nil {
		c.sectorsPerBlock = g.SectorsPerBlock()
		c.totalSectors = g.TotalSectors()
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Console) SetDirection(p devices.Pin, d devices.Direction) error {
	c.dirs[p] = d
	return nil
}

func (c *Console) level(p devices.Pin) gpio.Level {
	l, ok := c.levels[p]
	if !ok {
		// Pulled up.
		return gpio.High
	}
	return l
}

func (c *Console) SetLevel(p devices.Pin, l gpio.Level) error {
	if d, ok := c.dirs[p]; !ok || d != devices.Output {
		return fmt.Errorf("sim: %s is not an output", p)
	}
	prev := c.level(p)
	c.levels[p] = l
	if p != c.pins.XX || prev != gpio.Low || l != gpio.High {
		return nil
	}
	// Reset released: the debug line decides which mode the console boots
	// into.
	if c.level(c.pins.EJ) == gpio.Low {
		c.enterFlashMode()
	} else if c.flashMode {
		glog.V(2).Infof("sim: leaving flash mode")
		c.flashMode = false
	}
	return nil
}

func (c *Console) enterFlashMode() {
	glog.V(2).Infof("sim: entering flash mode")
	c.flashMode = true
	c.stats.Handshakes++
	c.configReads = 0
	c.config = c.raw
	c.status = 0
	c.busy = 0
	c.ptr = 0
	c.history = [2]uint32{}
}

func (c *Console) Level(p devices.Pin) (gpio.Level, error) {
	return c.level(p), nil
}

func (c *Console) OpenSPI(f physic.Frequency) error {
	c.spiOpen = true
	c.clock = f
	return nil
}

func (c *Console) CloseSPI() error {
	c.spiOpen = false
	return nil
}

// Transfer decodes one register transaction. Transactions sent while the
// console is not in flash mode, or without chip select asserted, are clocked
// into nothing and read back as zeroes.
func (c *Console) Transfer(w, r []byte) error {
	if !c.spiOpen {
		return devices.ErrSPIClosed
	}
	if len(w) != len(r) {
		return fmt.Errorf("sim: transfer length mismatch (%d vs %d)", len(w), len(r))
	}
	c.stats.Transfers++
	for i := range r {
		r[i] = 0
	}
	if !c.flashMode || c.level(c.pins.SS) != gpio.Low {
		return nil
	}

	switch len(w) {
	case 6:
		cmd := bitrev.Reverse(w[0])
		if cmd&3 != 1 {
			return fmt.Errorf("sim: bad read opcode %#02x", cmd)
		}
		binary.LittleEndian.PutUint32(r[2:], c.readRegister(cmd>>2))
		bitrev.ReverseBuffer(r[2:])
	case 5:
		frame := make([]byte, 5)
		bitrev.ReverseInto(frame, w)
		if frame[0]&3 != 2 {
			return fmt.Errorf("sim: bad write opcode %#02x", frame[0])
		}
		c.writeRegister(frame[0]>>2, binary.LittleEndian.Uint32(frame[1:]))
	default:
		return fmt.Errorf("sim: unexpected %d byte transaction", len(w))
	}
	return nil
}

func (c *Console) readRegister(reg uint8) uint32 {
	switch reg {
	case regConfig:
		c.configReads++
		if c.configReads == 1 {
			// The first read after reset returns garbage.
			return 0
		}
		return c.config
	case regStatus:
		c.stats.StatusReads++
		if c.stuck {
			return c.status | statusBusy
		}
		if c.busy > 0 {
			c.busy--
			return c.status | statusBusy
		}
		return c.status
	case regAddr:
		return c.addr
	case regData:
		return c.data
	}
	return 0
}

func (c *Console) writeRegister(reg uint8, v uint32) {
	switch reg {
	case regConfig:
		c.config = v
	case regStatus:
		c.status &^= v
	case regAddr:
		c.addr = v
		c.ptr = 0
	case regData:
		c.data = v
	case regCmd:
		c.command(v)
	}
}

func (c *Console) command(cmd uint32) {
	prev := c.history
	c.history = [2]uint32{prev[1], cmd}

	switch cmd {
	case cmdNull:
		if c.ptr < words {
			c.data = c.buf[c.ptr]
			c.ptr++
		}
	case cmdWrite:
		if c.ptr < words {
			c.buf[c.ptr] = c.data
			c.ptr++
		}
		c.busy = c.busyPolls
	case cmdRead:
		c.stats.Reads++
		s := c.sector(c.addr >> 9)
		for i := range c.buf {
			c.buf[i] = binary.LittleEndian.Uint32(s[i*4:])
		}
		c.busy = c.busyPolls
	case cmdExecWrite:
		if prev != [2]uint32{cmdUnlock, cmdConfirm} {
			glog.Warningf("sim: program without unlock sequence, ignored")
			return
		}
		c.program(c.addr >> 9)
		c.busy = c.busyPolls
	case cmdExecErase:
		if prev != [2]uint32{cmdConfirm, cmdUnlock} {
			glog.Warningf("sim: erase without unlock sequence, ignored")
			return
		}
		if c.config&configWrite == 0 {
			glog.Warningf("sim: erase with write disabled, ignored")
			return
		}
		c.erase(c.addr >> 9)
		c.busy = c.busyPolls
	}
}

func (c *Console) program(lba uint32) {
	if lba >= c.totalSectors {
		glog.Warningf("sim: program past end of flash (%#x)", lba)
		return
	}
	c.stats.Programs++
	s, ok := c.sectors[lba]
	if !ok {
		s = erased()
		c.sectors[lba] = s
	}
	var b [4]byte
	for i, w := range c.buf {
		binary.LittleEndian.PutUint32(b[:], w)
		// Programming can only clear bits.
		for j := range b {
			s[i*4+j] &= b[j]
		}
	}
}

func (c *Console) erase(lba uint32) {
	c.stats.Erases++
	first := lba - lba%c.sectorsPerBlock
	for i := first; i < first+c.sectorsPerBlock; i++ {
		delete(c.sectors, i)
	}
}

func erased() *[sectorSize]byte {
	var s [sectorSize]byte
	for i := range s {
		s[i] = 0xff
	}
	return &s
}

func (c *Console) sector(lba uint32) *[sectorSize]byte {
	if s, ok := c.sectors[lba]; ok {
		return s
	}
	return erased()
}

// Sector returns the data and spare bytes currently stored at lba.
func (c *Console) Sector(lba uint32) []byte {
	s := c.sector(lba)
	return append([]byte(nil), s[:]...)
}

// SetSector stores data and spare bytes at lba, bypassing the controller.
func (c *Console) SetSector(lba uint32, b []byte) {
	s := erased()
	copy(s[:], b)
	c.sectors[lba] = s
}

// FlashMode returns whether the console currently exposes its NAND.
func (c *Console) FlashMode() bool {
	return c.flashMode
}

// Clock returns the SPI clock the channel was last opened with.
func (c *Console) Clock() physic.Frequency {
	return c.clock
}

func (c *Console) Stats() Stats {
	return c.stats
}

// Slept returns the sum of all delays requested through Sleep.
func (c *Console) Slept() time.Duration {
	return c.slept
}

// Sleep records the delay without waiting.
func (c *Console) Sleep(d time.Duration) {
	c.slept += d
}

func (c *Console) Close() error {
	c.spiOpen = false
	return nil
}
