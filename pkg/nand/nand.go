// Package nand implements sector level access to the console's NAND through
// its flash controller registers.
package nand

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"

	"github.com/pinand/pinand/pkg/geometry"
	"github.com/pinand/pinand/pkg/link"
)

const (
	DataSize   = geometry.PageSize
	SpareSize  = 16
	SectorSize = DataSize + SpareSize

	DefaultPollLimit    = 0x1000
	DefaultPollInterval = 100 * time.Microsecond
)

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

	statusBusy        = 0x01
	configWriteEnable = 0x08
)

// Registers is the register access a Controller needs. *link.Link
// implements it.
type Registers interface {
	Open() error
	Close() error
	EnterFlashMode() error
	LeaveFlashMode() error
	ReadRegister(reg uint8) (uint32, error)
	WriteRegister(reg uint8, v uint32) error
}

var _ Registers = (*link.Link)(nil)

type Option func(c *Controller)

// WithPollLimit sets how many times the status register is checked before a
// wait times out.
func WithPollLimit(n int) Option {
	return func(c *Controller) {
		c.pollLimit = n
	}
}

// WithPollInterval sets the delay between two status checks.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.pollInterval = d
	}
}

// WithSleep replaces time.Sleep for status polling.
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Controller) {
		c.sleep = fn
	}
}

// Controller owns the register link and the decoded geometry of the NAND. It
// is not safe for concurrent use.
type Controller struct {
	regs         Registers
	geometry     *geometry.Geometry
	initialized  bool
	flashMode    bool
	pollLimit    int
	pollInterval time.Duration
	sleep        func(time.Duration)
}

func New(regs Registers, opts ...Option) *Controller {
	c := &Controller{
		regs:         regs,
		pollLimit:    DefaultPollLimit,
		pollInterval: DefaultPollInterval,
		sleep:        time.Sleep,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Init opens the link, puts the console into flash mode and decodes the NAND
// geometry. It does nothing if the controller is already initialized. After a
// failed decode the console stays in flash mode until Close.
func (c *Controller) Init() error {
	if c.initialized {
		return nil
	}
	if err := c.regs.Open(); err != nil {
		return fmt.Errorf("opening link: %w", err)
	}
	if !c.flashMode {
		if err := c.regs.EnterFlashMode(); err != nil {
			return fmt.Errorf("entering flash mode: %w", err)
		}
		c.flashMode = true
	}
	raw, err := c.ReadConfig()
	if err != nil {
		return err
	}
	g, err := geometry.Decode(raw)
	if err != nil {
		return err
	}
	glog.V(1).Infof("NAND config %#08x: %d blocks of %d sectors", raw, g.BlocksCount, g.SectorsPerBlock())
	c.geometry = g
	c.initialized = true
	return nil
}

// ReadConfig reads the configuration register. The first read after entering
// flash mode is unreliable, so the register is read twice and only the
// second value is used.
func (c *Controller) ReadConfig() (uint32, error) {
	if _, err := c.regs.ReadRegister(regConfig); err != nil {
		return 0, fmt.Errorf("reading config: %w", err)
	}
	raw, err := c.regs.ReadRegister(regConfig)
	if err != nil {
		return 0, fmt.Errorf("reading config: %w", err)
	}
	return raw, nil
}

func (c *Controller) Initialized() bool {
	return c.initialized
}

// Geometry returns the decoded geometry, or nil before Init.
func (c *Controller) Geometry() *geometry.Geometry {
	return c.geometry
}

// Close returns the console to normal operation and closes the link. It does
// nothing if flash mode was never entered.
func (c *Controller) Close() error {
	if !c.flashMode {
		return nil
	}
	var errs error
	if err := c.regs.LeaveFlashMode(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("leaving flash mode: %w", err))
	}
	if err := c.regs.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("closing link: %w", err))
	}
	c.flashMode = false
	c.initialized = false
	c.geometry = nil
	return errs
}

func (c *Controller) write(reg uint8, v uint32) error {
	return c.regs.WriteRegister(reg, v)
}

func (c *Controller) command(cmds ...uint32) error {
	for _, cmd := range cmds {
		if err := c.write(regCmd, cmd); err != nil {
			return err
		}
	}
	return nil
}

// clearStatus acknowledges all pending status bits.
func (c *Controller) clearStatus() error {
	st, err := c.regs.ReadRegister(regStatus)
	if err != nil {
		return err
	}
	return c.write(regStatus, st)
}

func (c *Controller) waitReady(stage Stage, lba uint32) error {
	n, err := Poll(c.pollLimit, c.pollInterval, c.sleep, func() (bool, error) {
		st, err := c.regs.ReadRegister(regStatus)
		if err != nil {
			return false, err
		}
		return st&statusBusy == 0, nil
	})
	if errors.Is(err, ErrTimeout) {
		return &TimeoutError{Stage: stage, LBA: lba, Polls: n}
	}
	return err
}

func (c *Controller) check() error {
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}

// ReadSector reads the data and spare bytes of one sector.
func (c *Controller) ReadSector(lba uint32) (data [DataSize]byte, spare [SpareSize]byte, err error) {
	if err = c.check(); err != nil {
		return
	}
	if err = c.readSector(lba, data[:], spare[:]); err != nil {
		err = fmt.Errorf("reading sector %#x: %w", lba, err)
	}
	return
}

func (c *Controller) readSector(lba uint32, data, spare []byte) error {
	if err := c.clearStatus(); err != nil {
		return err
	}
	if err := c.write(regAddr, lba<<9); err != nil {
		return err
	}
	if err := c.command(cmdRead); err != nil {
		return err
	}
	if err := c.waitReady(StageRead, lba); err != nil {
		return err
	}
	if err := c.write(regAddr, 0); err != nil {
		return err
	}
	for _, buf := range [][]byte{data, spare} {
		for off := 0; off < len(buf); off += 4 {
			if err := c.command(cmdNull); err != nil {
				return err
			}
			v, err := c.regs.ReadRegister(regData)
			if err != nil {
				return err
			}
			binary.LittleEndian.PutUint32(buf[off:], v)
		}
	}
	return nil
}

// EraseBlock erases the erase block containing lba.
func (c *Controller) EraseBlock(lba uint32) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.eraseBlock(lba); err != nil {
		return fmt.Errorf("erasing block at sector %#x: %w", lba, err)
	}
	return nil
}

func (c *Controller) eraseBlock(lba uint32) error {
	glog.V(2).Infof("erase block at sector %#x", lba)
	if err := c.clearStatus(); err != nil {
		return err
	}
	cfg, err := c.regs.ReadRegister(regConfig)
	if err != nil {
		return err
	}
	if err := c.write(regConfig, cfg|configWriteEnable); err != nil {
		return err
	}
	if err := c.write(regAddr, lba<<9); err != nil {
		return err
	}
	if err := c.command(cmdConfirm, cmdUnlock, cmdExecErase); err != nil {
		return err
	}
	return c.waitReady(StageErase, lba)
}

// WriteSector programs one sector. When lba is the first sector of an erase
// block, the block is erased first. Other sectors are assumed to sit in an
// already erased block that is being written in ascending order.
func (c *Controller) WriteSector(lba uint32, data [DataSize]byte, spare [SpareSize]byte) error {
	if err := c.check(); err != nil {
		return err
	}
	if lba%c.geometry.SectorsPerBlock() == 0 {
		if err := c.EraseBlock(lba); err != nil {
			return err
		}
	}
	if err := c.writeSector(lba, data[:], spare[:]); err != nil {
		return fmt.Errorf("writing sector %#x: %w", lba, err)
	}
	return nil
}

func (c *Controller) writeSector(lba uint32, data, spare []byte) error {
	if err := c.clearStatus(); err != nil {
		return err
	}
	if err := c.write(regAddr, 0); err != nil {
		return err
	}
	for _, buf := range [][]byte{data, spare} {
		for off := 0; off < len(buf); off += 4 {
			if err := c.write(regData, binary.LittleEndian.Uint32(buf[off:])); err != nil {
				return err
			}
			if err := c.command(cmdWrite); err != nil {
				return err
			}
		}
	}
	if err := c.waitReady(StageWriteData, lba); err != nil {
		return err
	}
	if err := c.write(regAddr, lba<<9); err != nil {
		return err
	}
	if err := c.waitReady(StageWriteAddress, lba); err != nil {
		return err
	}
	if err := c.command(cmdUnlock, cmdConfirm, cmdExecWrite); err != nil {
		return err
	}
	return c.waitReady(StageWriteExecute, lba)
}
