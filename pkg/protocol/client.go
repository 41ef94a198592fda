package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pinand/pinand/pkg/nand"
)

// ErrFailed is returned by the client when the server reported a flash
// failure.
var ErrFailed = errors.New("remote flash operation failed")

// Client drives a remote flasher. Like the server it handles one command at
// a time and is not safe for concurrent use.
type Client struct {
	rw io.ReadWriter
}

func NewClient(rw io.ReadWriter) *Client {
	return &Client{rw: rw}
}

func (c *Client) send(f Frame, payload []byte) error {
	b := f.Encode()
	if _, err := c.rw.Write(b[:]); err != nil {
		return fmt.Errorf("sending %s: %w", f.Op, err)
	}
	if len(payload) > 0 {
		if _, err := c.rw.Write(payload); err != nil {
			return fmt.Errorf("sending %s payload: %w", f.Op, err)
		}
	}
	return nil
}

func (c *Client) status() (uint32, error) {
	var b [StatusSize]byte
	if _, err := io.ReadFull(c.rw, b[:]); err != nil {
		return 0, fmt.Errorf("reading status: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func check(op Opcode, st uint32) error {
	switch st {
	case StatusOK:
		return nil
	case StatusFailed:
		return fmt.Errorf("%s: %w", op, ErrFailed)
	case StatusUnsupported:
		return fmt.Errorf("%s: %w", op, ErrUnsupported)
	}
	return fmt.Errorf("%s: unexpected status %#08x", op, st)
}

func (c *Client) call(f Frame, payload []byte) (uint32, error) {
	if err := c.send(f, payload); err != nil {
		return 0, err
	}
	return c.status()
}

// Version returns the protocol version of the remote flasher.
func (c *Client) Version() (uint32, error) {
	return c.call(Frame{Op: OpGetVersion}, nil)
}

// Config returns the raw flash configuration word, initializing the remote
// controller if needed.
func (c *Client) Config() (uint32, error) {
	st, err := c.call(Frame{Op: OpGetConfig}, nil)
	if err != nil {
		return 0, err
	}
	if st == StatusFailed || st == StatusUnsupported {
		return 0, check(OpGetConfig, st)
	}
	return st, nil
}

// ReadSector returns the data and spare bytes of one sector.
func (c *Client) ReadSector(lba uint32) ([]byte, error) {
	st, err := c.call(Frame{Op: OpReadFlash, Arg: lba}, nil)
	if err != nil {
		return nil, err
	}
	if err := check(OpReadFlash, st); err != nil {
		return nil, fmt.Errorf("sector %#x: %w", lba, err)
	}
	buf := make([]byte, nand.SectorSize)
	if _, err := io.ReadFull(c.rw, buf); err != nil {
		return nil, fmt.Errorf("reading sector %#x payload: %w", lba, err)
	}
	return buf, nil
}

// WriteSector writes one sector, data followed by spare.
func (c *Client) WriteSector(lba uint32, sector []byte) error {
	if len(sector) != nand.SectorSize {
		return fmt.Errorf("sector must be %d bytes, got %d", nand.SectorSize, len(sector))
	}
	st, err := c.call(Frame{Op: OpWriteFlash, Arg: lba}, sector)
	if err != nil {
		return err
	}
	if err := check(OpWriteFlash, st); err != nil {
		return fmt.Errorf("sector %#x: %w", lba, err)
	}
	return nil
}

// ReadStream reads sectors 0 to count-1 in one command, calling fn for each.
// If fn fails the stream is left mid-transfer and the connection must be
// dropped.
func (c *Client) ReadStream(count uint32, fn func(lba uint32, sector []byte) error) error {
	if err := c.send(Frame{Op: OpReadStream, Arg: count}, nil); err != nil {
		return err
	}
	buf := make([]byte, nand.SectorSize)
	for lba := uint32(0); lba < count; lba++ {
		st, err := c.status()
		if err != nil {
			return err
		}
		if err := check(OpReadStream, st); err != nil {
			return fmt.Errorf("sector %#x: %w", lba, err)
		}
		if _, err := io.ReadFull(c.rw, buf); err != nil {
			return fmt.Errorf("reading sector %#x payload: %w", lba, err)
		}
		if err := fn(lba, buf); err != nil {
			return err
		}
	}
	return nil
}
