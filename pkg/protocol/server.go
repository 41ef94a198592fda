package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/golang/glog"

	"github.com/pinand/pinand/pkg/geometry"
	"github.com/pinand/pinand/pkg/nand"
)

// DefaultIdleDelay is how long the server waits before reading again after
// the peer went quiet.
const DefaultIdleDelay = 100 * time.Millisecond

var (
	// ErrIOFailure is returned by Serve when the stream failed. It ends the
	// session, not the controller.
	ErrIOFailure = errors.New("protocol stream failed")
	// ErrUnsupported is reported for command families that are recognized
	// but not implemented.
	ErrUnsupported = errors.New("operation not supported")
)

// NAND is the sector level flash access the server dispatches to.
// *nand.Controller implements it.
type NAND interface {
	Init() error
	Geometry() *geometry.Geometry
	ReadSector(lba uint32) ([nand.DataSize]byte, [nand.SpareSize]byte, error)
	WriteSector(lba uint32, data [nand.DataSize]byte, spare [nand.SpareSize]byte) error
}

var _ NAND = (*nand.Controller)(nil)

type ServerOption func(s *Server)

// WithIdleDelay sets the pause after an idle read.
func WithIdleDelay(d time.Duration) ServerOption {
	return func(s *Server) {
		s.idleDelay = d
	}
}

// WithWait replaces the idle wait. The function must return ctx.Err() once
// ctx is done.
func WithWait(fn func(ctx context.Context, d time.Duration) error) ServerOption {
	return func(s *Server) {
		s.wait = fn
	}
}

// Server answers protocol commands from one peer at a time.
type Server struct {
	nand      NAND
	idleDelay time.Duration
	wait      func(ctx context.Context, d time.Duration) error
}

func NewServer(n NAND, opts ...ServerOption) *Server {
	s := &Server{
		nand:      n,
		idleDelay: DefaultIdleDelay,
		wait:      sleepContext,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// readFull fills buf from r. It reports idle if the peer stopped sending
// (end of stream or an empty read) before buf was full, in which case the
// partial contents are to be dropped.
func readFull(r io.Reader, buf []byte) (idle bool, err error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if n == len(buf) {
			return false, nil
		}
		switch {
		case errors.Is(err, io.EOF), err == nil && m == 0:
			return true, nil
		case err != nil:
			return false, fmt.Errorf("%w: reading: %w", ErrIOFailure, err)
		}
	}
	return false, nil
}

func writeAll(w io.Writer, bufs ...[]byte) error {
	for _, b := range bufs {
		if _, err := w.Write(b); err != nil {
			return fmt.Errorf("%w: writing: %w", ErrIOFailure, err)
		}
	}
	return nil
}

// Serve reads and answers commands from rw until the stream fails or ctx is
// done. Flash failures are reported to the peer and never end the loop. A
// quiet peer makes the server pause and read again, geometry stays cached.
//
// Serve only notices ctx between reads. To stop a blocked Serve, close the
// underlying stream.
func (s *Server) Serve(ctx context.Context, rw io.ReadWriter) error {
	var hdr [FrameSize]byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		idle, err := readFull(rw, hdr[:])
		if err != nil {
			return err
		}
		if idle {
			if err := s.wait(ctx, s.idleDelay); err != nil {
				return err
			}
			continue
		}
		f := DecodeFrame(hdr)
		glog.V(2).Infof("protocol: %s", f)
		if err := s.handle(ctx, rw, f); err != nil {
			return err
		}
	}
}

func (s *Server) handle(ctx context.Context, rw io.ReadWriter, f Frame) error {
	switch {
	case f.Op == OpGetVersion:
		return writeAll(rw, encodeStatus(Version))
	case f.Op == OpGetConfig:
		return s.getConfig(rw)
	case f.Op == OpReadFlash:
		return s.readFlash(rw, f.Arg)
	case f.Op == OpWriteFlash:
		return s.writeFlash(ctx, rw, f.Arg)
	case f.Op == OpReadStream:
		return s.readStream(ctx, rw, f.Arg)
	case f.Op.Unsupported():
		slog.Debug("Unsupported command", "op", f.Op)
		return writeAll(rw, encodeStatus(StatusUnsupported))
	}
	slog.Warn("Unknown command, ignoring", "op", f.Op, "arg", f.Arg)
	return nil
}

func (s *Server) init() bool {
	if err := s.nand.Init(); err != nil {
		slog.Error("NAND init failed", "err", err)
		return false
	}
	return true
}

func (s *Server) getConfig(w io.Writer) error {
	if !s.init() {
		return writeAll(w, encodeStatus(StatusFailed))
	}
	return writeAll(w, encodeStatus(s.nand.Geometry().Raw))
}

// inRange reports whether lba addresses a sector of the initialized NAND.
// The controller's address register wraps past the end.
func (s *Server) inRange(lba uint32) bool {
	if total := s.nand.Geometry().TotalSectors(); lba >= total {
		slog.Error("Sector out of range", "sector", lba, "sectors", total)
		return false
	}
	return true
}

func (s *Server) readSector(lba uint32) ([]byte, bool) {
	if !s.inRange(lba) {
		return nil, false
	}
	data, spare, err := s.nand.ReadSector(lba)
	if err != nil {
		slog.Error("Read failed", "sector", lba, "err", err)
		return nil, false
	}
	buf := make([]byte, 0, nand.SectorSize)
	buf = append(buf, data[:]...)
	buf = append(buf, spare[:]...)
	return buf, true
}

func (s *Server) readFlash(w io.Writer, lba uint32) error {
	if !s.init() {
		return writeAll(w, encodeStatus(StatusFailed))
	}
	buf, ok := s.readSector(lba)
	if !ok {
		return writeAll(w, encodeStatus(StatusFailed))
	}
	return writeAll(w, encodeStatus(StatusOK), buf)
}

func (s *Server) writeFlash(ctx context.Context, rw io.ReadWriter, lba uint32) error {
	// The payload is always consumed so the stream stays framed.
	buf := make([]byte, nand.SectorSize)
	idle, err := readFull(rw, buf)
	if err != nil {
		return err
	}
	if idle {
		slog.Warn("Peer went quiet during sector payload, dropping write", "sector", lba)
		return s.wait(ctx, s.idleDelay)
	}
	if !s.init() || !s.inRange(lba) {
		return writeAll(rw, encodeStatus(StatusFailed))
	}
	var data [nand.DataSize]byte
	var spare [nand.SpareSize]byte
	copy(data[:], buf)
	copy(spare[:], buf[nand.DataSize:])
	if err := s.nand.WriteSector(lba, data, spare); err != nil {
		slog.Error("Write failed", "sector", lba, "err", err)
		return writeAll(rw, encodeStatus(StatusFailed))
	}
	return writeAll(rw, encodeStatus(StatusOK))
}

func (s *Server) readStream(ctx context.Context, w io.Writer, count uint32) error {
	if !s.init() {
		return writeAll(w, encodeStatus(StatusFailed))
	}
	slog.Info("Streaming sectors...", "count", count)
	for lba := uint32(0); lba < count; lba++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf, ok := s.readSector(lba)
		if !ok {
			return writeAll(w, encodeStatus(StatusFailed))
		}
		if err := writeAll(w, encodeStatus(StatusOK), buf); err != nil {
			return err
		}
	}
	return nil
}
