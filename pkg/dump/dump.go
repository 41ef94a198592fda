// Package dump reads and writes raw NAND images: a flat sequence of 528-byte
// records, one per sector in ascending order, data followed by spare, with no
// header or trailer.
package dump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pinand/pinand/pkg/nand"
)

// RecordSize is the size of one sector record in an image.
const RecordSize = nand.SectorSize

// Source is something sectors can be read from. *nand.Controller implements
// it.
type Source interface {
	ReadSector(lba uint32) ([nand.DataSize]byte, [nand.SpareSize]byte, error)
}

// Sink is something sectors can be written to. *nand.Controller implements
// it.
type Sink interface {
	WriteSector(lba uint32, data [nand.DataSize]byte, spare [nand.SpareSize]byte) error
}

// Progress is called after every sector with the number of sectors done so
// far.
type Progress func(done uint32)

// Read copies count sectors starting at start from src to w. It stops between
// sectors when ctx is done.
func Read(ctx context.Context, src Source, w io.Writer, start, count uint32, progress Progress) error {
	rec := make([]byte, RecordSize)
	for i := uint32(0); i < count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lba := start + i
		data, spare, err := src.ReadSector(lba)
		if err != nil {
			return err
		}
		copy(rec, data[:])
		copy(rec[nand.DataSize:], spare[:])
		if _, err := w.Write(rec); err != nil {
			return fmt.Errorf("writing sector %#x to image: %w", lba, err)
		}
		if progress != nil {
			progress(i + 1)
		}
	}
	return nil
}

// Write programs the records read from r into dst, starting at sector start,
// in ascending order so that every erase block is erased once on its first
// sector. A trailing partial record is reported and skipped. It returns the
// number of sectors written.
func Write(ctx context.Context, dst Sink, r io.Reader, start uint32, progress Progress) (uint32, error) {
	rec := make([]byte, RecordSize)
	var n uint32
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		got, err := io.ReadFull(r, rec)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			slog.Warn("Image is not a multiple of the sector size, ignoring trailing bytes", "bytes", got)
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("reading image: %w", err)
		}

		var data [nand.DataSize]byte
		var spare [nand.SpareSize]byte
		copy(data[:], rec)
		copy(spare[:], rec[nand.DataSize:])
		if err := dst.WriteSector(start+n, data, spare); err != nil {
			return n, err
		}
		n++
		if progress != nil {
			progress(n)
		}
	}
}

// Compare reads two images and returns the index of the first record that
// differs, or -1 if both are identical. An image that is shorter than the
// other differs at its first missing record.
func Compare(a, b io.Reader) (int64, error) {
	ra := make([]byte, RecordSize)
	rb := make([]byte, RecordSize)
	for i := int64(0); ; i++ {
		na, errA := io.ReadFull(a, ra)
		nb, errB := io.ReadFull(b, rb)
		if errA != nil && !isEnd(errA) {
			return 0, fmt.Errorf("reading first image: %w", errA)
		}
		if errB != nil && !isEnd(errB) {
			return 0, fmt.Errorf("reading second image: %w", errB)
		}
		if na != nb || !bytes.Equal(ra[:na], rb[:nb]) {
			return i, nil
		}
		// Equal lengths, so either both ended or neither did.
		if errA != nil {
			return -1, nil
		}
	}
}

func isEnd(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
