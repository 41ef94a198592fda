package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pinand/pinand/pkg/dump"
	"github.com/pinand/pinand/pkg/nand"
)

var writeStart string

// boundedSink refuses sectors past the end of the NAND.
type boundedSink struct {
	dump.Sink
	end uint32
}

func (b *boundedSink) WriteSector(lba uint32, data [nand.DataSize]byte, spare [nand.SpareSize]byte) error {
	if lba >= b.end {
		return fmt.Errorf("image is larger than the NAND, sector %#x is past its end", lba)
	}
	return b.Sink.WriteSector(lba, data, spare)
}

var writeCmd = &cobra.Command{
	Use:   "write [file]",
	Short: "Write file to NAND",
	Long: `Program an image file, data and spare, into NAND. Every erase block is erased
before its first sector is written. Files ending in .xz are decompressed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		g := app.NAND.Geometry()
		startBlock, err := parseNumber(writeStart)
		if err != nil {
			return fmt.Errorf("invalid start block")
		}
		if startBlock >= g.BlocksCount {
			return fmt.Errorf("start block %#x out of range, NAND has %#x blocks", startBlock, g.BlocksCount)
		}
		first := startBlock * g.SectorsPerBlock()
		total := g.TotalSectors() - first
		if st, err := os.Stat(args[0]); err == nil && !dump.Compressed(args[0]) {
			records := uint64(st.Size()) / dump.RecordSize
			if records > uint64(total) {
				return fmt.Errorf("image holds %#x sectors but only %#x fit from block %#x", records, total, startBlock)
			}
			total = uint32(records)
		}

		f, err := dump.Open(args[0])
		if err != nil {
			return fmt.Errorf("could not open image: %w", err)
		}
		defer f.Close()

		slog.Info("Writing NAND", "file", args[0], "first", first)
		start := time.Now()
		n, err := dump.Write(cmd.Context(), &boundedSink{Sink: app.NAND, end: g.TotalSectors()}, f, first, logProgress("Writing...", total))
		if err != nil {
			return fmt.Errorf("after %#x sectors: %w", n, err)
		}
		slog.Info("Done", "sectors", n, "seconds", int(time.Since(start).Seconds()))
		return nil
	},
}
