package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pinand/pinand/pkg/dump"
	"github.com/pinand/pinand/pkg/geometry"
)

var (
	readStart  string
	readBlocks string
	readPasses int
)

// progressEvery is how many sectors go by between progress log lines.
const progressEvery = 0x100

func logProgress(what string, total uint32) dump.Progress {
	return func(done uint32) {
		if done%progressEvery == 0 || done == total {
			slog.Info(what, "sectors", done, "percent", float32(done)*100/float32(total))
		}
	}
}

// passPath returns where pass number pass of a read goes. An explicit path
// gets the pass number inserted before its extension.
func passPath(path, dir string, g *geometry.Geometry, t time.Time, pass int) string {
	if path == "" {
		return dump.PathFor(dir, g, t, pass)
	}
	if pass == 0 {
		return path
	}
	ext := filepath.Ext(path)
	if strings.EqualFold(ext, ".xz") {
		base := strings.TrimSuffix(path, ext)
		return fmt.Sprintf("%s-%d%s%s", strings.TrimSuffix(base, filepath.Ext(base)), pass, filepath.Ext(base), ext)
	}
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(path, ext), pass, ext)
}

// blockRange turns the start and blocks flags into a sector range.
func blockRange(g *geometry.Geometry, start, blocks string) (first, count uint32, err error) {
	startBlock, err := parseNumber(start)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start block")
	}
	if startBlock >= g.BlocksCount {
		return 0, 0, fmt.Errorf("start block %#x out of range, NAND has %#x blocks", startBlock, g.BlocksCount)
	}
	n := g.BlocksCount - startBlock
	if blocks != "" {
		if n, err = parseNumber(blocks); err != nil {
			return 0, 0, fmt.Errorf("invalid block count")
		}
		if n == 0 || startBlock+n > g.BlocksCount {
			return 0, 0, fmt.Errorf("block count %#x out of range, NAND has %#x blocks", n, g.BlocksCount)
		}
	}
	spb := g.SectorsPerBlock()
	return startBlock * spb, n * spb, nil
}

var readCmd = &cobra.Command{
	Use:   "read [file]",
	Short: "Dump NAND to file",
	Long: `Read NAND sectors, data and spare, into an image file. Files ending in .xz are
compressed. Without a file name the image goes to the dump directory, named
after the flash configuration and the time. With more than one pass the NAND
is read again into separate files which are then compared.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if readPasses < 1 {
			return fmt.Errorf("passes must be at least 1")
		}
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		g := app.NAND.Geometry()
		first, count, err := blockRange(g, readStart, readBlocks)
		if err != nil {
			return err
		}
		var path string
		if len(args) > 0 {
			path = args[0]
		}

		now := time.Now()
		var paths []string
		for pass := 0; pass < readPasses; pass++ {
			p := passPath(path, app.Config.Dump.Dir, g, now, pass)
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return fmt.Errorf("could not create dump directory: %w", err)
			}
			f, err := dump.Create(p)
			if err != nil {
				return fmt.Errorf("could not open file for writing: %w", err)
			}
			slog.Info("Reading NAND", "file", p, "pass", pass+1, "first", first, "sectors", count)
			start := time.Now()
			err = dump.Read(cmd.Context(), app.NAND, f, first, count, logProgress("Reading...", count))
			if cerr := f.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("failed to write: %w", cerr)
			}
			if err != nil {
				return err
			}
			took := time.Since(start)
			size := int64(count) * dump.RecordSize
			slog.Info("Done", "bytes", size, "seconds", int(took.Seconds()), "bytesPerSecond", int(float64(size)/took.Seconds()))
			paths = append(paths, p)
		}

		for _, p := range paths[1:] {
			rec, err := dump.CompareFiles(paths[0], p)
			if err != nil {
				return fmt.Errorf("comparing %s: %w", p, err)
			}
			if rec >= 0 {
				return fmt.Errorf("%s differs from %s at sector %#x", p, paths[0], first+uint32(rec))
			}
		}
		if len(paths) > 1 {
			slog.Info("All passes match", "passes", len(paths))
		}
		return nil
	},
}
