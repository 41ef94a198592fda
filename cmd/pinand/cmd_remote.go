package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/term"
	"github.com/spf13/cobra"

	"github.com/pinand/pinand/pkg/dump"
	"github.com/pinand/pinand/pkg/geometry"
	"github.com/pinand/pinand/pkg/protocol"
)

var (
	remoteDevice string
	remoteCount  string
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Talk to a flasher over its serial port",
	Long:  "Act as the host side of the flasher protocol, against a pinand server or any other flasher speaking the same protocol.",
}

type remote struct {
	t      *term.Term
	client *protocol.Client
}

func newRemote() (*remote, error) {
	if remoteDevice == "" {
		return nil, fmt.Errorf("no device given, use --device")
	}
	t, err := term.Open(remoteDevice, term.Speed(115200), term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", remoteDevice, err)
	}
	r := &remote{t: t, client: protocol.NewClient(t)}
	v, err := r.client.Version()
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("getting version: %w", err)
	}
	if v != protocol.Version {
		slog.Warn("Unexpected protocol version", "got", v, "want", protocol.Version)
	}
	return r, nil
}

func (r *remote) Close() error {
	return r.t.Close()
}

func (r *remote) geometry() (*geometry.Geometry, error) {
	raw, err := r.client.Config()
	if err != nil {
		return nil, err
	}
	return geometry.Decode(raw)
}

var remoteInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show remote NAND geometry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRemote()
		if err != nil {
			return err
		}
		defer r.Close()

		g, err := r.geometry()
		if err != nil {
			return err
		}
		fmt.Println(g.String())
		return nil
	},
}

var remoteReadCmd = &cobra.Command{
	Use:   "read [file]",
	Short: "Dump remote NAND to file",
	Long:  "Stream NAND sectors from the remote flasher into an image file, starting at sector 0.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRemote()
		if err != nil {
			return err
		}
		defer r.Close()

		g, err := r.geometry()
		if err != nil {
			return err
		}
		count := g.TotalSectors()
		if remoteCount != "" {
			if count, err = parseNumber(remoteCount); err != nil {
				return fmt.Errorf("invalid sector count")
			}
		}

		f, err := dump.Create(args[0])
		if err != nil {
			return fmt.Errorf("could not open file for writing: %w", err)
		}
		progress := logProgress("Reading...", count)
		start := time.Now()
		err = r.client.ReadStream(count, func(lba uint32, sector []byte) error {
			if _, err := f.Write(sector); err != nil {
				return fmt.Errorf("failed to write: %w", err)
			}
			progress(lba + 1)
			return nil
		})
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to write: %w", cerr)
		}
		if err != nil {
			return err
		}
		slog.Info("Done", "sectors", count, "seconds", int(time.Since(start).Seconds()))
		return nil
	},
}
