package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/term"
	"github.com/spf13/cobra"

	"github.com/pinand/pinand/pkg/protocol"
)

type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error {
	return nil
}

// openStream opens the serial device a flasher host talks through, or
// standard input and output for "-".
func openStream(dev string) (io.ReadWriteCloser, error) {
	if dev == "-" {
		return stdio{os.Stdin, os.Stdout}, nil
	}
	t, err := term.Open(dev, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", dev, err)
	}
	return t, nil
}

var serverCmd = &cobra.Command{
	Use:   "server [device]",
	Short: "Serve the flasher protocol",
	Long: `Answer flasher protocol commands from a host on a serial device, by default the
USB gadget serial port from the configuration. Use '-' for standard input and
output. The NAND is initialized on the first GET_CONFIG command.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		app, err := newSession()
		if err != nil {
			return err
		}
		defer func() {
			if cerr := app.Close(); cerr != nil {
				err = multierror.Append(err, cerr)
			}
		}()

		dev := app.Config.Server.Device
		if len(args) > 0 {
			dev = args[0]
		}
		stream, err := openStream(dev)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				// Unblocks a pending read in Serve.
				stream.Close()
			case <-done:
				stream.Close()
			}
		}()

		slog.Info("Serving", "device", dev, "version", protocol.Version)
		srv := protocol.NewServer(app.NAND, protocol.WithIdleDelay(app.Config.IdleDelay()))
		if err := srv.Serve(ctx, stream); err != nil && ctx.Err() == nil {
			return err
		}
		slog.Info("Interrupted, shutting down")
		return nil
	},
}
