package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var eraseCount string

var eraseCmd = &cobra.Command{
	Use:   "erase [block]",
	Short: "Erase NAND blocks",
	Long:  "Erase one or more NAND erase blocks, starting at the given block number. Erased sectors read back as all 0xff.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		g := app.NAND.Geometry()
		first, count, err := blockRange(g, args[0], eraseCount)
		if err != nil {
			return err
		}
		spb := g.SectorsPerBlock()
		for lba := first; lba < first+count; lba += spb {
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			slog.Info("Erasing...", "block", fmt.Sprintf("%#x", lba/spb))
			if err := app.NAND.EraseBlock(lba); err != nil {
				return err
			}
		}
		return nil
	},
}
