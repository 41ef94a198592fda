package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show NAND geometry",
	Long:  "Put the console in flash mode, read the flash configuration word and print the NAND geometry it describes.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		g := app.NAND.Geometry()
		fmt.Println(g.String())
		fmt.Printf("\tSectors: %#x (%#x per block)\n", g.TotalSectors(), g.SectorsPerBlock())
		return nil
	},
}
