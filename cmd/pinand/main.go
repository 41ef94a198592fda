package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pinand/pinand/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:   "pinand",
	Short: "pinand reads and writes console NAND flash from a Raspberry Pi",
	Long: `Drives the console's flash controller over SPI to dump, restore and erase
its NAND, or serves the flasher protocol to a host tool over a USB gadget
serial port.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verboseLog {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	},
}

var (
	verboseLog bool
	configPath string
	boardName  string
	simulate   bool
	simConfig  string
)

func main() {
	readCmd.Flags().StringVarP(&readStart, "start", "s", "0", "First erase block to read")
	readCmd.Flags().StringVarP(&readBlocks, "blocks", "n", "", "Number of erase blocks to read (default: whole NAND)")
	readCmd.Flags().IntVarP(&readPasses, "passes", "p", 1, "Read the NAND this many times and check that all dumps match")
	writeCmd.Flags().StringVarP(&writeStart, "start", "s", "0", "First erase block to write")
	eraseCmd.Flags().StringVarP(&eraseCount, "blocks", "n", "1", "Number of erase blocks to erase")
	remoteCmd.PersistentFlags().StringVarP(&remoteDevice, "device", "d", "", "Serial device of the remote flasher")
	remoteReadCmd.Flags().StringVarP(&remoteCount, "sectors", "n", "", "Number of sectors to read (default: whole NAND)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVarP(&verboseLog, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", fmt.Sprintf("Configuration file (default: %s if present)", config.DefaultPath()))
	rootCmd.PersistentFlags().StringVarP(&boardName, "board", "b", "", "Board the programmer runs on (one of 'pi4', 'pi1b'), overrides the configuration")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Talk to a simulated console instead of the GPIO header")
	rootCmd.PersistentFlags().StringVar(&simConfig, "simulate-config", "0x01198010", "Flash configuration word reported by the simulated console")
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(eraseCmd)
	rootCmd.AddCommand(serverCmd)
	remoteCmd.AddCommand(remoteInfoCmd)
	remoteCmd.AddCommand(remoteReadCmd)
	rootCmd.AddCommand(remoteCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}

func parseNumber(s string) (uint32, error) {
	var err error
	var res uint64
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		res, err = strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid number")
		}
	} else {
		res, err = strconv.ParseUint(s, 10, 32)
		if err != nil {
			res, err = strconv.ParseUint(s, 16, 32)
			if err != nil {
				return 0, fmt.Errorf("invalid number")
			}
		}
	}
	return uint32(res), nil
}
