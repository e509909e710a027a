package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "syncfm",
	Short: "SyncFM keeps one playback session coherent across many tabs.",
	Long: `SyncFM coordinates a single music playback session across independent
tabs: one tab owns audio output, every other tab mirrors its state and
relays transport commands to it over a shared broadcast bus.`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
