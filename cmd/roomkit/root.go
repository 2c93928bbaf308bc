package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "roomkit",
	Short: "Composable feature modules for a hosted multiplayer room",
	Long: `roomkit runs feature modules on top of one shared multiplayer room.

The room runtime connects over a websocket and forwards its events; modules
react to them, register chat commands gated by role, and extend players with
properties of their own.

Quick start:
  roomkit serve     # Accept a host runtime on /ws
  roomkit repl      # Play the host yourself from the terminal

Tools:
  roomkit validate  # Check a configuration file
  roomkit hash      # Hash a role password for auth.passwords`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "roomkit.yaml", "config file path")
}
