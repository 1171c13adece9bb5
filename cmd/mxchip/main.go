package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mxchip",
	Short: "mxchip - fixed-target chip collection CLI",
	Long: `mxchip drives fixed-target chip collections: select blocks on a chip,
build validated collection tasks and queue them for the beamline collector.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7466", "API server address")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(attrCmd)
	rootCmd.AddCommand(defaultsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(chipCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
