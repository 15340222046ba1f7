// Package cmd wires the zeron CLI: serve, migrate, and version.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zeron",
	Short: "Zeron chat backend",
	Long: `Zeron is a conversational AI backend: streaming chat turns with
tool-augmented generation, durable resumable output streams, and
credit-metered tool usage.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
