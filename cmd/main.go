package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var configDir string

var rootCmd = &cobra.Command{
	Use:   "alertsd",
	Short: "Predictive maintenance alert pipeline",
	Long: "alertsd ingests thermography, oil analysis and vibration measurements,\n" +
		"turns threshold breaches into alerts and tracks them to closure.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	// without a subcommand the HTTP service starts
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "configs", "directory holding config.yml")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(correlateCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
