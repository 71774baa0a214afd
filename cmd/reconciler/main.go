package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	var configPath string
	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Trade reconciliation engine",
		Long: `reconciler matches internal trade bookings against external confirmations,
classifies the breaks it finds and tracks them through an SLA-driven workflow.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")

	rootCmd.AddCommand(runCmd(&configPath))
	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(sweepCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
