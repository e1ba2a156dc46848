package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "blip0",
	Short: "blip0 - multi-tenant blockchain monitoring control plane",
	Long: `blip0 is the control plane for a multi-tenant blockchain monitoring
platform. It owns the tenant, monitor, network and trigger configuration
in PostgreSQL, keeps denormalized monitor views warm in Redis for the
worker fleet, and broadcasts configuration changes over pub/sub.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"blip0 version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
}
