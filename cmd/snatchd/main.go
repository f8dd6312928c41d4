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
	Use:   "snatchd",
	Short: "snatchd - capacity-snatching compute orchestrator",
	Long: `snatchd is a multi-tenant compute orchestrator built around a
capacity-snatching task engine: a persistent, resumable scheduler that
keeps attempting instance launches against shapes that are usually out
of capacity, rotating availability domains and backing off against
rate limits, then notifies and optionally binds DNS when one lands.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"snatchd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serverCmd)
}
