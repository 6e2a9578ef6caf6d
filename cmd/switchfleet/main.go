// Command switchfleet applies, inspects, and rolls back VLAN/port
// configuration across a fleet of network switches from a single
// version-controlled desired-state tree.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	inventoryPath string
	storePath     string
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "switchfleet",
	Short: "Fleet configuration tool for heterogeneous network switches",
	Long: `switchfleet applies desired VLAN and port configuration to a fleet
of network switches spanning multiple vendor command dialects, with a
git-backed configuration store, dry-run previews, and best-effort
rollback on failure.

Quick start:
  switchfleet apply --device core-switch-1 --file desired/core-switch-1.yaml
  switchfleet status --device core-switch-1
  switchfleet drift --device core-switch-1`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		handler := tint.NewHandler(os.Stderr, &tint.Options{Level: level})
		slog.SetDefault(slog.New(handler))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("switchfleet version %s (commit: %s, built: %s)\n", version, commit, buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&inventoryPath, "inventory", "inventory.yaml",
		"Path to the fleet inventory file")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", ".switchfleet",
		"Path to the configuration store's root directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(driftCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
