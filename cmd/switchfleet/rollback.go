package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	rollbackDeviceID string
	rollbackRevision string
	rollbackUser     string
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore a device's desired state to a prior revision",
	Long: `rollback restores the desired-state file for a device to its content
at a prior git revision. The restore itself becomes a new commit, so
the store's history is never rewritten.

Use --revision to pick a specific commit (defaults to the previous
commit, HEAD~1). Pair with 'switchfleet apply' to push the restored
desired state to the device.`,
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackDeviceID, "device", "", "Device id (required)")
	rollbackCmd.Flags().StringVar(&rollbackRevision, "revision", "HEAD~1", "Git revision to restore from")
	rollbackCmd.Flags().StringVar(&rollbackUser, "user", "", "Operator identity recorded in the commit message")
	rollbackCmd.MarkFlagRequired("device")
}

func runRollback(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStore()
	if err != nil {
		return err
	}

	hash, err := s.Restore(ctx, rollbackDeviceID, rollbackRevision, rollbackUser)
	if err != nil {
		return fmt.Errorf("restoring %s from %s: %w", rollbackDeviceID, rollbackRevision, err)
	}
	fmt.Printf("restored %s from %s (new commit %s)\n", rollbackDeviceID, rollbackRevision, hash)
	fmt.Println("run 'switchfleet apply' to push this desired state to the device")
	return nil
}
