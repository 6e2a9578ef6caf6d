package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nanoncore/switchfleet/pkg/store"
)

var driftDeviceID string

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Check a device's live state against its stored desired state",
	Long: `drift reads the device's last-saved desired state from the
configuration store, connects to the device, compares VLAN membership,
and persists a timestamped drift report plus a last-known live-state
snapshot.`,
	RunE: runDrift,
}

func init() {
	driftCmd.Flags().StringVar(&driftDeviceID, "device", "", "Device id (required)")
	driftCmd.MarkFlagRequired("device")
}

func runDrift(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStore()
	if err != nil {
		return err
	}
	stored, err := s.Show(ctx, driftDeviceID, "HEAD")
	if err != nil {
		return fmt.Errorf("reading stored desired state for %s: %w", driftDeviceID, err)
	}

	_, desired, err := parseStoredDocument(stored)
	if err != nil {
		return err
	}

	inv, err := openInventory()
	if err != nil {
		return err
	}
	dc, err := deviceConfigFor(inv, driftDeviceID)
	if err != nil {
		return err
	}
	dev, err := newDevice(dc)
	if err != nil {
		return fmt.Errorf("constructing driver: %w", err)
	}

	if err := dev.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", driftDeviceID, err)
	}
	live, err := fetchLiveState(ctx, dev)
	dev.Disconnect(ctx)
	if err != nil {
		return err
	}

	report := store.ComputeDrift(driftDeviceID, desired, live)

	if err := s.SaveLastKnown(driftDeviceID, live); err != nil {
		fmt.Printf("warning: failed to save last-known state: %v\n", err)
	}
	path, err := s.SaveDriftReport(report)
	if err != nil {
		fmt.Printf("warning: failed to save drift report: %v\n", err)
	} else {
		fmt.Printf("drift report saved to %s\n", path)
	}

	if report.InSync {
		fmt.Println("in sync")
		return nil
	}
	fmt.Printf("%d drift item(s):\n", len(report.Items))
	for _, item := range report.Items {
		fmt.Printf("  [%s] %s %s: %s\n", item.Category, item.ItemID, item.Type, item.Description)
	}
	return nil
}
