package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nanoncore/switchfleet/pkg/config"
)

var (
	diffDeviceID  string
	diffFile      string
	diffRevision1 string
	diffRevision2 string
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show the pending change set for a device",
	Long: `diff has two modes:

Without --revision1/--revision2: reads --file (a desired-state YAML
document), connects to the device, and shows the VLAN/port changes
that 'apply' would make.

With --revision1 and/or --revision2: shows the textual git diff of the
device's stored desired-state file between two store revisions,
without contacting the device.`,
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().StringVar(&diffDeviceID, "device", "", "Device id (required)")
	diffCmd.Flags().StringVar(&diffFile, "file", "", "Desired-state YAML document (live-diff mode)")
	diffCmd.Flags().StringVar(&diffRevision1, "revision1", "", "Older store revision (store-diff mode)")
	diffCmd.Flags().StringVar(&diffRevision2, "revision2", "", "Newer store revision (store-diff mode)")
	diffCmd.MarkFlagRequired("device")
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if diffRevision1 != "" || diffRevision2 != "" {
		s, err := openStore()
		if err != nil {
			return err
		}
		out, err := s.Diff(ctx, diffDeviceID, diffRevision1, diffRevision2)
		if err != nil {
			return fmt.Errorf("diffing store revisions: %w", err)
		}
		fmt.Print(out)
		return nil
	}

	if diffFile == "" {
		return fmt.Errorf("--file is required in live-diff mode")
	}

	inv, err := openInventory()
	if err != nil {
		return err
	}
	dc, err := deviceConfigFor(inv, diffDeviceID)
	if err != nil {
		return err
	}
	dev, err := newDevice(dc)
	if err != nil {
		return fmt.Errorf("constructing driver: %w", err)
	}

	_, desired, err := readDesiredStateFile(diffFile)
	if err != nil {
		return err
	}

	if err := dev.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", diffDeviceID, err)
	}
	live, err := fetchLiveState(ctx, dev)
	dev.Disconnect(ctx)
	if err != nil {
		return err
	}

	d := config.Diff(desired, live)
	if d.Empty() {
		fmt.Println("no changes")
		return nil
	}
	for _, c := range d.VLANChanges {
		if c.Type == "no-change" {
			continue
		}
		fmt.Printf("vlan %d: %s\n", c.ID, c.Type)
	}
	for _, c := range d.PortChanges {
		fmt.Printf("port %s: modify\n", c.ID)
	}
	return nil
}
