package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nanoncore/switchfleet/pkg/fleet"
)

var (
	statusDeviceID    string
	statusGroup       string
	statusConcurrency int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a device's health and current VLAN/port state",
	Long: `status reports one device's reachability, firmware, uptime, and
current VLAN/port counts.

With --group instead of --device, status fans out across every device in
the named group (or the whole fleet, for "all") concurrently, bounded by
--concurrency, and prints one line per device.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDeviceID, "device", "", "Device id from the inventory")
	statusCmd.Flags().StringVar(&statusGroup, "group", "", "Inventory group to fan out status checks across (use \"all\" for the whole fleet)")
	statusCmd.Flags().IntVar(&statusConcurrency, "concurrency", fleet.DefaultConcurrency, "Maximum devices contacted at once in --group mode")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if statusGroup != "" {
		return runStatusGroup(ctx)
	}
	if statusDeviceID == "" {
		return fmt.Errorf("one of --device or --group is required")
	}
	return runStatusOne(ctx, statusDeviceID, true)
}

func runStatusGroup(ctx context.Context) error {
	inv, err := openInventory()
	if err != nil {
		return err
	}
	ids := inv.DeviceIDs(statusGroup)
	if len(ids) == 0 {
		return fmt.Errorf("no devices in group %q", statusGroup)
	}

	results := fleet.Run(ctx, ids, statusConcurrency, func(taskCtx context.Context, deviceID string) error {
		return runStatusOne(taskCtx, deviceID, false)
	})

	failed := fleet.Failures(results)
	fmt.Printf("\n%d/%d device(s) reachable\n", len(ids)-len(failed), len(ids))
	for _, r := range failed {
		fmt.Printf("  %s: %v\n", r.DeviceID, r.Err)
	}
	return nil
}

func runStatusOne(ctx context.Context, deviceID string, verbose bool) error {
	inv, err := openInventory()
	if err != nil {
		return err
	}
	dc, err := deviceConfigFor(inv, deviceID)
	if err != nil {
		return err
	}
	dev, err := newDevice(dc)
	if err != nil {
		return fmt.Errorf("constructing driver: %w", err)
	}

	if err := dev.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", deviceID, err)
	}
	defer dev.Disconnect(ctx)

	health, err := dev.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	if !verbose {
		status := "unreachable"
		if health.Reachable {
			status = "reachable"
		}
		fmt.Printf("%-20s %-10s %s\n", deviceID, status, health.FirmwareVersion)
		if !health.Reachable {
			return fmt.Errorf("%s", health.Error)
		}
		return nil
	}

	fmt.Printf("device:   %s (%s)\n", deviceID, dc.Type)
	fmt.Printf("reachable: %v\n", health.Reachable)
	if health.FirmwareVersion != "" {
		fmt.Printf("firmware: %s\n", health.FirmwareVersion)
	}
	if health.Uptime != "" {
		fmt.Printf("uptime:   %s\n", health.Uptime)
	}
	if health.Error != "" {
		fmt.Printf("error:    %s\n", health.Error)
	}

	live, err := fetchLiveState(ctx, dev)
	if err != nil {
		return err
	}
	fmt.Printf("vlans:    %d\n", len(live.VLANs))
	fmt.Printf("ports:    %d\n", len(live.Ports))
	return nil
}
