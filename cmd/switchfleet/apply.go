package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nanoncore/switchfleet/pkg/config"
	"github.com/nanoncore/switchfleet/pkg/executor"
	"github.com/nanoncore/switchfleet/pkg/model"
	"github.com/nanoncore/switchfleet/pkg/retry"
)

var (
	applyDeviceID        string
	applyFile            string
	applyDryRun          bool
	applyRollbackOnError bool
	applySaveToStore     bool
	applyUser            string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a desired-state document to a device",
	Long: `apply reads a desired-state YAML document, diffs it against the
device's live configuration, generates a vendor-specific command plan,
and executes it.

Example:
  switchfleet apply --device core-switch-1 --file desired/core-switch-1.yaml
  switchfleet apply --device core-switch-1 --file desired/core-switch-1.yaml --dry-run`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVar(&applyDeviceID, "device", "", "Device id from the inventory (required)")
	applyCmd.Flags().StringVar(&applyFile, "file", "", "Path to the desired-state YAML document (required)")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Preview the plan without executing it")
	applyCmd.Flags().BoolVar(&applyRollbackOnError, "rollback-on-error", true, "Attempt best-effort rollback if the main phase fails")
	applyCmd.Flags().BoolVar(&applySaveToStore, "save", true, "Save the applied desired state to the configuration store")
	applyCmd.Flags().StringVar(&applyUser, "user", os.Getenv("USER"), "Operator identity recorded in the audit trail")
	applyCmd.MarkFlagRequired("device")
	applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	inv, err := openInventory()
	if err != nil {
		return err
	}
	dc, err := deviceConfigFor(inv, applyDeviceID)
	if err != nil {
		return err
	}
	dev, err := newDevice(dc)
	if err != nil {
		return fmt.Errorf("constructing driver: %w", err)
	}

	rawDoc, desired, err := readDesiredStateFile(applyFile)
	if err != nil {
		return err
	}

	result := config.Validate(desired, string(dc.Type))
	if !result.OK() {
		for _, v := range result.Errors {
			slog.Error("validation failure", "rule", v.Rule, "message", v.Message)
		}
		return fmt.Errorf("desired state failed validation with %d error(s)", len(result.Errors))
	}
	for _, v := range result.Warnings {
		slog.Warn("validation warning", "rule", v.Rule, "message", v.Message)
	}

	connectPolicy := retry.ConnectPolicy()
	connectPolicy.Logger = slog.Default()
	if err := connectPolicy.Run(ctx, func() error { return dev.Connect(ctx) }); err != nil {
		return fmt.Errorf("connecting to %s: %w", applyDeviceID, err)
	}
	live, err := fetchLiveState(ctx, dev)
	dev.Disconnect(ctx)
	if err != nil {
		return err
	}

	diff := config.Diff(desired, live)
	if diff.Empty() {
		fmt.Println("no changes: device already matches desired state")
		return nil
	}

	plan, err := config.Generate(dc.Type, diff, config.GenerateOptions{})
	if err != nil {
		return fmt.Errorf("generating command plan: %w", err)
	}

	ex := executor.New()
	ex.Logger = slog.Default()
	res := ex.Run(ctx, applyDeviceID, dev, plan, diff, executor.Options{
		DryRun:          applyDryRun,
		RollbackOnError: applyRollbackOnError,
		AuditContext:    "cli apply",
		User:            applyUser,
		ConfigChecksum:  desired.Checksum,
	})

	printResult(res)

	if !res.DryRun && applySaveToStore && res.Success {
		s, err := openStore()
		if err != nil {
			return err
		}
		summary := fmt.Sprintf("apply %d vlan change(s)", len(diff.VLANChanges))
		if _, err := s.Save(ctx, applyDeviceID, rawDoc, summary, applyUser, model.SourceManual); err != nil {
			slog.Warn("failed to save desired state to store", "error", err)
		}
	}

	if !res.Success {
		return fmt.Errorf("apply failed: %v", res.Error)
	}
	return nil
}

func printResult(res *executor.Result) {
	if res.DryRun {
		fmt.Println("dry-run preview:")
	}
	for _, c := range res.ChangesMade {
		fmt.Println(" ", c)
	}
	for _, c := range res.CommandsExecuted {
		fmt.Println("  >", c)
	}
	if res.RollbackPerformed {
		fmt.Println("rollback performed (best effort)")
	}
	if res.RequiresHumanReview {
		fmt.Println("WARNING: this result requires human review")
	}
}
