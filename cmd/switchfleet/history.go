package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	historyDeviceID string
	historyLimit    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List desired-state commit history for a device",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDeviceID, "device", "", "Device id; omit to list across all devices")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum commits to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStore()
	if err != nil {
		return err
	}
	commits, err := s.History(ctx, historyDeviceID, historyLimit)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}
	for _, c := range commits {
		fmt.Printf("%s  %s  %s  %s\n", c.ShortHash, c.Date.Format("2006-01-02T15:04:05Z07:00"), c.Author, c.Message)
	}
	return nil
}
