package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nanoncore/switchfleet/pkg/config"
	"github.com/nanoncore/switchfleet/pkg/device"
	"github.com/nanoncore/switchfleet/pkg/inventory"
	"github.com/nanoncore/switchfleet/pkg/model"
	"github.com/nanoncore/switchfleet/pkg/store"
)

func openInventory() (*inventory.Inventory, error) {
	inv, err := inventory.Load(inventoryPath)
	if err != nil {
		return nil, fmt.Errorf("loading inventory: %w", err)
	}
	return inv, nil
}

func openStore() (*store.Store, error) {
	s, err := store.Open(storePath)
	if err != nil {
		return nil, fmt.Errorf("opening configuration store: %w", err)
	}
	return s, nil
}

func deviceConfigFor(inv *inventory.Inventory, deviceID string) (device.Config, error) {
	dc, ok := inv.Devices[deviceID]
	if !ok {
		return device.Config{}, fmt.Errorf("device %q not found in inventory", deviceID)
	}
	return device.Config{
		Type:                   device.Type(dc.Type),
		Name:                   deviceID,
		Host:                   dc.Host,
		Port:                   dc.Port,
		Username:               dc.Username,
		Password:               dc.EffectivePassword(),
		Timeout:                dc.Timeout,
		Retries:                dc.Retries,
		RetryDelay:             float64(dc.RetryDelay),
		EnablePasswordRequired: dc.EnablePasswordRequired,
		UseSCPWorkflow:         dc.UseSCPWorkflow,
		ConfigPaths:            dc.ConfigPaths,
	}, nil
}

func newDevice(cfg device.Config) (device.Device, error) {
	return device.DefaultFactory.CreateDevice(cfg)
}

// readDesiredStateFile loads a YAML desired-state document from path and
// returns both the raw map (for storage) and its parsed form.
func readDesiredStateFile(path string) (map[string]any, *model.DesiredState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	ds, err := config.Parse(doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, ds, nil
}

// parseStoredDocument parses a desired-state document as persisted by the
// configuration store (metadata header + config body, all in one flat
// YAML map) the same way readDesiredStateFile parses an operator-authored
// file, since pkg/config.Parse only cares about the keys it recognizes.
func parseStoredDocument(raw string) (map[string]any, *model.DesiredState, error) {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, nil, fmt.Errorf("parsing stored desired state: %w", err)
	}
	ds, err := config.Parse(doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, ds, nil
}

func fetchLiveState(ctx context.Context, dev device.Device) (*model.LiveState, error) {
	live, err := device.FetchLiveState(ctx, dev)
	if err != nil {
		return nil, fmt.Errorf("reading live state: %w", err)
	}
	return live, nil
}
