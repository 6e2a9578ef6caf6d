// Package device defines the capability interface that every vendor
// driver implements, and the factory that constructs the right driver
// for a device type. Callers test capability flags rather than switching
// on device type wherever the operation permits it; only the command
// generator is allowed to branch on vendor because command syntax itself
// is vendor-specific.
package device

import (
	"context"

	"github.com/nanoncore/switchfleet/pkg/model"
)

// Type identifies a vendor/dialect pairing understood by the factory.
type Type string

const (
	TypeBrocade  Type = "brocade"
	TypeONTI     Type = "onti"
	TypeOpenWrt  Type = "openwrt"
	TypeZyxel    Type = "zyxel"      // legacy web-form dialect
	TypeZyxelCLI Type = "zyxel-cli"  // SSH interactive-shell dialect
)

// Config carries the per-device connection parameters the factory needs
// to build a driver; it is the typed projection of one inventory entry.
type Config struct {
	Type                  Type
	Name                  string
	Host                  string
	Port                  int
	Username              string
	Password              string
	Timeout               int
	Retries               int
	RetryDelay            float64
	EnablePasswordRequired bool
	UseSCPWorkflow        bool
	ConfigPaths           map[string]string
}

// Capabilities describes what a connected device supports so callers can
// branch on behavior rather than on vendor identity.
type Capabilities struct {
	SupportsBatchExecute bool
	SupportsSCP          bool
	SupportsIPInterface  bool
	RequiresEnablePassword bool
	PortPattern          string // regexp source for validator use
	SaveCommand          string
}

// Device is the capability interface every vendor driver implements. A
// Device is a scoped resource: whoever calls Connect must call
// Disconnect on every control path, including error returns.
type Device interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) (Status, error)

	Execute(ctx context.Context, command string) (string, error)
	ExecuteBatch(ctx context.Context, commands []string, stopOnError bool) (BatchResult, error)

	GetVLANs(ctx context.Context) ([]model.LiveVLAN, error)
	GetPorts(ctx context.Context) ([]model.LivePort, error)

	CreateVLAN(ctx context.Context, vlan model.VLANIntent) (string, error)
	DeleteVLAN(ctx context.Context, id int) (string, error)
	ConfigurePort(ctx context.Context, port model.PortIntent) (string, error)
	SaveConfig(ctx context.Context) (string, error)

	Capabilities() Capabilities
}

// SCPCapable is implemented by devices whose Capabilities().SupportsSCP is
// true; callers type-assert to it after checking the flag.
type SCPCapable interface {
	GetConfigFile(ctx context.Context, name string) ([]byte, error)
	PutConfigFile(ctx context.Context, name string, content []byte) error
	ReloadConfig(ctx context.Context) error
}

// FetchLiveState reads back a device's full VLAN/port state in the keyed
// shape the diff engine and the executor's audit trail both need.
func FetchLiveState(ctx context.Context, dev Device) (*model.LiveState, error) {
	vlans, err := dev.GetVLANs(ctx)
	if err != nil {
		return nil, err
	}
	ports, err := dev.GetPorts(ctx)
	if err != nil {
		return nil, err
	}
	live := &model.LiveState{
		VLANs: make(map[int]model.LiveVLAN, len(vlans)),
		Ports: make(map[string]model.LivePort, len(ports)),
	}
	for _, v := range vlans {
		live.VLANs[v.ID] = v
	}
	for _, p := range ports {
		live.Ports[p.ID] = p
	}
	return live, nil
}

// Status is the health-probe result.
type Status struct {
	Reachable       bool
	Uptime          string
	FirmwareVersion string
	Error           string
}

// CommandResult is one command's outcome within a batch.
type CommandResult struct {
	Command string
	Success bool
	Output  string
	Error   string
}

// BatchResult is the outcome of ExecuteBatch.
type BatchResult struct {
	Success bool
	Output  string
	Results []CommandResult
}
