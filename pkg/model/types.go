// Package model defines the normalized, typed representation of switch
// fleet state: VLANs, ports, desired state, diffs, command plans, stored
// configs and drift reports. The tool-facing desired-state document is an
// untyped map; everything below this package's boundary is typed.
package model

import "time"

// Action is the per-VLAN intent verb in a desired state.
type Action string

const (
	ActionEnsure Action = "ensure"
	ActionAbsent Action = "absent"
)

// Mode selects how a desired state's unlisted items are treated.
type Mode string

const (
	ModePatch Mode = "patch"
	ModeFull  Mode = "full"
)

// Speed is the enumerated set of port speeds the validator accepts.
type Speed string

const (
	SpeedAuto  Speed = "auto"
	Speed100M  Speed = "100M"
	Speed1G    Speed = "1G"
	Speed10G   Speed = "10G"
)

// PortMode is the VLAN tagging mode of a port.
type PortMode string

const (
	PortModeAccess PortMode = "access"
	PortModeTrunk  PortMode = "trunk"
	PortModeHybrid PortMode = "hybrid"
)

// ReservedVLANs are ids that may never be created or deleted.
var ReservedVLANs = map[int]struct{}{0: {}, 4095: {}}

// DefaultProtectedVLANs is the default set of ids an absent action may not delete.
var DefaultProtectedVLANs = map[int]struct{}{1: {}}

// VLANIntent is one VLAN entry of a desired state. It is a flat struct with
// an Action discriminator rather than a Go interface — untagged/tagged
// members only matter for Action == ActionEnsure.
type VLANIntent struct {
	ID       int
	Action   Action
	Name     string
	Untagged map[string]struct{}
	Tagged   map[string]struct{}
	IP       *IPInterface
}

// IPInterface is an optional VLAN IP interface (address + mask).
type IPInterface struct {
	Address string
	Mask    string
}

// PortIntent is one port entry of a desired state; every field is a
// pointer so "unspecified" and "explicitly cleared" are distinguishable.
type PortIntent struct {
	ID           string
	Enabled      *bool
	Speed        *Speed
	Duplex       *string
	Description  *string
	VLANMode     *PortMode
	NativeVLAN   *int
	AllowedVLANs []int
}

// DesiredState is the typed form of the tool-facing desired-state document.
type DesiredState struct {
	DeviceID      string
	SchemaVersion int
	Checksum      string
	Mode          Mode
	VLANs         map[int]VLANIntent
	Ports         map[string]PortIntent
	Settings      map[string]string
}

// LiveVLAN is a VLAN as read back from a device.
type LiveVLAN struct {
	ID       int
	Name     string
	Untagged map[string]struct{}
	Tagged   map[string]struct{}
	IP       *IPInterface
}

// LivePort is a port as read back from a device.
type LivePort struct {
	ID          string
	Enabled     *bool
	Speed       *Speed
	Duplex      *string
	Description *string
	VLANMode    *PortMode
	NativeVLAN  *int
}

// LiveState is the live VLAN/port state read from a device, keyed for
// lookup during diffing.
type LiveState struct {
	VLANs map[int]LiveVLAN
	Ports map[string]LivePort
}

// ChangeType classifies a single VLAN change in a diff result.
type ChangeType string

const (
	ChangeCreate   ChangeType = "create"
	ChangeModify   ChangeType = "modify"
	ChangeDelete   ChangeType = "delete"
	ChangeNoChange ChangeType = "no-change"
)

// VLANChange is one VLAN-level entry of a diff result.
type VLANChange struct {
	ID                int
	Type              ChangeType
	Name              string
	NameChanged        bool
	AddUntagged       []string
	RemoveUntagged    []string
	AddTagged         []string
	RemoveTagged      []string
	FullUntagged      []string // used for create: desired untagged set
	FullTagged        []string // used for create: desired tagged set
}

// PortChange carries only the fields that differ from live state.
type PortChange struct {
	ID          string
	Enabled     *bool
	Speed       *Speed
	Duplex      *string
	Description *string
	VLANMode    *PortMode
	NativeVLAN  *int
}

// DiffResult is the ordered output of the diff engine.
type DiffResult struct {
	VLANChanges []VLANChange
	PortChanges []PortChange
}

// Empty reports whether the diff carries no actionable changes.
func (d *DiffResult) Empty() bool {
	for _, c := range d.VLANChanges {
		if c.Type != ChangeNoChange {
			return false
		}
	}
	return len(d.PortChanges) == 0
}

// CommandPlan is the four-phase, ordered plan produced by the generator.
type CommandPlan struct {
	Pre      []string
	Main     []string
	Post     []string
	Rollback []string
}

// Empty reports whether the plan has no main-phase commands (used by the
// executor to decide whether a save/post-phase is warranted).
func (p *CommandPlan) Empty() bool {
	return len(p.Pre) == 0 && len(p.Main) == 0
}

// Source identifies who/what caused a stored config save.
type Source string

const (
	SourceManual   Source = "manual"
	SourceAutoSave Source = "auto_save"
	SourceProfile  Source = "profile"
	SourceSync     Source = "sync"
	SourceRestore  Source = "restore"
)

// StoredConfig is a desired state plus store metadata.
type StoredConfig struct {
	Desired   DesiredState
	Version   int
	Checksum  string
	UpdatedAt time.Time
	UpdatedBy string
	Source    Source
}

// DriftCategory classifies a drift item.
type DriftCategory string

const (
	DriftVLAN DriftCategory = "vlan"
	DriftPort DriftCategory = "port"
)

// DriftType classifies the nature of one drift item.
type DriftType string

const (
	DriftMissing  DriftType = "missing"
	DriftExtra    DriftType = "extra"
	DriftModified DriftType = "modified"
)

// DriftItem is a single detected discrepancy between desired and live state.
type DriftItem struct {
	Category    DriftCategory `json:"category"`
	ItemID      string        `json:"item_id"`
	Type        DriftType     `json:"drift_type"`
	Expected    any           `json:"expected"`
	Actual      any           `json:"actual"`
	Description string        `json:"details"`
}

// DriftReport is the persisted result of one drift check.
type DriftReport struct {
	DeviceID  string      `json:"device_id"`
	CheckedAt time.Time   `json:"checked_at"`
	InSync    bool        `json:"in_sync"`
	Items     []DriftItem `json:"items"`
}

// NewDesiredState returns an empty DesiredState with initialized maps.
func NewDesiredState(deviceID string) *DesiredState {
	return &DesiredState{
		DeviceID:      deviceID,
		SchemaVersion: 1,
		Mode:          ModePatch,
		VLANs:         make(map[int]VLANIntent),
		Ports:         make(map[string]PortIntent),
		Settings:      make(map[string]string),
	}
}
