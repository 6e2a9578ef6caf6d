package device

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/nanoncore/switchfleet/pkg/model"
	"github.com/nanoncore/switchfleet/pkg/switcherr"
	"github.com/nanoncore/switchfleet/pkg/transport"
)

// Zyxel legacy web dispatcher cmd values, named after the GS1900 page set.
const (
	cmdVLANList           = 1282
	cmdVLANAdd            = 1284
	cmdVLANAddSubmit      = 1285
	cmdPortVLAN           = 1290
	cmdPortVLANSubmit     = 1291
	cmdVLANMembership     = 1293
	cmdVLANMembershipSubmit = 1294
)

// VLAN membership radio-button values on the membership page.
const (
	membershipExcluded = 0
	membershipForbidden = 1
	membershipTagged   = 2
	membershipUntagged = 3
)

const zyxelWebPortCount = 34 // 26 ports + 8 LAGs

// ZyxelWebDevice drives a Zyxel GS1900 switch over its legacy web CGI
// interface: every mutation first fetches a page to harvest an XSSID
// token (and, for membership changes, every other port's current
// setting), then POSTs a full-form replay back to the dispatcher.
type ZyxelWebDevice struct {
	cfg Config
	web *transport.WebFormTransport
}

func newZyxelWebDevice(cfg Config) Device {
	return &ZyxelWebDevice{
		cfg: cfg,
		web: transport.NewWebFormTransport(transport.WebFormConfig{
			Host:     cfg.Host,
			Username: cfg.Username,
			Password: cfg.Password,
		}),
	}
}

func (d *ZyxelWebDevice) Connect(ctx context.Context) error {
	if err := d.web.Connect(ctx); err != nil {
		return switcherr.NewConnectionError(d.cfg.Host, 80, "web login failed", err)
	}
	return nil
}

func (d *ZyxelWebDevice) Disconnect(ctx context.Context) error {
	return d.web.Close()
}

func (d *ZyxelWebDevice) HealthCheck(ctx context.Context) (Status, error) {
	if _, err := d.web.FetchXSSID(ctx, cmdVLANList); err != nil {
		return Status{Reachable: false, Error: err.Error()}, nil
	}
	return Status{Reachable: true}, nil
}

// Execute is not meaningful for the web-form dialect; VLAN/port state is
// always mutated through named operations below, never raw commands.
func (d *ZyxelWebDevice) Execute(ctx context.Context, command string) (string, error) {
	return "", fmt.Errorf("raw command execution not supported on the web dialect")
}

func (d *ZyxelWebDevice) ExecuteBatch(ctx context.Context, commands []string, stopOnError bool) (BatchResult, error) {
	return BatchResult{}, fmt.Errorf("batch execution not supported on the web dialect")
}

// GetVLANs is not implemented over the web dialect; the read path for
// this device is the sibling SSH CLI in a hybrid deployment. Returning an
// empty set keeps the Device interface total without fabricating state.
func (d *ZyxelWebDevice) GetVLANs(ctx context.Context) ([]model.LiveVLAN, error) {
	return nil, nil
}

func (d *ZyxelWebDevice) GetPorts(ctx context.Context) ([]model.LivePort, error) {
	return nil, nil
}

func (d *ZyxelWebDevice) CreateVLAN(ctx context.Context, vlan model.VLANIntent) (string, error) {
	xssid, err := d.web.FetchXSSID(ctx, cmdVLANAdd)
	if err != nil {
		return "", switcherr.NewCommandError("vlan add page", "", err)
	}
	name := vlan.Name
	if name == "" {
		name = fmt.Sprintf("VLAN%d", vlan.ID)
	}
	form := url.Values{
		"XSSID":      {xssid},
		"vlanlist":   {strconv.Itoa(vlan.ID)},
		"vlanAction": {"0"},
		"name":       {name},
		"cmd":        {strconv.Itoa(cmdVLANAddSubmit)},
		"sysSubmit":  {"Apply"},
	}
	if _, err := d.web.Submit(ctx, form); err != nil {
		return "", switcherr.NewCommandError("vlan add submit", "", err)
	}
	return fmt.Sprintf("created VLAN %d", vlan.ID), nil
}

// DeleteVLAN is deliberately unimplemented: the legacy web UI deletes
// VLANs via a checkbox-list-plus-delete-button flow whose page structure
// is not captured here, matching the reference handler's own stance.
func (d *ZyxelWebDevice) DeleteVLAN(ctx context.Context, id int) (string, error) {
	return "", fmt.Errorf("VLAN deletion not implemented for the Zyxel web dialect")
}

// ConfigurePort sets PVID/trunk mode on CMD_PORT_VLAN, then drives
// per-VLAN membership updates on CMD_VLAN_MEMBERSHIP for the port's
// native VLAN (access) or allowed VLANs (trunk).
func (d *ZyxelWebDevice) ConfigurePort(ctx context.Context, port model.PortIntent) (string, error) {
	portIdx, err := zyxelWebPortIndex(port.ID)
	if err != nil {
		return "", switcherr.NewValidationError([]string{err.Error()})
	}

	var results []string

	if port.NativeVLAN != nil || port.VLANMode != nil {
		xssid, err := d.web.FetchXSSID(ctx, cmdPortVLAN)
		if err != nil {
			return "", switcherr.NewCommandError("port vlan page", "", err)
		}
		form := url.Values{
			"XSSID": {xssid},
			"cmd":   {strconv.Itoa(cmdPortVLANSubmit)},
			"port":  {port.ID},
		}
		if port.NativeVLAN != nil {
			form.Set("pvid", strconv.Itoa(*port.NativeVLAN))
		}
		if port.VLANMode != nil {
			if *port.VLANMode == model.PortModeTrunk {
				form.Set("trunk", "1")
			} else if *port.VLANMode == model.PortModeAccess {
				form.Set("trunk", "0")
			}
		}
		if _, err := d.web.Submit(ctx, form); err != nil {
			return "", switcherr.NewCommandError("port vlan submit", "", err)
		}
		results = append(results, fmt.Sprintf("port %s PVID/trunk configured", port.ID))
	}

	if port.VLANMode != nil && *port.VLANMode == model.PortModeAccess && port.NativeVLAN != nil {
		if err := d.setPortVLANMembership(ctx, portIdx, *port.NativeVLAN, membershipUntagged); err != nil {
			return "", err
		}
		results = append(results, fmt.Sprintf("port %s set to untagged on VLAN %d", port.ID, *port.NativeVLAN))
	} else if len(port.AllowedVLANs) > 0 {
		membership := membershipUntagged
		if port.VLANMode != nil && *port.VLANMode == model.PortModeTrunk {
			membership = membershipTagged
		}
		for _, vid := range port.AllowedVLANs {
			if err := d.setPortVLANMembership(ctx, portIdx, vid, membership); err != nil {
				return "", err
			}
			results = append(results, fmt.Sprintf("port %s set on VLAN %d", port.ID, vid))
		}
	}

	return strings.Join(results, "; "), nil
}

var xssidFieldPattern = regexp.MustCompile(`name="XSSID"\s+value="([^"]+)"`)
var vlanModeFieldPattern = regexp.MustCompile(`name="vlanMode_(\d+)"\s+value="(\d+)"`)
var membershipCheckedPattern = regexp.MustCompile(`(?i)name="membership_(\d+)"[^>]*value="(\d+)"[^>]*checked`)

// setPortVLANMembership fetches the membership page for vlanID, extracts
// the current per-port radio state, and POSTs a full-form replay that
// only changes portIdx — the device rejects partial membership updates.
func (d *ZyxelWebDevice) setPortVLANMembership(ctx context.Context, portIdx, vlanID, membership int) error {
	page, err := d.web.FetchPage(ctx, cmdVLANMembership, fmt.Sprintf("vid=%d", vlanID))
	if err != nil {
		return switcherr.NewCommandError("vlan membership page", "", err)
	}

	m := xssidFieldPattern.FindStringSubmatch(page)
	if m == nil {
		return fmt.Errorf("could not find XSSID token on membership page for VLAN %d", vlanID)
	}
	xssid := m[1]

	current := make(map[int]string)
	for _, m := range vlanModeFieldPattern.FindAllStringSubmatch(page, -1) {
		idx, _ := strconv.Atoi(m[1])
		current[idx] = m[2]
	}
	for _, m := range membershipCheckedPattern.FindAllStringSubmatch(page, -1) {
		idx, _ := strconv.Atoi(m[1])
		current[idx] = m[2]
	}

	form := url.Values{
		"XSSID": {xssid},
		"cmd":   {strconv.Itoa(cmdVLANMembershipSubmit)},
		"vid":   {strconv.Itoa(vlanID)},
	}
	for idx := 0; idx < zyxelWebPortCount; idx++ {
		val := "0"
		if existing, ok := current[idx]; ok {
			val = existing
		}
		if idx == portIdx {
			val = strconv.Itoa(membership)
		}
		form.Set(fmt.Sprintf("vlanMode_%d", idx), val)
		form.Set(fmt.Sprintf("membership_%d", idx), val)
	}

	if _, err := d.web.Submit(ctx, form); err != nil {
		return switcherr.NewCommandError("vlan membership submit", "", err)
	}
	return nil
}

// zyxelWebPortIndex converts a port identifier ("1".."26", "lag1".."lag8")
// to its 0-based form-field index.
func zyxelWebPortIndex(id string) (int, error) {
	if strings.HasPrefix(id, "lag") {
		n, err := strconv.Atoi(strings.TrimPrefix(id, "lag"))
		if err != nil {
			return 0, fmt.Errorf("invalid LAG port name: %s", id)
		}
		return 25 + n, nil
	}
	n, err := strconv.Atoi(id)
	if err != nil || n < 1 || n > 26 {
		return 0, fmt.Errorf("invalid port number: %s", id)
	}
	return n - 1, nil
}

// SaveConfig is a no-op: the legacy web dialect auto-saves every mutation.
func (d *ZyxelWebDevice) SaveConfig(ctx context.Context) (string, error) {
	return "Zyxel web dialect auto-saves configuration changes", nil
}

func (d *ZyxelWebDevice) Capabilities() Capabilities {
	return zyxelWebCapabilities
}

var zyxelWebCapabilities = Capabilities{
	SupportsBatchExecute:   false,
	SupportsSCP:            false,
	SupportsIPInterface:    false,
	RequiresEnablePassword: false,
	PortPattern:            `\d+`,
	SaveCommand:            "",
}
