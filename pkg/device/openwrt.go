package device

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nanoncore/switchfleet/pkg/model"
	"github.com/nanoncore/switchfleet/pkg/switcherr"
	"github.com/nanoncore/switchfleet/pkg/transport"
)

// OpenWrtDevice drives a DSA-based OpenWrt switch over exec-per-command
// SSH, configuring VLANs through bridge-vlan UCI sections rather than a
// vendor CLI.
type OpenWrtDevice struct {
	cfg    Config
	sh     *transport.SSHExecTransport
	bridge string
}

func newOpenWrtDevice(cfg Config) Device {
	return &OpenWrtDevice{
		cfg: cfg,
		sh: transport.NewSSHExecTransport(transport.SSHExecConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
		}),
		bridge: "switch",
	}
}

func (d *OpenWrtDevice) Connect(ctx context.Context) error {
	if err := d.sh.Connect(ctx); err != nil {
		return switcherr.NewConnectionError(d.cfg.Host, d.cfg.Port, "ssh exec connect failed", err)
	}
	if out, err := d.Execute(ctx, "uci -q get network.switch.type 2>/dev/null && echo switch || ls /sys/class/net/br-lan/bridge 2>/dev/null && echo br-lan || echo switch"); err == nil {
		lines := strings.Split(strings.TrimSpace(out), "\n")
		d.bridge = lines[len(lines)-1]
	}
	return nil
}

func (d *OpenWrtDevice) Disconnect(ctx context.Context) error {
	return d.sh.Close()
}

func (d *OpenWrtDevice) HealthCheck(ctx context.Context) (Status, error) {
	out, err := d.Execute(ctx, "uptime")
	if err != nil {
		return Status{Reachable: false, Error: err.Error()}, nil
	}
	status := Status{Reachable: true}
	if m := regexp.MustCompile(`up\s+(.+?),\s+load`).FindStringSubmatch(out); m != nil {
		status.Uptime = strings.TrimSpace(m[1])
	} else {
		status.Uptime = strings.TrimSpace(out)
	}
	return status, nil
}

func (d *OpenWrtDevice) Execute(ctx context.Context, command string) (string, error) {
	out, err := d.sh.SendCommand(ctx, command)
	if err != nil {
		return out, switcherr.NewCommandError(command, out, err)
	}
	return strings.TrimSpace(out), nil
}

func (d *OpenWrtDevice) ExecuteBatch(ctx context.Context, commands []string, stopOnError bool) (BatchResult, error) {
	var results []CommandResult
	success := true
	var all strings.Builder
	for _, cmd := range commands {
		out, err := d.Execute(ctx, cmd)
		all.WriteString(out)
		all.WriteString("\n")
		cr := CommandResult{Command: cmd, Success: err == nil, Output: out}
		if err != nil {
			cr.Error = err.Error()
			success = false
		}
		results = append(results, cr)
		if err != nil && stopOnError {
			break
		}
	}
	return BatchResult{Success: success, Output: all.String(), Results: results}, nil
}

var uciKVPattern = regexp.MustCompile(`network\.(\w+)\.(\w+)='?([^']*)'?`)

// GetVLANs tries, in order, bridge-vlan UCI sections, tagged
// lanX.<vid> sub-interfaces, and — if neither yields anything — a
// synthetic default VLAN 1 covering the whole bridge.
func (d *OpenWrtDevice) GetVLANs(ctx context.Context) ([]model.LiveVLAN, error) {
	var vlans []model.LiveVLAN
	seen := make(map[int]struct{})

	if out, err := d.Execute(ctx, "uci show network | grep -E 'bridge-vlan|vlan'"); err == nil && out != "" {
		current := map[string]string{}
		currentID := -1
		flush := func() {
			if currentID >= 0 {
				v := uciSectionToVLAN(currentID, current)
				vlans = append(vlans, v)
				seen[currentID] = struct{}{}
			}
		}
		for _, line := range strings.Split(out, "\n") {
			m := uciKVPattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			section, key, value := m[1], m[2], m[3]
			if key == "vlan" {
				flush()
				id, _ := strconv.Atoi(value)
				current = map[string]string{"section": section}
				currentID = id
			} else if currentID >= 0 {
				current[key] = value
			}
		}
		flush()
	}

	if out, err := d.Execute(ctx, `ls -1 /sys/class/net/ | grep -E '\.[0-9]+$'`); err == nil && out != "" {
		for _, iface := range strings.Split(out, "\n") {
			idx := strings.LastIndex(iface, ".")
			if idx < 0 {
				continue
			}
			base, vidStr := iface[:idx], iface[idx+1:]
			vid, err := strconv.Atoi(vidStr)
			if err != nil {
				continue
			}
			if _, ok := seen[vid]; ok {
				continue
			}
			vlans = append(vlans, model.LiveVLAN{
				ID:       vid,
				Name:     fmt.Sprintf("VLAN%d", vid),
				Tagged:   map[string]struct{}{base: {}},
				Untagged: map[string]struct{}{},
			})
			seen[vid] = struct{}{}
		}
	}

	if len(vlans) == 0 {
		ports := d.detectPorts(ctx)
		untagged := make(map[string]struct{}, len(ports))
		for _, p := range ports {
			untagged[p] = struct{}{}
		}
		vlans = append(vlans, model.LiveVLAN{
			ID: 1, Name: "default",
			Untagged: untagged, Tagged: map[string]struct{}{},
		})
	}

	return vlans, nil
}

func uciSectionToVLAN(id int, d map[string]string) model.LiveVLAN {
	v := model.LiveVLAN{ID: id, Name: d["section"], Untagged: map[string]struct{}{}, Tagged: map[string]struct{}{}}
	if v.Name == "" {
		v.Name = fmt.Sprintf("VLAN%d", id)
	}
	for _, spec := range strings.Fields(d["ports"]) {
		if strings.Contains(spec, ":t") {
			v.Tagged[strings.ReplaceAll(spec, ":t", "")] = struct{}{}
		} else if spec != "" {
			v.Untagged[strings.TrimSuffix(spec, ":u*")] = struct{}{}
		}
	}
	return v
}

func (d *OpenWrtDevice) detectPorts(ctx context.Context) []string {
	out, err := d.Execute(ctx, "ls -1 /sys/class/net/ | grep -E '^lan[0-9]+$'")
	if err != nil {
		return nil
	}
	var ports []string
	for _, p := range strings.Split(strings.TrimSpace(out), "\n") {
		if p != "" {
			ports = append(ports, p)
		}
	}
	return ports
}

func (d *OpenWrtDevice) GetPorts(ctx context.Context) ([]model.LivePort, error) {
	names := d.detectPorts(ctx)
	var ports []model.LivePort
	for _, name := range names {
		enabled := false
		if state, err := d.Execute(ctx, fmt.Sprintf("cat /sys/class/net/%s/operstate", name)); err == nil {
			enabled = strings.TrimSpace(state) == "up"
		}
		var speedPtr *model.Speed
		if speedOut, err := d.Execute(ctx, fmt.Sprintf("cat /sys/class/net/%s/speed", name)); err == nil {
			if mbps, convErr := strconv.Atoi(strings.TrimSpace(speedOut)); convErr == nil {
				speed := mbpsToSpeed(mbps)
				speedPtr = &speed
			}
		}
		var duplexPtr *string
		if duplex, err := d.Execute(ctx, fmt.Sprintf("cat /sys/class/net/%s/duplex", name)); err == nil {
			d := strings.TrimSpace(duplex)
			duplexPtr = &d
		}
		ports = append(ports, model.LivePort{ID: name, Enabled: &enabled, Speed: speedPtr, Duplex: duplexPtr})
	}
	return ports, nil
}

func mbpsToSpeed(mbps int) model.Speed {
	switch {
	case mbps >= 10000:
		return model.Speed10G
	case mbps >= 1000:
		return model.Speed1G
	case mbps >= 100:
		return model.Speed100M
	default:
		return model.SpeedAuto
	}
}

func (d *OpenWrtDevice) CreateVLAN(ctx context.Context, vlan model.VLANIntent) (string, error) {
	if vlan.ID < 1 || vlan.ID > 4094 {
		return "", switcherr.NewValidationError([]string{fmt.Sprintf("invalid VLAN id %d", vlan.ID)})
	}
	section := fmt.Sprintf("vlan%d", vlan.ID)

	var commands []string
	if filtering, err := d.Execute(ctx, fmt.Sprintf("cat /sys/class/net/%s/bridge/vlan_filtering 2>/dev/null || echo -1", d.bridge)); err == nil && strings.TrimSpace(filtering) == "0" {
		commands = append(commands, fmt.Sprintf("uci set network.%s.vlan_filtering='1'", d.bridge))
	}

	commands = append(commands,
		fmt.Sprintf("uci set network.%s=bridge-vlan", section),
		fmt.Sprintf("uci set network.%s.device='%s'", section, d.bridge),
		fmt.Sprintf("uci set network.%s.vlan='%d'", section, vlan.ID),
	)

	var portsSpec []string
	for _, p := range setKeys(vlan.Tagged) {
		portsSpec = append(portsSpec, p+":t")
	}
	for _, p := range setKeys(vlan.Untagged) {
		portsSpec = append(portsSpec, p+":u*")
	}
	if len(portsSpec) > 0 {
		commands = append(commands, fmt.Sprintf("uci set network.%s.ports='%s'", section, strings.Join(portsSpec, " ")))
	} else {
		commands = append(commands, fmt.Sprintf("uci set network.%s.ports=''", section))
	}
	commands = append(commands, "uci commit network")

	result, err := d.ExecuteBatch(ctx, commands, true)
	if err != nil || !result.Success {
		return result.Output, batchErr(result, err)
	}

	reload, _ := d.Execute(ctx, "/etc/init.d/network reload 2>&1")
	return fmt.Sprintf("created VLAN %d on %s; reload: %s", vlan.ID, d.bridge, reload), nil
}

func (d *OpenWrtDevice) DeleteVLAN(ctx context.Context, id int) (string, error) {
	if id == 1 {
		return "", switcherr.NewValidationError([]string{"cannot delete default VLAN 1"})
	}
	if id < 1 || id > 4094 {
		return "", switcherr.NewValidationError([]string{fmt.Sprintf("invalid VLAN id %d", id)})
	}

	section := fmt.Sprintf("vlan%d", id)
	if _, err := d.Execute(ctx, fmt.Sprintf("uci get network.%s 2>/dev/null", section)); err != nil {
		out, findErr := d.Execute(ctx, fmt.Sprintf(`uci show network | grep -E "\.vlan='?%d'?" | head -1`, id))
		if findErr != nil || out == "" {
			return "", switcherr.NewResourceNotFoundError("vlan", strconv.Itoa(id))
		}
		if m := regexp.MustCompile(`network\.(\w+)\.vlan`).FindStringSubmatch(out); m != nil {
			section = m[1]
		} else {
			return "", switcherr.NewResourceNotFoundError("vlan", strconv.Itoa(id))
		}
	}

	commands := []string{fmt.Sprintf("uci delete network.%s", section), "uci commit network"}
	result, err := d.ExecuteBatch(ctx, commands, true)
	if err != nil || !result.Success {
		return result.Output, batchErr(result, err)
	}
	reload, _ := d.Execute(ctx, "/etc/init.d/network reload 2>&1")
	return fmt.Sprintf("deleted VLAN %d; reload: %s", id, reload), nil
}

func (d *OpenWrtDevice) ConfigurePort(ctx context.Context, port model.PortIntent) (string, error) {
	var results []string
	if port.Enabled != nil {
		verb := "down"
		if *port.Enabled {
			verb = "up"
		}
		out, err := d.Execute(ctx, fmt.Sprintf("ip link set %s %s", port.ID, verb))
		if err != nil {
			results = append(results, fmt.Sprintf("link %s: %v", verb, err))
		} else {
			results = append(results, fmt.Sprintf("port %s %s: %s", port.ID, verb, out))
		}
	}
	if port.Description != nil {
		d.Execute(ctx, fmt.Sprintf("uci set network.%s.description='%s'", port.ID, escapeUCI(*port.Description)))
		d.Execute(ctx, "uci commit network")
		results = append(results, fmt.Sprintf("description set: %s", *port.Description))
	}
	if port.Speed != nil {
		switch *port.Speed {
		case model.SpeedAuto:
			d.Execute(ctx, fmt.Sprintf("ethtool -s %s autoneg on 2>/dev/null", port.ID))
		default:
			speedMap := map[model.Speed]string{model.Speed100M: "100", model.Speed1G: "1000", model.Speed10G: "10000"}
			if mbps, ok := speedMap[*port.Speed]; ok {
				d.Execute(ctx, fmt.Sprintf("ethtool -s %s speed %s 2>/dev/null", port.ID, mbps))
			}
		}
		results = append(results, fmt.Sprintf("speed set: %s", *port.Speed))
	}
	return strings.Join(results, "; "), nil
}

func escapeUCI(v string) string {
	return strings.ReplaceAll(v, "'", `'\''`)
}

func (d *OpenWrtDevice) SaveConfig(ctx context.Context) (string, error) {
	return d.Execute(ctx, "uci commit")
}

// GetConfigFile/PutConfigFile/ReloadConfig satisfy SCPCapable.
func (d *OpenWrtDevice) GetConfigFile(ctx context.Context, name string) ([]byte, error) {
	path, ok := d.cfg.ConfigPaths[name]
	if !ok {
		return nil, switcherr.NewResourceNotFoundError("config_path", name)
	}
	return d.sh.GetFile(ctx, path)
}

func (d *OpenWrtDevice) PutConfigFile(ctx context.Context, name string, content []byte) error {
	path, ok := d.cfg.ConfigPaths[name]
	if !ok {
		return switcherr.NewResourceNotFoundError("config_path", name)
	}
	return d.sh.PutFile(ctx, path, content, "0644")
}

func (d *OpenWrtDevice) ReloadConfig(ctx context.Context) error {
	_, err := d.Execute(ctx, "/etc/init.d/network reload 2>&1")
	return err
}

func (d *OpenWrtDevice) Capabilities() Capabilities {
	return openWrtCapabilities
}

var openWrtCapabilities = Capabilities{
	SupportsBatchExecute:   true,
	SupportsSCP:            true,
	SupportsIPInterface:    false,
	RequiresEnablePassword: false,
	PortPattern:            `lan\d+`,
	SaveCommand:            "uci commit",
}
