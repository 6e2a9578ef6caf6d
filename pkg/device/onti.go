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

// ONTIDevice drives an ONTI S508CL switch (OpenWRT swconfig dialect) over
// exec-per-command SSH, configuring VLANs through switch_vlan UCI
// sections and laying file-oriented config retrieval over the same
// connection's SCP sink/source protocol.
type ONTIDevice struct {
	cfg Config
	sh  *transport.SSHExecTransport
}

func newONTIDevice(cfg Config) Device {
	return &ONTIDevice{
		cfg: cfg,
		sh: transport.NewSSHExecTransport(transport.SSHExecConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
		}),
	}
}

func (d *ONTIDevice) Connect(ctx context.Context) error {
	if err := d.sh.Connect(ctx); err != nil {
		return switcherr.NewConnectionError(d.cfg.Host, d.cfg.Port, "ssh exec connect failed", err)
	}
	return nil
}

func (d *ONTIDevice) Disconnect(ctx context.Context) error {
	return d.sh.Close()
}

func (d *ONTIDevice) HealthCheck(ctx context.Context) (Status, error) {
	out, err := d.Execute(ctx, "uptime")
	if err != nil {
		return Status{Reachable: false, Error: err.Error()}, nil
	}
	status := Status{Reachable: true, Uptime: strings.TrimSpace(out)}
	if rel, err := d.Execute(ctx, "cat /etc/openwrt_release"); err == nil {
		for _, line := range strings.Split(rel, "\n") {
			if strings.Contains(line, "DISTRIB_DESCRIPTION") {
				status.FirmwareVersion = strings.Trim(strings.SplitN(line, "=", 2)[1], `'"`)
				break
			}
		}
	}
	return status, nil
}

func (d *ONTIDevice) Execute(ctx context.Context, command string) (string, error) {
	out, err := d.sh.SendCommand(ctx, command)
	if err != nil {
		return out, switcherr.NewCommandError(command, out, err)
	}
	return strings.TrimSpace(out), nil
}

func (d *ONTIDevice) ExecuteBatch(ctx context.Context, commands []string, stopOnError bool) (BatchResult, error) {
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

var ontiSwitchVLANPattern = regexp.MustCompile(`network\.(@switch_vlan\[\d+\]|[\w]+)\.(\w+)='?([^']*)'?`)

func (d *ONTIDevice) GetVLANs(ctx context.Context) ([]model.LiveVLAN, error) {
	out, err := d.Execute(ctx, "uci show network")
	if err != nil {
		return nil, err
	}

	var vlans []model.LiveVLAN
	current := map[string]string{}
	flush := func() {
		if len(current) > 0 {
			vlans = append(vlans, ontiDictToVLAN(current))
		}
	}
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "switch_vlan") {
			continue
		}
		m := ontiSwitchVLANPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key, value := m[2], m[3]
		if key == "vlan" {
			flush()
			current = map[string]string{"vlan": value}
		} else {
			current[key] = value
		}
	}
	flush()
	return vlans, nil
}

func ontiDictToVLAN(d map[string]string) model.LiveVLAN {
	id, _ := strconv.Atoi(d["vlan"])
	name := d["description"]
	if name == "" {
		name = fmt.Sprintf("VLAN%d", id)
	}
	v := model.LiveVLAN{ID: id, Name: name, Untagged: map[string]struct{}{}, Tagged: map[string]struct{}{}}
	for _, p := range strings.Fields(d["ports"]) {
		if strings.HasSuffix(p, "t") {
			v.Tagged[strings.TrimSuffix(p, "t")] = struct{}{}
		} else {
			v.Untagged[p] = struct{}{}
		}
	}
	return v
}

var ontiSwconfigPortPattern = regexp.MustCompile(`Port (\d+):`)

func (d *ONTIDevice) GetPorts(ctx context.Context) ([]model.LivePort, error) {
	out, err := d.Execute(ctx, "swconfig dev switch0 show")
	if err != nil {
		return nil, err
	}
	var ports []model.LivePort
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(strings.ToLower(line), "link:") {
			continue
		}
		m := ontiSwconfigPortPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		enabled := strings.Contains(strings.ToLower(line), "up")
		ports = append(ports, model.LivePort{ID: fmt.Sprintf("port%s", m[1]), Enabled: &enabled})
	}
	return ports, nil
}

func (d *ONTIDevice) CreateVLAN(ctx context.Context, vlan model.VLANIntent) (string, error) {
	commands := []string{
		"uci add network switch_vlan",
		"uci set network.@switch_vlan[-1].device='switch0'",
		fmt.Sprintf("uci set network.@switch_vlan[-1].vlan='%d'", vlan.ID),
	}
	var ports []string
	ports = append(ports, setKeys(vlan.Untagged)...)
	for _, p := range setKeys(vlan.Tagged) {
		ports = append(ports, p+"t")
	}
	if len(ports) > 0 {
		commands = append(commands, fmt.Sprintf("uci set network.@switch_vlan[-1].ports='%s'", strings.Join(ports, " ")))
	}
	commands = append(commands, "uci commit network")

	result, err := d.ExecuteBatch(ctx, commands, true)
	return result.Output, batchErr(result, err)
}

func (d *ONTIDevice) DeleteVLAN(ctx context.Context, id int) (string, error) {
	out, err := d.Execute(ctx, "uci show network | grep switch_vlan")
	if err != nil {
		return "", switcherr.NewResourceNotFoundError("vlan", strconv.Itoa(id))
	}
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, fmt.Sprintf(".vlan='%d'", id)) && !strings.Contains(line, fmt.Sprintf(".vlan=%d", id)) {
			continue
		}
		m := regexp.MustCompile(`network\.(\S+)\.vlan`).FindStringSubmatch(line)
		if m == nil {
			continue
		}
		result, err := d.ExecuteBatch(ctx, []string{
			fmt.Sprintf("uci delete network.%s", m[1]),
			"uci commit network",
		}, true)
		return result.Output, batchErr(result, err)
	}
	return "", switcherr.NewResourceNotFoundError("vlan", strconv.Itoa(id))
}

// ConfigurePort mirrors the original's stance: port-level configuration
// is not fully supported on the swconfig dialect.
func (d *ONTIDevice) ConfigurePort(ctx context.Context, port model.PortIntent) (string, error) {
	return "", fmt.Errorf("port configuration not supported for ONTI")
}

func (d *ONTIDevice) SaveConfig(ctx context.Context) (string, error) {
	return d.Execute(ctx, "uci commit")
}

func (d *ONTIDevice) GetConfigFile(ctx context.Context, name string) ([]byte, error) {
	path, ok := d.cfg.ConfigPaths[name]
	if !ok {
		path = fmt.Sprintf("/etc/config/%s", name)
	}
	return d.sh.GetFile(ctx, path)
}

func (d *ONTIDevice) PutConfigFile(ctx context.Context, name string, content []byte) error {
	path, ok := d.cfg.ConfigPaths[name]
	if !ok {
		path = fmt.Sprintf("/etc/config/%s", name)
	}
	return d.sh.PutFile(ctx, path, content, "0644")
}

func (d *ONTIDevice) ReloadConfig(ctx context.Context) error {
	_, err := d.Execute(ctx, "/etc/init.d/network restart")
	return err
}

func (d *ONTIDevice) Capabilities() Capabilities {
	return ontiCapabilities
}

var ontiCapabilities = Capabilities{
	SupportsBatchExecute:   true,
	SupportsSCP:            true,
	SupportsIPInterface:    false,
	RequiresEnablePassword: false,
	PortPattern:            `\d+`,
	SaveCommand:            "uci commit",
}
