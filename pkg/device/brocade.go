package device

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nanoncore/switchfleet/pkg/model"
	"github.com/nanoncore/switchfleet/pkg/switcherr"
	"github.com/nanoncore/switchfleet/pkg/transport"
)

// brocadeErrorPatterns and brocadeInfoPatterns implement the Brocade
// error-recognition rule: a line is an error if it matches an error
// pattern, unless the same line also matches an info pattern (those are
// success confirmations that happen to share keywords like "member").
var brocadeErrorPatterns = []string{
	"invalid input", "error:", "error -", "not found", "please disable",
	"please use a different", "cannot ", "denied", "failed",
	"incomplete command", "is currently reserved",
}

var brocadeInfoPatterns = []string{
	"already a member", "added untagged port", "added tagged port",
	"removed untagged port", "removed tagged port",
}

var brocadePortHeaderPattern = regexp.MustCompile(`^(\d+)/(\d+)/(\d+)$`)
var brocadeVLANHeaderPattern = regexp.MustCompile(`(?i)^PORT-VLAN\s+(\d+)(?:,\s*Name\s+(\S+))?`)
var brocadeModulePattern = regexp.MustCompile(`\(U\d+/M(\d+)\)`)
var brocadeModuleStrip = regexp.MustCompile(`\([^)]+\)`)

// brocadeLineError returns the offending error line, or "" if none.
func brocadeLineError(output string) string {
	lower := strings.ToLower(output)
	for _, pat := range brocadeErrorPatterns {
		if !strings.Contains(lower, pat) {
			continue
		}
		for _, line := range strings.Split(output, "\n") {
			lineLower := strings.ToLower(line)
			if !strings.Contains(lineLower, pat) {
				continue
			}
			isInfo := false
			for _, info := range brocadeInfoPatterns {
				if strings.Contains(lineLower, info) {
					isInfo = true
					break
				}
			}
			if !isInfo {
				return strings.TrimSpace(line)
			}
		}
	}
	return ""
}

// BrocadeDevice drives a Brocade FCX switch over prompt-driven telnet.
type BrocadeDevice struct {
	cfg Config
	tn  *transport.TelnetTransport
}

func newBrocadeDevice(cfg Config) Device {
	return &BrocadeDevice{
		tn: transport.NewTelnetTransport(transport.TelnetConfig{
			Host:           cfg.Host,
			Port:           cfg.Port,
			EnablePassword: cfg.Password,
		}),
		cfg: cfg,
	}
}

func (d *BrocadeDevice) Connect(ctx context.Context) error {
	if err := d.tn.Connect(ctx); err != nil {
		return switcherr.NewConnectionError(d.cfg.Host, d.cfg.Port, "telnet connect failed", err)
	}
	if d.cfg.EnablePasswordRequired {
		if err := d.tn.EnterPrivileged(ctx); err != nil {
			d.tn.Close()
			return switcherr.NewConnectionError(d.cfg.Host, d.cfg.Port, "enable mode failed", err)
		}
	}
	return nil
}

func (d *BrocadeDevice) Disconnect(ctx context.Context) error {
	return d.tn.Close()
}

func (d *BrocadeDevice) HealthCheck(ctx context.Context) (Status, error) {
	out, err := d.Execute(ctx, "show version")
	if err != nil {
		return Status{Reachable: false, Error: err.Error()}, nil
	}
	status := Status{Reachable: true}
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "uptime") {
			status.Uptime = strings.TrimSpace(line)
		}
		if strings.Contains(line, "SW:") || strings.Contains(lower, "software") {
			status.FirmwareVersion = strings.TrimSpace(line)
		}
	}
	return status, nil
}

func (d *BrocadeDevice) Execute(ctx context.Context, command string) (string, error) {
	out, err := d.tn.SendCommand(ctx, command)
	if err != nil {
		if transport.IsRetryable(err) {
			return out, switcherr.NewCommandError(command, out, err)
		}
		return out, switcherr.NewCommandError(command, out, err)
	}
	if errLine := brocadeLineError(out); errLine != "" {
		return out, switcherr.NewProtocolError(command, errLine)
	}
	return out, nil
}

// ExecuteBatch joins commands with newlines in one payload and splits the
// consolidated response back into per-command results by scanning for
// command-echo lines, per the Brocade batch-attribution rule.
func (d *BrocadeDevice) ExecuteBatch(ctx context.Context, commands []string, stopOnError bool) (BatchResult, error) {
	if len(commands) == 0 {
		return BatchResult{Success: true}, nil
	}
	out, sendErr := d.tn.SendBatch(ctx, commands)
	results := splitBrocadeBatchOutput(out, commands, stopOnError)

	success := true
	for _, r := range results {
		if !r.Success {
			success = false
			break
		}
	}
	if sendErr != nil {
		return BatchResult{Success: false, Output: out, Results: results}, switcherr.NewCommandError("batch", out, sendErr)
	}
	return BatchResult{Success: success, Output: out, Results: results}, nil
}

func splitBrocadeBatchOutput(output string, commands []string, stopOnError bool) []CommandResult {
	var results []CommandResult
	lines := strings.Split(output, "\n")

	currentIdx := 0
	var currentLines []string
	promptLine := regexp.MustCompile(`Router[#>(\[]`)

	flush := func(idx int) {
		cmdOutput := strings.Join(currentLines, "\n")
		errLine := brocadeLineError(cmdOutput)
		results = append(results, CommandResult{
			Command: commands[idx],
			Success: errLine == "",
			Output:  strings.TrimSpace(cmdOutput),
			Error:   errLine,
		})
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if currentIdx < len(commands) {
			cmd := commands[currentIdx]
			if strings.Contains(trimmed, cmd) || strings.HasSuffix(trimmed, cmd) {
				if currentIdx > 0 && len(currentLines) > 0 {
					flush(currentIdx - 1)
					if !results[len(results)-1].Success && stopOnError {
						for _, remaining := range commands[currentIdx:] {
							results = append(results, CommandResult{
								Command: remaining,
								Success: false,
								Error:   "not executed (previous command failed)",
							})
						}
						return results
					}
				}
				currentLines = nil
				currentIdx++
				continue
			}
		}
		if trimmed != "" && !promptLine.MatchString(trimmed) {
			currentLines = append(currentLines, trimmed)
		}
	}

	if currentIdx > 0 {
		idx := currentIdx - 1
		if idx >= len(commands) {
			idx = len(commands) - 1
		}
		flush(idx)
	}

	for len(results) < len(commands) {
		results = append(results, CommandResult{Command: commands[len(results)], Success: true})
	}
	return results
}

func (d *BrocadeDevice) GetVLANs(ctx context.Context) ([]model.LiveVLAN, error) {
	out, err := d.Execute(ctx, "show vlan")
	if err != nil {
		return nil, err
	}

	var vlans []model.LiveVLAN
	var current *model.LiveVLAN

	for _, line := range strings.Split(out, "\n") {
		if m := brocadeVLANHeaderPattern.FindStringSubmatch(line); m != nil {
			if current != nil {
				vlans = append(vlans, *current)
			}
			id, _ := strconv.Atoi(m[1])
			name := m[2]
			if name == "" {
				name = fmt.Sprintf("VLAN%d", id)
			}
			current = &model.LiveVLAN{
				ID: id, Name: name,
				Untagged: make(map[string]struct{}),
				Tagged:   make(map[string]struct{}),
			}
			continue
		}
		if current == nil {
			continue
		}
		if strings.Contains(line, "Tagged Ports:") {
			for _, p := range parseBrocadePortLine(line, "Tagged Ports:") {
				current.Tagged[p] = struct{}{}
			}
		} else if strings.Contains(line, "Untagged Ports:") {
			for _, p := range parseBrocadePortLine(line, "Untagged Ports:") {
				current.Untagged[p] = struct{}{}
			}
		}
	}
	if current != nil {
		vlans = append(vlans, *current)
	}
	return vlans, nil
}

// parseBrocadePortLine parses one "Untagged Ports: (U1/M1)  1  2  3" line
// into canonical unit/module/position identifiers. A missing module token
// implies module 1.
func parseBrocadePortLine(line, prefix string) []string {
	idx := strings.Index(line, prefix)
	if idx < 0 {
		return nil
	}
	text := strings.TrimSpace(line[idx+len(prefix):])
	if text == "" || strings.EqualFold(text, "none") {
		return nil
	}

	module := 1
	if m := brocadeModulePattern.FindStringSubmatch(text); m != nil {
		module, _ = strconv.Atoi(m[1])
		text = strings.TrimSpace(brocadeModuleStrip.ReplaceAllString(text, ""))
	}

	var ports []string
	for _, tok := range strings.Fields(text) {
		if _, err := strconv.Atoi(tok); err == nil {
			ports = append(ports, fmt.Sprintf("1/%d/%s", module, tok))
		}
	}
	return ports
}

func (d *BrocadeDevice) GetPorts(ctx context.Context) ([]model.LivePort, error) {
	out, err := d.Execute(ctx, "show interfaces brief")
	if err != nil {
		return nil, err
	}

	var ports []model.LivePort
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Port") || strings.HasPrefix(line, "=") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 8 {
			continue
		}
		if !brocadePortHeaderPattern.MatchString(fields[0]) {
			continue
		}
		enabled := !strings.EqualFold(fields[1], "disabled")
		var duplex *string
		if fields[3] != "None" {
			v := fields[3]
			duplex = &v
		}
		var speedVal *model.Speed
		if fields[4] != "None" {
			v := model.Speed(fields[4])
			speedVal = &v
		}
		isTagged := strings.EqualFold(fields[6], "yes")
		var nativeVLAN *int
		if fields[7] != "N/A" {
			if n, err := strconv.Atoi(fields[7]); err == nil {
				nativeVLAN = &n
			}
		}
		mode := model.PortModeAccess
		if isTagged {
			mode = model.PortModeTrunk
		}

		ports = append(ports, model.LivePort{
			ID:         fields[0],
			Enabled:    &enabled,
			Speed:      speedVal,
			Duplex:     duplex,
			VLANMode:   &mode,
			NativeVLAN: nativeVLAN,
		})
	}
	return ports, nil
}

func (d *BrocadeDevice) CreateVLAN(ctx context.Context, vlan model.VLANIntent) (string, error) {
	if vlan.ID < 1 || vlan.ID > 4094 {
		return "", switcherr.NewValidationError([]string{fmt.Sprintf("invalid VLAN id %d", vlan.ID)})
	}
	name := vlan.Name
	if name == "" {
		name = fmt.Sprintf("VLAN%d", vlan.ID)
	}
	commands := []string{fmt.Sprintf("vlan %d name %s by port", vlan.ID, name)}
	if len(vlan.Untagged) > 0 {
		commands = append(commands, formatBrocadePortRangeCommands("untagged ethe", setKeys(vlan.Untagged))...)
	}
	if len(vlan.Tagged) > 0 {
		commands = append(commands, formatBrocadePortRangeCommands("tagged ethe", setKeys(vlan.Tagged))...)
	}
	if vlan.IP != nil {
		commands = append(commands, fmt.Sprintf("router-interface ve %d", vlan.ID))
	}
	commands = append(commands, "exit")

	result, err := d.ExecuteBatch(ctx, wrapConfig(commands), true)
	return result.Output, batchErr(result, err)
}

// formatBrocadePortRangeCommands partitions ports by (unit, module),
// collapses consecutive runs, and emits one command per (unit, module)
// since a single command cannot span modules.
func formatBrocadePortRangeCommands(verbPrefix string, ports []string) []string {
	spec := formatBrocadePortRange(ports)
	if spec == "" {
		return nil
	}
	var cmds []string
	for _, group := range strings.Split(spec, "||") {
		cmds = append(cmds, fmt.Sprintf("%s %s", verbPrefix, group))
	}
	return cmds
}

type brocadePort struct {
	unit, module, pos int
	raw               string
}

// formatBrocadePortRange groups ports into ranges, one per (unit, module)
// partition, joined with "||" as a group separator for the caller to split
// into one command per module.
func formatBrocadePortRange(ports []string) string {
	if len(ports) == 0 {
		return ""
	}
	parsed := make([]brocadePort, 0, len(ports))
	for _, p := range ports {
		parts := strings.Split(p, "/")
		if len(parts) == 3 {
			u, _ := strconv.Atoi(parts[0])
			m, _ := strconv.Atoi(parts[1])
			n, _ := strconv.Atoi(parts[2])
			parsed = append(parsed, brocadePort{u, m, n, p})
		} else {
			parsed = append(parsed, brocadePort{0, 0, 0, p})
		}
	}
	sort.Slice(parsed, func(i, j int) bool {
		if parsed[i].unit != parsed[j].unit {
			return parsed[i].unit < parsed[j].unit
		}
		if parsed[i].module != parsed[j].module {
			return parsed[i].module < parsed[j].module
		}
		return parsed[i].pos < parsed[j].pos
	})

	groups := make(map[string][]brocadePort)
	var groupOrder []string
	for _, p := range parsed {
		key := fmt.Sprintf("%d/%d", p.unit, p.module)
		if _, ok := groups[key]; !ok {
			groupOrder = append(groupOrder, key)
		}
		groups[key] = append(groups[key], p)
	}

	var commands []string
	for _, key := range groupOrder {
		group := groups[key]
		var ranges []string
		i := 0
		for i < len(group) {
			start := group[i]
			end := group[i]
			j := i + 1
			for j < len(group) && group[j].pos == group[j-1].pos+1 {
				end = group[j]
				j++
			}
			ranges = append(ranges, fmt.Sprintf("%s to %s", start.raw, end.raw))
			i = j
		}
		commands = append(commands, strings.Join(ranges, " "))
	}
	return strings.Join(commands, "||")
}

func (d *BrocadeDevice) DeleteVLAN(ctx context.Context, id int) (string, error) {
	if id == 1 {
		return "", switcherr.NewValidationError([]string{"cannot delete VLAN 1 (default VLAN is protected)"})
	}
	if id == 0 {
		return "", switcherr.NewValidationError([]string{"cannot delete VLAN 0 (reserved)"})
	}
	result, err := d.ExecuteBatch(ctx, wrapConfig([]string{fmt.Sprintf("no vlan %d", id)}), true)
	return result.Output, batchErr(result, err)
}

func (d *BrocadeDevice) ConfigurePort(ctx context.Context, port model.PortIntent) (string, error) {
	commands := []string{fmt.Sprintf("interface ethernet %s", port.ID)}
	if port.Enabled != nil {
		if *port.Enabled {
			commands = append(commands, "enable")
		} else {
			commands = append(commands, "disable")
		}
	}
	if port.Description != nil {
		commands = append(commands, fmt.Sprintf("port-name %s", *port.Description))
	}
	commands = append(commands, "exit")

	result, err := d.ExecuteBatch(ctx, wrapConfig(commands), true)
	return result.Output, batchErr(result, err)
}

func (d *BrocadeDevice) SaveConfig(ctx context.Context) (string, error) {
	return d.Execute(ctx, "write memory")
}

func (d *BrocadeDevice) Capabilities() Capabilities {
	return brocadeCapabilities
}

var brocadeCapabilities = Capabilities{
	SupportsBatchExecute:   true,
	SupportsSCP:            false,
	SupportsIPInterface:    true,
	RequiresEnablePassword: true,
	PortPattern:            `\d+/\d+/\d+`,
	SaveCommand:            "write memory",
}

func wrapConfig(cmds []string) []string {
	full := make([]string, 0, len(cmds)+2)
	full = append(full, "conf t")
	full = append(full, cmds...)
	full = append(full, "exit")
	return full
}

func batchErr(result BatchResult, sendErr error) error {
	if sendErr != nil {
		return sendErr
	}
	if !result.Success {
		for _, r := range result.Results {
			if !r.Success && r.Error != "" {
				return switcherr.NewProtocolError(r.Command, r.Error)
			}
		}
	}
	return nil
}

func setKeys(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
