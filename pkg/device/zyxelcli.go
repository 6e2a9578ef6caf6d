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

var zyxelLineErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^Invalid`),
	regexp.MustCompile(`(?i)^Unknown command`),
	regexp.MustCompile(`(?i)^Error[:\s]`),
	regexp.MustCompile(`(?i)^Incomplete command`),
	regexp.MustCompile(`(?i).*not found$`),
}

// zyxelLineInfoPatterns matches interface-statistics lines that contain
// the word "error" without being one, e.g. "0 input errors".
var zyxelLineInfoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d+\s+(input\s+)?errors`),
	regexp.MustCompile(`(?i)errors,`),
}

func zyxelCLILineError(output string) string {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		isInfo := false
		for _, info := range zyxelLineInfoPatterns {
			if info.MatchString(trimmed) {
				isInfo = true
				break
			}
		}
		if isInfo {
			continue
		}
		for _, pat := range zyxelLineErrorPatterns {
			if pat.MatchString(trimmed) {
				return trimmed
			}
		}
	}
	return ""
}

// ZyxelCLIDevice drives a Zyxel GS1900 switch over its SSH interactive
// shell (GS1900# prompt). Unlike the legacy web dialect, this CLI
// interface is treated as read-write: VLAN/port mutation goes through
// "configure" mode the same way the web session is avoided entirely.
type ZyxelCLIDevice struct {
	cfg Config
	sh  *transport.SSHShellTransport
}

func newZyxelCLIDevice(cfg Config) Device {
	return &ZyxelCLIDevice{
		cfg: cfg,
		sh: transport.NewSSHShellTransport(transport.SSHShellConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
		}),
	}
}

func (d *ZyxelCLIDevice) Connect(ctx context.Context) error {
	if err := d.sh.Connect(ctx); err != nil {
		return switcherr.NewConnectionError(d.cfg.Host, d.cfg.Port, "ssh shell connect failed", err)
	}
	return nil
}

func (d *ZyxelCLIDevice) Disconnect(ctx context.Context) error {
	return d.sh.Close()
}

func (d *ZyxelCLIDevice) HealthCheck(ctx context.Context) (Status, error) {
	out, err := d.Execute(ctx, "show version")
	if err != nil {
		return Status{Reachable: false, Error: err.Error()}, nil
	}
	status := Status{Reachable: true}
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "version") {
			status.FirmwareVersion = strings.TrimSpace(line)
		}
		if strings.Contains(lower, "uptime") {
			status.Uptime = strings.TrimSpace(line)
		}
	}
	return status, nil
}

func (d *ZyxelCLIDevice) Execute(ctx context.Context, command string) (string, error) {
	out, err := d.sh.SendCommand(ctx, command)
	if err != nil {
		return out, switcherr.NewCommandError(command, out, err)
	}
	if errLine := zyxelCLILineError(out); errLine != "" {
		return out, switcherr.NewProtocolError(command, errLine)
	}
	return out, nil
}

// ExecuteBatch is not supported by this dialect; the device always runs
// commands one at a time through the shell.
func (d *ZyxelCLIDevice) ExecuteBatch(ctx context.Context, commands []string, stopOnError bool) (BatchResult, error) {
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

// executeConfigMode enters "configure" mode, runs commands stopping on the
// first failure, and always exits, following the Python reference's
// enter/run/exit discipline.
func (d *ZyxelCLIDevice) executeConfigMode(ctx context.Context, commands []string) (string, error) {
	if _, err := d.Execute(ctx, "configure"); err != nil {
		return "", fmt.Errorf("enter config mode: %w", err)
	}

	var results []string
	var firstErr error
	for _, cmd := range commands {
		out, err := d.Execute(ctx, cmd)
		results = append(results, fmt.Sprintf("%s: %s", cmd, out))
		if err != nil {
			firstErr = err
			break
		}
	}
	d.Execute(ctx, "exit")
	return strings.Join(results, "\n"), firstErr
}

var zyxelVLANHeaderSkip = regexp.MustCompile(`(?i)VID`)

func (d *ZyxelCLIDevice) GetVLANs(ctx context.Context) ([]model.LiveVLAN, error) {
	out, err := d.Execute(ctx, "show vlan")
	if err != nil {
		return nil, err
	}

	var vlans []model.LiveVLAN
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "|") || strings.HasPrefix(strings.TrimSpace(line), "---") || zyxelVLANHeaderSkip.MatchString(line) {
			continue
		}
		parts := splitAndTrim(line, "|")
		if len(parts) < 5 {
			continue
		}
		id, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		name := parts[1]
		if name == "" {
			name = fmt.Sprintf("VLAN%d", id)
		}
		untagged := parseZyxelPortList(parts[2])
		tagged := parseZyxelPortList(parts[3])

		vlan := model.LiveVLAN{ID: id, Name: name, Untagged: make(map[string]struct{}), Tagged: make(map[string]struct{})}
		for _, p := range untagged {
			vlan.Untagged[p] = struct{}{}
		}
		for _, p := range tagged {
			vlan.Tagged[p] = struct{}{}
		}
		vlans = append(vlans, vlan)
	}
	return vlans, nil
}

var zyxelLagToken = regexp.MustCompile(`(?i),?lag\d+-?\d*`)
var zyxelRangeToken = regexp.MustCompile(`(\d+)-(\d+)`)

// parseZyxelPortList expands "1-5,7,10-12,lag1-8" into individual port
// numbers, discarding lag<n> aggregation members during parsing.
func parseZyxelPortList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "---" {
		return nil
	}
	s = zyxelLagToken.ReplaceAllString(s, "")

	var ports []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if m := zyxelRangeToken.FindStringSubmatch(part); m != nil {
			start, _ := strconv.Atoi(m[1])
			end, _ := strconv.Atoi(m[2])
			for i := start; i <= end; i++ {
				ports = append(ports, strconv.Itoa(i))
			}
		} else if _, err := strconv.Atoi(part); err == nil {
			ports = append(ports, part)
		}
	}
	return ports
}

// formatZyxelPortList collapses a sorted numeric port set into Zyxel's
// "1-3,5,7-8" range notation.
func formatZyxelPortList(ports []string) string {
	var nums []int
	for _, p := range ports {
		if n, err := strconv.Atoi(p); err == nil {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return ""
	}
	sort.Ints(nums)

	var ranges []string
	i := 0
	for i < len(nums) {
		start := nums[i]
		end := start
		for i+1 < len(nums) && nums[i+1] == nums[i]+1 {
			i++
			end = nums[i]
		}
		if start == end {
			ranges = append(ranges, strconv.Itoa(start))
		} else {
			ranges = append(ranges, fmt.Sprintf("%d-%d", start, end))
		}
		i++
	}
	return strings.Join(ranges, ",")
}

var zyxelPortHeaderPattern = regexp.MustCompile(`GigabitEthernet(\d+)\s+is\s+(\w+)`)
var zyxelSpeedPattern = regexp.MustCompile(`(\d+[MG]?)-speed`)

func (d *ZyxelCLIDevice) GetPorts(ctx context.Context) ([]model.LivePort, error) {
	out, err := d.Execute(ctx, "show interfaces 1-26")
	if err != nil {
		return nil, err
	}

	var ports []model.LivePort
	var current *model.LivePort

	flush := func() {
		if current != nil {
			ports = append(ports, *current)
		}
	}

	for _, line := range strings.Split(out, "\n") {
		if m := zyxelPortHeaderPattern.FindStringSubmatch(line); m != nil {
			flush()
			enabled := !strings.EqualFold(m[2], "disabled")
			current = &model.LivePort{ID: m[1], Enabled: &enabled}
			continue
		}
		if current == nil {
			continue
		}
		if m := zyxelSpeedPattern.FindStringSubmatch(line); m != nil {
			raw := m[1]
			var speed model.Speed
			switch {
			case strings.Contains(raw, "1000") || strings.Contains(raw, "1G"):
				speed = model.Speed1G
			case strings.Contains(raw, "100"):
				speed = model.Speed100M
			case strings.Contains(raw, "10G"):
				speed = model.Speed10G
			default:
				continue
			}
			current.Speed = &speed
		}
	}
	flush()
	return ports, nil
}

func (d *ZyxelCLIDevice) CreateVLAN(ctx context.Context, vlan model.VLANIntent) (string, error) {
	if vlan.ID < 1 || vlan.ID > 4094 {
		return "", switcherr.NewValidationError([]string{fmt.Sprintf("invalid VLAN id %d", vlan.ID)})
	}
	name := vlan.Name
	if name == "" {
		name = fmt.Sprintf("VLAN%d", vlan.ID)
	}

	commands := []string{
		fmt.Sprintf("vlan %d", vlan.ID),
		fmt.Sprintf("name %q", name),
	}

	allPorts := unionSet(vlan.Tagged, vlan.Untagged)
	if len(allPorts) > 0 {
		commands = append(commands, fmt.Sprintf("fixed %s", formatZyxelPortList(allPorts)))
	}
	if len(vlan.Untagged) > 0 {
		commands = append(commands, fmt.Sprintf("untagged %s", formatZyxelPortList(setKeys(vlan.Untagged))))
	}
	commands = append(commands, "exit")

	out, err := d.executeConfigMode(ctx, commands)
	return out, err
}

func (d *ZyxelCLIDevice) DeleteVLAN(ctx context.Context, id int) (string, error) {
	if id == 1 {
		return "", switcherr.NewValidationError([]string{"cannot delete VLAN 1 (default VLAN)"})
	}
	if id < 1 || id > 4094 {
		return "", switcherr.NewValidationError([]string{fmt.Sprintf("invalid VLAN id %d", id)})
	}
	return d.executeConfigMode(ctx, []string{fmt.Sprintf("no vlan %d", id)})
}

func (d *ZyxelCLIDevice) ConfigurePort(ctx context.Context, port model.PortIntent) (string, error) {
	commands := []string{fmt.Sprintf("interface port %s", port.ID)}
	if port.Enabled != nil {
		if *port.Enabled {
			commands = append(commands, "no inactive")
		} else {
			commands = append(commands, "inactive")
		}
	}
	if port.Description != nil {
		commands = append(commands, fmt.Sprintf("name %q", *port.Description))
	}
	commands = append(commands, "exit")
	return d.executeConfigMode(ctx, commands)
}

func (d *ZyxelCLIDevice) SaveConfig(ctx context.Context) (string, error) {
	return d.Execute(ctx, "copy running-config startup-config")
}

func (d *ZyxelCLIDevice) Capabilities() Capabilities {
	return zyxelCLICapabilities
}

var zyxelCLICapabilities = Capabilities{
	SupportsBatchExecute:   false,
	SupportsSCP:            false,
	SupportsIPInterface:    false,
	RequiresEnablePassword: false,
	PortPattern:            `\d+`,
	SaveCommand:            "copy running-config startup-config",
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func unionSet(a, b map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	return setKeys(seen)
}
