package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nanoncore/switchfleet/pkg/device"
	"github.com/nanoncore/switchfleet/pkg/model"
)

// GenerateOptions tunes generator behavior for the open questions spec.md
// leaves to an implementer's discretion.
type GenerateOptions struct {
	// RejectAbsentWithoutSnapshot, when true, makes Generate return an
	// error for any VLAN delete rather than emitting an advisory
	// "rollback impossible" note and proceeding. Default false (spec.md's
	// faithful default: proceed, and say so).
	RejectAbsentWithoutSnapshot bool
}

// Generate builds the four-phase command plan realizing diff on a device
// of the given type. This is the one place in the module allowed to
// branch on vendor identity, because command syntax itself is vendor
// specific; every other package operates purely on capability flags.
func Generate(deviceType device.Type, diff *model.DiffResult, opts GenerateOptions) (*model.CommandPlan, error) {
	switch deviceType {
	case device.TypeBrocade:
		return generateBrocade(diff, opts)
	case device.TypeOpenWrt:
		return generateOpenWrt(diff, opts)
	case device.TypeZyxelCLI:
		return generateZyxelCLI(diff, opts)
	case device.TypeONTI:
		return generateONTI(diff, opts)
	case device.TypeZyxel:
		return generateZyxelWeb(diff, opts)
	default:
		return nil, fmt.Errorf("no command generator registered for device type %q", deviceType)
	}
}

// rollbackDeleteNote records, per spec.md's default open-question
// resolution, that reversing a VLAN delete is not possible because prior
// membership was never captured.
func rollbackDeleteNote(id int) string {
	return fmt.Sprintf("# rollback note: vlan %d was deleted; prior membership was not captured, cannot restore", id)
}

// ---- Brocade (FCX CLI) ----

func generateBrocade(diff *model.DiffResult, opts GenerateOptions) (*model.CommandPlan, error) {
	plan := &model.CommandPlan{}

	for _, c := range diff.VLANChanges {
		if c.Type == model.ChangeModify && len(c.RemoveTagged) > 0 {
			for _, port := range c.RemoveTagged {
				plan.Pre = append(plan.Pre, fmt.Sprintf("interface ethernet %s", port), "no dual-mode", "exit")
			}
		}
	}

	for _, c := range diff.VLANChanges {
		switch c.Type {
		case model.ChangeCreate:
			name := c.Name
			if name == "" {
				name = fmt.Sprintf("VLAN%d", c.ID)
			}
			plan.Main = append(plan.Main, fmt.Sprintf("vlan %d name %s by port", c.ID, name))
			plan.Main = append(plan.Main, formatBrocadeRangeCommands("untagged ethe", c.FullUntagged)...)
			plan.Main = append(plan.Main, formatBrocadeRangeCommands("tagged ethe", c.FullTagged)...)
			plan.Main = append(plan.Main, "exit")
		case model.ChangeDelete:
			plan.Main = append(plan.Main, fmt.Sprintf("no vlan %d", c.ID))
		case model.ChangeModify:
			plan.Main = append(plan.Main, fmt.Sprintf("vlan %d", c.ID))
			plan.Main = append(plan.Main, formatBrocadeRangeCommands("no untagged ethe", c.RemoveUntagged)...)
			plan.Main = append(plan.Main, formatBrocadeRangeCommands("no tagged ethe", c.RemoveTagged)...)
			plan.Main = append(plan.Main, formatBrocadeRangeCommands("untagged ethe", c.AddUntagged)...)
			plan.Main = append(plan.Main, formatBrocadeRangeCommands("tagged ethe", c.AddTagged)...)
			plan.Main = append(plan.Main, "exit")
		}
	}

	if len(plan.Main) > 0 {
		plan.Post = append(plan.Post, "write memory")
	}

	for i := len(diff.VLANChanges) - 1; i >= 0; i-- {
		c := diff.VLANChanges[i]
		switch c.Type {
		case model.ChangeCreate:
			plan.Rollback = append(plan.Rollback, fmt.Sprintf("no vlan %d", c.ID))
		case model.ChangeModify:
			plan.Rollback = append(plan.Rollback, fmt.Sprintf("vlan %d", c.ID))
			plan.Rollback = append(plan.Rollback, formatBrocadeRangeCommands("untagged ethe", c.RemoveUntagged)...)
			plan.Rollback = append(plan.Rollback, formatBrocadeRangeCommands("tagged ethe", c.RemoveTagged)...)
			plan.Rollback = append(plan.Rollback, formatBrocadeRangeCommands("no untagged ethe", c.AddUntagged)...)
			plan.Rollback = append(plan.Rollback, formatBrocadeRangeCommands("no tagged ethe", c.AddTagged)...)
			plan.Rollback = append(plan.Rollback, "exit")
		case model.ChangeDelete:
			if opts.RejectAbsentWithoutSnapshot {
				return nil, fmt.Errorf("vlan %d: delete without a captured snapshot is rejected by policy", c.ID)
			}
			plan.Rollback = append(plan.Rollback, rollbackDeleteNote(c.ID))
		}
	}

	return plan, nil
}

type brocadePortTok struct {
	unit, module, pos int
	raw               string
}

// formatBrocadeRangeCommands partitions ports by (unit, module), collapses
// consecutive runs into "X to Y", and emits one command per module since a
// single Brocade command cannot span modules.
func formatBrocadeRangeCommands(verbPrefix string, ports []string) []string {
	if len(ports) == 0 {
		return nil
	}
	parsed := make([]brocadePortTok, 0, len(ports))
	for _, p := range ports {
		parts := strings.Split(p, "/")
		if len(parts) != 3 {
			continue
		}
		u, _ := strconv.Atoi(parts[0])
		m, _ := strconv.Atoi(parts[1])
		n, _ := strconv.Atoi(parts[2])
		parsed = append(parsed, brocadePortTok{u, m, n, p})
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

	groups := make(map[string][]brocadePortTok)
	var order []string
	for _, p := range parsed {
		key := fmt.Sprintf("%d/%d", p.unit, p.module)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}

	var cmds []string
	for _, key := range order {
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
		cmds = append(cmds, fmt.Sprintf("%s %s", verbPrefix, strings.Join(ranges, " ")))
	}
	return cmds
}

// ---- Zyxel CLI (GS1900 "configure" mode) ----

func generateZyxelCLI(diff *model.DiffResult, opts GenerateOptions) (*model.CommandPlan, error) {
	plan := &model.CommandPlan{}

	for _, c := range diff.VLANChanges {
		if c.Type == model.ChangeModify && len(c.RemoveTagged) > 0 {
			for _, port := range c.RemoveTagged {
				plan.Pre = append(plan.Pre, fmt.Sprintf("interface port %s", port), "no trunk", "exit")
			}
		}
	}

	for _, c := range diff.VLANChanges {
		switch c.Type {
		case model.ChangeCreate:
			name := c.Name
			if name == "" {
				name = fmt.Sprintf("VLAN%d", c.ID)
			}
			plan.Main = append(plan.Main, fmt.Sprintf("vlan %d", c.ID), fmt.Sprintf("name %q", name))
			all := append(append([]string{}, c.FullUntagged...), c.FullTagged...)
			if len(all) > 0 {
				plan.Main = append(plan.Main, fmt.Sprintf("fixed %s", formatZyxelRange(all)))
			}
			if len(c.FullUntagged) > 0 {
				plan.Main = append(plan.Main, fmt.Sprintf("untagged %s", formatZyxelRange(c.FullUntagged)))
			}
			plan.Main = append(plan.Main, "exit")
		case model.ChangeDelete:
			plan.Main = append(plan.Main, fmt.Sprintf("no vlan %d", c.ID))
		case model.ChangeModify:
			plan.Main = append(plan.Main, fmt.Sprintf("vlan %d", c.ID))
			if len(c.RemoveUntagged) > 0 || len(c.RemoveTagged) > 0 {
				plan.Main = append(plan.Main, fmt.Sprintf("no fixed %s", formatZyxelRange(append(append([]string{}, c.RemoveUntagged...), c.RemoveTagged...))))
			}
			if len(c.AddUntagged) > 0 || len(c.AddTagged) > 0 {
				plan.Main = append(plan.Main, fmt.Sprintf("fixed %s", formatZyxelRange(append(append([]string{}, c.AddUntagged...), c.AddTagged...))))
			}
			if len(c.AddUntagged) > 0 {
				plan.Main = append(plan.Main, fmt.Sprintf("untagged %s", formatZyxelRange(c.AddUntagged)))
			}
			plan.Main = append(plan.Main, "exit")
		}
	}

	if len(plan.Main) > 0 {
		plan.Post = append(plan.Post, "copy running-config startup-config")
	}

	for i := len(diff.VLANChanges) - 1; i >= 0; i-- {
		c := diff.VLANChanges[i]
		switch c.Type {
		case model.ChangeCreate:
			plan.Rollback = append(plan.Rollback, fmt.Sprintf("no vlan %d", c.ID))
		case model.ChangeModify:
			plan.Rollback = append(plan.Rollback, fmt.Sprintf("vlan %d", c.ID))
			if len(c.AddUntagged) > 0 || len(c.AddTagged) > 0 {
				plan.Rollback = append(plan.Rollback, fmt.Sprintf("no fixed %s", formatZyxelRange(append(append([]string{}, c.AddUntagged...), c.AddTagged...))))
			}
			if len(c.RemoveUntagged) > 0 || len(c.RemoveTagged) > 0 {
				plan.Rollback = append(plan.Rollback, fmt.Sprintf("fixed %s", formatZyxelRange(append(append([]string{}, c.RemoveUntagged...), c.RemoveTagged...))))
			}
			plan.Rollback = append(plan.Rollback, "exit")
		case model.ChangeDelete:
			if opts.RejectAbsentWithoutSnapshot {
				return nil, fmt.Errorf("vlan %d: delete without a captured snapshot is rejected by policy", c.ID)
			}
			plan.Rollback = append(plan.Rollback, rollbackDeleteNote(c.ID))
		}
	}

	return plan, nil
}

// formatZyxelRange collapses a sorted numeric port set into the device's
// "1-3,5,7-8" range notation.
func formatZyxelRange(ports []string) string {
	var nums []int
	for _, p := range ports {
		if n, err := strconv.Atoi(p); err == nil {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	var ranges []string
	i := 0
	for i < len(nums) {
		start, end := nums[i], nums[i]
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

// ---- OpenWrt (UCI bridge-vlan) ----

func generateOpenWrt(diff *model.DiffResult, opts GenerateOptions) (*model.CommandPlan, error) {
	plan := &model.CommandPlan{}
	bridge := "switch"

	for _, c := range diff.VLANChanges {
		if c.Type == model.ChangeModify && len(c.RemoveTagged) > 0 {
			for _, port := range c.RemoveTagged {
				plan.Pre = append(plan.Pre, fmt.Sprintf("ip link set %s nomaster 2>/dev/null || true", port))
			}
		}
	}

	for _, c := range diff.VLANChanges {
		section := fmt.Sprintf("vlan%d", c.ID)
		switch c.Type {
		case model.ChangeCreate:
			var spec []string
			for _, p := range c.FullTagged {
				spec = append(spec, p+":t")
			}
			for _, p := range c.FullUntagged {
				spec = append(spec, p+":u*")
			}
			plan.Main = append(plan.Main,
				fmt.Sprintf("uci set network.%s=bridge-vlan", section),
				fmt.Sprintf("uci set network.%s.device='%s'", section, bridge),
				fmt.Sprintf("uci set network.%s.vlan='%d'", section, c.ID),
				fmt.Sprintf("uci set network.%s.ports='%s'", section, strings.Join(spec, " ")),
				"uci commit network",
			)
		case model.ChangeDelete:
			plan.Main = append(plan.Main, fmt.Sprintf("uci delete network.%s", section), "uci commit network")
		case model.ChangeModify:
			var spec []string
			for _, p := range mergeUnique(c.AddTagged, c.RemoveTagged, true) {
				spec = append(spec, p+":t")
			}
			for _, p := range mergeUnique(c.AddUntagged, c.RemoveUntagged, true) {
				spec = append(spec, p+":u*")
			}
			plan.Main = append(plan.Main,
				fmt.Sprintf("uci set network.%s.ports='%s'", section, strings.Join(spec, " ")),
				"uci commit network",
			)
		}
	}

	if len(plan.Main) > 0 {
		plan.Post = append(plan.Post, "uci commit", "/etc/init.d/network reload")
	}

	for i := len(diff.VLANChanges) - 1; i >= 0; i-- {
		c := diff.VLANChanges[i]
		section := fmt.Sprintf("vlan%d", c.ID)
		switch c.Type {
		case model.ChangeCreate:
			plan.Rollback = append(plan.Rollback, fmt.Sprintf("uci delete network.%s", section), "uci commit network")
		case model.ChangeModify:
			plan.Rollback = append(plan.Rollback, fmt.Sprintf("# rollback note: vlan %d port membership complement not re-derived for UCI ports string, review before applying", c.ID))
		case model.ChangeDelete:
			if opts.RejectAbsentWithoutSnapshot {
				return nil, fmt.Errorf("vlan %d: delete without a captured snapshot is rejected by policy", c.ID)
			}
			plan.Rollback = append(plan.Rollback, rollbackDeleteNote(c.ID))
		}
	}

	return plan, nil
}

// mergeUnique is a small helper for OpenWrt's single ports= string: it
// has no separate add/remove verbs, so a modify must republish the full
// desired set. add/keep is what should be present after the change;
// remove is dropped.
func mergeUnique(add, remove []string, _ bool) []string {
	seen := make(map[string]struct{}, len(add))
	var out []string
	for _, p := range add {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// ---- ONTI (swconfig switch_vlan) ----

func generateONTI(diff *model.DiffResult, opts GenerateOptions) (*model.CommandPlan, error) {
	plan := &model.CommandPlan{}

	for _, c := range diff.VLANChanges {
		switch c.Type {
		case model.ChangeCreate:
			var ports []string
			ports = append(ports, c.FullUntagged...)
			for _, p := range c.FullTagged {
				ports = append(ports, p+"t")
			}
			plan.Main = append(plan.Main,
				"uci add network switch_vlan",
				"uci set network.@switch_vlan[-1].device='switch0'",
				fmt.Sprintf("uci set network.@switch_vlan[-1].vlan='%d'", c.ID),
				fmt.Sprintf("uci set network.@switch_vlan[-1].ports='%s'", strings.Join(ports, " ")),
				"uci commit network",
			)
		case model.ChangeDelete:
			plan.Main = append(plan.Main, fmt.Sprintf("# locate and delete @switch_vlan section for vlan %d, then: uci commit network", c.ID))
		case model.ChangeModify:
			var ports []string
			ports = append(ports, mergeUnique(c.AddUntagged, c.RemoveUntagged, true)...)
			for _, p := range mergeUnique(c.AddTagged, c.RemoveTagged, true) {
				ports = append(ports, p+"t")
			}
			plan.Main = append(plan.Main, fmt.Sprintf("# locate @switch_vlan section for vlan %d, then: uci set network.<section>.ports='%s'; uci commit network", c.ID, strings.Join(ports, " ")))
		}
	}

	if len(plan.Main) > 0 {
		plan.Post = append(plan.Post, "uci commit")
	}

	for i := len(diff.VLANChanges) - 1; i >= 0; i-- {
		c := diff.VLANChanges[i]
		switch c.Type {
		case model.ChangeCreate:
			plan.Rollback = append(plan.Rollback, fmt.Sprintf("# locate and delete @switch_vlan section for vlan %d, then: uci commit network", c.ID))
		case model.ChangeModify:
			plan.Rollback = append(plan.Rollback, fmt.Sprintf("# rollback note: vlan %d port membership complement not re-derived for switch_vlan ports string, review before applying", c.ID))
		case model.ChangeDelete:
			if opts.RejectAbsentWithoutSnapshot {
				return nil, fmt.Errorf("vlan %d: delete without a captured snapshot is rejected by policy", c.ID)
			}
			plan.Rollback = append(plan.Rollback, rollbackDeleteNote(c.ID))
		}
	}

	return plan, nil
}

// ---- Zyxel legacy web (CGI dispatcher) ----

// generateZyxelWeb emits advisory pseudo-commands describing the CGI
// operations the executor must perform through device.Device directly
// (CreateVLAN/ConfigurePort), since this dialect has no command-string
// wire format to batch — every mutation is its own HTTP round trip with a
// freshly scraped XSSID token. The plan still carries the phase ordering
// so the executor's pre/main/post/rollback discipline applies uniformly.
func generateZyxelWeb(diff *model.DiffResult, opts GenerateOptions) (*model.CommandPlan, error) {
	plan := &model.CommandPlan{}

	for _, c := range diff.VLANChanges {
		switch c.Type {
		case model.ChangeCreate:
			plan.Main = append(plan.Main, webCreateCmd(c.ID, c.Name, c.FullUntagged, c.FullTagged))
		case model.ChangeDelete:
			plan.Main = append(plan.Main, webDeleteCmd(c.ID))
		case model.ChangeModify:
			plan.Main = append(plan.Main, webModifyCmd(c.ID, c.AddUntagged, c.RemoveUntagged, c.AddTagged, c.RemoveTagged))
		}
	}

	for i := len(diff.VLANChanges) - 1; i >= 0; i-- {
		c := diff.VLANChanges[i]
		switch c.Type {
		case model.ChangeCreate:
			plan.Rollback = append(plan.Rollback, webDeleteCmd(c.ID))
		case model.ChangeModify:
			plan.Rollback = append(plan.Rollback, webModifyCmd(c.ID, c.RemoveUntagged, c.AddUntagged, c.RemoveTagged, c.AddTagged))
		case model.ChangeDelete:
			if opts.RejectAbsentWithoutSnapshot {
				return nil, fmt.Errorf("vlan %d: delete without a captured snapshot is rejected by policy", c.ID)
			}
			plan.Rollback = append(plan.Rollback, rollbackDeleteNote(c.ID))
		}
	}

	return plan, nil
}

// webCreateCmd/webDeleteCmd/webModifyCmd encode the legacy web dialect's
// VLAN operations as key=value pseudo-commands, since this dialect has no
// literal command-string wire format to batch. executor.Execute
// recognizes the "web:" prefix and dispatches to device.Device's typed
// CreateVLAN/DeleteVLAN/ConfigurePort rather than Execute.
func webCreateCmd(id int, name string, untagged, tagged []string) string {
	return fmt.Sprintf("web:create_vlan id=%d name=%s untagged=%s tagged=%s", id, name, strings.Join(untagged, ","), strings.Join(tagged, ","))
}

func webDeleteCmd(id int) string {
	return fmt.Sprintf("web:delete_vlan id=%d", id)
}

func webModifyCmd(id int, addUntagged, removeUntagged, addTagged, removeTagged []string) string {
	return fmt.Sprintf("web:modify_vlan id=%d add_untagged=%s remove_untagged=%s add_tagged=%s remove_tagged=%s",
		id, strings.Join(addUntagged, ","), strings.Join(removeUntagged, ","), strings.Join(addTagged, ","), strings.Join(removeTagged, ","))
}

// WebCommand is a decoded "web:"-prefixed pseudo-command.
type WebCommand struct {
	Op     string // "create_vlan", "delete_vlan", "modify_vlan"
	Fields map[string]string
}

// IsWebCommand reports whether cmd is one of the legacy-web dialect's
// pseudo-commands rather than a literal command string.
func IsWebCommand(cmd string) bool {
	return strings.HasPrefix(cmd, "web:")
}

// ParseWebCommand decodes a "web:"-prefixed pseudo-command into its
// operation name and key=value fields, for the executor to dispatch to
// device.Device's typed operations.
func ParseWebCommand(cmd string) (WebCommand, bool) {
	if !IsWebCommand(cmd) {
		return WebCommand{}, false
	}
	rest := strings.TrimPrefix(cmd, "web:")
	parts := strings.Fields(rest)
	if len(parts) == 0 {
		return WebCommand{}, false
	}
	wc := WebCommand{Op: parts[0], Fields: make(map[string]string, len(parts)-1)}
	for _, kv := range parts[1:] {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		wc.Fields[kv[:eq]] = kv[eq+1:]
	}
	return wc, true
}

// CSVField splits a comma-joined field value back into tokens, skipping
// empties (an empty field value means "no ports").
func CSVField(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}
