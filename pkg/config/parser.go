// Package config turns the untyped tool-facing desired-state document into
// typed model values, validates it, diffs it against live device state, and
// generates the vendor command plan that realizes the diff.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nanoncore/switchfleet/pkg/model"
)

// ParseError aggregates every cause encountered while parsing a
// desired-state document into one reportable failure.
type ParseError struct {
	Causes []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s", strings.Join(e.Causes, "; "))
}

func newParseError(causes []string) *ParseError {
	return &ParseError{Causes: causes}
}

// Parse converts an untyped desired-state mapping (as decoded from YAML or
// JSON) into a *model.DesiredState. It never partially succeeds: any cause
// collected along the way is returned together in a single ParseError.
func Parse(doc map[string]any) (*model.DesiredState, error) {
	var causes []string

	deviceID, ok := firstString(doc, "device_id", "device")
	if !ok {
		causes = append(causes, "missing required key: device_id (or device)")
	}

	ds := model.NewDesiredState(deviceID)

	if v, ok := doc["schema_version"]; ok {
		n, err := toInt(v)
		if err != nil {
			causes = append(causes, fmt.Sprintf("schema_version: %v", err))
		} else {
			ds.SchemaVersion = n
		}
	}

	var suppliedChecksum string
	var hasSuppliedChecksum bool
	if v, ok := doc["checksum"]; ok {
		if s, ok := v.(string); ok {
			suppliedChecksum, hasSuppliedChecksum = s, s != ""
		} else {
			causes = append(causes, "checksum must be a string")
		}
	}

	if v, ok := doc["mode"]; ok {
		s, ok := v.(string)
		if !ok {
			causes = append(causes, "mode must be a string")
		} else {
			switch model.Mode(s) {
			case model.ModePatch, model.ModeFull:
				ds.Mode = model.Mode(s)
			default:
				causes = append(causes, fmt.Sprintf("unknown mode %q", s))
			}
		}
	}

	if raw, ok := doc["vlans"]; ok {
		vlanMap, ok := raw.(map[string]any)
		if !ok {
			if m, ok := raw.(map[any]any); ok {
				vlanMap = normalizeAnyMap(m)
			} else {
				causes = append(causes, "vlans must be a mapping")
				vlanMap = nil
			}
		}
		for key, v := range vlanMap {
			vlan, vcauses := parseVLANEntry(key, v)
			causes = append(causes, vcauses...)
			if len(vcauses) == 0 {
				ds.VLANs[vlan.ID] = vlan
			}
		}
	}

	if raw, ok := doc["ports"]; ok {
		portMap, ok := raw.(map[string]any)
		if !ok {
			if m, ok := raw.(map[any]any); ok {
				portMap = normalizeAnyMap(m)
			} else {
				causes = append(causes, "ports must be a mapping")
				portMap = nil
			}
		}
		for key, v := range portMap {
			port, pcauses := parsePortEntry(key, v)
			causes = append(causes, pcauses...)
			if len(pcauses) == 0 {
				ds.Ports[port.ID] = port
			}
		}
	}

	if raw, ok := doc["settings"]; ok {
		settingsMap, ok := raw.(map[string]any)
		if ok {
			for k, v := range settingsMap {
				ds.Settings[k] = fmt.Sprintf("%v", v)
			}
		}
	}

	computed := model.Checksum(ds)
	if hasSuppliedChecksum && suppliedChecksum != computed {
		causes = append(causes, fmt.Sprintf("checksum mismatch: document declares %q, computed %q", suppliedChecksum, computed))
	}
	ds.Checksum = computed

	if len(causes) > 0 {
		return nil, newParseError(causes)
	}
	return ds, nil
}

func normalizeAnyMap(m map[any]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[fmt.Sprintf("%v", k)] = v
	}
	return out
}

func firstString(doc map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := doc[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("not an integer: %v", v)
	}
}

// parseVLANEntry parses one key/value pair of the "vlans" mapping. The key
// is the VLAN id (int or integer-string); the value carries action, name,
// and port lists.
func parseVLANEntry(key string, v any) (model.VLANIntent, []string) {
	id, err := strconv.Atoi(strings.TrimSpace(key))
	if err != nil {
		return model.VLANIntent{}, []string{fmt.Sprintf("vlan key %q is not an integer id", key)}
	}

	entry, ok := v.(map[string]any)
	if !ok {
		if m, ok := v.(map[any]any); ok {
			entry = normalizeAnyMap(m)
		} else {
			return model.VLANIntent{}, []string{fmt.Sprintf("vlan %d: entry must be a mapping", id)}
		}
	}

	vlan := model.VLANIntent{
		ID:       id,
		Action:   model.ActionEnsure,
		Untagged: map[string]struct{}{},
		Tagged:   map[string]struct{}{},
	}

	if a, ok := entry["action"]; ok {
		s, _ := a.(string)
		switch model.Action(s) {
		case model.ActionEnsure, model.ActionAbsent:
			vlan.Action = model.Action(s)
		default:
			return vlan, []string{fmt.Sprintf("vlan %d: unknown action %q", id, s)}
		}
	}

	if n, ok := entry["name"]; ok {
		vlan.Name, _ = n.(string)
	}

	if raw, ok := entry["untagged"]; ok {
		for _, tok := range toStringList(raw) {
			for _, port := range ExpandPortRange(tok) {
				vlan.Untagged[port] = struct{}{}
			}
		}
	}
	if raw, ok := entry["tagged"]; ok {
		for _, tok := range toStringList(raw) {
			for _, port := range ExpandPortRange(tok) {
				vlan.Tagged[port] = struct{}{}
			}
		}
	}

	if ip, ok := entry["ip"]; ok {
		if ipMap, ok := ip.(map[string]any); ok {
			iface := &model.IPInterface{}
			if addr, ok := ipMap["address"].(string); ok {
				iface.Address = addr
			}
			if mask, ok := ipMap["mask"].(string); ok {
				iface.Mask = mask
			}
			vlan.IP = iface
		}
	}

	return vlan, nil
}

func parsePortEntry(key string, v any) (model.PortIntent, []string) {
	entry, ok := v.(map[string]any)
	if !ok {
		if m, ok := v.(map[any]any); ok {
			entry = normalizeAnyMap(m)
		} else {
			return model.PortIntent{}, []string{fmt.Sprintf("port %q: entry must be a mapping", key)}
		}
	}

	port := model.PortIntent{ID: key}

	if v, ok := entry["enabled"]; ok {
		if b, ok := v.(bool); ok {
			port.Enabled = &b
		}
	}
	if v, ok := entry["speed"]; ok {
		if s, ok := v.(string); ok {
			speed := model.Speed(s)
			port.Speed = &speed
		}
	}
	if v, ok := entry["duplex"]; ok {
		if s, ok := v.(string); ok {
			port.Duplex = &s
		}
	}
	if v, ok := entry["description"]; ok {
		if s, ok := v.(string); ok {
			port.Description = &s
		}
	}
	if v, ok := entry["vlan_mode"]; ok {
		if s, ok := v.(string); ok {
			mode := model.PortMode(s)
			port.VLANMode = &mode
		}
	}
	if v, ok := entry["native_vlan"]; ok {
		if n, err := toInt(v); err == nil {
			port.NativeVLAN = &n
		}
	}
	if raw, ok := entry["allowed_vlans"]; ok {
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				if n, err := toInt(item); err == nil {
					port.AllowedVLANs = append(port.AllowedVLANs, n)
				}
			}
		}
	}

	return port, nil
}

func toStringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case []string:
		return t
	default:
		return nil
	}
}

// portRangeSameUnit matches "a/b/c-d": a shorthand range within one
// unit/module, expanding to positions c..d inclusive.
var portRangeSameUnit = regexp.MustCompile(`^(\d+)/(\d+)/(\d+)-(\d+)$`)

// portRangeFullPair matches "a/b/c-a/b/d": an explicit start/end pair that
// must agree on unit and module.
var portRangeFullPair = regexp.MustCompile(`^(\d+)/(\d+)/(\d+)-(\d+)/(\d+)/(\d+)$`)

// ExpandPortRange expands a single port token into one or more port
// identifiers. A plain identifier (no recognized range syntax) is returned
// unchanged; a malformed range that cannot be expanded is preserved as a
// single opaque token so the device driver can reject it later.
func ExpandPortRange(tok string) []string {
	tok = strings.TrimSpace(tok)

	if m := portRangeFullPair.FindStringSubmatch(tok); m != nil {
		unit, mod := m[1], m[2]
		if unit == m[4] && mod == m[5] {
			return expandRun(unit, mod, m[3], m[6])
		}
		return []string{tok}
	}

	if m := portRangeSameUnit.FindStringSubmatch(tok); m != nil {
		return expandRun(m[1], m[2], m[3], m[4])
	}

	return []string{tok}
}

func expandRun(unit, mod, fromStr, toStr string) []string {
	from, err1 := strconv.Atoi(fromStr)
	to, err2 := strconv.Atoi(toStr)
	if err1 != nil || err2 != nil || from > to {
		return []string{fmt.Sprintf("%s/%s/%s-%s", unit, mod, fromStr, toStr)}
	}
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("%s/%s/%d", unit, mod, i))
	}
	return out
}
