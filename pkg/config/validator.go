package config

import (
	"fmt"
	"regexp"

	"github.com/nanoncore/switchfleet/pkg/model"
)

// Severity classifies a Violation as blocking or advisory.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is one rule outcome from Validate.
type Violation struct {
	Rule     string
	Message  string
	Severity Severity
}

// ValidationResult aggregates every rule outcome for one desired state.
type ValidationResult struct {
	Errors   []Violation
	Warnings []Violation
}

// OK reports whether the desired state may proceed to diff/execute.
func (r *ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) addError(rule, message string) {
	r.Errors = append(r.Errors, Violation{Rule: rule, Message: message, Severity: SeverityError})
}

func (r *ValidationResult) addWarning(rule, message string) {
	r.Warnings = append(r.Warnings, Violation{Rule: rule, Message: message, Severity: SeverityWarning})
}

// vendorPortPatterns maps a device type to its port-identifier regex. An
// unknown or empty device type falls back to the union of all patterns.
var vendorPortPatterns = map[string]*regexp.Regexp{
	"brocade":  regexp.MustCompile(`^\d+/\d+/\d+$`),
	"openwrt":  regexp.MustCompile(`^lan\d+$`),
	"onti":     regexp.MustCompile(`^\d+$`),
	"zyxel":    regexp.MustCompile(`^\d+$`),
	"zyxel-cli": regexp.MustCompile(`^\d+$`),
}

var unionPortPattern = regexp.MustCompile(`^(\d+/\d+/\d+|lan\d+|\d+)$`)

func portPatternFor(deviceType string) *regexp.Regexp {
	if p, ok := vendorPortPatterns[deviceType]; ok {
		return p
	}
	return unionPortPattern
}

// validSpeeds is the enumerated speed set the validator accepts.
var validSpeeds = map[model.Speed]struct{}{
	model.SpeedAuto: {}, model.Speed100M: {}, model.Speed1G: {}, model.Speed10G: {},
}

// Validate runs every error/warning rule from spec.md §4.5 against ds,
// using deviceType to select the vendor port-identifier pattern (or the
// union pattern when deviceType is unknown to the factory).
func Validate(ds *model.DesiredState, deviceType string) *ValidationResult {
	result := &ValidationResult{}
	portPattern := portPatternFor(deviceType)

	untaggedOwner := map[string]int{}
	changeSetSize := 0
	portTouches := 0

	for id, vlan := range ds.VLANs {
		changeSetSize++

		if id < 1 || id > 4094 {
			result.addError("vlan-id-range", fmt.Sprintf("vlan %d: id must be in 1..4094", id))
		}
		if _, reserved := model.ReservedVLANs[id]; reserved {
			result.addError("vlan-id-reserved", fmt.Sprintf("vlan %d: id is reserved", id))
		}
		if vlan.Action == model.ActionAbsent {
			if _, protected := model.DefaultProtectedVLANs[id]; protected {
				result.addError("vlan-protected-delete", fmt.Sprintf("vlan %d: deletion is protected", id))
			}
			continue
		}

		if len(vlan.Untagged) == 0 && len(vlan.Tagged) == 0 {
			result.addWarning("vlan-no-ports", fmt.Sprintf("vlan %d: ensure action with no ports", id))
		}

		for port := range vlan.Untagged {
			portTouches++
			if !portPattern.MatchString(port) {
				result.addError("port-pattern", fmt.Sprintf("vlan %d: port %q matches no known pattern for device type %q", id, port, deviceType))
			}
			if other, seen := untaggedOwner[port]; seen && other != id {
				result.addError("untagged-conflict", fmt.Sprintf("port %q is untagged in both vlan %d and vlan %d", port, other, id))
			} else {
				untaggedOwner[port] = id
			}
			if _, alsoTagged := vlan.Tagged[port]; alsoTagged {
				result.addError("tagged-untagged-conflict", fmt.Sprintf("vlan %d: port %q is both tagged and untagged", id, port))
			}
		}
		for port := range vlan.Tagged {
			portTouches++
			if !portPattern.MatchString(port) {
				result.addError("port-pattern", fmt.Sprintf("vlan %d: port %q matches no known pattern for device type %q", id, port, deviceType))
			}
		}
	}

	for id, port := range ds.Ports {
		changeSetSize++
		if !portPattern.MatchString(id) {
			result.addError("port-pattern", fmt.Sprintf("port %q matches no known pattern for device type %q", id, deviceType))
		}
		if port.Speed != nil {
			if _, ok := validSpeeds[*port.Speed]; !ok {
				result.addError("speed-enum", fmt.Sprintf("port %q: speed %q not in {auto,100M,1G,10G}", id, *port.Speed))
			}
		}
		portTouches++
	}

	if changeSetSize > 20 {
		result.addWarning("changeset-size", fmt.Sprintf("change set has %d items, exceeding 20", changeSetSize))
	}
	if portTouches > 50 {
		result.addWarning("port-touches", fmt.Sprintf("change set touches %d ports, exceeding 50", portTouches))
	}

	return result
}
