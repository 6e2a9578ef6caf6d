package config

import (
	"sort"

	"github.com/nanoncore/switchfleet/pkg/model"
)

// Diff computes the ordered set of VLAN and port changes needed to bring
// live into agreement with desired. It is a pure function: no I/O, set
// arithmetic only. Live VLANs/ports not mentioned by desired are left
// alone (patch semantics) unless desired.Mode is ModeFull, in which case
// unmentioned live VLANs are scheduled for deletion.
func Diff(desired *model.DesiredState, live *model.LiveState) *model.DiffResult {
	result := &model.DiffResult{}

	ids := make([]int, 0, len(desired.VLANs))
	for id := range desired.VLANs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		intent := desired.VLANs[id]
		liveVLAN, present := live.VLANs[id]

		if intent.Action == model.ActionAbsent {
			if present {
				result.VLANChanges = append(result.VLANChanges, model.VLANChange{ID: id, Type: model.ChangeDelete})
			}
			continue
		}

		if !present {
			result.VLANChanges = append(result.VLANChanges, model.VLANChange{
				ID:           id,
				Type:         model.ChangeCreate,
				Name:         intent.Name,
				FullUntagged: sortedKeys(intent.Untagged),
				FullTagged:   sortedKeys(intent.Tagged),
			})
			continue
		}

		change := model.VLANChange{ID: id, Type: model.ChangeModify, Name: intent.Name}
		change.AddUntagged, change.RemoveUntagged = setDiff(intent.Untagged, liveVLAN.Untagged)
		change.AddTagged, change.RemoveTagged = setDiff(intent.Tagged, liveVLAN.Tagged)
		change.NameChanged = intent.Name != "" && intent.Name != liveVLAN.Name

		if len(change.AddUntagged) == 0 && len(change.RemoveUntagged) == 0 &&
			len(change.AddTagged) == 0 && len(change.RemoveTagged) == 0 && !change.NameChanged {
			continue
		}
		result.VLANChanges = append(result.VLANChanges, change)
	}

	if desired.Mode == model.ModeFull {
		liveIDs := make([]int, 0, len(live.VLANs))
		for id := range live.VLANs {
			if _, mentioned := desired.VLANs[id]; !mentioned {
				liveIDs = append(liveIDs, id)
			}
		}
		sort.Ints(liveIDs)
		for _, id := range liveIDs {
			result.VLANChanges = append(result.VLANChanges, model.VLANChange{ID: id, Type: model.ChangeDelete})
		}
	}

	portIDs := make([]string, 0, len(desired.Ports))
	for id := range desired.Ports {
		portIDs = append(portIDs, id)
	}
	sort.Strings(portIDs)

	for _, id := range portIDs {
		intent := desired.Ports[id]
		livePort := live.Ports[id]
		change := model.PortChange{ID: id}
		changed := false

		if intent.Enabled != nil && (livePort.Enabled == nil || *intent.Enabled != *livePort.Enabled) {
			change.Enabled = intent.Enabled
			changed = true
		}
		if intent.Speed != nil && (livePort.Speed == nil || *intent.Speed != *livePort.Speed) {
			change.Speed = intent.Speed
			changed = true
		}
		if intent.Duplex != nil && (livePort.Duplex == nil || *intent.Duplex != *livePort.Duplex) {
			change.Duplex = intent.Duplex
			changed = true
		}
		if intent.Description != nil && (livePort.Description == nil || *intent.Description != *livePort.Description) {
			change.Description = intent.Description
			changed = true
		}
		if intent.VLANMode != nil && (livePort.VLANMode == nil || *intent.VLANMode != *livePort.VLANMode) {
			change.VLANMode = intent.VLANMode
			changed = true
		}
		if intent.NativeVLAN != nil && (livePort.NativeVLAN == nil || *intent.NativeVLAN != *livePort.NativeVLAN) {
			change.NativeVLAN = intent.NativeVLAN
			changed = true
		}

		if changed {
			result.PortChanges = append(result.PortChanges, change)
		}
	}

	return result
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// setDiff returns (toAdd, toRemove) such that applying toAdd then toRemove
// to liveSet yields desiredSet.
func setDiff(desiredSet, liveSet map[string]struct{}) ([]string, []string) {
	var add, remove []string
	for k := range desiredSet {
		if _, ok := liveSet[k]; !ok {
			add = append(add, k)
		}
	}
	for k := range liveSet {
		if _, ok := desiredSet[k]; !ok {
			remove = append(remove, k)
		}
	}
	sort.Strings(add)
	sort.Strings(remove)
	return add, remove
}
