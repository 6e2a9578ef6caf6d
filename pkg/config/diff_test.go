package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nanoncore/switchfleet/pkg/model"
)

func boolPtr(b bool) *bool { return &b }

func TestDiff_CreateMissingVLAN(t *testing.T) {
	desired := model.NewDesiredState("sw-1")
	desired.VLANs[100] = model.VLANIntent{
		ID:       100,
		Action:   model.ActionEnsure,
		Name:     "engineering",
		Untagged: map[string]struct{}{"1/1": {}},
		Tagged:   map[string]struct{}{"1/2": {}},
	}
	live := &model.LiveState{VLANs: map[int]model.LiveVLAN{}, Ports: map[string]model.LivePort{}}

	got := Diff(desired, live)

	want := &model.DiffResult{
		VLANChanges: []model.VLANChange{
			{ID: 100, Type: model.ChangeCreate, Name: "engineering", FullUntagged: []string{"1/1"}, FullTagged: []string{"1/2"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_DeleteAbsentVLANStillPresentLive(t *testing.T) {
	desired := model.NewDesiredState("sw-1")
	desired.VLANs[200] = model.VLANIntent{ID: 200, Action: model.ActionAbsent}
	live := &model.LiveState{
		VLANs: map[int]model.LiveVLAN{200: {ID: 200, Name: "guest"}},
		Ports: map[string]model.LivePort{},
	}

	got := Diff(desired, live)

	want := &model.DiffResult{VLANChanges: []model.VLANChange{{ID: 200, Type: model.ChangeDelete}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_AbsentVLANNotPresentLiveProducesNoChange(t *testing.T) {
	desired := model.NewDesiredState("sw-1")
	desired.VLANs[300] = model.VLANIntent{ID: 300, Action: model.ActionAbsent}
	live := &model.LiveState{VLANs: map[int]model.LiveVLAN{}, Ports: map[string]model.LivePort{}}

	got := Diff(desired, live)
	if !got.Empty() {
		t.Fatalf("expected no changes, got %+v", got)
	}
}

func TestDiff_ModifyAddsAndRemovesMembership(t *testing.T) {
	desired := model.NewDesiredState("sw-1")
	desired.VLANs[10] = model.VLANIntent{
		ID:       10,
		Action:   model.ActionEnsure,
		Untagged: map[string]struct{}{"1/1": {}, "1/3": {}},
	}
	live := &model.LiveState{
		VLANs: map[int]model.LiveVLAN{
			10: {ID: 10, Untagged: map[string]struct{}{"1/1": {}, "1/2": {}}},
		},
		Ports: map[string]model.LivePort{},
	}

	got := Diff(desired, live)

	want := &model.DiffResult{
		VLANChanges: []model.VLANChange{
			{ID: 10, Type: model.ChangeModify, AddUntagged: []string{"1/3"}, RemoveUntagged: []string{"1/2"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_FullModeDeletesUnmentionedLiveVLANs(t *testing.T) {
	desired := model.NewDesiredState("sw-1")
	desired.Mode = model.ModeFull
	desired.VLANs[10] = model.VLANIntent{ID: 10, Action: model.ActionEnsure, Untagged: map[string]struct{}{}}
	live := &model.LiveState{
		VLANs: map[int]model.LiveVLAN{
			10: {ID: 10, Untagged: map[string]struct{}{}},
			99: {ID: 99},
		},
		Ports: map[string]model.LivePort{},
	}

	got := Diff(desired, live)

	want := &model.DiffResult{VLANChanges: []model.VLANChange{{ID: 99, Type: model.ChangeDelete}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_PatchModeLeavesUnmentionedLiveVLANsAlone(t *testing.T) {
	desired := model.NewDesiredState("sw-1")
	live := &model.LiveState{
		VLANs: map[int]model.LiveVLAN{99: {ID: 99}},
		Ports: map[string]model.LivePort{},
	}

	got := Diff(desired, live)
	if !got.Empty() {
		t.Fatalf("patch mode must not touch unmentioned VLANs, got %+v", got)
	}
}

func TestDiff_PortChangeOnlyCarriesChangedFields(t *testing.T) {
	desired := model.NewDesiredState("sw-1")
	desired.Ports["1/1"] = model.PortIntent{ID: "1/1", Enabled: boolPtr(true)}
	live := &model.LiveState{
		VLANs: map[int]model.LiveVLAN{},
		Ports: map[string]model.LivePort{"1/1": {ID: "1/1", Enabled: boolPtr(false)}},
	}

	got := Diff(desired, live)

	want := &model.DiffResult{PortChanges: []model.PortChange{{ID: "1/1", Enabled: boolPtr(true)}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
	}
}
