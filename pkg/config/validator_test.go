package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/switchfleet/pkg/model"
)

func untaggedVLAN(id int, ports ...string) model.VLANIntent {
	v := model.VLANIntent{ID: id, Action: model.ActionEnsure, Untagged: map[string]struct{}{}, Tagged: map[string]struct{}{}}
	for _, p := range ports {
		v.Untagged[p] = struct{}{}
	}
	return v
}

// TestValidate_ProtectedDelete is end-to-end scenario 4 from spec.md §8:
// deleting VLAN 1 must fail validation citing default-VLAN protection.
func TestValidate_ProtectedDelete(t *testing.T) {
	ds := model.NewDesiredState("br-a")
	ds.VLANs[1] = model.VLANIntent{ID: 1, Action: model.ActionAbsent}

	result := Validate(ds, "brocade")
	require.False(t, result.OK())
	found := false
	for _, v := range result.Errors {
		if v.Rule == "vlan-protected-delete" {
			found = true
		}
	}
	assert.True(t, found, "expected vlan-protected-delete error, got %+v", result.Errors)
}

// TestValidate_PortConflict is end-to-end scenario 5 from spec.md §8: the
// same port untagged in two different VLANs must fail validation.
func TestValidate_PortConflict(t *testing.T) {
	ds := model.NewDesiredState("br-a")
	ds.VLANs[100] = untaggedVLAN(100, "1/1/1")
	ds.VLANs[200] = untaggedVLAN(200, "1/1/1")

	result := Validate(ds, "brocade")
	require.False(t, result.OK())
	found := false
	for _, v := range result.Errors {
		if v.Rule == "untagged-conflict" {
			found = true
		}
	}
	assert.True(t, found, "expected untagged-conflict error, got %+v", result.Errors)
}

// TestValidate_Soundness_DuplicateUntaggedNeverReachesDiff is spec.md §8's
// validator-soundness invariant: no desired state with duplicate untagged
// port assignments can pass validation.
func TestValidate_Soundness_DuplicateUntaggedNeverReachesDiff(t *testing.T) {
	ds := model.NewDesiredState("br-a")
	ds.VLANs[10] = untaggedVLAN(10, "1/1/5")
	ds.VLANs[20] = untaggedVLAN(20, "1/1/5")

	result := Validate(ds, "brocade")
	assert.False(t, result.OK(), "duplicate untagged assignment must fail validation")
}

// TestValidate_ONTIAcceptsBareDigitPorts confirms the ONTI port pattern
// matches the bare-digit VLAN-membership scheme GetVLANs/CreateVLAN
// actually use, not the "portN" swconfig-status identifier space.
func TestValidate_ONTIAcceptsBareDigitPorts(t *testing.T) {
	ds := model.NewDesiredState("onti-1")
	ds.VLANs[5] = untaggedVLAN(5, "0", "1")

	result := Validate(ds, "onti")
	assert.True(t, result.OK(), "bare-digit ports must validate for onti, got %+v", result.Errors)
}

func TestValidate_ONTIRejectsPortPrefixedIdentifiers(t *testing.T) {
	ds := model.NewDesiredState("onti-1")
	ds.VLANs[5] = untaggedVLAN(5, "port0")

	result := Validate(ds, "onti")
	require.False(t, result.OK())
	found := false
	for _, v := range result.Errors {
		if v.Rule == "port-pattern" {
			found = true
		}
	}
	assert.True(t, found, "expected port-pattern error for port-prefixed identifier on onti")
}

func TestValidate_VLANIDOutOfRange(t *testing.T) {
	ds := model.NewDesiredState("br-a")
	ds.VLANs[5000] = untaggedVLAN(5000, "1/1/1")

	result := Validate(ds, "brocade")
	require.False(t, result.OK())
	assert.Equal(t, "vlan-id-range", result.Errors[0].Rule)
}
