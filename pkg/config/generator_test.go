package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/switchfleet/pkg/device"
	"github.com/nanoncore/switchfleet/pkg/model"
)

// TestGenerateBrocade_CreateAndPopulate is end-to-end scenario 1 from
// spec.md §8: device br-a, VLAN 100 named Prod with untagged 1/1/1-4,
// no live VLAN 100.
func TestGenerateBrocade_CreateAndPopulate(t *testing.T) {
	diff := &model.DiffResult{
		VLANChanges: []model.VLANChange{
			{
				ID:           100,
				Type:         model.ChangeCreate,
				Name:         "Prod",
				FullUntagged: []string{"1/1/1", "1/1/2", "1/1/3", "1/1/4"},
			},
		},
	}

	plan, err := Generate(device.TypeBrocade, diff, GenerateOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, plan.Main)
	assert.Equal(t, "vlan 100 name Prod by port", plan.Main[0])
	assert.Contains(t, plan.Main, "untagged ethe 1/1/1 to 1/1/4")
	assert.Equal(t, "exit", plan.Main[len(plan.Main)-1])

	assert.Contains(t, plan.Post, "write memory")

	require.NotEmpty(t, plan.Rollback)
	assert.Equal(t, "no vlan 100", plan.Rollback[0])
}

// TestGenerateBrocade_CrossModuleUnion is end-to-end scenario 2: ports
// spanning two modules must never collapse into one combined range.
func TestGenerateBrocade_CrossModuleUnion(t *testing.T) {
	diff := &model.DiffResult{
		VLANChanges: []model.VLANChange{
			{
				ID:           100,
				Type:         model.ChangeCreate,
				Name:         "Prod",
				FullUntagged: []string{"1/1/1", "1/1/2", "1/2/1", "1/2/2"},
			},
		},
	}

	plan, err := Generate(device.TypeBrocade, diff, GenerateOptions{})
	require.NoError(t, err)

	assert.Contains(t, plan.Main, "untagged ethe 1/1/1 to 1/1/2")
	assert.Contains(t, plan.Main, "untagged ethe 1/2/1 to 1/2/2")
	assert.NotContains(t, plan.Main, "untagged ethe 1/1/1 to 1/1/2 1/2/1 to 1/2/2")
	for _, cmd := range plan.Main {
		assert.NotContains(t, cmd, "1/1/1 to 1/2/2")
	}
}

// TestGenerateBrocade_SafeModify is end-to-end scenario 3: a modify must
// remove the old membership strictly before adding the new one.
func TestGenerateBrocade_SafeModify(t *testing.T) {
	diff := &model.DiffResult{
		VLANChanges: []model.VLANChange{
			{
				ID:             100,
				Type:           model.ChangeModify,
				RemoveUntagged: []string{"1/1/1", "1/1/2"},
				AddUntagged:    []string{"1/1/3", "1/1/4"},
			},
		},
	}

	plan, err := Generate(device.TypeBrocade, diff, GenerateOptions{})
	require.NoError(t, err)

	removeIdx, addIdx := -1, -1
	for i, cmd := range plan.Main {
		if cmd == "no untagged ethe 1/1/1 to 1/1/2" {
			removeIdx = i
		}
		if cmd == "untagged ethe 1/1/3 to 1/1/4" {
			addIdx = i
		}
	}
	require.NotEqual(t, -1, removeIdx, "remove command not found in plan")
	require.NotEqual(t, -1, addIdx, "add command not found in plan")
	assert.Less(t, removeIdx, addIdx, "remove must come strictly before add")
}

func TestGenerateBrocade_DeleteWithoutSnapshotRejectedByPolicy(t *testing.T) {
	diff := &model.DiffResult{
		VLANChanges: []model.VLANChange{{ID: 50, Type: model.ChangeDelete}},
	}
	_, err := Generate(device.TypeBrocade, diff, GenerateOptions{RejectAbsentWithoutSnapshot: true})
	assert.Error(t, err)
}

func TestGenerateONTI_CreateEmitsBareDigitPortsWithTrailingTForTagged(t *testing.T) {
	diff := &model.DiffResult{
		VLANChanges: []model.VLANChange{
			{ID: 10, Type: model.ChangeCreate, FullUntagged: []string{"0"}, FullTagged: []string{"1"}},
		},
	}
	plan, err := Generate(device.TypeONTI, diff, GenerateOptions{})
	require.NoError(t, err)
	found := false
	for _, cmd := range plan.Main {
		if cmd == "uci set network.@switch_vlan[-1].ports='0 1t'" {
			found = true
		}
	}
	assert.True(t, found, "expected ports string with bare-digit untagged and t-suffixed tagged port, got %v", plan.Main)
}

func TestGenerate_UnknownDeviceTypeErrors(t *testing.T) {
	_, err := Generate(device.Type("nonexistent"), &model.DiffResult{}, GenerateOptions{})
	assert.Error(t, err)
}
