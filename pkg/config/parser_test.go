package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExpandPortRange_ProducesExactCount is the range-expansion invariant
// from spec.md §8: for every port range token a/b/c-d, expansion produces
// exactly d-c+1 identifiers.
func TestExpandPortRange_ProducesExactCount(t *testing.T) {
	cases := []struct{ unit, module, from, to int }{
		{1, 1, 1, 4},
		{1, 1, 5, 5},
		{2, 3, 1, 24},
		{0, 0, 0, 0},
	}
	for _, c := range cases {
		tok := fmt.Sprintf("%d/%d/%d-%d", c.unit, c.module, c.from, c.to)
		t.Run(tok, func(t *testing.T) {
			got := ExpandPortRange(tok)
			assert.Len(t, got, c.to-c.from+1)
			assert.Equal(t, fmt.Sprintf("%d/%d/%d", c.unit, c.module, c.from), got[0])
			assert.Equal(t, fmt.Sprintf("%d/%d/%d", c.unit, c.module, c.to), got[len(got)-1])
		})
	}
}

func TestExpandPortRange_MalformedRangePreservedAsOpaqueToken(t *testing.T) {
	tok := "1/1/5-1" // from > to: not a valid range
	got := ExpandPortRange(tok)
	assert.Equal(t, []string{tok}, got)
}

func TestExpandPortRange_PlainIdentifierUnchanged(t *testing.T) {
	for _, tok := range []string{"0", "port0", "1/1/3"} {
		assert.Equal(t, []string{tok}, ExpandPortRange(tok))
	}
}

func TestParse_MissingDeviceIDIsACause(t *testing.T) {
	_, err := Parse(map[string]any{})
	require.Error(t, err)
	perr, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Contains(t, perr.Error(), "device_id")
}

func TestParse_ExpandsPortRangeWithinVLANMembership(t *testing.T) {
	doc := map[string]any{
		"device_id": "br-a",
		"vlans": map[string]any{
			"100": map[string]any{
				"name":     "Prod",
				"untagged": "1/1/1-4",
			},
		},
	}
	ds, err := Parse(doc)
	require.NoError(t, err)
	vlan, ok := ds.VLANs[100]
	require.True(t, ok)
	assert.Len(t, vlan.Untagged, 4)
	for _, p := range []string{"1/1/1", "1/1/2", "1/1/3", "1/1/4"} {
		_, present := vlan.Untagged[p]
		assert.True(t, present, "expected %s in expanded untagged set", p)
	}
}

func TestParse_ComputesChecksumWhenNoneSupplied(t *testing.T) {
	doc := map[string]any{"device_id": "br-a"}
	ds, err := Parse(doc)
	require.NoError(t, err)
	assert.NotEmpty(t, ds.Checksum)
}

func TestParse_RejectsMismatchedSuppliedChecksum(t *testing.T) {
	doc := map[string]any{"device_id": "br-a", "checksum": "not-the-real-digest"}
	_, err := Parse(doc)
	require.Error(t, err)
	perr, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Contains(t, perr.Error(), "checksum mismatch")
}

func TestParse_AcceptsMatchingSuppliedChecksum(t *testing.T) {
	doc := map[string]any{"device_id": "br-a"}
	ds, err := Parse(doc)
	require.NoError(t, err)

	doc["checksum"] = ds.Checksum
	ds2, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, ds.Checksum, ds2.Checksum)
}
