package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/switchfleet/pkg/model"
)

// newTestStore opens a Store rooted at a fresh temp directory. Save/
// History/Show all shell out to a real git binary; that is the store's
// actual integration surface, so these tests exercise it directly rather
// than mocking it out.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func docV1() map[string]any {
	return map[string]any{
		"device_id": "br-a",
		"vlans": map[string]any{
			"100": map[string]any{"name": "Prod", "untagged": "1/1/1-2"},
		},
	}
}

func docV2() map[string]any {
	return map[string]any{
		"device_id": "br-a",
		"vlans": map[string]any{
			"100": map[string]any{"name": "Prod", "untagged": "1/1/1-2"},
			"200": map[string]any{"name": "Voice", "untagged": "1/1/3-4"},
		},
	}
}

// TestStore_Monotonicity is spec.md §8's store-monotonicity property:
// after n successful saves of the same device, version == n and the
// history log contains n commits for that file.
func TestStore_Monotonicity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docs := []map[string]any{docV1(), docV2()}
	for i, doc := range docs {
		_, err := s.Save(ctx, "br-a", doc, "save", "operator", model.SourceManual)
		require.NoError(t, err)

		pd, err := s.readDocument("br-a")
		require.NoError(t, err)
		assert.Equal(t, i+1, pd.Version)
	}

	history, err := s.History(ctx, "br-a", 10)
	require.NoError(t, err)
	assert.Len(t, history, len(docs))
}

// TestStore_RestoreRoundTrip is end-to-end scenario 6 ("Drift and
// history") from spec.md §8: save V1, save V2, then restore HEAD~1 and
// confirm the restored body matches V1's and the version advances to 3.
func TestStore_RestoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "br-a", docV1(), "v1", "operator", model.SourceManual)
	require.NoError(t, err)
	v1, err := s.readDocument("br-a")
	require.NoError(t, err)

	_, err = s.Save(ctx, "br-a", docV2(), "v2", "operator", model.SourceManual)
	require.NoError(t, err)

	history, err := s.History(ctx, "br-a", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	_, err = s.Restore(ctx, "br-a", "HEAD~1", "operator")
	require.NoError(t, err)

	restored, err := s.readDocument("br-a")
	require.NoError(t, err)
	assert.Equal(t, v1.VLANs, restored.VLANs)
	assert.Equal(t, v1.Ports, restored.Ports)
	assert.Equal(t, v1.Settings, restored.Settings)
	assert.Equal(t, 3, restored.Version)
}

func TestStore_ChecksumStableAcrossSaveAndReload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "br-a", docV1(), "v1", "operator", model.SourceManual)
	require.NoError(t, err)

	pd, err := s.readDocument("br-a")
	require.NoError(t, err)

	want, err := checksum(docV1())
	require.NoError(t, err)
	assert.Equal(t, want, pd.Checksum)
}
