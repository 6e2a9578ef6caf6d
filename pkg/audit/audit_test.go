package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/switchfleet/pkg/model"
)

func TestJSONLSink_WriteAppendsOneLinePerEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	sink, err := NewJSONLSink(path)
	require.NoError(t, err)

	events := []Event{
		{Timestamp: time.Now().UTC(), DeviceID: "br-a", Operation: "apply", Success: true, ConfigChecksum: "abc123"},
		{Timestamp: time.Now().UTC(), DeviceID: "br-a", Operation: "apply", Success: false, Error: "connect timeout"},
	}
	for _, e := range events {
		require.NoError(t, sink.Write(e))
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, len(events))

	var first Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "abc123", first.ConfigChecksum)
	assert.True(t, first.Success)
}

func TestEvent_BeforeAfterStateRoundTripThroughJSON(t *testing.T) {
	e := Event{
		DeviceID:  "br-a",
		Operation: "apply",
		BeforeState: &model.LiveState{
			VLANs: map[int]model.LiveVLAN{1: {ID: 1, Name: "default", Untagged: map[string]struct{}{"1/1/1": {}}, Tagged: map[string]struct{}{}}},
			Ports: map[string]model.LivePort{},
		},
		AfterState: &model.LiveState{
			VLANs: map[int]model.LiveVLAN{1: {ID: 1, Name: "default", Untagged: map[string]struct{}{"1/1/1": {}, "1/1/2": {}}, Tagged: map[string]struct{}{}}},
			Ports: map[string]model.LivePort{},
		},
	}

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NotNil(t, decoded.BeforeState)
	require.NotNil(t, decoded.AfterState)
	assert.Len(t, decoded.BeforeState.VLANs[1].Untagged, 1)
	assert.Len(t, decoded.AfterState.VLANs[1].Untagged, 2)
}

func TestEvent_BeforeAfterStateOmittedWhenNil(t *testing.T) {
	e := Event{DeviceID: "br-a", Operation: "apply", Success: true}
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "before_state")
	assert.NotContains(t, string(raw), "after_state")
}

func TestNullSink_WriteAlwaysSucceeds(t *testing.T) {
	assert.NoError(t, NullSink{}.Write(Event{}))
}
