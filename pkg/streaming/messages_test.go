package streaming

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aquintel/spillwatch/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_PlaybackFrame(t *testing.T) {
	snap := core.PlaybackSnapshot{
		Progress:    50,
		IsPlaying:   true,
		State:       core.PlaybackPlaying,
		GlobalStart: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := Marshal(TypePlaybackFrame, PlaybackFramePayload{Snapshot: snap, Visible: map[string]int{"a": 1}})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, TypePlaybackFrame, env.Type)

	var payload PlaybackFramePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, 50.0, payload.Snapshot.Progress)
	assert.Equal(t, core.PlaybackPlaying, payload.Snapshot.State)
	assert.Equal(t, 1, payload.Visible["a"])
}

func TestMarshal_NilPayload(t *testing.T) {
	data, err := Marshal(TypeStart, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"start"}`, string(data))
}

func TestMarshal_BadPayload(t *testing.T) {
	_, err := Marshal(TypeDetection, map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestVesselsUpdatedPayload_ReportJSON(t *testing.T) {
	data, err := Marshal(TypeVesselsUpdated, VesselsUpdatedPayload{
		Count: 1,
		Reports: []core.VesselReport{
			{MMSI: "367000001", Data: core.NoAggregatedData{}},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"aggregated_data":null`)
}
