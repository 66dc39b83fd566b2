package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquintel/spillwatch/pkg/core"
)

func TestDecode(t *testing.T) {
	doc := map[string]any{
		"aggregated_data": map[string]any{
			"ShipName":          "DLB 1600",
			"LastLAT":           28.70349167,
			"LastLON":           int64(48),
			"FirstLAT":          "28.5",
			"FirstLON":          48.1,
			"MaxSpeed":          12.345,
			"AvgHeading":        181.0,
			"ProximityToPort":   3.2,
			"ProximityToReef":   0.4,
			"isTankerOrCargo":   int64(1),
			"isSpecialManeuver": true,
			"isAnomalous":       int64(1),
			"stallDuration":     42.5,
			"uturns":            int64(3),
		},
	}

	r := Decode("403000001", doc)
	assert.Equal(t, "403000001", r.MMSI)
	agg, ok := r.Aggregated()
	require.True(t, ok)
	assert.Equal(t, "DLB 1600", agg.ShipName)
	assert.Equal(t, 28.70349167, agg.LastLat)
	assert.Equal(t, 48.0, agg.LastLon)
	assert.Equal(t, 28.5, agg.FirstLat)
	assert.Equal(t, 1, agg.IsTankerOrCargo)
	assert.True(t, agg.IsSpecialManeuver)
	assert.True(t, agg.Anomalous())
	assert.Equal(t, 3, agg.UTurns)
	assert.Equal(t, 42.5, agg.StallDuration)
}

func TestDecode_NoAggregatedData(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
	}{
		{"missing", map[string]any{}},
		{"null", map[string]any{"aggregated_data": nil}},
		{"wrong type", map[string]any{"aggregated_data": "oops"}},
		{"missing last lat", map[string]any{"aggregated_data": map[string]any{"LastLON": 48.0}}},
		{"missing last lon", map[string]any{"aggregated_data": map[string]any{"LastLAT": 28.0}}},
		{"unparseable last lat", map[string]any{"aggregated_data": map[string]any{"LastLAT": "x", "LastLON": 48.0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Decode("1", tt.doc)
			assert.Equal(t, core.NoAggregatedData{}, r.Data)
			_, ok := r.Aggregated()
			assert.False(t, ok)
		})
	}
}

func TestDecode_MMSIField(t *testing.T) {
	r := Decode("doc-id", map[string]any{"mmsi": int64(403000002)})
	assert.Equal(t, "403000002", r.MMSI)
}

func TestDecode_BoolAndIntCoercion(t *testing.T) {
	r := Decode("1", map[string]any{"aggregated_data": map[string]any{
		"LastLAT":           1.0,
		"LastLON":           2.0,
		"isAnomalous":       true,
		"isSpecialManeuver": int64(0),
	}})
	agg, ok := r.Aggregated()
	require.True(t, ok)
	assert.Equal(t, 1, agg.IsAnomalous)
	assert.False(t, agg.IsSpecialManeuver)
}
