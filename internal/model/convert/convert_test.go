package convert

import (
	"testing"
	"time"

	"github.com/aquintel/spillwatch/internal/model"
	"github.com/aquintel/spillwatch/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func sampleTrajectory() core.Trajectory {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	samples := []core.PositionSample{
		{Lat: 28.1, Lon: 48.2, Timestamp: t0, SOG: ptr(11.5), COG: ptr(270), MMSI: "367000001", VesselName: "GULF STAR", VesselType: "Tanker"},
		{Lat: 28.3, Lon: 48.4, Timestamp: t0.Add(10 * time.Minute), MMSI: "367000001", VesselName: "GULF STAR", VesselType: "Tanker"},
	}
	return core.Trajectory{
		ID:        "gulf:367000001",
		Color:     "#e6194b",
		Samples:   samples,
		StartTime: samples[0].Timestamp,
		EndTime:   samples[1].Timestamp,
	}
}

func TestTrajectoryRoundTrip(t *testing.T) {
	in := sampleTrajectory()

	row := CoreToTrajectory(in)
	assert.Equal(t, "gulf:367000001", row.TrajectoryID)
	assert.Equal(t, "367000001", row.MMSI)
	assert.Equal(t, "GULF STAR", row.VesselName)
	assert.Equal(t, 2, row.SampleCount)
	require.Len(t, row.Samples, 2)
	assert.Equal(t, 1, row.Samples[1].Seq)

	// storage may return samples in any order
	row.Samples[0], row.Samples[1] = row.Samples[1], row.Samples[0]

	out, ok := TrajectoryToCore(row)
	require.True(t, ok)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Color, out.Color)
	assert.Equal(t, in.StartTime, out.StartTime)
	assert.Equal(t, in.EndTime, out.EndTime)
	require.Len(t, out.Samples, 2)
	assert.InDelta(t, 28.1, out.Samples[0].Lat, 1e-9)
	assert.InDelta(t, 48.2, out.Samples[0].Lon, 1e-9)
	require.NotNil(t, out.Samples[0].SOG)
	assert.Equal(t, 11.5, *out.Samples[0].SOG)
	assert.Nil(t, out.Samples[1].SOG)
}

func TestTrajectoryToCore_Empty(t *testing.T) {
	_, ok := TrajectoryToCore(model.Trajectory{TrajectoryID: "x"})
	assert.False(t, ok)

	// only an empty position
	_, ok = TrajectoryToCore(model.Trajectory{TrajectoryID: "x", Samples: []model.Sample{{Seq: 0}}})
	assert.False(t, ok)
}

func TestVesselReportRoundTrip(t *testing.T) {
	in := core.VesselReport{
		MMSI: "367000002",
		Data: core.AggregatedData{
			ShipName:    "BLUE HERON",
			LastLat:     27.5,
			LastLon:     49.1,
			MaxSpeed:    14.2,
			IsAnomalous: 1,
			UTurns:      3,
		},
	}

	row, err := CoreToVesselReport(in)
	require.NoError(t, err)
	assert.True(t, row.HasData)
	assert.True(t, row.Anomalous)
	assert.Equal(t, "BLUE HERON", row.ShipName)
	assert.False(t, row.LastPosition.IsEmpty())

	out, err := VesselReportToCore(row)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestVesselReport_NoAggregatedData(t *testing.T) {
	row, err := CoreToVesselReport(core.VesselReport{MMSI: "1", Data: core.NoAggregatedData{}})
	require.NoError(t, err)
	assert.False(t, row.HasData)

	out, err := VesselReportToCore(row)
	require.NoError(t, err)
	_, ok := out.Aggregated()
	assert.False(t, ok)
	assert.Equal(t, "1", out.MMSI)
}

func TestVesselReportToCore_BadJSON(t *testing.T) {
	_, err := VesselReportToCore(model.VesselReport{MMSI: "1", HasData: true, Data: []byte("{")})
	assert.Error(t, err)
}

func TestDetectionRoundTrip(t *testing.T) {
	spill := true
	in := core.Detection{
		ID:            "5b0f3c1e-7a51-4f0b-9b0c-3f1f0a8f2d11",
		Kind:          core.DetectionSAR,
		MMSI:          "367000003",
		ShipName:      "NORTHERN TIDE",
		SpillDetected: &spill,
		Detail:        "Oil spill detected",
		RequestedBy:   "govt-authorities",
		CreatedAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	row := CoreToDetection(in)
	assert.Equal(t, "sar", row.Kind)

	// copies the flag rather than aliasing it
	spill = false
	require.NotNil(t, row.SpillDetected)
	assert.True(t, *row.SpillDetected)

	out := DetectionToCore(row)
	assert.Equal(t, row.ID, out.ID)
	assert.Equal(t, core.DetectionSAR, out.Kind)
	assert.True(t, *out.SpillDetected)
}
