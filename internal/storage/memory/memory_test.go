package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aquintel/spillwatch/internal/config"
	"github.com/aquintel/spillwatch/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testTrajectory(id string, lats ...float64) *core.Trajectory {
	samples := make([]core.PositionSample, len(lats))
	for i, lat := range lats {
		samples[i] = core.PositionSample{Lat: lat, Lon: 48.0 + float64(i)*0.1, Timestamp: t0.Add(time.Duration(i) * time.Minute), MMSI: "367000001"}
	}
	return &core.Trajectory{
		ID:        id,
		Color:     "#3cb44b",
		Samples:   samples,
		StartTime: samples[0].Timestamp,
		EndTime:   samples[len(samples)-1].Timestamp,
	}
}

func TestTrajectories_SaveLoadReplace(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())

	require.NoError(t, b.SaveTrajectory(testTrajectory("b", 28.0, 28.1)))
	require.NoError(t, b.SaveTrajectory(testTrajectory("a", 27.0)))
	require.NoError(t, b.SaveTrajectory(testTrajectory("b", 29.0, 29.1, 29.2)))
	require.NoError(t, b.SaveTrajectory(nil))
	require.NoError(t, b.SaveTrajectory(&core.Trajectory{ID: "empty"}))

	got, err := b.LoadTrajectories()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Len(t, got[0].Samples, 3)
	assert.Equal(t, "a", got[1].ID)

	// loaded copies are independent
	got[0].Samples[0].Lat = 0
	again, _ := b.LoadTrajectories()
	assert.Equal(t, 29.0, again[0].Samples[0].Lat)
}

func TestSaveTrajectory_CopiesInput(t *testing.T) {
	b := New(config.MemoryConfig{})
	in := testTrajectory("x", 28.0)
	require.NoError(t, b.SaveTrajectory(in))

	in.Samples[0].Lat = 1
	got, _ := b.LoadTrajectories()
	assert.Equal(t, 28.0, got[0].Samples[0].Lat)
}

func TestVesselReports_Upsert(t *testing.T) {
	b := New(config.MemoryConfig{})

	require.NoError(t, b.SaveVesselReports([]core.VesselReport{
		{MMSI: "2", Data: core.NoAggregatedData{}},
		{MMSI: "1", Data: core.AggregatedData{ShipName: "OLD"}},
	}))
	require.NoError(t, b.SaveVesselReports([]core.VesselReport{
		{MMSI: "1", Data: core.AggregatedData{ShipName: "NEW"}},
	}))

	got, err := b.LoadVesselReports()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].MMSI)
	a, ok := got[0].Aggregated()
	require.True(t, ok)
	assert.Equal(t, "NEW", a.ShipName)
}

func TestDetections_NewestFirstWithLimit(t *testing.T) {
	b := New(config.MemoryConfig{})

	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordDetection(&core.Detection{
			ID:        string(rune('a' + i)),
			Kind:      core.DetectionAISAnomaly,
			CreatedAt: t0.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, b.RecordDetection(nil))

	all, err := b.ListDetections(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "e", all[0].ID)

	top, err := b.ListDetections(2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, []string{"e", "d"}, []string{top[0].ID, top[1].ID})
}

func TestClose_NoOutputDir(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.SaveTrajectory(testTrajectory("a", 28.0)))
	require.NoError(t, b.Close())
	assert.Empty(t, b.ExportedFilePath())
}

func TestClose_NothingToExport(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	require.NoError(t, b.Close())
	assert.Empty(t, b.ExportedFilePath())
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		Geometry struct {
			Type string `json:"type"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func TestClose_ExportsGeoJSON(t *testing.T) {
	tests := []struct {
		name     string
		compress bool
		suffix   string
	}{
		{"plain", false, ".geojson"},
		{"gzip", true, ".geojson.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "exports")
			b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: tt.compress})
			b.now = func() time.Time { return t0 }

			require.NoError(t, b.SaveTrajectory(testTrajectory("line", 28.0, 28.1)))
			require.NoError(t, b.SaveTrajectory(testTrajectory("point", 27.0)))
			require.NoError(t, b.Close())

			path := b.ExportedFilePath()
			assert.Equal(t, filepath.Join(dir, "trajectories_20240301_120000"+tt.suffix), path)

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()

			var fc featureCollection
			if tt.compress {
				gr, err := gzip.NewReader(f)
				require.NoError(t, err)
				require.NoError(t, json.NewDecoder(gr).Decode(&fc))
			} else {
				require.NoError(t, json.NewDecoder(f).Decode(&fc))
			}

			assert.Equal(t, "FeatureCollection", fc.Type)
			require.Len(t, fc.Features, 2)
			assert.Equal(t, "LineString", fc.Features[0].Geometry.Type)
			assert.Equal(t, "Point", fc.Features[1].Geometry.Type)
			assert.Equal(t, "line", fc.Features[0].Properties["id"])
		})
	}
}
