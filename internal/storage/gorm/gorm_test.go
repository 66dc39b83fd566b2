package gormstorage

import (
	"testing"
	"time"

	"github.com/aquintel/spillwatch/internal/database"
	"github.com/aquintel/spillwatch/internal/model"
	"github.com/aquintel/spillwatch/pkg/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestBackend creates a Backend on a private in-memory SQLite database.
// The writer interval is long so tests control flushing.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.GetSqliteDB(database.MemoryDSN(uuid.NewString()), zerolog.Nop())
	require.NoError(t, err)

	b := New(Dependencies{
		DB:            db,
		DBLogger:      zerolog.Nop(),
		Version:       "test",
		FlushInterval: time.Hour,
	})
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })
	return b
}

func testTrajectory(id string, lats ...float64) *core.Trajectory {
	samples := make([]core.PositionSample, len(lats))
	for i, lat := range lats {
		sog := 10.0 + float64(i)
		samples[i] = core.PositionSample{
			Lat:        lat,
			Lon:        48.0 + float64(i)*0.1,
			Timestamp:  t0.Add(time.Duration(i) * time.Minute),
			SOG:        &sog,
			MMSI:       "367000001",
			VesselName: "GULF STAR",
		}
	}
	return &core.Trajectory{
		ID:        id,
		Color:     "#4363d8",
		Samples:   samples,
		StartTime: samples[0].Timestamp,
		EndTime:   samples[len(samples)-1].Timestamp,
	}
}

func TestInit_NoDB(t *testing.T) {
	b := New(Dependencies{})
	assert.ErrorIs(t, b.Init(), ErrNoDB)
	assert.NoError(t, b.Close())
}

func TestSaveTrajectory_QueuesUntilFlush(t *testing.T) {
	b := newTestBackend(t)

	require.NoError(t, b.SaveTrajectory(testTrajectory("gulf:1", 28.0, 28.1)))
	require.NoError(t, b.SaveTrajectory(nil))
	require.NoError(t, b.SaveTrajectory(&core.Trajectory{ID: "empty"}))

	trajectories, detections := b.QueueLengths()
	assert.Equal(t, 1, trajectories)
	assert.Equal(t, 0, detections)

	var count int64
	require.NoError(t, b.DB().Model(&model.Trajectory{}).Count(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, b.Flush())
	require.NoError(t, b.DB().Model(&model.Trajectory{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, b.DB().Model(&model.Sample{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestTrajectories_RoundTripAndReplace(t *testing.T) {
	b := newTestBackend(t)

	require.NoError(t, b.SaveTrajectory(testTrajectory("gulf:1", 28.0, 28.1)))
	require.NoError(t, b.SaveTrajectory(testTrajectory("gulf:2", 27.0)))
	require.NoError(t, b.Flush())
	require.NoError(t, b.SaveTrajectory(testTrajectory("gulf:1", 29.0, 29.1, 29.2)))

	got, err := b.LoadTrajectories()
	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := map[string]*core.Trajectory{}
	for _, tr := range got {
		byID[tr.ID] = tr
	}
	require.Contains(t, byID, "gulf:1")
	replaced := byID["gulf:1"]
	require.Len(t, replaced.Samples, 3)
	assert.InDelta(t, 29.0, replaced.Samples[0].Lat, 1e-9)
	assert.InDelta(t, 29.2, replaced.Samples[2].Lat, 1e-9)
	assert.True(t, replaced.StartTime.Equal(t0))
	assert.True(t, replaced.EndTime.Equal(t0.Add(2*time.Minute)))
	require.NotNil(t, replaced.Samples[1].SOG)
	assert.Equal(t, 11.0, *replaced.Samples[1].SOG)

	var samples int64
	require.NoError(t, b.DB().Model(&model.Sample{}).Count(&samples).Error)
	assert.Equal(t, int64(4), samples, "old samples are removed on replace")
}

func TestVesselReports_Upsert(t *testing.T) {
	b := newTestBackend(t)

	require.NoError(t, b.SaveVesselReports([]core.VesselReport{
		{MMSI: "367000002", Data: core.NoAggregatedData{}},
		{MMSI: "367000001", Data: core.AggregatedData{ShipName: "OLD", LastLat: 27.5, LastLon: 49.1}},
	}))
	require.NoError(t, b.SaveVesselReports([]core.VesselReport{
		{MMSI: "367000001", Data: core.AggregatedData{ShipName: "NEW", LastLat: 27.6, LastLon: 49.2, IsAnomalous: 1}},
	}))
	require.NoError(t, b.SaveVesselReports(nil))

	got, err := b.LoadVesselReports()
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "367000001", got[0].MMSI)
	a, ok := got[0].Aggregated()
	require.True(t, ok)
	assert.Equal(t, "NEW", a.ShipName)
	assert.True(t, a.Anomalous())

	_, ok = got[1].Aggregated()
	assert.False(t, ok)

	var row model.VesselReport
	require.NoError(t, b.DB().First(&row, "mmsi = ?", "367000001").Error)
	assert.True(t, row.Anomalous)
}

func TestDetections_ListNewestFirst(t *testing.T) {
	b := newTestBackend(t)

	spill := true
	for i := 0; i < 4; i++ {
		require.NoError(t, b.RecordDetection(&core.Detection{
			ID:            uuid.NewString(),
			Kind:          core.DetectionSAR,
			MMSI:          "367000001",
			SpillDetected: &spill,
			Detail:        "Oil spill detected",
			RequestedBy:   "site-admin",
			CreatedAt:     t0.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, b.RecordDetection(nil))

	got, err := b.ListDetections(3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].CreatedAt.Equal(t0.Add(3*time.Minute)))
	assert.True(t, got[2].CreatedAt.Equal(t0.Add(1*time.Minute)))
	require.NotNil(t, got[0].SpillDetected)
	assert.True(t, *got[0].SpillDetected)

	all, err := b.ListDetections(0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestWriterLoop_FlushesInBackground(t *testing.T) {
	db, err := database.GetSqliteDB(database.MemoryDSN(uuid.NewString()), zerolog.Nop())
	require.NoError(t, err)

	b := New(Dependencies{DB: db, DBLogger: zerolog.Nop(), FlushInterval: 10 * time.Millisecond})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.RecordDetection(&core.Detection{ID: uuid.NewString(), Kind: core.DetectionAISAnomaly, CreatedAt: t0}))

	assert.Eventually(t, func() bool {
		var count int64
		b.DB().Model(&model.Detection{}).Count(&count)
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClose_FlushesPending(t *testing.T) {
	db, err := database.GetSqliteDB(database.MemoryDSN(uuid.NewString()), zerolog.Nop())
	require.NoError(t, err)

	b := New(Dependencies{DB: db, DBLogger: zerolog.Nop(), FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	require.NoError(t, b.SaveTrajectory(testTrajectory("gulf:1", 28.0)))

	require.NoError(t, b.Close())
	// second close is harmless
	require.NoError(t, b.Close())

	var count int64
	require.NoError(t, db.Model(&model.Trajectory{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
