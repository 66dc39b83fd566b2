package influx

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aquintel/spillwatch/internal/config"
	"github.com/aquintel/spillwatch/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func line(p *influxdb2_write.Point) string {
	return influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
}

func TestVesselPositionPoint(t *testing.T) {
	sog := 12.5
	p := VesselPositionPoint("gulf:367000001", core.PositionSample{
		Lat: 28.1, Lon: 48.2, Timestamp: t0, SOG: &sog, MMSI: "367000001", VesselType: "Tanker",
	})

	lp := line(p)
	assert.True(t, strings.HasPrefix(lp, "vessel_position,"))
	assert.Contains(t, lp, "mmsi=367000001")
	assert.Contains(t, lp, "trajectory=gulf:367000001")
	assert.Contains(t, lp, "vessel_type=Tanker")
	assert.Contains(t, lp, "lat=28.1")
	assert.Contains(t, lp, "sog=12.5")
	assert.NotContains(t, lp, "cog=")
}

func TestDetectionPoint(t *testing.T) {
	spill := true
	p := DetectionPoint(core.Detection{
		ID: "abc", Kind: core.DetectionSAR, MMSI: "367000003", SpillDetected: &spill,
		RequestedBy: "govt-authorities", CreatedAt: t0,
	})

	lp := line(p)
	assert.True(t, strings.HasPrefix(lp, "detection,"))
	assert.Contains(t, lp, "kind=sar")
	assert.Contains(t, lp, "requested_by=govt-authorities")
	assert.Contains(t, lp, "spill_detected=true")
}

func TestPlaybackPoint(t *testing.T) {
	p := PlaybackPoint(core.PlaybackSnapshot{Seq: 7, Progress: 42, State: core.PlaybackPlaying, IsPlaying: true, SimulatedTime: t0}, t0)

	lp := line(p)
	assert.True(t, strings.HasPrefix(lp, "playback,state=playing"))
	assert.Contains(t, lp, "progress=42")
	assert.Contains(t, lp, "playing=true")
	assert.Contains(t, lp, "seq=7u")
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{Enabled: false}, zerolog.Nop())
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
	assert.NoError(t, m.Close())
}

func TestWritePoint_NoSink(t *testing.T) {
	m := NewManager(config.InfluxConfig{Bucket: "spillwatch"}, zerolog.Nop())
	assert.Error(t, m.WritePoint("spillwatch", PlaybackPoint(core.PlaybackSnapshot{}, t0)))
}

func TestConnect_UnreachableFallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(config.InfluxConfig{
		Enabled:   true,
		Protocol:  "http",
		Host:      "127.0.0.1",
		Port:      "1",
		Org:       "spillwatch",
		Bucket:    "spillwatch",
		BackupDir: dir,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)
	require.NotEmpty(t, m.BackupPath)

	sog := 9.0
	tr := &core.Trajectory{ID: "gulf:1", Samples: []core.PositionSample{
		{Lat: 28.1, Lon: 48.2, Timestamp: t0, SOG: &sog},
		{Lat: 28.3, Lon: 48.4, Timestamp: t0.Add(time.Minute)},
	}}
	require.NoError(t, m.WriteTrajectory(tr))
	m.WriteDetection(core.Detection{ID: "d1", Kind: core.DetectionAISAnomaly, RequestedBy: "site-admin", CreatedAt: t0})

	record := m.PlaybackRecorder()
	record(core.PlaybackSnapshot{State: core.PlaybackPlaying, Progress: 1})
	record(core.PlaybackSnapshot{State: core.PlaybackPlaying, Progress: 2})
	record(core.PlaybackSnapshot{State: core.PlaybackCompleted, Progress: 100})

	require.NoError(t, m.Close())

	f, err := os.Open(m.BackupPath)
	require.NoError(t, err)
	defer f.Close()
	gr, err := gzip.NewReader(f)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = io.Copy(&buf, gr)
	require.NoError(t, err)

	body := buf.String()
	assert.Equal(t, 2, strings.Count(body, "vessel_position,"))
	assert.Equal(t, 1, strings.Count(body, "detection,"))
	assert.Equal(t, 2, strings.Count(body, "playback,"), "only state changes are recorded")
}

func TestServerURL(t *testing.T) {
	m := NewManager(config.InfluxConfig{Protocol: "https", Host: "influx.local", Port: "8086"}, zerolog.Nop())
	assert.Equal(t, "https://influx.local:8086", m.ServerURL())
}
