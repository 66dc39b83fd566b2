package influx

import (
	"sync"
	"time"

	"github.com/aquintel/spillwatch/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementVesselPosition = "vessel_position"
	MeasurementDetection      = "detection"
	MeasurementPlayback       = "playback"
)

// VesselPositionPoint builds a position point for one sample. SOG and COG are
// only written when the row carried them.
func VesselPositionPoint(trajectoryID string, s core.PositionSample) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementVesselPosition).
		AddTag("trajectory", trajectoryID).
		AddField("lat", s.Lat).
		AddField("lon", s.Lon).
		SetTime(s.Timestamp)
	if s.MMSI != "" {
		p.AddTag("mmsi", s.MMSI)
	}
	if s.VesselType != "" {
		p.AddTag("vessel_type", s.VesselType)
	}
	if s.SOG != nil {
		p.AddField("sog", *s.SOG)
	}
	if s.COG != nil {
		p.AddField("cog", *s.COG)
	}
	return p
}

// DetectionPoint builds a point for a model run.
func DetectionPoint(d core.Detection) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementDetection).
		AddTag("kind", string(d.Kind)).
		AddTag("requested_by", d.RequestedBy).
		AddField("id", d.ID).
		SetTime(d.CreatedAt)
	if d.MMSI != "" {
		p.AddTag("mmsi", d.MMSI)
	}
	if d.SpillDetected != nil {
		p.AddField("spill_detected", *d.SpillDetected)
	}
	if d.Detail != "" {
		p.AddField("detail", d.Detail)
	}
	return p
}

// PlaybackPoint records a playback state change at wall-clock time now.
func PlaybackPoint(s core.PlaybackSnapshot, now time.Time) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementPlayback).
		AddTag("state", string(s.State)).
		AddField("progress", s.Progress).
		AddField("playing", s.IsPlaying).
		AddField("seq", s.Seq).
		SetTime(now)
	if !s.SimulatedTime.IsZero() {
		p.AddField("simulated_time", s.SimulatedTime.UTC().Format(time.RFC3339))
	}
	return p
}

// WriteTrajectory writes a position point per sample.
func (m *Manager) WriteTrajectory(t *core.Trajectory) error {
	for _, s := range t.Samples {
		if err := m.WritePoint(m.Bucket(), VesselPositionPoint(t.ID, s)); err != nil {
			return err
		}
	}
	return nil
}

// WriteDetection writes d; failures are logged since callers treat telemetry
// as best effort.
func (m *Manager) WriteDetection(d core.Detection) {
	if err := m.WritePoint(m.Bucket(), DetectionPoint(d)); err != nil {
		m.Logger.Error().Err(err).Str("detection", d.ID).Msg("Failed to write detection point")
	}
}

// PlaybackRecorder returns a playback listener that writes a point whenever
// the playback state changes. Per-tick progress is not recorded.
func (m *Manager) PlaybackRecorder() func(core.PlaybackSnapshot) {
	var (
		mu   sync.Mutex
		last core.PlaybackState
	)
	return func(s core.PlaybackSnapshot) {
		mu.Lock()
		changed := s.State != last
		last = s.State
		mu.Unlock()
		if !changed {
			return
		}
		if err := m.WritePoint(m.Bucket(), PlaybackPoint(s, time.Now())); err != nil {
			m.Logger.Error().Err(err).Msg("Failed to write playback point")
		}
	}
}
