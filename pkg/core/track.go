// pkg/core/track.go
package core

import "time"

// PositionSample is one parsed AIS position report.
// COG and SOG are nil when the source value could not be parsed.
type PositionSample struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Timestamp  time.Time `json:"timestamp"`
	COG        *float64  `json:"cog,omitempty"`
	SOG        *float64  `json:"sog,omitempty"`
	VesselName string    `json:"vesselName,omitempty"`
	VesselType string    `json:"vesselType,omitempty"`
	MMSI       string    `json:"mmsi,omitempty"`
}

// Coords returns the sample position as (lat, lon).
func (s PositionSample) Coords() [2]float64 {
	return [2]float64{s.Lat, s.Lon}
}

// Trajectory is one vessel's time-ordered track.
// Samples is never empty and StartTime/EndTime match its first and last timestamp.
type Trajectory struct {
	ID        string           `json:"id"`
	Color     string           `json:"color"`
	Samples   []PositionSample `json:"samples"`
	StartTime time.Time        `json:"startTime"`
	EndTime   time.Time        `json:"endTime"`
}

// Duration is the time span covered by the trajectory.
func (t *Trajectory) Duration() time.Duration {
	return t.EndTime.Sub(t.StartTime)
}

// VesselName returns the name carried by the first sample that has one.
func (t *Trajectory) VesselName() string {
	for _, s := range t.Samples {
		if s.VesselName != "" {
			return s.VesselName
		}
	}
	return ""
}
