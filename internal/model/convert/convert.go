// Package convert maps between core types and their GORM rows.
package convert

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aquintel/spillwatch/internal/geo"
	"github.com/aquintel/spillwatch/internal/model"
	"github.com/aquintel/spillwatch/pkg/core"
)

// TrajectoryToCore rebuilds a trajectory from its row. Samples are ordered by
// Seq; a row with no samples yields ok=false since trajectories are never empty.
func TrajectoryToCore(t model.Trajectory) (core.Trajectory, bool) {
	if len(t.Samples) == 0 {
		return core.Trajectory{}, false
	}
	rows := make([]model.Sample, len(t.Samples))
	copy(rows, t.Samples)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })

	samples := make([]core.PositionSample, 0, len(rows))
	for _, r := range rows {
		s, ok := SampleToCore(r)
		if !ok {
			continue
		}
		samples = append(samples, s)
	}
	if len(samples) == 0 {
		return core.Trajectory{}, false
	}

	return core.Trajectory{
		ID:        t.TrajectoryID,
		Color:     t.Color,
		Samples:   samples,
		StartTime: samples[0].Timestamp,
		EndTime:   samples[len(samples)-1].Timestamp,
	}, true
}

// SampleToCore converts a sample row; rows with an empty position are skipped.
func SampleToCore(s model.Sample) (core.PositionSample, bool) {
	lat, lon, ok := geo.LatLonFromPoint(s.Position)
	if !ok {
		return core.PositionSample{}, false
	}
	return core.PositionSample{
		Lat:        lat,
		Lon:        lon,
		Timestamp:  s.Time,
		COG:        s.COG,
		SOG:        s.SOG,
		VesselName: s.VesselName,
		VesselType: s.VesselType,
		MMSI:       s.MMSI,
	}, true
}

// VesselReportToCore decodes the stored JSON back into the sum type.
func VesselReportToCore(r model.VesselReport) (core.VesselReport, error) {
	out := core.VesselReport{MMSI: r.MMSI, Data: core.NoAggregatedData{}}
	if !r.HasData || len(r.Data) == 0 {
		return out, nil
	}

	var a *core.AggregatedData
	if err := json.Unmarshal(r.Data, &a); err != nil {
		return core.VesselReport{}, fmt.Errorf("failed to unmarshal aggregated data for %s: %w", r.MMSI, err)
	}
	if a != nil {
		out.Data = *a
	}
	return out, nil
}

// DetectionToCore converts a detection row.
func DetectionToCore(d model.Detection) core.Detection {
	return core.Detection{
		ID:            d.ID,
		Kind:          core.DetectionKind(d.Kind),
		MMSI:          d.MMSI,
		ShipName:      d.ShipName,
		SpillDetected: d.SpillDetected,
		Detail:        d.Detail,
		RequestedBy:   d.RequestedBy,
		CreatedAt:     d.CreatedAt,
	}
}
