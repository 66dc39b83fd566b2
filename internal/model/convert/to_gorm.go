package convert

import (
	"encoding/json"
	"fmt"

	"github.com/aquintel/spillwatch/internal/geo"
	"github.com/aquintel/spillwatch/internal/model"
	"github.com/aquintel/spillwatch/pkg/core"
	"gorm.io/datatypes"
)

// CoreToTrajectory converts a trajectory and its samples to GORM rows.
// Sample order is kept in Seq.
func CoreToTrajectory(t core.Trajectory) model.Trajectory {
	out := model.Trajectory{
		TrajectoryID: t.ID,
		Color:        t.Color,
		VesselName:   t.VesselName(),
		StartTime:    t.StartTime,
		EndTime:      t.EndTime,
		SampleCount:  len(t.Samples),
		Samples:      make([]model.Sample, len(t.Samples)),
	}
	for i, s := range t.Samples {
		if out.MMSI == "" {
			out.MMSI = s.MMSI
		}
		out.Samples[i] = CoreToSample(s, i)
	}
	return out
}

// CoreToSample converts one position sample.
func CoreToSample(s core.PositionSample, seq int) model.Sample {
	return model.Sample{
		Seq:        seq,
		Time:       s.Timestamp,
		Position:   geo.Point4326(s.Lat, s.Lon),
		COG:        s.COG,
		SOG:        s.SOG,
		VesselName: s.VesselName,
		VesselType: s.VesselType,
		MMSI:       s.MMSI,
	}
}

// CoreToVesselReport converts a report; aggregated data is stored as JSON.
func CoreToVesselReport(r core.VesselReport) (model.VesselReport, error) {
	out := model.VesselReport{MMSI: r.MMSI}
	a, ok := r.Aggregated()
	if !ok {
		out.Data = datatypes.JSON("null")
		return out, nil
	}

	data, err := json.Marshal(a)
	if err != nil {
		return model.VesselReport{}, fmt.Errorf("failed to marshal aggregated data for %s: %w", r.MMSI, err)
	}
	out.Data = datatypes.JSON(data)
	out.HasData = true
	out.ShipName = a.ShipName
	out.Anomalous = a.Anomalous()
	out.LastPosition = geo.Point4326(a.LastLat, a.LastLon)
	return out, nil
}

// CoreToDetection converts a detection record.
func CoreToDetection(d core.Detection) model.Detection {
	var spill *bool
	if d.SpillDetected != nil {
		v := *d.SpillDetected
		spill = &v
	}
	return model.Detection{
		ID:            d.ID,
		CreatedAt:     d.CreatedAt,
		Kind:          string(d.Kind),
		MMSI:          d.MMSI,
		ShipName:      d.ShipName,
		SpillDetected: spill,
		Detail:        d.Detail,
		RequestedBy:   d.RequestedBy,
	}
}
