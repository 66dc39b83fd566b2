// pkg/core/vessel.go
package core

import "encoding/json"

// VesselData is either NoAggregatedData or AggregatedData.
type VesselData interface {
	isVesselData()
}

// NoAggregatedData marks a document without usable analytics.
type NoAggregatedData struct{}

func (NoAggregatedData) isVesselData() {}

// AggregatedData holds the per-vessel analytics computed upstream.
type AggregatedData struct {
	MaxSpeed          float64 `json:"MaxSpeed"`
	AvgHeading        float64 `json:"AvgHeading"`
	FirstLat          float64 `json:"FirstLAT"`
	FirstLon          float64 `json:"FirstLON"`
	LastLat           float64 `json:"LastLAT"`
	LastLon           float64 `json:"LastLON"`
	ProximityToPort   float64 `json:"ProximityToPort"`
	ProximityToReef   float64 `json:"ProximityToReef"`
	IsTankerOrCargo   int     `json:"isTankerOrCargo"`
	IsSpecialManeuver bool    `json:"isSpecialManeuver"`
	IsAnomalous       int     `json:"isAnomalous"`
	ShipName          string  `json:"ShipName"`
	StallDuration     float64 `json:"stallDuration"`
	UTurns            int     `json:"uturns"`
}

func (AggregatedData) isVesselData() {}

// Anomalous reports whether the upstream model flagged the vessel.
func (a AggregatedData) Anomalous() bool {
	return a.IsAnomalous == 1
}

// VesselReport is one document of the aggregated-record store, keyed by MMSI.
type VesselReport struct {
	MMSI string
	Data VesselData
}

// Aggregated returns the analytics if present.
func (r VesselReport) Aggregated() (AggregatedData, bool) {
	a, ok := r.Data.(AggregatedData)
	return a, ok
}

type vesselReportJSON struct {
	MMSI           string          `json:"mmsi"`
	AggregatedData *AggregatedData `json:"aggregated_data"`
}

// MarshalJSON writes aggregated_data as null for NoAggregatedData.
func (r VesselReport) MarshalJSON() ([]byte, error) {
	out := vesselReportJSON{MMSI: r.MMSI}
	if a, ok := r.Aggregated(); ok {
		out.AggregatedData = &a
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the VesselData variant from aggregated_data.
func (r *VesselReport) UnmarshalJSON(b []byte) error {
	var in vesselReportJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	r.MMSI = in.MMSI
	if in.AggregatedData != nil {
		r.Data = *in.AggregatedData
	} else {
		r.Data = NoAggregatedData{}
	}
	return nil
}
