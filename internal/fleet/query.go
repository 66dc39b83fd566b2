package fleet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aquintel/spillwatch/pkg/core"
)

const (
	// MinZoomQuery is the shortest search query that moves the map.
	MinZoomQuery = 3

	// SearchZoomLevel is the map zoom used when focusing a matched ship.
	SearchZoomLevel = 10

	MarkerAnomalous = "red"
	MarkerNormal    = "green"

	notAvailable = "N/A"
)

// Plottable keeps reports that carry aggregated data with a last position.
func Plottable(reports []core.VesselReport) []core.VesselReport {
	out := make([]core.VesselReport, 0, len(reports))
	for _, r := range reports {
		if _, ok := r.Aggregated(); ok {
			out = append(out, r)
		}
	}
	return out
}

// Filter returns plottable reports whose ship name contains query,
// case-insensitively. An empty query keeps every plottable report.
func Filter(reports []core.VesselReport, query string) []core.VesselReport {
	q := strings.ToLower(query)
	out := make([]core.VesselReport, 0, len(reports))
	for _, r := range reports {
		agg, ok := r.Aggregated()
		if !ok {
			continue
		}
		if q == "" || strings.Contains(strings.ToLower(agg.ShipName), q) {
			out = append(out, r)
		}
	}
	return out
}

// FindByName returns the first report whose ship name contains query.
func FindByName(reports []core.VesselReport, query string) (core.VesselReport, bool) {
	if query == "" {
		return core.VesselReport{}, false
	}
	q := strings.ToLower(query)
	for _, r := range reports {
		agg, ok := r.Aggregated()
		if ok && strings.Contains(strings.ToLower(agg.ShipName), q) {
			return r, true
		}
	}
	return core.VesselReport{}, false
}

// FindByMMSI returns the report with the given MMSI.
func FindByMMSI(reports []core.VesselReport, mmsi string) (core.VesselReport, bool) {
	for _, r := range reports {
		if r.MMSI == mmsi {
			return r, true
		}
	}
	return core.VesselReport{}, false
}

// Marker is one map marker with its popup fields.
type Marker struct {
	MMSI      string  `json:"mmsi"`
	ShipName  string  `json:"shipName"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Color     string  `json:"color"`
	Anomalous bool    `json:"anomalous"`
}

// Markers builds markers for the filtered reports. Anomalous ships are red
// only when showAnomalies is set.
func Markers(reports []core.VesselReport, showAnomalies bool, query string) []Marker {
	filtered := Filter(reports, query)
	out := make([]Marker, 0, len(filtered))
	for _, r := range filtered {
		agg, _ := r.Aggregated()
		color := MarkerNormal
		if showAnomalies && agg.Anomalous() {
			color = MarkerAnomalous
		}
		out = append(out, Marker{
			MMSI:      r.MMSI,
			ShipName:  agg.ShipName,
			Lat:       agg.LastLat,
			Lon:       agg.LastLon,
			Color:     color,
			Anomalous: agg.Anomalous(),
		})
	}
	return out
}

// Zoom is a map focus request.
type Zoom struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Level int     `json:"level"`
}

// ZoomTarget returns where to focus the map for a search query. Queries
// shorter than MinZoomQuery never zoom.
func ZoomTarget(reports []core.VesselReport, query string) (Zoom, bool) {
	if len([]rune(query)) < MinZoomQuery {
		return Zoom{}, false
	}
	r, ok := FindByName(reports, query)
	if !ok {
		return Zoom{}, false
	}
	agg, _ := r.Aggregated()
	return Zoom{Lat: agg.LastLat, Lon: agg.LastLon, Level: SearchZoomLevel}, true
}

// VesselDetails is the display form of one report. Missing values are "N/A".
type VesselDetails struct {
	MMSI          string `json:"mmsi"`
	ShipName      string `json:"shipName"`
	LastLat       string `json:"lastLat"`
	LastLon       string `json:"lastLon"`
	StallDuration string `json:"stallDuration"`
	UTurns        string `json:"uturns"`
	MaxSpeed      string `json:"maxSpeed"`
	AnomalousAIS  string `json:"anomalousAis"`
}

// Details formats a report for the voyage panel.
func Details(r core.VesselReport) VesselDetails {
	d := VesselDetails{
		MMSI:          r.MMSI,
		ShipName:      notAvailable,
		LastLat:       notAvailable,
		LastLon:       notAvailable,
		StallDuration: notAvailable,
		UTurns:        notAvailable,
		MaxSpeed:      notAvailable,
		AnomalousAIS:  "No",
	}
	agg, ok := r.Aggregated()
	if !ok {
		return d
	}
	if agg.ShipName != "" {
		d.ShipName = agg.ShipName
	}
	d.LastLat = strconv.FormatFloat(agg.LastLat, 'f', -1, 64)
	d.LastLon = strconv.FormatFloat(agg.LastLon, 'f', -1, 64)
	d.StallDuration = fmt.Sprintf("%.2f", agg.StallDuration)
	d.UTurns = strconv.Itoa(agg.UTurns)
	d.MaxSpeed = fmt.Sprintf("%.2f", agg.MaxSpeed)
	if agg.Anomalous() {
		d.AnomalousAIS = "Yes"
	}
	return d
}
