package geo

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aquintel/spillwatch/internal/filter"
	"github.com/aquintel/spillwatch/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// TrackGeometry returns a LineString for two or more samples, a Point for
// one, and false for none.
func TrackGeometry(samples []core.PositionSample) (geom.Geometry, bool) {
	return TrackGeometryCRS(samples, CRS4326)
}

// TrackGeometryCRS is TrackGeometry with coordinates in crs. 3857 output is
// in web-mercator meters.
func TrackGeometryCRS(samples []core.PositionSample, crs CRS) (geom.Geometry, bool) {
	switch len(samples) {
	case 0:
		return geom.Geometry{}, false
	case 1:
		if crs == CRS3857 {
			return Point3857(samples[0].Lat, samples[0].Lon).AsGeometry(), true
		}
		return Point4326(samples[0].Lat, samples[0].Lon).AsGeometry(), true
	}

	project := func(lat, lon float64) (float64, float64) { return lon, lat }
	if crs == CRS3857 {
		project = mercatorProjector()
	}
	flat := make([]float64, 0, len(samples)*2)
	for _, s := range samples {
		x, y := project(s.Lat, s.Lon)
		flat = append(flat, x, y)
	}
	ls := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	return ls.AsGeometry(), true
}

// TrackLengthNM sums the haversine distance between consecutive samples.
func TrackLengthNM(samples []core.PositionSample) float64 {
	var total float64
	for i := 1; i < len(samples); i++ {
		a, b := samples[i-1], samples[i]
		total += HaversineNM(a.Lat, a.Lon, b.Lat, b.Lon)
	}
	return total
}

// TrackFeature wraps the visible prefix of t as a GeoJSON feature.
func TrackFeature(t *core.Trajectory, visible []core.PositionSample) (geom.GeoJSONFeature, bool) {
	return TrackFeatureCRS(t, visible, CRS4326)
}

// TrackFeatureCRS is TrackFeature with the geometry in crs. Projected
// features carry a "crs" property.
func TrackFeatureCRS(t *core.Trajectory, visible []core.PositionSample, crs CRS) (geom.GeoJSONFeature, bool) {
	g, ok := TrackGeometryCRS(visible, crs)
	if !ok {
		return geom.GeoJSONFeature{}, false
	}
	props := map[string]any{
		"id":       t.ID,
		"color":    t.Color,
		"samples":  len(visible),
		"lengthNm": TrackLengthNM(visible),
	}
	if name := t.VesselName(); name != "" {
		props["name"] = name
	}
	last := visible[len(visible)-1]
	props["lastSeen"] = last.Timestamp
	if last.MMSI != "" {
		props["mmsi"] = last.MMSI
	}
	if last.VesselType != "" {
		props["vesselType"] = last.VesselType
	}
	if crs != CRS4326 {
		props["crs"] = crs.String()
	}
	return geom.GeoJSONFeature{
		Geometry:   g,
		ID:         t.ID,
		Properties: props,
	}, true
}

// FeatureCollection renders every trajectory's visible prefix at progress.
func FeatureCollection(ts []*core.Trajectory, progress float64) geom.GeoJSONFeatureCollection {
	fc := make(geom.GeoJSONFeatureCollection, 0, len(ts))
	for _, t := range ts {
		if f, ok := TrackFeature(t, filter.VisibleSamples(t, progress)); ok {
			fc = append(fc, f)
		}
	}
	return fc
}

// WriteFeatureCollection encodes fc as GeoJSON.
func WriteFeatureCollection(w io.Writer, fc geom.GeoJSONFeatureCollection) error {
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		return fmt.Errorf("failed to encode feature collection: %w", err)
	}
	return nil
}
