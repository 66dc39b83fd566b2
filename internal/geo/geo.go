package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/aquintel/spillwatch/internal/filter"
)

// Points are stored as WGS84 (EPSG:4326) with X=longitude, Y=latitude.
// Web-mercator (EPSG:3857) copies are produced on demand for map clients.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ErrUnsupportedCRS is returned for an output projection other than 4326 or 3857.
var ErrUnsupportedCRS = errors.New("unsupported crs")

// CRS is an EPSG code for output geometries.
type CRS int

const (
	CRS4326 CRS = 4326
	CRS3857 CRS = 3857
)

// ParseCRS accepts "", "4326", "3857" and their "EPSG:" forms. Empty means 4326.
func ParseCRS(s string) (CRS, error) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "EPSG:")
	switch s {
	case "", "4326":
		return CRS4326, nil
	case "3857":
		return CRS3857, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedCRS, s)
}

// String renders the code as "EPSG:<n>".
func (c CRS) String() string {
	return "EPSG:" + strconv.Itoa(int(c))
}

// EarthRadiusNM is the mean earth radius in nautical miles.
const EarthRadiusNM = 3440.065

// Point4326 builds a 2D point from latitude and longitude.
func Point4326(lat, lon float64) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: lon, Y: lat},
		Type: geom.DimXY,
	})
}

// LatLonFromPoint reads latitude and longitude back out of a 4326 point.
// ok is false for an empty point.
func LatLonFromPoint(p geom.Point) (lat, lon float64, ok bool) {
	c, ok := p.Coordinates()
	if !ok {
		return 0, 0, false
	}
	return c.Y, c.X, true
}

// Mercator converts latitude/longitude to EPSG:3857 meters.
func Mercator(lat, lon float64) (x, y float64) {
	return mercatorProjector()(lat, lon)
}

// mercatorProjector builds the 4326 to 3857 transform once for a batch of points.
func mercatorProjector() func(lat, lon float64) (x, y float64) {
	f := wgs84.EPSG().Transform(4326, 3857)
	return func(lat, lon float64) (float64, float64) {
		x, y, _ := f(lon, lat, 0)
		return x, y
	}
}

// Point3857 builds a web-mercator point from latitude and longitude.
func Point3857(lat, lon float64) geom.Point {
	x, y := Mercator(lat, lon)
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Type: geom.DimXY,
	})
}

// ParseLatLon parses "lat,lon" as used by query parameters.
func ParseLatLon(s string) (lat, lon float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidCoordinates
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, ErrInvalidCoordinates
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, ErrInvalidCoordinates
	}
	if !ValidLatLon(lat, lon) {
		return 0, 0, ErrInvalidCoordinates
	}
	return lat, lon, nil
}

// ParseBBox parses "minLat,minLon,maxLat,maxLon". A box whose minLon is
// greater than its maxLon crosses the antimeridian.
func ParseBBox(s string) (filter.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return filter.BBox{}, ErrInvalidCoordinates
	}
	minLat, minLon, err := ParseLatLon(parts[0] + "," + parts[1])
	if err != nil {
		return filter.BBox{}, err
	}
	maxLat, maxLon, err := ParseLatLon(parts[2] + "," + parts[3])
	if err != nil {
		return filter.BBox{}, err
	}
	if minLat > maxLat {
		return filter.BBox{}, ErrInvalidCoordinates
	}
	return filter.BBox{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}, nil
}

// ValidLatLon reports whether lat/lon are finite and within WGS84 ranges.
func ValidLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// HaversineNM returns the great-circle distance in nautical miles.
func HaversineNM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusNM * math.Asin(math.Min(1, math.Sqrt(a)))
}
