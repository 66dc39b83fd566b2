package fleet

import (
	"math"
	"strconv"
	"strings"

	"github.com/aquintel/spillwatch/pkg/core"
)

// AggregatedField is the document field holding per-vessel analytics.
const AggregatedField = "aggregated_data"

// Decode turns one raw document into a vessel report. A document without
// aggregated analytics, or whose analytics lack a last-known position,
// decodes to NoAggregatedData.
func Decode(id string, doc map[string]any) core.VesselReport {
	report := core.VesselReport{MMSI: id, Data: core.NoAggregatedData{}}
	if m, ok := doc["mmsi"]; ok {
		if s := toString(m); s != "" {
			report.MMSI = s
		}
	}

	raw, ok := doc[AggregatedField].(map[string]any)
	if !ok {
		return report
	}
	lastLat, okLat := toFloat(raw["LastLAT"])
	lastLon, okLon := toFloat(raw["LastLON"])
	if !okLat || !okLon {
		return report
	}

	agg := core.AggregatedData{
		LastLat:  lastLat,
		LastLon:  lastLon,
		ShipName: toString(raw["ShipName"]),
	}
	agg.MaxSpeed, _ = toFloat(raw["MaxSpeed"])
	agg.AvgHeading, _ = toFloat(raw["AvgHeading"])
	agg.FirstLat, _ = toFloat(raw["FirstLAT"])
	agg.FirstLon, _ = toFloat(raw["FirstLON"])
	agg.ProximityToPort, _ = toFloat(raw["ProximityToPort"])
	agg.ProximityToReef, _ = toFloat(raw["ProximityToReef"])
	agg.StallDuration, _ = toFloat(raw["stallDuration"])
	agg.IsTankerOrCargo = toInt(raw["isTankerOrCargo"])
	agg.IsAnomalous = toInt(raw["isAnomalous"])
	agg.UTurns = toInt(raw["uturns"])
	agg.IsSpecialManeuver = toBool(raw["isSpecialManeuver"])

	report.Data = agg
	return report
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(v any) int {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	f, ok := toFloat(v)
	if !ok {
		return 0
	}
	return int(f)
}

func toBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return err == nil && b
	default:
		f, ok := toFloat(v)
		return ok && f != 0
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}
