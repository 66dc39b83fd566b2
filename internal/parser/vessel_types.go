package parser

import (
	"strconv"
	"strings"
)

// specialTypes covers the single-code AIS ship types.
var specialTypes = map[int]string{
	30: "Fishing",
	31: "Towing",
	32: "Towing (large)",
	33: "Dredging",
	34: "Diving Ops",
	35: "Military Ops",
	36: "Sailing",
	37: "Pleasure Craft",
	50: "Pilot Vessel",
	51: "Search and Rescue",
	52: "Tug",
	53: "Port Tender",
	54: "Anti-Pollution",
	55: "Law Enforcement",
	58: "Medical Transport",
}

// VesselTypeLabel converts an AIS ship type code into a display label.
// Unknown codes are returned unchanged so the operator still sees them.
func VesselTypeLabel(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		f, ferr := strconv.ParseFloat(code, 64)
		if ferr != nil || f != float64(int(f)) {
			return code
		}
		n = int(f)
	}

	if label, ok := specialTypes[n]; ok {
		return label
	}
	switch {
	case n >= 20 && n <= 29:
		return "Wing in Ground"
	case n >= 40 && n <= 49:
		return "High Speed Craft"
	case n >= 60 && n <= 69:
		return "Passenger"
	case n >= 70 && n <= 79:
		return "Cargo"
	case n >= 80 && n <= 89:
		return "Tanker"
	case n >= 90 && n <= 99:
		return "Other"
	}
	return code
}
