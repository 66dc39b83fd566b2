// pkg/core/detection.go
package core

import "time"

// DetectionKind names the external model that produced a detection.
type DetectionKind string

const (
	DetectionAISAnomaly DetectionKind = "ais_anomaly"
	DetectionSAR        DetectionKind = "sar"
)

// Detection is the recorded outcome of one model run.
// SpillDetected is nil when the model does not answer that question.
type Detection struct {
	ID            string        `json:"id"`
	Kind          DetectionKind `json:"kind"`
	MMSI          string        `json:"mmsi,omitempty"`
	ShipName      string        `json:"shipName,omitempty"`
	SpillDetected *bool         `json:"spillDetected,omitempty"`
	Detail        string        `json:"detail,omitempty"`
	RequestedBy   string        `json:"requestedBy"`
	CreatedAt     time.Time     `json:"createdAt"`
}
