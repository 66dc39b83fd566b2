// internal/storage/storage.go
package storage

import "github.com/aquintel/spillwatch/pkg/core"

// Backend is the interface all storage implementations must satisfy.
// Storage mirrors what the dashboard shows; playback never reads it except
// for an optional warm start.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Trajectories, replaced by ID
	SaveTrajectory(t *core.Trajectory) error
	LoadTrajectories() ([]*core.Trajectory, error)

	// Vessel reports, upserted by MMSI
	SaveVesselReports(reports []core.VesselReport) error
	LoadVesselReports() ([]core.VesselReport, error)

	// Detections, newest first. limit <= 0 returns all.
	RecordDetection(d *core.Detection) error
	ListDetections(limit int) ([]core.Detection, error)
}

// Exportable is an optional interface for backends that write a file when
// closed.
type Exportable interface {
	ExportedFilePath() string
}
