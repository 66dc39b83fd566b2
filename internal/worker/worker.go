package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aquintel/spillwatch/internal/trajectory"
	"github.com/aquintel/spillwatch/pkg/core"
)

// ErrUnknownTrajectory is returned when a persist event names a trajectory
// that is not in the loaded set.
var ErrUnknownTrajectory = errors.New("unknown trajectory")

// TrajectoryStore persists loaded trajectories. Storage backends satisfy it.
type TrajectoryStore interface {
	SaveTrajectory(t *core.Trajectory) error
}

// TrajectoryTelemetry receives loaded trajectories as time-series points.
type TrajectoryTelemetry interface {
	WriteTrajectory(t *core.Trajectory) error
}

// Refresher reloads the vessel reports from their source.
type Refresher interface {
	Refresh(ctx context.Context) ([]core.VesselReport, error)
}

// Dependencies holds all dependencies for the worker manager.
// Store, Telemetry and Fleet are optional.
type Dependencies struct {
	Set            *trajectory.Set
	Store          TrajectoryStore
	Telemetry      TrajectoryTelemetry
	Fleet          Refresher
	Logger         *slog.Logger
	RefreshTimeout time.Duration
}

// Manager runs the background persistence and refresh handlers.
type Manager struct {
	deps Dependencies
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RefreshTimeout <= 0 {
		deps.RefreshTimeout = 20 * time.Second
	}
	return &Manager{deps: deps}
}

// PendingWritesProvider is an optional interface that backends can implement
// to expose their queued writes for monitoring.
type PendingWritesProvider interface {
	QueueLengths() (trajectories, detections int)
}

// PendingWrites returns the store's queued trajectory writes.
// Returns 0 if the store doesn't support this metric.
func (m *Manager) PendingWrites() int {
	if p, ok := m.deps.Store.(PendingWritesProvider); ok {
		n, _ := p.QueueLengths()
		return n
	}
	return 0
}
