// internal/storage/memory/memory.go
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/aquintel/spillwatch/internal/config"
	"github.com/aquintel/spillwatch/pkg/core"
)

// Backend keeps everything in memory and exports trajectories as GeoJSON
// when closed.
type Backend struct {
	cfg config.MemoryConfig
	now func() time.Time

	trajectories map[string]*core.Trajectory
	order        []string
	reports      map[string]core.VesselReport
	detections   []core.Detection

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:          cfg,
		now:          time.Now,
		trajectories: make(map[string]*core.Trajectory),
		reports:      make(map[string]core.VesselReport),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports the stored trajectories when an output directory is set.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.OutputDir == "" || len(b.order) == 0 {
		return nil
	}
	return b.exportGeoJSON()
}

// ExportedFilePath returns the path written by the last Close, if any.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// SaveTrajectory stores t, replacing any trajectory with the same ID.
func (b *Backend) SaveTrajectory(t *core.Trajectory) error {
	if t == nil || len(t.Samples) == 0 {
		return nil
	}
	cp := *t
	cp.Samples = append([]core.PositionSample(nil), t.Samples...)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.trajectories[t.ID]; !ok {
		b.order = append(b.order, t.ID)
	}
	b.trajectories[t.ID] = &cp
	return nil
}

// LoadTrajectories returns copies in save order.
func (b *Backend) LoadTrajectories() ([]*core.Trajectory, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*core.Trajectory, 0, len(b.order))
	for _, id := range b.order {
		t := *b.trajectories[id]
		t.Samples = append([]core.PositionSample(nil), t.Samples...)
		out = append(out, &t)
	}
	return out, nil
}

// SaveVesselReports upserts reports by MMSI.
func (b *Backend) SaveVesselReports(reports []core.VesselReport) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range reports {
		b.reports[r.MMSI] = r
	}
	return nil
}

// LoadVesselReports returns the stored reports ordered by MMSI.
func (b *Backend) LoadVesselReports() ([]core.VesselReport, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.VesselReport, 0, len(b.reports))
	for _, r := range b.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MMSI < out[j].MMSI })
	return out, nil
}

// RecordDetection appends d.
func (b *Backend) RecordDetection(d *core.Detection) error {
	if d == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detections = append(b.detections, *d)
	return nil
}

// ListDetections returns up to limit detections, newest first.
func (b *Backend) ListDetections(limit int) ([]core.Detection, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Detection, len(b.detections))
	copy(out, b.detections)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
