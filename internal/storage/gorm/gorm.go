// Package gormstorage implements the storage.Backend interface on GORM with
// internal queues and a background DB writer goroutine. The sqlite and
// postgres backends wrap it.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aquintel/spillwatch/internal/database"
	"github.com/aquintel/spillwatch/internal/model"
	"github.com/aquintel/spillwatch/internal/model/convert"
	"github.com/aquintel/spillwatch/internal/queue"
	"github.com/aquintel/spillwatch/pkg/core"
	"github.com/rs/zerolog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultFlushInterval is how often the writer drains its queues.
const DefaultFlushInterval = 2 * time.Second

// ErrNoDB is returned by Init when no connection was injected.
var ErrNoDB = errors.New("gorm backend has no database")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	DBLogger      zerolog.Logger
	Version       string
	FlushInterval time.Duration
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Trajectories *queue.Queue[model.Trajectory]
	Detections   *queue.Queue[model.Detection]
}

func newQueues() *queues {
	return &queues{
		Trajectories: queue.New[model.Trajectory](),
		Detections:   queue.New[model.Detection](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues

	// serializes drains between the writer goroutine and Flush
	writeMu sync.Mutex

	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// SetDB injects the connection; wrappers call it before Init.
func (b *Backend) SetDB(db *gorm.DB) {
	b.deps.DB = db
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return ErrNoDB
	}
	if err := database.Migrate(b.deps.DB, b.deps.Version, b.deps.DBLogger); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// Close stops the writer and flushes whatever is still queued.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() {
		if b.stopChan != nil {
			close(b.stopChan)
			<-b.done
		}
	})
	if b.deps.DB == nil {
		return nil
	}
	return b.Flush()
}

// QueueLengths reports pending trajectory and detection writes.
func (b *Backend) QueueLengths() (trajectories, detections int) {
	return b.queues.Trajectories.Len(), b.queues.Detections.Len()
}

// SaveTrajectory converts and queues t. An existing row with the same ID is
// replaced when the queue is written.
func (b *Backend) SaveTrajectory(t *core.Trajectory) error {
	if t == nil || len(t.Samples) == 0 {
		return nil
	}
	b.queues.Trajectories.Push(convert.CoreToTrajectory(*t))
	return nil
}

// LoadTrajectories flushes pending writes and reads every trajectory with its
// samples.
func (b *Backend) LoadTrajectories() ([]*core.Trajectory, error) {
	if err := b.Flush(); err != nil {
		return nil, err
	}

	var rows []model.Trajectory
	err := b.deps.DB.
		Preload("Samples", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load trajectories: %w", err)
	}

	out := make([]*core.Trajectory, 0, len(rows))
	for _, r := range rows {
		if t, ok := convert.TrajectoryToCore(r); ok {
			out = append(out, &t)
		}
	}
	return out, nil
}

// SaveVesselReports upserts reports by MMSI synchronously; reports are small
// and the fleet service expects them mirrored before its next poll.
func (b *Backend) SaveVesselReports(reports []core.VesselReport) error {
	if len(reports) == 0 || b.deps.DB == nil {
		return nil
	}

	rows := make([]model.VesselReport, 0, len(reports))
	for _, r := range reports {
		row, err := convert.CoreToVesselReport(r)
		if err != nil {
			b.deps.Logger.Warn("Skipping vessel report", "mmsi", r.MMSI, "error", err)
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}

	err := b.deps.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mmsi"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at", "ship_name", "has_data", "anomalous", "last_position", "data"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to upsert vessel reports: %w", err)
	}
	return nil
}

// LoadVesselReports returns the mirrored reports ordered by MMSI.
func (b *Backend) LoadVesselReports() ([]core.VesselReport, error) {
	var rows []model.VesselReport
	if err := b.deps.DB.Order("mmsi").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load vessel reports: %w", err)
	}

	out := make([]core.VesselReport, 0, len(rows))
	for _, r := range rows {
		rep, err := convert.VesselReportToCore(r)
		if err != nil {
			b.deps.Logger.Warn("Skipping stored vessel report", "mmsi", r.MMSI, "error", err)
			continue
		}
		out = append(out, rep)
	}
	return out, nil
}

// RecordDetection converts and queues d.
func (b *Backend) RecordDetection(d *core.Detection) error {
	if d == nil {
		return nil
	}
	b.queues.Detections.Push(convert.CoreToDetection(*d))
	return nil
}

// ListDetections flushes pending writes and returns up to limit detections,
// newest first.
func (b *Backend) ListDetections(limit int) ([]core.Detection, error) {
	if err := b.Flush(); err != nil {
		return nil, err
	}

	q := b.deps.DB.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.Detection
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}

	out := make([]core.Detection, len(rows))
	for i, r := range rows {
		out[i] = convert.DetectionToCore(r)
	}
	return out, nil
}

// Flush drains all queues into the DB now.
func (b *Backend) Flush() error {
	if b.deps.DB == nil {
		return ErrNoDB
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	var errs []error
	if err := writeQueue(b.deps.DB, b.queues.Trajectories, replaceTrajectories); err != nil {
		errs = append(errs, fmt.Errorf("writing trajectories: %w", err))
	}
	if err := writeQueue(b.deps.DB, b.queues.Detections, createAll[model.Detection]); err != nil {
		errs = append(errs, fmt.Errorf("writing detections: %w", err))
	}
	return errors.Join(errs...)
}

// writeQueue writes all items from a queue in one transaction. On failure the
// items go back on the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], write func(tx *gorm.DB, items []T) error) error {
	if q.Empty() {
		return nil
	}

	items := q.Drain()
	err := db.Transaction(func(tx *gorm.DB) error {
		return write(tx, items)
	})
	if err != nil {
		q.Push(items...)
		return err
	}
	return nil
}

func createAll[T any](tx *gorm.DB, items []T) error {
	return tx.Create(&items).Error
}

// replaceTrajectories deletes any stored trajectory sharing an ID, then
// inserts the new row with its samples. Later items win within a batch.
func replaceTrajectories(tx *gorm.DB, items []model.Trajectory) error {
	for i := range items {
		var existing []model.Trajectory
		if err := tx.Where("trajectory_id = ?", items[i].TrajectoryID).Find(&existing).Error; err != nil {
			return err
		}
		for _, e := range existing {
			if err := tx.Where("trajectory_ref = ?", e.ID).Delete(&model.Sample{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&model.Trajectory{}, e.ID).Error; err != nil {
				return err
			}
		}
		// a retried row may still carry IDs from the failed attempt
		items[i].ID = 0
		for j := range items[i].Samples {
			items[i].Samples[j].ID = 0
			items[i].Samples[j].TrajectoryRef = 0
		}
		if err := tx.Create(&items[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// writerLoop periodically drains queues into the DB until Close.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			trajectories, detections := b.QueueLengths()
			if trajectories+detections == 0 {
				continue
			}
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error("DB write failed", "error", err)
				continue
			}
			b.deps.Logger.Debug("DB write complete",
				"trajectories", trajectories,
				"detections", detections,
				"duration", time.Since(start))
		}
	}
}
