package detect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aquintel/spillwatch/internal/access"
	"github.com/aquintel/spillwatch/pkg/core"
	"github.com/google/uuid"
)

// Recorder persists detections.
type Recorder interface {
	RecordDetection(d *core.Detection) error
}

// Sink receives detections for telemetry.
type Sink interface {
	WriteDetection(d core.Detection)
}

// Models is the subset of Client the service calls.
type Models interface {
	RunAnomaly(ctx context.Context, req AnomalyRequest) (AnomalyResult, error)
	ClassifySAR(ctx context.Context, v Vessel) (SARResult, error)
}

// Service runs model calls on behalf of an operator role and records the
// outcome.
type Service struct {
	models   Models
	recorder Recorder
	sinks    []Sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a detection service. recorder may be nil.
func NewService(models Models, recorder Recorder, logger *slog.Logger, sinks ...Sink) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		models:   models,
		recorder: recorder,
		sinks:    sinks,
		logger:   logger,
		now:      time.Now,
	}
}

// RunAnomaly starts an anomaly-detection run.
func (s *Service) RunAnomaly(ctx context.Context, role access.Role, req AnomalyRequest) (core.Detection, error) {
	if err := access.RequireModels(role); err != nil {
		return core.Detection{}, err
	}
	if len(req.Features) == 0 {
		req = DefaultAnomalyRequest()
	}

	s.logger.Info("Running AIS anomaly detection", "role", role, "features", len(req.Features))
	res, err := s.models.RunAnomaly(ctx, req)
	if err != nil {
		s.logger.Error("AIS anomaly detection failed", "error", err)
		return core.Detection{}, err
	}

	d := s.newDetection(core.DetectionAISAnomaly, role)
	d.Detail = fmt.Sprintf("status %d: %s", res.StatusCode, truncate(strings.TrimSpace(res.Body), 256))
	s.record(&d)
	return d, nil
}

// ClassifySAR runs SAR classification for one vessel.
func (s *Service) ClassifySAR(ctx context.Context, role access.Role, v Vessel) (core.Detection, error) {
	if err := access.RequireModels(role); err != nil {
		return core.Detection{}, err
	}

	s.logger.Info("Running SAR classification", "role", role, "mmsi", v.MMSI, "ship", v.ShipName)
	res, err := s.models.ClassifySAR(ctx, v)
	if err != nil {
		s.logger.Error("SAR classification failed", "mmsi", v.MMSI, "error", err)
		return core.Detection{}, err
	}

	d := s.newDetection(core.DetectionSAR, role)
	d.MMSI = v.MMSI
	d.ShipName = v.ShipName
	spill := res.SpillDetected
	d.SpillDetected = &spill
	d.Detail = Message(spill) + " (" + res.Method + ")"
	s.record(&d)
	return d, nil
}

// Message is the operator-facing SAR outcome.
func Message(spill bool) string {
	if spill {
		return "Oil Spill Detected by SAR"
	}
	return "No Oil Spill Detected by SAR"
}

func (s *Service) newDetection(kind core.DetectionKind, role access.Role) core.Detection {
	return core.Detection{
		ID:          uuid.NewString(),
		Kind:        kind,
		RequestedBy: string(role),
		CreatedAt:   s.now().UTC(),
	}
}

func (s *Service) record(d *core.Detection) {
	if s.recorder != nil {
		if err := s.recorder.RecordDetection(d); err != nil {
			s.logger.Error("Failed to record detection", "id", d.ID, "error", err)
		}
	}
	for _, sink := range s.sinks {
		sink.WriteDetection(*d)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
