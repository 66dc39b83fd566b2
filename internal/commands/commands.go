// Package commands binds the control-surface commands to the playback engine
// and the detection collaborators through a dispatcher.
package commands

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aquintel/spillwatch/internal/access"
	"github.com/aquintel/spillwatch/internal/detect"
	"github.com/aquintel/spillwatch/internal/dispatcher"
	"github.com/aquintel/spillwatch/pkg/core"
)

// Command names routed through the dispatcher.
const (
	PlaybackStart = "playback:start"
	PlaybackStop  = "playback:stop"
	PlaybackSeek  = "playback:seek"
	ModelsAIS     = "models:ais"
	VesselSAR     = "vessel:sar"
)

// DefaultModelTimeout bounds one model call.
const DefaultModelTimeout = 2 * time.Minute

var (
	ErrBadArgument    = errors.New("bad argument")
	ErrVesselNotFound = errors.New("vessel not found")
	ErrNoPosition     = errors.New("vessel has no last known position")
	ErrUnavailable    = errors.New("not available")
)

// Playback is the engine surface the commands drive.
type Playback interface {
	Start()
	Stop()
	Seek(p float64)
	Snapshot() core.PlaybackSnapshot
}

// Detector runs model calls for a role.
type Detector interface {
	RunAnomaly(ctx context.Context, role access.Role, req detect.AnomalyRequest) (core.Detection, error)
	ClassifySAR(ctx context.Context, role access.Role, v detect.Vessel) (core.Detection, error)
}

// Fleet looks up vessels and is told when a model run changed the analytics.
type Fleet interface {
	Get(ctx context.Context, mmsi string) (core.VesselReport, bool, error)
	Invalidate()
}

// Deps are the collaborators; Detector and Fleet may be nil, in which case
// the model commands fail with ErrUnavailable.
type Deps struct {
	Playback     Playback
	Detector     Detector
	Fleet        Fleet
	ModelTimeout time.Duration
}

// Register installs every command on d.
func Register(d *dispatcher.Dispatcher, deps Deps) {
	if deps.ModelTimeout <= 0 {
		deps.ModelTimeout = DefaultModelTimeout
	}
	h := &handlers{deps: deps}

	d.Register(PlaybackStart, h.start)
	d.Register(PlaybackStop, h.stop)
	d.Register(PlaybackSeek, h.seek)
	d.Register(ModelsAIS, h.runAIS, dispatcher.Logged())
	d.Register(VesselSAR, h.runSAR, dispatcher.Logged())
}

type handlers struct {
	deps Deps
}

func (h *handlers) start(dispatcher.Event) (any, error) {
	h.deps.Playback.Start()
	return h.deps.Playback.Snapshot(), nil
}

func (h *handlers) stop(dispatcher.Event) (any, error) {
	h.deps.Playback.Stop()
	return h.deps.Playback.Snapshot(), nil
}

func (h *handlers) seek(e dispatcher.Event) (any, error) {
	p, err := ParseProgress(e.Arg(0))
	if err != nil {
		return nil, err
	}
	h.deps.Playback.Seek(p)
	return h.deps.Playback.Snapshot(), nil
}

func (h *handlers) runAIS(e dispatcher.Event) (any, error) {
	if h.deps.Detector == nil {
		return nil, fmt.Errorf("%w: anomaly detection", ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.deps.ModelTimeout)
	defer cancel()

	d, err := h.deps.Detector.RunAnomaly(ctx, access.ParseRole(e.Role), detect.DefaultAnomalyRequest())
	if err != nil {
		return nil, err
	}
	// the run rewrites isAnomalous upstream
	if h.deps.Fleet != nil {
		h.deps.Fleet.Invalidate()
	}
	return d, nil
}

func (h *handlers) runSAR(e dispatcher.Event) (any, error) {
	if h.deps.Detector == nil || h.deps.Fleet == nil {
		return nil, fmt.Errorf("%w: SAR classification", ErrUnavailable)
	}
	mmsi := e.Arg(0)
	if mmsi == "" {
		return nil, fmt.Errorf("%w: mmsi is required", ErrBadArgument)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.deps.ModelTimeout)
	defer cancel()

	report, ok, err := h.deps.Fleet.Get(ctx, mmsi)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVesselNotFound, mmsi)
	}
	a, ok := report.Aggregated()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPosition, mmsi)
	}

	return h.deps.Detector.ClassifySAR(ctx, access.ParseRole(e.Role), detect.Vessel{
		MMSI:     report.MMSI,
		ShipName: a.ShipName,
		Lat:      a.LastLat,
		Lon:      a.LastLon,
	})
}

// ParseProgress reads a seek target. Out-of-range values are accepted and
// clamped by the engine; NaN and non-numbers are rejected.
func ParseProgress(s string) (float64, error) {
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(p) {
		return 0, fmt.Errorf("%w: progress %q", ErrBadArgument, s)
	}
	return p, nil
}
