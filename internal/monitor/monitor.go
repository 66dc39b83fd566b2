package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aquintel/spillwatch/internal/cache"
	"github.com/aquintel/spillwatch/internal/trajectory"
	"github.com/aquintel/spillwatch/pkg/core"
)

// DefaultInterval is how often Start rewrites the status file.
const DefaultInterval = 5 * time.Second

// PlaybackSource exposes the engine state.
type PlaybackSource interface {
	Snapshot() core.PlaybackSnapshot
}

// ClientCounter exposes the number of connected stream clients.
type ClientCounter interface {
	ClientCount() int
}

// PendingWriter exposes queued storage writes.
type PendingWriter interface {
	PendingWrites() int
}

// Dependencies holds all dependencies for the monitor service.
// Everything except Set may be nil.
type Dependencies struct {
	Set        *trajectory.Set
	Playback   PlaybackSource
	Reports    *cache.ReportCache
	Clients    ClientCounter
	Writes     PendingWriter
	Logger     *slog.Logger
	StatusFile string
	Interval   time.Duration
}

// Status is a point-in-time view of the running service.
type Status struct {
	Time          time.Time             `json:"time"`
	Trajectories  int                   `json:"trajectories"`
	Playback      core.PlaybackSnapshot `json:"playback"`
	Vessels       int                   `json:"vessels"`
	FleetCacheAge *float64              `json:"fleetCacheAgeSeconds"`
	Clients       int                   `json:"clients"`
	PendingWrites int                   `json:"pendingWrites"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
	now       func() time.Time
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps: deps,
		now:  time.Now,
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status collects the current program status.
func (s *Service) Status() Status {
	st := Status{Time: s.now().UTC()}
	if s.deps.Set != nil {
		st.Trajectories = s.deps.Set.Len()
	}
	if s.deps.Playback != nil {
		st.Playback = s.deps.Playback.Snapshot()
	}
	if s.deps.Reports != nil {
		if last, ok := s.deps.Reports.Last(); ok {
			st.Vessels = len(last)
		}
		if age, ok := s.deps.Reports.Age(); ok {
			secs := age.Seconds()
			st.FleetCacheAge = &secs
		}
	}
	if s.deps.Clients != nil {
		st.Clients = s.deps.Clients.ClientCount()
	}
	if s.deps.Writes != nil {
		st.PendingWrites = s.deps.Writes.PendingWrites()
	}
	return st
}

// WriteStatus overwrites the status file with the current status.
func (s *Service) WriteStatus() error {
	if s.deps.StatusFile == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.Status(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.deps.StatusFile), 0o755); err != nil {
		return fmt.Errorf("failed to create status dir: %w", err)
	}
	tmp := s.deps.StatusFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return os.Rename(tmp, s.deps.StatusFile)
}

// Start starts the status monitor goroutine. It stops on Stop or when ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "interval", s.deps.Interval, "file", s.deps.StatusFile)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	select {
	case <-stop:
	default:
		close(stop)
	}
	<-done
}
