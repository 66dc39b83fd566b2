// Package trajectory builds frozen vessel tracks from parsed samples and keeps
// the set the playback engine animates.
package trajectory

import (
	"sync"
	"time"

	"github.com/aquintel/spillwatch/pkg/core"
)

// DefaultPalette is applied round-robin by source index.
var DefaultPalette = []string{"red", "green", "blue"}

// Build constructs a trajectory from time-sorted samples.
// It returns false for an empty sequence; no trajectory exists for empty input.
func Build(id, color string, samples []core.PositionSample) (*core.Trajectory, bool) {
	if len(samples) == 0 {
		return nil, false
	}
	frozen := make([]core.PositionSample, len(samples))
	copy(frozen, samples)

	return &core.Trajectory{
		ID:        id,
		Color:     color,
		Samples:   frozen,
		StartTime: frozen[0].Timestamp,
		EndTime:   frozen[len(frozen)-1].Timestamp,
	}, true
}

// ColorFor picks the palette color for the i-th loaded trajectory.
func ColorFor(palette []string, i int) string {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	if i < 0 {
		i = -i
	}
	return palette[i%len(palette)]
}

// Set is the concurrency-safe collection of loaded trajectories.
// Trajectories are inserted whole; readers never observe a partial one.
type Set struct {
	mu      sync.RWMutex
	byID    map[string]*core.Trajectory
	order   []string
	start   time.Time
	end     time.Time
	version uint64
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{byID: make(map[string]*core.Trajectory)}
}

// Add inserts or replaces a trajectory by ID.
func (s *Set) Add(t *core.Trajectory) {
	if t == nil || len(t.Samples) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(t)
	s.recomputeLocked()
}

// AddAll inserts several trajectories under one lock.
func (s *Set) AddAll(ts ...*core.Trajectory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range ts {
		if t == nil || len(t.Samples) == 0 {
			continue
		}
		s.insertLocked(t)
	}
	s.recomputeLocked()
}

func (s *Set) insertLocked(t *core.Trajectory) {
	if _, exists := s.byID[t.ID]; !exists {
		s.order = append(s.order, t.ID)
	}
	s.byID[t.ID] = t
}

func (s *Set) recomputeLocked() {
	s.start, s.end = time.Time{}, time.Time{}
	for i, id := range s.order {
		t := s.byID[id]
		if i == 0 || t.StartTime.Before(s.start) {
			s.start = t.StartTime
		}
		if i == 0 || t.EndTime.After(s.end) {
			s.end = t.EndTime
		}
	}
	s.version++
}

// Reset removes every trajectory.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*core.Trajectory)
	s.order = nil
	s.recomputeLocked()
}

// All returns the trajectories in insertion order.
func (s *Set) All() []*core.Trajectory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Trajectory, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Get returns the trajectory with the given ID.
func (s *Set) Get(id string) (*core.Trajectory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	return t, ok
}

// Len returns the number of trajectories.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Bounds returns the global time window; ok is false for an empty set.
func (s *Set) Bounds() (start, end time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.start, s.end, true
}

// Version increments on every change.
func (s *Set) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
