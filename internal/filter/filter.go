// Package filter selects the samples visible at a playback progress.
package filter

import (
	"math"
	"sort"

	"github.com/aquintel/spillwatch/pkg/core"
)

// VisibleSamples returns the ordered prefix of t's samples whose position in
// the trajectory's own time window is at or below progress. The result
// aliases t.Samples and must not be modified.
func VisibleSamples(t *core.Trajectory, progress float64) []core.PositionSample {
	if t == nil || len(t.Samples) == 0 {
		return nil
	}
	return t.Samples[:VisibleCount(t, progress)]
}

// VisibleCount returns len(VisibleSamples(t, progress)) without slicing.
func VisibleCount(t *core.Trajectory, progress float64) int {
	if t == nil {
		return 0
	}
	n := len(t.Samples)
	if n == 0 {
		return 0
	}
	span := t.EndTime.Sub(t.StartTime)
	if span <= 0 {
		return n
	}
	progress = clamp(progress)

	// samples are sorted, so the predicate is monotone
	return sort.Search(n, func(i int) bool {
		elapsed := t.Samples[i].Timestamp.Sub(t.StartTime)
		return float64(elapsed)/float64(span)*100 > progress
	})
}

// VisibleAll applies VisibleSamples to every trajectory, keyed by ID.
func VisibleAll(ts []*core.Trajectory, progress float64) map[string][]core.PositionSample {
	out := make(map[string][]core.PositionSample, len(ts))
	for _, t := range ts {
		if t == nil {
			continue
		}
		out[t.ID] = VisibleSamples(t, progress)
	}
	return out
}

// VisibleCounts applies VisibleCount to every trajectory, keyed by ID.
func VisibleCounts(ts []*core.Trajectory, progress float64) map[string]int {
	out := make(map[string]int, len(ts))
	for _, t := range ts {
		if t == nil {
			continue
		}
		out[t.ID] = VisibleCount(t, progress)
	}
	return out
}

// BBox is a latitude/longitude rectangle. MinLon > MaxLon denotes a box that
// crosses the antimeridian.
type BBox struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// Contains reports whether (lat, lon) lies inside the box, edges included.
func (b BBox) Contains(lat, lon float64) bool {
	if lat < b.MinLat || lat > b.MaxLat {
		return false
	}
	if b.MinLon <= b.MaxLon {
		return lon >= b.MinLon && lon <= b.MaxLon
	}
	return lon >= b.MinLon || lon <= b.MaxLon
}

// WithinBounds returns the samples inside box, preserving order.
func WithinBounds(samples []core.PositionSample, box BBox) []core.PositionSample {
	out := make([]core.PositionSample, 0, len(samples))
	for _, s := range samples {
		if box.Contains(s.Lat, s.Lon) {
			out = append(out, s)
		}
	}
	return out
}

func clamp(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(100, p))
}
