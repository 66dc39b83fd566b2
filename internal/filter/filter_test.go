package filter

import (
	"math"
	"testing"
	"time"

	"github.com/aquintel/spillwatch/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestTrajectory(offsets ...time.Duration) *core.Trajectory {
	samples := make([]core.PositionSample, len(offsets))
	for i, off := range offsets {
		samples[i] = core.PositionSample{Lat: float64(i), Lon: float64(i), Timestamp: t0.Add(off)}
	}
	return &core.Trajectory{
		ID:        "t",
		Color:     "red",
		Samples:   samples,
		StartTime: samples[0].Timestamp,
		EndTime:   samples[len(samples)-1].Timestamp,
	}
}

func TestVisibleSamples_ThreeSamplesAtHalf(t *testing.T) {
	// t, t+10min, t+20min: only the first is at or below 50% when the second sits just after
	tr := newTestTrajectory(0, 10*time.Minute+time.Second, 20*time.Minute)

	got := VisibleSamples(tr, 50)
	require.Len(t, got, 1)
	assert.Equal(t, tr.Samples[0], got[0])
}

func TestVisibleSamples_TwoSamplesAtHalf(t *testing.T) {
	tr := &core.Trajectory{
		ID: "kw",
		Samples: []core.PositionSample{
			{Lat: 28.1, Lon: 48.2, Timestamp: t0},
			{Lat: 28.3, Lon: 48.4, Timestamp: t0.Add(10 * time.Minute)},
		},
		StartTime: t0,
		EndTime:   t0.Add(10 * time.Minute),
	}

	got := VisibleSamples(tr, 50)
	require.Len(t, got, 1)
	assert.Equal(t, 28.1, got[0].Lat)
	assert.Len(t, VisibleSamples(tr, 100), 2)
}

func TestVisibleSamples_EdgeIncluded(t *testing.T) {
	tr := newTestTrajectory(0, 10*time.Minute, 20*time.Minute)
	assert.Len(t, VisibleSamples(tr, 50), 2)
}

func TestVisibleSamples_Bounds(t *testing.T) {
	tr := newTestTrajectory(0, time.Minute, 2*time.Minute, 3*time.Minute)

	tests := []struct {
		name     string
		progress float64
		want     int
	}{
		{"zero shows first", 0, 1},
		{"full shows all", 100, 4},
		{"third", 100.0 / 3, 2},
		{"negative clamps", -20, 1},
		{"above clamps", 250, 4},
		{"nan clamps to zero", math.NaN(), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, VisibleSamples(tr, tt.progress), tt.want)
			assert.Equal(t, tt.want, VisibleCount(tr, tt.progress))
		})
	}
}

func TestVisibleSamples_MonotonePrefix(t *testing.T) {
	tr := newTestTrajectory(0, 3*time.Minute, 7*time.Minute, 8*time.Minute, 30*time.Minute, 31*time.Minute)

	prev := VisibleSamples(tr, 0)
	for p := 0.5; p <= 100; p += 0.5 {
		cur := VisibleSamples(tr, p)
		require.GreaterOrEqual(t, len(cur), len(prev))
		assert.Equal(t, prev, cur[:len(prev)], "prefix at %v", p)
		for i := range cur {
			assert.Equal(t, tr.Samples[i], cur[i])
		}
		prev = cur
	}
	assert.Equal(t, tr.Samples, prev)
}

func TestVisibleSamples_DegenerateWindow(t *testing.T) {
	tr := newTestTrajectory(0, 0, 0)
	assert.Len(t, VisibleSamples(tr, 0), 3)
	assert.Len(t, VisibleSamples(tr, 50), 3)

	single := newTestTrajectory(0)
	assert.Len(t, VisibleSamples(single, 0), 1)
}

func TestVisibleSamples_Nil(t *testing.T) {
	assert.Nil(t, VisibleSamples(nil, 50))
	assert.Equal(t, 0, VisibleCount(nil, 50))
	assert.Nil(t, VisibleSamples(&core.Trajectory{}, 50))
}

func TestVisibleAllAndCounts(t *testing.T) {
	a := newTestTrajectory(0, time.Hour)
	a.ID = "a"
	b := newTestTrajectory(0, time.Minute, 2*time.Minute)
	b.ID = "b"

	all := VisibleAll([]*core.Trajectory{a, b, nil}, 50)
	assert.Len(t, all, 2)
	assert.Len(t, all["a"], 1)
	assert.Len(t, all["b"], 2)

	counts := VisibleCounts([]*core.Trajectory{a, b}, 100)
	assert.Equal(t, map[string]int{"a": 2, "b": 3}, counts)
}

func TestBBox(t *testing.T) {
	gulf := BBox{MinLat: 18, MinLon: -98, MaxLat: 31, MaxLon: -80}
	assert.True(t, gulf.Contains(29, -89))
	assert.True(t, gulf.Contains(18, -98))
	assert.False(t, gulf.Contains(35, -89))
	assert.False(t, gulf.Contains(29, -70))

	pacific := BBox{MinLat: -10, MinLon: 170, MaxLat: 10, MaxLon: -170}
	assert.True(t, pacific.Contains(0, 175))
	assert.True(t, pacific.Contains(0, -175))
	assert.False(t, pacific.Contains(0, 0))
}

func TestWithinBounds(t *testing.T) {
	samples := []core.PositionSample{
		{Lat: 29, Lon: -89},
		{Lat: 40, Lon: -89},
		{Lat: 25, Lon: -85},
	}
	got := WithinBounds(samples, BBox{MinLat: 18, MinLon: -98, MaxLat: 31, MaxLon: -80})
	require.Len(t, got, 2)
	assert.Equal(t, 29.0, got[0].Lat)
	assert.Equal(t, 25.0, got[1].Lat)
}
