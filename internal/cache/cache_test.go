package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquintel/spillwatch/pkg/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(ttl time.Duration) (*ReportCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewReportCache(ttl)
	c.now = clock.Now
	return c, clock
}

func testReports() []core.VesselReport {
	return []core.VesselReport{
		{MMSI: "1", Data: core.AggregatedData{ShipName: "DLB 1600", LastLat: 29.1, LastLon: 48.1}},
		{MMSI: "2", Data: core.AggregatedData{ShipName: "AL KHIRAN", LastLat: 28.6, LastLon: 48.4}},
	}
}

func TestReportCache_Defaults(t *testing.T) {
	c := NewReportCache(0)
	assert.Equal(t, DefaultReportTTL, c.TTL())

	_, ok := c.Fresh()
	assert.False(t, ok)
	_, ok = c.Last()
	assert.False(t, ok)
	_, ok = c.Age()
	assert.False(t, ok)
}

func TestReportCache_FreshWithinTTL(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Set(testReports())

	clock.Advance(59 * time.Second)
	got, ok := c.Fresh()
	require.True(t, ok)
	assert.Len(t, got, 2)

	clock.Advance(time.Second)
	_, ok = c.Fresh()
	assert.False(t, ok, "expired at exactly the TTL")

	last, ok := c.Last()
	require.True(t, ok)
	assert.Len(t, last, 2)

	hits, misses := c.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestReportCache_Get(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set(testReports())

	r, ok := c.Get("2")
	require.True(t, ok)
	agg, ok := r.Aggregated()
	require.True(t, ok)
	assert.Equal(t, "AL KHIRAN", agg.ShipName)

	_, ok = c.Get("404")
	assert.False(t, ok)
}

func TestReportCache_SetCopies(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	reports := testReports()
	c.Set(reports)
	reports[0].MMSI = "changed"

	_, ok := c.Get("1")
	assert.True(t, ok)
}

func TestReportCache_InvalidateAndReset(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Set(testReports())
	clock.Advance(time.Second)

	c.Invalidate()
	_, ok := c.Fresh()
	assert.False(t, ok)
	_, ok = c.Last()
	assert.True(t, ok)

	age, ok := c.Age()
	require.True(t, ok)
	assert.Equal(t, 61*time.Second, age)

	c.Reset()
	_, ok = c.Last()
	assert.False(t, ok)
	_, ok = c.Get("1")
	assert.False(t, ok)
}

func TestReportCache_Concurrent(t *testing.T) {
	c := NewReportCache(time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Set(testReports())
		}()
		go func() {
			defer wg.Done()
			c.Fresh()
			c.Get("1")
		}()
	}
	wg.Wait()

	got, ok := c.Last()
	require.True(t, ok)
	assert.Len(t, got, 2)
}

func TestSafeCounter(t *testing.T) {
	var c SafeCounter
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, c.Value())

	c.Set(5)
	assert.Equal(t, 5, c.Value())
}
