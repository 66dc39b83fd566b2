package cache

import (
	"sync"
	"time"

	"github.com/aquintel/spillwatch/pkg/core"
)

// DefaultReportTTL matches how long a dashboard keeps fetched vessel reports.
const DefaultReportTTL = 60 * time.Second

// ReportCache keeps the last fetched vessel reports for a fixed TTL to avoid
// hitting the document store on every request.
type ReportCache struct {
	m         sync.RWMutex
	ttl       time.Duration
	now       func() time.Time
	reports   []core.VesselReport
	byMMSI    map[string]int
	fetchedAt time.Time

	hits   SafeCounter
	misses SafeCounter
}

// NewReportCache creates an empty cache. Non-positive ttl uses DefaultReportTTL.
func NewReportCache(ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = DefaultReportTTL
	}
	return &ReportCache{
		ttl:    ttl,
		now:    time.Now,
		byMMSI: make(map[string]int),
	}
}

// TTL returns the freshness window.
func (c *ReportCache) TTL() time.Duration {
	return c.ttl
}

// Set replaces the cached reports and stamps the fetch time.
func (c *ReportCache) Set(reports []core.VesselReport) {
	stored := make([]core.VesselReport, len(reports))
	copy(stored, reports)

	c.m.Lock()
	defer c.m.Unlock()
	c.reports = stored
	c.byMMSI = make(map[string]int, len(stored))
	for i, r := range stored {
		c.byMMSI[r.MMSI] = i
	}
	c.fetchedAt = c.now()
}

// Fresh returns the cached reports when they are younger than the TTL.
func (c *ReportCache) Fresh() ([]core.VesselReport, bool) {
	c.m.RLock()
	defer c.m.RUnlock()
	if c.fetchedAt.IsZero() || c.now().Sub(c.fetchedAt) >= c.ttl {
		c.misses.Inc()
		return nil, false
	}
	c.hits.Inc()
	return c.reports, true
}

// Last returns whatever was cached, regardless of age. ok is false when
// nothing was ever stored.
func (c *ReportCache) Last() ([]core.VesselReport, bool) {
	c.m.RLock()
	defer c.m.RUnlock()
	if c.fetchedAt.IsZero() {
		return nil, false
	}
	return c.reports, true
}

// Get returns one cached report by MMSI regardless of age.
func (c *ReportCache) Get(mmsi string) (core.VesselReport, bool) {
	c.m.RLock()
	defer c.m.RUnlock()
	if i, ok := c.byMMSI[mmsi]; ok {
		return c.reports[i], true
	}
	return core.VesselReport{}, false
}

// Age returns the time since the last Set. ok is false when empty.
func (c *ReportCache) Age() (time.Duration, bool) {
	c.m.RLock()
	defer c.m.RUnlock()
	if c.fetchedAt.IsZero() {
		return 0, false
	}
	return c.now().Sub(c.fetchedAt), true
}

// Invalidate forces the next Fresh call to miss but keeps Last available.
func (c *ReportCache) Invalidate() {
	c.m.Lock()
	defer c.m.Unlock()
	if !c.fetchedAt.IsZero() {
		c.fetchedAt = c.fetchedAt.Add(-c.ttl)
	}
}

// Reset drops everything.
func (c *ReportCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.reports = nil
	c.byMMSI = make(map[string]int)
	c.fetchedAt = time.Time{}
}

// Stats returns the hit and miss counts of Fresh.
func (c *ReportCache) Stats() (hits, misses int) {
	return c.hits.Value(), c.misses.Value()
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
