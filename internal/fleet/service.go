// Package fleet turns aggregated vessel documents into map-ready data and
// keeps a cached copy of the latest fetch.
package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/aquintel/spillwatch/internal/cache"
	"github.com/aquintel/spillwatch/pkg/core"
)

// Source fetches the current vessel reports.
type Source interface {
	FetchReports(ctx context.Context) ([]core.VesselReport, error)
}

// Mirror receives every successful fetch. Storage backends satisfy it.
type Mirror interface {
	SaveVesselReports(reports []core.VesselReport) error
}

// Archive is a mirror that can also read back what it stored. It serves
// reports when the source fails before anything was cached.
type Archive interface {
	LoadVesselReports() ([]core.VesselReport, error)
}

// UpdateFunc is called after each successful refresh.
type UpdateFunc func(reports []core.VesselReport)

// Service serves vessel reports from cache, refreshing from the source when
// the cache is stale. Fetch failures fall back to the last cached reports.
type Service struct {
	source Source
	cache  *cache.ReportCache
	mirror Mirror
	logger *slog.Logger

	mu        sync.Mutex
	refreshMu sync.Mutex
	listeners []UpdateFunc
}

// NewService creates a service. mirror may be nil.
func NewService(source Source, c *cache.ReportCache, mirror Mirror, logger *slog.Logger) *Service {
	if c == nil {
		c = cache.NewReportCache(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source: source,
		cache:  c,
		mirror: mirror,
		logger: logger,
	}
}

// OnUpdate registers a refresh listener.
func (s *Service) OnUpdate(fn UpdateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Cache exposes the underlying report cache.
func (s *Service) Cache() *cache.ReportCache {
	return s.cache
}

// Invalidate marks the cached reports stale so the next read fetches.
func (s *Service) Invalidate() {
	s.cache.Invalidate()
}

// Reports returns fresh cached reports or fetches new ones.
func (s *Service) Reports(ctx context.Context) ([]core.VesselReport, error) {
	if reports, ok := s.cache.Fresh(); ok {
		return reports, nil
	}
	return s.Refresh(ctx)
}

// Refresh fetches from the source unconditionally. On failure it returns the
// last cached reports, then the reports stored by an Archive mirror, and the
// error when neither has any.
func (s *Service) Refresh(ctx context.Context) ([]core.VesselReport, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	reports, err := s.source.FetchReports(ctx)
	if err != nil {
		if last, ok := s.cache.Last(); ok {
			s.logger.Warn("Vessel fetch failed, serving cached reports", "error", err, "cached", len(last))
			return last, nil
		}
		if stored, ok := s.stored(); ok {
			s.logger.Warn("Vessel fetch failed, serving stored reports", "error", err, "stored", len(stored))
			return stored, nil
		}
		return nil, fmt.Errorf("failed to fetch vessel reports: %w", err)
	}

	sort.SliceStable(reports, func(i, j int) bool { return reports[i].MMSI < reports[j].MMSI })
	s.cache.Set(reports)
	s.logger.Debug("Refreshed vessel reports", "total", len(reports), "plottable", len(Plottable(reports)))

	if s.mirror != nil {
		if err := s.mirror.SaveVesselReports(reports); err != nil {
			s.logger.Error("Failed to mirror vessel reports", "error", err)
		}
	}

	s.mu.Lock()
	listeners := append([]UpdateFunc(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(reports)
	}
	return reports, nil
}

// stored reads the mirror's copy. The result is not cached, so the next
// read retries the source.
func (s *Service) stored() ([]core.VesselReport, bool) {
	a, ok := s.mirror.(Archive)
	if !ok {
		return nil, false
	}
	reports, err := a.LoadVesselReports()
	if err != nil {
		s.logger.Error("Failed to read stored vessel reports", "error", err)
		return nil, false
	}
	if len(reports) == 0 {
		return nil, false
	}
	sort.SliceStable(reports, func(i, j int) bool { return reports[i].MMSI < reports[j].MMSI })
	return reports, true
}

// Get returns one vessel by MMSI.
func (s *Service) Get(ctx context.Context, mmsi string) (core.VesselReport, bool, error) {
	reports, err := s.Reports(ctx)
	if err != nil {
		return core.VesselReport{}, false, err
	}
	r, ok := FindByMMSI(reports, mmsi)
	return r, ok, nil
}

// FileSource reads reports from a JSON object of document ID to document, the
// same shape the document store holds. Useful offline and in tests.
type FileSource struct {
	Path string
}

// FetchReports reads and decodes the file.
func (f FileSource) FetchReports(ctx context.Context) ([]core.VesselReport, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
	}
	var docs map[string]map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", f.Path, err)
	}
	reports := make([]core.VesselReport, 0, len(docs))
	for id, doc := range docs {
		reports = append(reports, Decode(id, doc))
	}
	return reports, nil
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]core.VesselReport, error)

// FetchReports calls f.
func (f SourceFunc) FetchReports(ctx context.Context) ([]core.VesselReport, error) {
	return f(ctx)
}
