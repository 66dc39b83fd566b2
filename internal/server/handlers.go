package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/aquintel/spillwatch/internal/access"
	"github.com/aquintel/spillwatch/internal/commands"
	"github.com/aquintel/spillwatch/internal/dispatcher"
	"github.com/aquintel/spillwatch/internal/filter"
	"github.com/aquintel/spillwatch/internal/fleet"
	"github.com/aquintel/spillwatch/internal/geo"
	"github.com/aquintel/spillwatch/pkg/core"
)

const (
	defaultDetectionLimit = 50
	maxDetectionLimit     = 500

	// heatmap cell sizes in degrees
	defaultHeatCell = 0.1
	maxHeatCell     = 10.0
)

// HealthResponse is the JSON response structure for GET /health
type HealthResponse struct {
	Status        string             `json:"status"`
	Timestamp     time.Time          `json:"timestamp"`
	Trajectories  int                `json:"trajectories"`
	Playback      core.PlaybackState `json:"playback"`
	FleetCacheAge *float64           `json:"fleetCacheAgeSeconds,omitempty"`
	Clients       int                `json:"clients"`
	PendingWrites int                `json:"pendingWrites"`
}

// TrajectoriesResponse is the JSON response structure for GET /api/trajectories
type TrajectoriesResponse struct {
	Trajectories []*core.Trajectory `json:"trajectories"`
	Count        int                `json:"count"`
}

// VisibleResponse is the JSON response structure for GET /api/trajectories/{id}/visible
type VisibleResponse struct {
	ID       string                `json:"id"`
	Progress float64               `json:"progress"`
	BBox     *filter.BBox          `json:"bbox,omitempty"`
	Samples  []core.PositionSample `json:"samples"`
	Count    int                   `json:"count"`
	// Visible counts the prefix before the bbox was applied.
	Visible int `json:"visible"`
}

// HeatmapResponse is the JSON response structure for GET /api/heatmap
type HeatmapResponse struct {
	Progress float64        `json:"progress"`
	Cell     float64        `json:"cell"`
	BBox     *filter.BBox   `json:"bbox,omitempty"`
	Samples  int            `json:"samples"`
	Cells    []geo.HeatCell `json:"cells"`
}

// VesselsResponse is the JSON response structure for GET /api/vessels
type VesselsResponse struct {
	Vessels []fleet.Marker `json:"vessels"`
	Count   int            `json:"count"`
}

// SearchResponse is the JSON response structure for GET /api/vessels/search
type SearchResponse struct {
	Vessel fleet.VesselDetails `json:"vessel"`
	Zoom   *fleet.Zoom         `json:"zoom,omitempty"`
}

// VesselResponse is the JSON response structure for GET /api/vessels/{mmsi}
type VesselResponse struct {
	fleet.VesselDetails
	SARImageURL string `json:"sarImageUrl,omitempty"`
}

// DetectionsResponse is the JSON response structure for GET /api/detections
type DetectionsResponse struct {
	Detections []core.Detection `json:"detections"`
	Count      int              `json:"count"`
}

type seekRequest struct {
	Progress *float64 `json:"progress"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       "ok",
		Timestamp:    time.Now().UTC(),
		Trajectories: s.deps.Set.Len(),
		Playback:     s.deps.Playback.Snapshot().State,
	}
	if s.deps.Monitor != nil {
		st := s.deps.Monitor.Status()
		resp.Timestamp = st.Time
		resp.FleetCacheAge = st.FleetCacheAge
		resp.Clients = st.Clients
		resp.PendingWrites = st.PendingWrites
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listTrajectories(w http.ResponseWriter, r *http.Request) {
	all := s.deps.Set.All()
	writeJSON(w, http.StatusOK, TrajectoriesResponse{Trajectories: all, Count: len(all)})
}

// progress reads ?progress=, falling back to the engine's current progress.
func (s *Server) progress(r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("progress")
	if raw == "" {
		return s.deps.Playback.Snapshot().Progress, nil
	}
	return commands.ParseProgress(raw)
}

func (s *Server) trajectory(w http.ResponseWriter, r *http.Request) (*core.Trajectory, float64, bool) {
	id := chi.URLParam(r, "id")
	t, ok := s.deps.Set.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "trajectory not found", map[string]any{"id": id})
		return nil, 0, false
	}
	p, err := s.progress(r)
	if err != nil {
		s.fail(w, r, err, http.StatusBadRequest)
		return nil, 0, false
	}
	return t, p, true
}

// bbox reads the optional ?bbox=minLat,minLon,maxLat,maxLon.
func bbox(r *http.Request) (*filter.BBox, error) {
	raw := r.URL.Query().Get("bbox")
	if raw == "" {
		return nil, nil
	}
	box, err := geo.ParseBBox(raw)
	if err != nil {
		return nil, fmt.Errorf("bbox: %w", err)
	}
	return &box, nil
}

func (s *Server) visibleSamples(w http.ResponseWriter, r *http.Request) {
	t, p, ok := s.trajectory(w, r)
	if !ok {
		return
	}
	box, err := bbox(r)
	if err != nil {
		s.fail(w, r, err, http.StatusBadRequest)
		return
	}
	visible := filter.VisibleSamples(t, p)
	samples := visible
	if box != nil {
		samples = filter.WithinBounds(visible, *box)
	}
	writeJSON(w, http.StatusOK, VisibleResponse{
		ID:       t.ID,
		Progress: p,
		BBox:     box,
		Samples:  samples,
		Count:    len(samples),
		Visible:  len(visible),
	})
}

func (s *Server) trajectoryGeoJSON(w http.ResponseWriter, r *http.Request) {
	t, p, ok := s.trajectory(w, r)
	if !ok {
		return
	}
	crs, err := geo.ParseCRS(r.URL.Query().Get("crs"))
	if err != nil {
		s.fail(w, r, err, http.StatusBadRequest)
		return
	}
	fc := geom.GeoJSONFeatureCollection{}
	if f, ok := geo.TrackFeatureCRS(t, filter.VisibleSamples(t, p), crs); ok {
		fc = append(fc, f)
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if err := geo.WriteFeatureCollection(w, fc); err != nil {
		s.deps.Logger.Error("Failed to write GeoJSON", "trajectory", t.ID, "error", err)
	}
}

// heatmap bins every trajectory's visible samples into a lat/lon grid.
func (s *Server) heatmap(w http.ResponseWriter, r *http.Request) {
	p, err := s.progress(r)
	if err != nil {
		s.fail(w, r, err, http.StatusBadRequest)
		return
	}
	cell := defaultHeatCell
	if raw := r.URL.Query().Get("cell"); raw != "" {
		cell, err = strconv.ParseFloat(raw, 64)
		if err != nil || !(cell > 0 && cell <= maxHeatCell) {
			writeError(w, http.StatusBadRequest, "cell must be a size in degrees in (0, 10]", map[string]any{"cell": raw})
			return
		}
	}
	box, err := bbox(r)
	if err != nil {
		s.fail(w, r, err, http.StatusBadRequest)
		return
	}

	var samples []core.PositionSample
	for _, visible := range filter.VisibleAll(s.deps.Set.All(), p) {
		if box != nil {
			visible = filter.WithinBounds(visible, *box)
		}
		samples = append(samples, visible...)
	}
	cells := geo.Heatmap(samples, cell)
	if cells == nil {
		cells = []geo.HeatCell{}
	}
	writeJSON(w, http.StatusOK, HeatmapResponse{
		Progress: p,
		Cell:     cell,
		BBox:     box,
		Samples:  len(samples),
		Cells:    cells,
	})
}

func (s *Server) playbackSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Playback.Snapshot())
}

func (s *Server) playbackStart(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, commands.PlaybackStart, nil, http.StatusInternalServerError)
}

func (s *Server) playbackStop(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, commands.PlaybackStop, nil, http.StatusInternalServerError)
}

func (s *Server) playbackSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Progress == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"progress\": <number>}", nil)
		return
	}
	arg := strconv.FormatFloat(*req.Progress, 'f', -1, 64)
	s.dispatch(w, r, commands.PlaybackSeek, []string{arg}, http.StatusInternalServerError)
}

func (s *Server) reports(w http.ResponseWriter, r *http.Request) ([]core.VesselReport, bool) {
	if s.deps.Fleet == nil {
		s.fail(w, r, commands.ErrUnavailable, http.StatusServiceUnavailable)
		return nil, false
	}
	reports, err := s.deps.Fleet.Reports(r.Context())
	if err != nil {
		s.fail(w, r, err, http.StatusBadGateway)
		return nil, false
	}
	return reports, true
}

func (s *Server) listVessels(w http.ResponseWriter, r *http.Request) {
	reports, ok := s.reports(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	showAnomalies, _ := strconv.ParseBool(q.Get("anomalies"))
	markers := fleet.Markers(reports, showAnomalies, q.Get("q"))
	writeJSON(w, http.StatusOK, VesselsResponse{Vessels: markers, Count: len(markers)})
}

func (s *Server) searchVessels(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required", nil)
		return
	}
	reports, ok := s.reports(w, r)
	if !ok {
		return
	}
	match, ok := fleet.FindByName(reports, q)
	if !ok {
		writeError(w, http.StatusNotFound, "no vessel matches the query", map[string]any{"q": q})
		return
	}
	resp := SearchResponse{Vessel: fleet.Details(match)}
	if z, ok := fleet.ZoomTarget(reports, q); ok {
		resp.Zoom = &z
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) vesselDetails(w http.ResponseWriter, r *http.Request) {
	mmsi := chi.URLParam(r, "mmsi")
	reports, ok := s.reports(w, r)
	if !ok {
		return
	}
	report, ok := fleet.FindByMMSI(reports, mmsi)
	if !ok {
		writeError(w, http.StatusNotFound, commands.ErrVesselNotFound.Error(), map[string]any{"mmsi": mmsi})
		return
	}
	resp := VesselResponse{VesselDetails: fleet.Details(report)}
	if agg, ok := report.Aggregated(); ok && s.deps.SARImageURL != nil {
		resp.SARImageURL = s.deps.SARImageURL(agg.LastLat, agg.LastLon)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runAIS(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, commands.ModelsAIS, nil, http.StatusBadGateway)
}

func (s *Server) runSAR(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, commands.VesselSAR, []string{chi.URLParam(r, "mmsi")}, http.StatusBadGateway)
}

func (s *Server) listDetections(w http.ResponseWriter, r *http.Request) {
	if s.deps.Detections == nil {
		writeJSON(w, http.StatusOK, DetectionsResponse{Detections: []core.Detection{}})
		return
	}
	limit := defaultDetectionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxDetectionLimit)
	}
	list, err := s.deps.Detections.ListDetections(limit)
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []core.Detection{}
	}
	writeJSON(w, http.StatusOK, DetectionsResponse{Detections: list, Count: len(list)})
}

// dispatch routes a command through the dispatcher with the caller's role.
// fallback is the status used for errors without a known mapping.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, command string, args []string, fallback int) {
	result, err := s.deps.Dispatcher.Dispatch(dispatcher.Event{
		Command: command,
		Args:    args,
		Role:    string(access.FromRequest(r)),
	})
	if err != nil {
		s.fail(w, r, err, fallback)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
