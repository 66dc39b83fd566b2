// Package server exposes the playback control surface, the vessel queries and
// the detection runs over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/aquintel/spillwatch/internal/config"
	"github.com/aquintel/spillwatch/internal/dispatcher"
	"github.com/aquintel/spillwatch/internal/logging"
	"github.com/aquintel/spillwatch/internal/monitor"
	"github.com/aquintel/spillwatch/internal/trajectory"
	"github.com/aquintel/spillwatch/pkg/core"
)

// PlaybackReader exposes the engine state.
type PlaybackReader interface {
	Snapshot() core.PlaybackSnapshot
}

// FleetReader serves the current vessel reports.
type FleetReader interface {
	Reports(ctx context.Context) ([]core.VesselReport, error)
}

// DetectionLister lists recorded model runs, newest first.
type DetectionLister interface {
	ListDetections(limit int) ([]core.Detection, error)
}

// Dependencies holds everything the handlers read from. Fleet, Detections,
// Monitor, Stream and SARImageURL may be nil.
type Dependencies struct {
	Set         *trajectory.Set
	Playback    PlaybackReader
	Dispatcher  *dispatcher.Dispatcher
	Fleet       FleetReader
	Detections  DetectionLister
	Monitor     *monitor.Service
	Stream      http.Handler
	SARImageURL func(lat, lon float64) string
	Logger      *slog.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	cfg    config.ServerConfig
	deps   Dependencies
	router chi.Router
	http   *http.Server
}

// New builds the router. Call ListenAndServe to start serving.
func New(cfg config.ServerConfig, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, deps: deps}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.deps.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Role"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/trajectories", s.listTrajectories)
		r.Get("/trajectories/{id}/visible", s.visibleSamples)
		r.Get("/trajectories/{id}/geojson", s.trajectoryGeoJSON)
		r.Get("/heatmap", s.heatmap)

		r.Get("/playback", s.playbackSnapshot)
		r.Post("/playback/start", s.playbackStart)
		r.Post("/playback/stop", s.playbackStop)
		r.Post("/playback/seek", s.playbackSeek)

		r.Get("/vessels", s.listVessels)
		r.Get("/vessels/search", s.searchVessels)
		r.Get("/vessels/{mmsi}", s.vesselDetails)
		r.Post("/vessels/{mmsi}/sar", s.runSAR)

		r.Post("/models/ais", s.runAIS)
		r.Get("/detections", s.listDetections)
	})

	if s.deps.Stream != nil {
		r.Handle("/ws", s.deps.Stream)
	}
	return r
}

// ListenAndServe blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.deps.Logger.Info("HTTP server starting", "address", s.cfg.Address)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// records logged with the request context carry its id
			ctx := logging.WithAttrs(r.Context(), slog.String("requestId", middleware.GetReqID(r.Context())))
			r = r.WithContext(ctx)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.DebugContext(ctx, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
