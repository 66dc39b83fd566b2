package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/aquintel/spillwatch/internal/cache"
	"github.com/aquintel/spillwatch/internal/commands"
	"github.com/aquintel/spillwatch/internal/config"
	"github.com/aquintel/spillwatch/internal/detect"
	"github.com/aquintel/spillwatch/internal/dispatcher"
	"github.com/aquintel/spillwatch/internal/docstore"
	"github.com/aquintel/spillwatch/internal/fleet"
	"github.com/aquintel/spillwatch/internal/influx"
	"github.com/aquintel/spillwatch/internal/logging"
	"github.com/aquintel/spillwatch/internal/monitor"
	"github.com/aquintel/spillwatch/internal/parser"
	"github.com/aquintel/spillwatch/internal/playback"
	"github.com/aquintel/spillwatch/internal/server"
	"github.com/aquintel/spillwatch/internal/storage"
	"github.com/aquintel/spillwatch/internal/stream"
	"github.com/aquintel/spillwatch/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func newParser(logger *slog.Logger) *parser.Parser {
	return parser.NewParser(logger)
}

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

func serveCommand(args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	commonFlags(fs)
	addr := fs.String("address", "", "override server.address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := newRuntime(fs, true)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := rt.Logger
	logger.Info("Starting", "version", CurrentVersion, "buildDate", BuildDate, "session", rt.SessionID)

	// storage
	backend, err := storage.NewBackend(config.GetStorageConfig(), CurrentVersion, logger, rt.componentLogger("storage"))
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close storage backend", "error", err)
		}
		if e, ok := backend.(storage.Exportable); ok && e.ExportedFilePath() != "" {
			logger.Info("Exported trajectories", "path", e.ExportedFilePath())
		}
	}()

	// trajectories
	ingest := config.GetIngestConfig()
	if ingest.FromStorage {
		stored, err := backend.LoadTrajectories()
		if err != nil {
			logger.Warn("Failed to warm start from storage", "error", err)
		} else {
			rt.Set.AddAll(stored...)
			logger.Info("Warm start from storage", "trajectories", len(stored))
		}
	}
	loaded := rt.loader().LoadInto(ctx, rt.Set, ingest.Sources)
	logger.Info("Trajectories loaded", "loaded", loaded, "total", rt.Set.Len(), "sources", len(ingest.Sources))

	// telemetry
	im := influx.NewManager(config.GetInfluxConfig(), rt.componentLogger("influx"))
	if err := im.Connect(ctx); err != nil && !errors.Is(err, influx.ErrDisabled) {
		logger.Error("Failed to connect to InfluxDB", "error", err)
	}
	defer func() {
		if err := im.Close(); err != nil {
			logger.Error("Failed to close InfluxDB", "error", err)
		}
	}()

	d, err := dispatcher.New(logging.NewDispatcherLogger(rt.componentLogger("dispatcher")))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	// fleet
	fleetCfg := config.GetFleetConfig()
	reportCache := cache.NewReportCache(fleetCfg.CacheTTL)
	var fleetSvc *fleet.Service
	if src := fleetSource(logger); src != nil {
		fleetSvc = fleet.NewService(src, reportCache, backend, logger)
	} else {
		logger.Warn("No fleet source configured, vessel queries are disabled")
	}

	serverCfg := config.GetServerConfig()
	if *addr != "" {
		serverCfg.Address = *addr
	}
	hub := stream.NewHub(d, logger, serverCfg.AllowedOrigins)

	// models
	dc := config.GetDetectConfig()
	modelClient := detect.New(detect.Config{
		AnomalyURL:       dc.AnomalyURL,
		SARUploadURL:     dc.SARUploadURL,
		SARUploadFromURL: dc.SARUploadFromURL,
		SARImageURL:      dc.SARImageURL,
		Timeout:          dc.Timeout,
		ReferenceImages:  dc.ReferenceImages,
	})
	detector := detect.NewService(modelClient, backend, logger, hub, im)

	// playback
	pc := config.GetPlaybackConfig()
	engine := playback.NewEngine(playback.NewFrameScheduler(pc.FrameInterval), rt.Set,
		playback.WithStep(pc.Step),
		playback.WithLogger(logger),
		playback.WithListener(hub.PlaybackListener(rt.Set)),
	)
	if im.IsValid {
		engine.Subscribe(im.PlaybackRecorder())
	}

	deps := commands.Deps{Playback: engine, Detector: detector, ModelTimeout: dc.Timeout}
	workerDeps := worker.Dependencies{Set: rt.Set, Store: backend, Logger: logger}
	if im.IsValid {
		workerDeps.Telemetry = im
	}
	if fleetSvc != nil {
		deps.Fleet = fleetSvc
		workerDeps.Fleet = fleetSvc
	}
	commands.Register(d, deps)

	wm := worker.NewManager(workerDeps)
	wm.RegisterHandlers(d)
	logger.Info("Persisting trajectories", "queued", wm.PersistAll(d))

	if fleetSvc != nil {
		fleetSvc.OnUpdate(hub.VesselsUpdated)
		poller := worker.NewPoller(d, fleetCfg.PollInterval, logger)
		go poller.Run(ctx)
	}

	mon := monitor.NewService(monitor.Dependencies{
		Set:        rt.Set,
		Playback:   engine,
		Reports:    reportCache,
		Clients:    hub,
		Writes:     wm,
		Logger:     logger,
		StatusFile: statusFilePath(rt.LogsDir),
	})
	mon.Start(ctx)

	srvDeps := server.Dependencies{
		Set:         rt.Set,
		Playback:    engine,
		Dispatcher:  d,
		Detections:  backend,
		Monitor:     mon,
		Stream:      hub,
		SARImageURL: modelClient.SARImageURL,
		Logger:      logger,
	}
	if fleetSvc != nil {
		srvDeps.Fleet = fleetSvc
	}
	srv := server.New(serverCfg, srvDeps)

	if pc.AutoStart {
		engine.Start()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-errCh:
		if err != nil {
			logger.Error("HTTP server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := contextWithTimeout(shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	engine.Close()
	hub.Close()
	mon.Stop()
	d.Close()

	return err
}

// fleetSource picks the document store when configured, then the snapshot
// file. Nil means no fleet.
func fleetSource(logger *slog.Logger) fleet.Source {
	dc := config.GetDocstoreConfig()
	client := docstore.New(docstore.Config{
		Endpoint:   dc.Endpoint,
		ProjectID:  dc.ProjectID,
		Database:   dc.Database,
		Collection: dc.Collection,
		APIKey:     dc.APIKey,
		AuthToken:  dc.AuthToken,
		PageSize:   dc.PageSize,
		Timeout:    dc.Timeout,
	}, logger)
	if client.Configured() {
		logger.Info("Fleet source: document store", "project", dc.ProjectID, "collection", dc.Collection)
		return client
	}
	if path := config.GetFleetConfig().SnapshotFile; path != "" {
		logger.Info("Fleet source: snapshot file", "path", path)
		return fleet.FileSource{Path: path}
	}
	return nil
}
