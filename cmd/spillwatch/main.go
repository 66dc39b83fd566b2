package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/aquintel/spillwatch/internal/config"
	"github.com/aquintel/spillwatch/internal/logging"
	intOtel "github.com/aquintel/spillwatch/internal/otel"
	"github.com/aquintel/spillwatch/internal/trajectory"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	ServiceName string = "spillwatch"
)

const usage = `usage: spillwatch [command] [flags]

commands:
  serve                                  run the dashboard backend (default)
  replay <csv...> [--frames N]           play the sources headless and print progress
  export <out.geojson[.gz]> <csv...>     write the visible tracks at --progress
  version                                print the version
`

// runtime holds the ambient services every command sets up.
type runtime struct {
	SessionID        string
	SessionStartTime time.Time

	SlogManager *logging.SlogManager
	Logger      *slog.Logger
	DBLogger    zerolog.Logger
	OTel        *intOtel.Provider

	LogFile     *os.File
	LogFilePath string
	LogsDir     string

	// Set is the trajectory set logged as context on every record.
	Set *trajectory.Set
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = strings.ToLower(args[0]), args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serveCommand(args)
	case "replay":
		err = replayCommand(args, os.Stdout)
	case "export":
		err = exportCommand(args, os.Stdout)
	case "version":
		fmt.Printf("%s %s (built %s)\n", ServiceName, CurrentVersion, BuildDate)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		return 1
	}
	return 0
}

// commonFlags registers the flags shared by every command.
func commonFlags(fs *pflag.FlagSet) {
	fs.String("config", ".", "directory holding "+config.FileName)
	fs.String("log-level", "", "override logLevel (debug, info, warn, error)")
}

// newRuntime loads config and sets up logging. When toFile is false, records
// go to stderr so command output on stdout stays clean.
func newRuntime(fs *pflag.FlagSet, toFile bool) (*runtime, error) {
	rt := &runtime{
		SessionID:        uuid.NewString(),
		SessionStartTime: time.Now(),
		SlogManager:      logging.NewSlogManager(),
		Set:              trajectory.NewSet(),
	}

	configDir, _ := fs.GetString("config")

	// bootstrap logger until config is read
	rt.SlogManager.Setup(os.Stderr, "info", nil)
	rt.Logger = rt.SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		rt.Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		rt.Logger.Debug("Loaded config", "dir", configDir)
	}
	if lvl, _ := fs.GetString("log-level"); lvl != "" {
		viper.Set("logLevel", lvl)
	}
	level := viper.GetString("logLevel")

	var sink io.Writer = os.Stderr
	if toFile {
		rt.LogsDir = viper.GetString("logsDir")
		f, path, err := logging.OpenLogFile(rt.LogsDir, ServiceName, rt.SessionStartTime)
		switch {
		case f != nil:
			rt.LogFile, rt.LogFilePath = f, path
			sink = f
		case path == "":
			return nil, err
		default:
			rt.Logger.Error("Failed to create/open log file!", "error", err, "path", path)
		}
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		p, err := intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentVersion,
			InstanceID:     rt.SessionID,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      sink,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			rt.Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			rt.OTel = p
			rt.Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var extra []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGraylogWriter(gl.Address, ServiceName)
		if err != nil {
			rt.Logger.Error("Failed to connect to Graylog", "error", err, "address", gl.Address)
		} else {
			extra = append(extra, logging.NewGelfHandler(w, logging.ParseLevel(level), ServiceName))
		}
	}

	rt.SlogManager.Session = &logging.Session{ID: rt.SessionID, Trajectories: rt.Set}

	var otelLogProvider *sdklog.LoggerProvider
	if rt.OTel != nil {
		otelLogProvider = rt.OTel.LoggerProvider()
	}
	rt.SlogManager.Setup(sink, level, otelLogProvider, extra...)
	rt.Logger = rt.SlogManager.Logger()

	zl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		zl = zerolog.InfoLevel
	}
	rt.DBLogger = zerolog.New(sink).Level(zl).With().
		Timestamp().
		Str("session", rt.SessionID).
		Logger()

	if rt.LogFilePath != "" {
		rt.Logger.Info("Logging to file", "path", rt.LogFilePath)
	}
	return rt, nil
}

// componentLogger returns the zerolog logger tagged with a component name.
func (rt *runtime) componentLogger(name string) zerolog.Logger {
	return rt.DBLogger.With().Str("component", name).Logger()
}

func (rt *runtime) loader() *trajectory.Loader {
	ic := config.GetIngestConfig()
	return trajectory.NewLoader(trajectory.LoaderConfig{
		Palette:       ic.Palette,
		SplitByVessel: ic.SplitByVessel,
		FetchTimeout:  ic.FetchTimeout,
	}, newParser(rt.Logger), rt.Logger)
}

// close flushes telemetry and closes the log file.
func (rt *runtime) close() {
	ctx, cancel := contextWithTimeout(5 * time.Second)
	defer cancel()

	if err := rt.SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "log flush failed: %v\n", err)
	}
	if rt.OTel != nil {
		if err := rt.OTel.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "otel shutdown failed: %v\n", err)
		}
	}
	if rt.LogFile != nil {
		_ = rt.LogFile.Close()
	}
}

func statusFilePath(logsDir string) string {
	if logsDir == "" {
		return ""
	}
	return filepath.Join(logsDir, ServiceName+".status.json")
}
