package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "spillwatch.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. SPILLWATCH_SERVER_ADDRESS.
const EnvPrefix = "SPILLWATCH"

// PlaybackConfig holds playback engine settings
type PlaybackConfig struct {
	Step          float64       `json:"step" mapstructure:"step"`
	FrameInterval time.Duration `json:"frameInterval" mapstructure:"frameInterval"`
	AutoStart     bool          `json:"autoStart" mapstructure:"autoStart"`
}

// ServerConfig holds HTTP/WebSocket server settings
type ServerConfig struct {
	Address        string        `json:"address" mapstructure:"address"`
	AllowedOrigins []string      `json:"allowedOrigins" mapstructure:"allowedOrigins"`
	ReadTimeout    time.Duration `json:"readTimeout" mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `json:"writeTimeout" mapstructure:"writeTimeout"`
}

// MemoryConfig holds in-memory storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type     string         `json:"type" mapstructure:"type"`
	Memory   MemoryConfig   `json:"memory" mapstructure:"memory"`
	SQLite   SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// DocstoreConfig holds the aggregated-record document store settings
type DocstoreConfig struct {
	Endpoint   string        `json:"endpoint" mapstructure:"endpoint"`
	ProjectID  string        `json:"projectId" mapstructure:"projectId"`
	Database   string        `json:"database" mapstructure:"database"`
	Collection string        `json:"collection" mapstructure:"collection"`
	APIKey     string        `json:"apiKey" mapstructure:"apiKey"`
	AuthToken  string        `json:"authToken" mapstructure:"authToken"`
	PageSize   int           `json:"pageSize" mapstructure:"pageSize"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DetectConfig holds the external model endpoints
type DetectConfig struct {
	AnomalyURL       string            `json:"anomalyUrl" mapstructure:"anomalyUrl"`
	SARUploadURL     string            `json:"sarUploadUrl" mapstructure:"sarUploadUrl"`
	SARUploadFromURL string            `json:"sarUploadFromUrl" mapstructure:"sarUploadFromUrl"`
	SARImageURL      string            `json:"sarImageUrl" mapstructure:"sarImageUrl"`
	Timeout          time.Duration     `json:"timeout" mapstructure:"timeout"`
	ReferenceImages  map[string]string `json:"referenceImages" mapstructure:"referenceImages"`
}

// FleetConfig holds vessel report caching and polling settings
type FleetConfig struct {
	CacheTTL     time.Duration `json:"cacheTtl" mapstructure:"cacheTtl"`
	PollInterval time.Duration `json:"pollInterval" mapstructure:"pollInterval"`
	SnapshotFile string        `json:"snapshotFile" mapstructure:"snapshotFile"`
}

// InfluxConfig holds InfluxDB connection settings
type InfluxConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Protocol  string `json:"protocol" mapstructure:"protocol"`
	Host      string `json:"host" mapstructure:"host"`
	Port      string `json:"port" mapstructure:"port"`
	Token     string `json:"token" mapstructure:"token"`
	Org       string `json:"org" mapstructure:"org"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	BackupDir string `json:"backupDir" mapstructure:"backupDir"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// GraylogConfig holds the GELF log sink settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// IngestConfig lists the CSV trajectory sources loaded at startup
type IngestConfig struct {
	Sources       []string      `json:"sources" mapstructure:"sources"`
	SplitByVessel bool          `json:"splitByVessel" mapstructure:"splitByVessel"`
	Palette       []string      `json:"palette" mapstructure:"palette"`
	FetchTimeout  time.Duration `json:"fetchTimeout" mapstructure:"fetchTimeout"`
	FromStorage   bool          `json:"fromStorage" mapstructure:"fromStorage"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. A .env file in the
// same directory is loaded into the environment first, and SPILLWATCH_*
// variables override file values.
func Load(configDir string) error {
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("playback.step", 0.02)
	viper.SetDefault("playback.frameInterval", "16ms")
	viper.SetDefault("playback.autoStart", false)

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.allowedOrigins", []string{"*"})
	viper.SetDefault("server.readTimeout", "15s")
	viper.SetDefault("server.writeTimeout", "15s")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./exports")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpPath", "./spillwatch.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "spillwatch")

	viper.SetDefault("docstore.endpoint", "https://firestore.googleapis.com/v1")
	viper.SetDefault("docstore.projectId", "")
	viper.SetDefault("docstore.database", "(default)")
	viper.SetDefault("docstore.collection", "AlKhiran")
	viper.SetDefault("docstore.apiKey", "")
	viper.SetDefault("docstore.authToken", "")
	viper.SetDefault("docstore.pageSize", 300)
	viper.SetDefault("docstore.timeout", "30s")

	viper.SetDefault("detect.anomalyUrl", "")
	viper.SetDefault("detect.sarUploadUrl", "")
	viper.SetDefault("detect.sarUploadFromUrl", "")
	viper.SetDefault("detect.sarImageUrl", "")
	viper.SetDefault("detect.timeout", "60s")
	viper.SetDefault("detect.referenceImages", map[string]string{})

	viper.SetDefault("fleet.cacheTtl", "60s")
	viper.SetDefault("fleet.pollInterval", "25s")
	viper.SetDefault("fleet.snapshotFile", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "spillwatch")
	viper.SetDefault("influx.bucket", "spillwatch")
	viper.SetDefault("influx.backupDir", "./influx-backup")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "spillwatch")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("ingest.sources", []string{})
	viper.SetDefault("ingest.splitByVessel", false)
	viper.SetDefault("ingest.palette", []string{"red", "green", "blue"})
	viper.SetDefault("ingest.fetchTimeout", "30s")
	viper.SetDefault("ingest.fromStorage", false)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetPlaybackConfig returns the playback settings.
func GetPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		Step:          viper.GetFloat64("playback.step"),
		FrameInterval: viper.GetDuration("playback.frameInterval"),
		AutoStart:     viper.GetBool("playback.autoStart"),
	}
}

// GetServerConfig returns the HTTP server settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Address:        viper.GetString("server.address"),
		AllowedOrigins: viper.GetStringSlice("server.allowedOrigins"),
		ReadTimeout:    viper.GetDuration("server.readTimeout"),
		WriteTimeout:   viper.GetDuration("server.writeTimeout"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
		},
	}
}

// GetDocstoreConfig returns the document store settings.
func GetDocstoreConfig() DocstoreConfig {
	return DocstoreConfig{
		Endpoint:   viper.GetString("docstore.endpoint"),
		ProjectID:  viper.GetString("docstore.projectId"),
		Database:   viper.GetString("docstore.database"),
		Collection: viper.GetString("docstore.collection"),
		APIKey:     viper.GetString("docstore.apiKey"),
		AuthToken:  viper.GetString("docstore.authToken"),
		PageSize:   viper.GetInt("docstore.pageSize"),
		Timeout:    viper.GetDuration("docstore.timeout"),
	}
}

// GetDetectConfig returns the model endpoint settings.
func GetDetectConfig() DetectConfig {
	return DetectConfig{
		AnomalyURL:       viper.GetString("detect.anomalyUrl"),
		SARUploadURL:     viper.GetString("detect.sarUploadUrl"),
		SARUploadFromURL: viper.GetString("detect.sarUploadFromUrl"),
		SARImageURL:      viper.GetString("detect.sarImageUrl"),
		Timeout:          viper.GetDuration("detect.timeout"),
		ReferenceImages:  viper.GetStringMapString("detect.referenceImages"),
	}
}

// GetFleetConfig returns the vessel report cache and poll settings.
func GetFleetConfig() FleetConfig {
	return FleetConfig{
		CacheTTL:     viper.GetDuration("fleet.cacheTtl"),
		PollInterval: viper.GetDuration("fleet.pollInterval"),
		SnapshotFile: viper.GetString("fleet.snapshotFile"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Protocol:  viper.GetString("influx.protocol"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetGraylogConfig returns the GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetIngestConfig returns the trajectory source settings.
func GetIngestConfig() IngestConfig {
	return IngestConfig{
		Sources:       viper.GetStringSlice("ingest.sources"),
		SplitByVessel: viper.GetBool("ingest.splitByVessel"),
		Palette:       viper.GetStringSlice("ingest.palette"),
		FetchTimeout:  viper.GetDuration("ingest.fetchTimeout"),
		FromStorage:   viper.GetBool("ingest.fromStorage"),
	}
}
