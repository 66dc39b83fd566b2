// internal/storage/factory.go
package storage

import (
	"fmt"
	"log/slog"

	"github.com/aquintel/spillwatch/internal/config"
	"github.com/aquintel/spillwatch/internal/storage/memory"
	"github.com/aquintel/spillwatch/internal/storage/postgres"
	sqlitestorage "github.com/aquintel/spillwatch/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// NewBackend creates a storage backend based on configuration. The backend is
// not initialized; callers run Init.
func NewBackend(cfg config.StorageConfig, version string, logger *slog.Logger, dbLog zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.New(cfg.Postgres, version, logger, dbLog), nil
	case "sqlite":
		return sqlitestorage.New(cfg.SQLite, "", version, logger, dbLog)
	case "memory", "":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
