// Package postgres implements the storage.Backend interface on PostgreSQL by
// connecting on Init and delegating to the GORM backend.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/aquintel/spillwatch/internal/config"
	"github.com/aquintel/spillwatch/internal/database"
	gormstorage "github.com/aquintel/spillwatch/internal/storage/gorm"
	"github.com/rs/zerolog"
)

// Backend is the GORM backend bound to a Postgres connection.
type Backend struct {
	*gormstorage.Backend
	cfg   config.PostgresConfig
	dbLog zerolog.Logger
}

// New creates a backend; no connection is made until Init.
func New(cfg config.PostgresConfig, version string, logger *slog.Logger, dbLog zerolog.Logger) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			Logger:   logger,
			DBLogger: dbLog,
			Version:  version,
		}),
		cfg:   cfg,
		dbLog: dbLog,
	}
}

// Init connects, migrates and starts the writer.
func (b *Backend) Init() error {
	if b.DB() == nil {
		db, err := database.GetPostgresDB(b.cfg, b.dbLog)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.SetDB(db)
	}
	return b.Backend.Init()
}
