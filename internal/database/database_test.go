package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aquintel/spillwatch/internal/config"
	"github.com/aquintel/spillwatch/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host:     "db.internal",
		Port:     "5433",
		Username: "spill",
		Password: "secret",
		Database: "fleet",
	})
	assert.Equal(t, "host=db.internal port=5433 user=spill password=secret dbname=fleet sslmode=disable", dsn)
}

func TestMemoryDSN(t *testing.T) {
	assert.Equal(t, "file:abc?mode=memory&cache=shared", MemoryDSN("abc"))
}

func TestMigrate_SQLiteMemory(t *testing.T) {
	db, err := GetSqliteDB(MemoryDSN(uuid.NewString()), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, Migrate(db, "test", zerolog.Nop()))
	// second run leaves the service row alone
	require.NoError(t, Migrate(db, "test", zerolog.Nop()))

	var infos []model.ServiceInfo
	require.NoError(t, db.Find(&infos).Error)
	require.Len(t, infos, 1)
	assert.Equal(t, ServiceName, infos[0].ServiceName)

	for _, m := range model.DatabaseModels {
		assert.True(t, db.Migrator().HasTable(m))
	}
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := GetSqliteDB(MemoryDSN(uuid.NewString()), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, Migrate(db, "test", zerolog.Nop()))

	path := filepath.Join(t.TempDir(), "dumps", "spillwatch.db")

	require.NoError(t, DumpMemoryDBToDisk(db, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// overwrite an existing dump
	require.NoError(t, DumpMemoryDBToDisk(db, path))

	disk, err := GetSqliteDB(path, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, disk.Migrator().HasTable(&model.Trajectory{}))
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	db, err := GetSqliteDB(MemoryDSN(uuid.NewString()), zerolog.Nop())
	require.NoError(t, err)
	assert.Error(t, DumpMemoryDBToDisk(db, ""))
}
