package main

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/Houeta/edition-tracker/internal/config"
	"github.com/Houeta/edition-tracker/internal/repository/file"
	"github.com/Houeta/edition-tracker/internal/repository/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		env   string
		level slog.Level
	}{
		{env: envLocal, level: slog.LevelDebug},
		{env: envDev, level: slog.LevelInfo},
		{env: envProd, level: slog.LevelWarn},
		{env: "staging", level: slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			logger := setupLogger(tt.env)

			require.NotNil(t, logger)
			assert.True(t, logger.Enabled(t.Context(), tt.level))
			assert.False(t, logger.Enabled(t.Context(), tt.level-1))
		})
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	logger := slog.Default()

	store, err := openStore(t.Context(), logger, config.Storage{Type: config.StorageFile, DataDir: filepath.Join(dir, "data")})
	require.NoError(t, err)
	assert.IsType(t, &file.Store{}, store)
	require.NoError(t, store.Close())

	store, err = openStore(t.Context(), logger, config.Storage{Type: config.StorageSQLite, Path: filepath.Join(dir, "tracker.db")})
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, store)
	require.NoError(t, store.Close())

	_, err = openStore(t.Context(), logger, config.Storage{Type: "redis"})
	require.Error(t, err)
}
