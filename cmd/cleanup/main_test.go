package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ttl-cache-store/internal/config"
	"ttl-cache-store/internal/database"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.FromMap(map[string]any{
		"backend":       backend,
		"config_file":   filepath.Join(dir, "missing.yml"),
		"database_name": "cleanup_test",
		"data_dir":      dir,
		"log_level":     "error",
	})
	require.NoError(t, err)
	return cfg
}

func seed(t *testing.T, cfg *config.Config) {
	t.Helper()
	ctx := context.Background()
	repo, err := database.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer repo.Close()

	now := time.Now()
	require.NoError(t, repo.CreateUnique(ctx, "stale", now.Add(-time.Hour), []byte{0}))
	require.NoError(t, repo.CreateUnique(ctx, "fresh", now.Add(time.Hour), []byte{0}))
}

func rows(t *testing.T, cfg *config.Config) int64 {
	t.Helper()
	repo, err := database.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer repo.Close()

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestRun_SweepsExpired(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)
	seed(t, cfg)

	require.NoError(t, run(context.Background(), cfg, zap.NewNop(), false))
	require.EqualValues(t, 1, rows(t, cfg))
}

func TestRun_ClearAll(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)
	seed(t, cfg)

	require.NoError(t, run(context.Background(), cfg, zap.NewNop(), true))
	require.EqualValues(t, 0, rows(t, cfg))
}

func TestRun_ReturnsErrorAndReleasesStore(t *testing.T) {
	cfg := testConfig(t, config.BackendBolt)
	seed(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, run(ctx, cfg, zap.NewNop(), true))

	// bolt holds a file lock until Close, so reopening fails if run leaked it
	require.EqualValues(t, 2, rows(t, cfg))
}
