package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ttl-cache-store/internal/config"

	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg, err := config.FromMap(map[string]any{
		"backend":       backend,
		"data_dir":      filepath.Join(t.TempDir(), "data"),
		"database_name": "cache_test",
		"log_level":     "error",
	})
	require.NoError(t, err)
	return cfg
}

func TestOpen_Backends(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendBolt, config.BackendMemory} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)
			repo, err := Open(cfg, nil)
			require.NoError(t, err)
			defer repo.Close()

			ctx := context.Background()
			require.NoError(t, repo.Upsert(ctx, "k", time.Now().Add(time.Hour), []byte("v")))
			n, err := repo.Count(ctx)
			require.NoError(t, err)
			require.EqualValues(t, 1, n)
		})
	}
}

func TestOpen_Persists(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)
	ctx := context.Background()

	repo, err := Open(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, "k", time.Now().Add(time.Hour), []byte("v")))
	require.NoError(t, repo.Close())

	repo, err = Open(cfg, nil)
	require.NoError(t, err)
	defer repo.Close()
	entry, err := repo.Find(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, []byte("v"), entry.Payload)
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Backend = "mongo"
	_, err := Open(cfg, nil)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}
