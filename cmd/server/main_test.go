package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ttl-cache-store/internal/auth"
	"ttl-cache-store/internal/config"
	"ttl-cache-store/internal/database"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHashPassword(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, hashPassword(strings.NewReader("s3cret\n"), &out))

	admin := auth.Admin{Username: "admin", PasswordHash: strings.TrimSpace(out.String())}
	require.NoError(t, admin.Authenticate("admin", "s3cret"))
	require.ErrorIs(t, admin.Authenticate("admin", "wrong"), auth.ErrInvalidCredentials)
}

func TestHashPassword_Empty(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, hashPassword(strings.NewReader(""), &out))
	require.Error(t, hashPassword(strings.NewReader("\n"), &out))
	require.Empty(t, out.String())
}

func boltConfig(t *testing.T, addr string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.FromMap(map[string]any{
		"backend":       config.BackendBolt,
		"config_file":   filepath.Join(dir, "missing.yml"),
		"database_name": "server_test",
		"data_dir":      dir,
		"listen_addr":   addr,
		"log_level":     "error",
	})
	require.NoError(t, err)
	return cfg
}

// reopen fails while another handle still holds the bolt file lock.
func reopen(t *testing.T, cfg *config.Config) {
	t.Helper()
	repo, err := database.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, repo.Close())
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	cfg := boltConfig(t, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zap.NewNop()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	reopen(t, cfg)
}

func TestRun_ListenErrorReleasesStore(t *testing.T) {
	cfg := boltConfig(t, "127.0.0.1:-1")

	err := run(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "start server")
	reopen(t, cfg)
}
