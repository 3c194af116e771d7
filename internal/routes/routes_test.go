package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ttl-cache-store/internal/auth"
	"ttl-cache-store/internal/cache"
	"ttl-cache-store/internal/metrics"
	"ttl-cache-store/internal/realtime"
	"ttl-cache-store/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*gin.Engine, *auth.Tokens) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := metrics.NewMetrics("ttl_cache")
	hub := realtime.NewHub(nil)
	store, err := cache.New(repository.NewMemoryRepository(), cache.Options{Observer: m, Notifier: hub})
	require.NoError(t, err)

	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	tokens := auth.NewTokens("secret", "ttl-cache-store", "ttl-cache-admins", time.Hour)

	return SetupRoutes(Deps{
		Store:   store,
		Hub:     hub,
		Metrics: m,
		Tokens:  tokens,
		Admin:   auth.Admin{Username: "admin", PasswordHash: hash},
	}), tokens
}

func TestHealth(t *testing.T) {
	r, _ := setup(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r, _ := setup(t)
	for _, path := range []string{"/api/cache/k", "/api/stats", "/api/entries/k", "/ws"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestLoginThenUseCache(t *testing.T) {
	r, _ := setup(t)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "s3cret"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct{ Token string }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	bearer := "Bearer " + resp.Token

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/cache/greeting", strings.NewReader(`{"value":"hello","expires_in":"1h"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/cache/greeting", nil)
	req.Header.Set("Authorization", bearer)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"key":"greeting","value":"hello"}`, w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/cache/cleanup", nil)
	req.Header.Set("Authorization", bearer)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "ttl_cache_read_hits_total 1")
}
