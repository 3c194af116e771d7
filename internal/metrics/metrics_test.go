package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ttl-cache-store/internal/cache"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observer(t *testing.T) {
	m := NewMetrics("ttl_cache")

	m.Operation(cache.OpRead, nil)
	m.Operation(cache.OpRead, nil)
	m.Operation(cache.OpWrite, errors.New("boom"))
	m.Lookup(true)
	m.Lookup(false)
	m.Lookup(false)
	m.Removed(cache.OpCleanup, 3)

	require.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("read")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("write")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("read")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Hits))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Misses))
	require.Equal(t, 3.0, testutil.ToFloat64(m.RemovedTotal.WithLabelValues("cleanup")))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// two instances must not collide on registration
	a := NewMetrics("ttl_cache")
	b := NewMetrics("ttl_cache")
	a.Lookup(true)
	require.Equal(t, 0.0, testutil.ToFloat64(b.Hits))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("ttl_cache")
	m.Operation(cache.OpClear, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `ttl_cache_operations_total{op="clear"} 1`))
}
