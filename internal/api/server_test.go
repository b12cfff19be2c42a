package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fediarchive/archivebot/internal/engine"
)

type fakeStats struct {
	snapshot engine.Stats
	err      error
}

func (f fakeStats) Stats(context.Context) (engine.Stats, error) {
	return f.snapshot, f.err
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, nil, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	t.Run("no dependency check", func(t *testing.T) {
		t.Parallel()
		srv := NewServer(nil, nil, zap.NewNop())
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("dependency down", func(t *testing.T) {
		t.Parallel()
		ready := func(context.Context) error { return fmt.Errorf("database unreachable") }
		srv := NewServer(nil, ready, zap.NewNop())
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "database unreachable")
	})
}

func TestStatsz(t *testing.T) {
	t.Parallel()

	snapshot := engine.Stats{
		GeneratedAt:   time.Unix(1700000000, 0).UTC(),
		TotalRequests: 3,
		TotalHashtags: 1,
	}
	srv := NewServer(fakeStats{snapshot: snapshot}, nil, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/statsz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got engine.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.TotalRequests)
	assert.Equal(t, 1, got.TotalHashtags)
}

func TestStatszErrors(t *testing.T) {
	t.Parallel()

	srv := NewServer(fakeStats{err: fmt.Errorf("store down")}, nil, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/statsz", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, nil, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
