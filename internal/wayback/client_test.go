package wayback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fediarchive/archivebot/internal/config"
	"github.com/fediarchive/archivebot/internal/policy/ratelimit"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(config.WaybackConfig{
		AvailabilityURL: srv.URL + "/wayback/available",
		SaveURL:         srv.URL + "/save",
	}, "archivebot-test", ratelimit.New(ratelimit.Config{}))
	require.NoError(t, err)
	return client
}

func TestExistingSnapshot(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wayback/available", r.URL.Path)
		assert.Equal(t, "http://news.test/story", r.URL.Query().Get("url"))
		w.Write([]byte(`{"archived_snapshots":{"closest":{"url":"http://web.archive.org/web/2024/http://news.test/story","available":true}}}`))
	}))

	got, err := client.ExistingSnapshot(context.Background(), "http://news.test/story")
	require.NoError(t, err)
	assert.Equal(t, "http://web.archive.org/web/2024/http://news.test/story", got)
}

func TestExistingSnapshotNone(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"archived_snapshots":{}}`))
	}))

	got, err := client.ExistingSnapshot(context.Background(), "http://news.test/story")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCapture(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/save/http://news.test/story", r.URL.Path)
		w.Header().Set("Content-Location", "/web/20240101000000/http://news.test/story")
		w.WriteHeader(http.StatusOK)
	}))

	got, err := client.Capture(context.Background(), "http://news.test/story")
	require.NoError(t, err)
	assert.Contains(t, got, "/web/20240101000000/http://news.test/story")
	assert.Contains(t, got, "http://127.0.0.1")
}

func TestCaptureMissingLocation(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := client.Capture(context.Background(), "http://news.test/story")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Content-Location")
}

func TestCaptureRefused(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))

	_, err := client.Capture(context.Background(), "http://news.test/story")
	require.Error(t, err)
}
