package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fediarchive/archivebot/internal/archive"
)

func TestStatsWindows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, Config{})
	now := h.clock.Now()

	seeds := []archive.RequestItem{
		{SourceID: "recent", State: archive.StatePosted, CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now.Add(-2 * time.Hour)},
		{SourceID: "older", State: archive.StateError, CreatedAt: now.Add(-10 * 24 * time.Hour), UpdatedAt: now.Add(-10 * 24 * time.Hour)},
	}
	for i := range seeds {
		require.NoError(t, h.requests.Upsert(ctx, &seeds[i]))
	}
	require.NoError(t, h.hashtags.Upsert(ctx, &archive.HashtagItem{Tag: "paywall", Items: []archive.RequestItem{
		{SourceID: "h1", State: archive.StateSuccess, CreatedAt: now.Add(-1 * time.Hour), UpdatedAt: now.Add(-1 * time.Hour)},
	}}))

	stats, err := h.engine.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalRequests)
	assert.Equal(t, 1, stats.TotalHashtags)
	assert.Equal(t, 1, stats.TotalHashtagRequests)
	require.Len(t, stats.Windows, 4, "no delta window before the first watchdog run")

	byLabel := map[string]StatsWindow{}
	for _, w := range stats.Windows {
		byLabel[w.Label] = w
	}
	assert.Equal(t, map[string]int{"posted": 1, "error": 1}, byLabel["all_time"].Requests)
	assert.Equal(t, map[string]int{"posted": 1}, byLabel["last_1d"].Requests)
	assert.Equal(t, map[string]int{"success": 1}, byLabel["last_1d"].HashtagRequests)
	assert.Equal(t, map[string]int{"posted": 1, "error": 1}, byLabel["last_30d"].Requests)
}

func TestWatchdogPassRecordsDeltaWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, Config{})
	h.engine.SetTaskRuns(func() map[string]time.Time {
		return map[string]time.Time{"submit": h.clock.Now()}
	})

	require.NoError(t, h.engine.WatchdogPass(ctx))
	h.clock.Advance(time.Hour)

	stats, err := h.engine.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Windows, 5)
	last := stats.Windows[len(stats.Windows)-1]
	assert.Equal(t, "since_last_watchdog", last.Label)
	require.NotNil(t, last.Since)
	assert.Equal(t, h.clock.Now().Add(-time.Hour), *last.Since)
	require.Contains(t, stats.TaskRuns, "submit")
}
