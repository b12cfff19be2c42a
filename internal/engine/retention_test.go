package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fediarchive/archivebot/internal/archive"
)

func TestCleanupPassRetentionWindows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, Config{
		SuccessRetention: 30 * 24 * time.Hour,
		FailureRetention: 7 * 24 * time.Hour,
	})
	now := h.clock.Now()

	seeds := []archive.RequestItem{
		{SourceID: "old-posted", State: archive.StatePosted, CreatedAt: now.Add(-31 * 24 * time.Hour)},
		{SourceID: "young-posted", State: archive.StatePosted, CreatedAt: now.Add(-29 * 24 * time.Hour)},
		{SourceID: "old-error", State: archive.StateError, CreatedAt: now.Add(-8 * 24 * time.Hour)},
		{SourceID: "young-error", State: archive.StateError, CreatedAt: now.Add(-6 * 24 * time.Hour)},
		{SourceID: "old-pending", State: archive.StatePending, CreatedAt: now.Add(-60 * 24 * time.Hour)},
	}
	for i := range seeds {
		require.NoError(t, h.requests.Upsert(ctx, &seeds[i]))
	}
	require.NoError(t, h.hashtags.Upsert(ctx, &archive.HashtagItem{Tag: "paywall", Items: []archive.RequestItem{
		{SourceID: "tag-old-blocked", State: archive.StateAlreadyBlocked, CreatedAt: now.Add(-8 * 24 * time.Hour)},
		{SourceID: "tag-young-success", State: archive.StateSuccess, CreatedAt: now.Add(-1 * 24 * time.Hour)},
	}}))

	require.NoError(t, h.engine.CleanupPass(ctx))

	all, err := h.requests.All(ctx)
	require.NoError(t, err)
	var kept []string
	for _, item := range all {
		kept = append(kept, item.SourceID)
	}
	assert.ElementsMatch(t, []string{"young-posted", "young-error", "old-pending"}, kept,
		"unfinished requests survive unless include_unfinished is set")

	tag, ok, err := h.hashtags.Get(ctx, "paywall")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, tag.Items, 1)
	assert.Equal(t, "tag-young-success", tag.Items[0].SourceID)
}

func TestCleanupPassIncludeUnfinished(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, Config{
		SuccessRetention:  30 * 24 * time.Hour,
		FailureRetention:  7 * 24 * time.Hour,
		IncludeUnfinished: true,
	})
	now := h.clock.Now()

	old := archive.RequestItem{SourceID: "old-pending", State: archive.StatePending, CreatedAt: now.Add(-60 * 24 * time.Hour)}
	require.NoError(t, h.requests.Upsert(ctx, &old))

	require.NoError(t, h.engine.CleanupPass(ctx))

	all, err := h.requests.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRecheckRetryBound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, Config{MaxRetries: 5})
	h.archiver.failures["http://x.test/a"] = assert.AnError

	retriable := archive.RequestItem{
		SourceID: "m1", URL: "http://x.test/a", State: archive.StateError,
		ErrorCount: 4, CreatedAt: h.clock.Now(),
	}
	exhausted := archive.RequestItem{
		SourceID: "m2", URL: "http://x.test/b", State: archive.StateError,
		ErrorCount: 5, CreatedAt: h.clock.Now(),
	}
	require.NoError(t, h.requests.Upsert(ctx, &retriable))
	require.NoError(t, h.requests.Upsert(ctx, &exhausted))

	require.NoError(t, h.engine.RecheckPass(ctx))

	all, err := h.requests.All(ctx)
	require.NoError(t, err)
	bySource := map[string]archive.RequestItem{}
	for _, item := range all {
		bySource[item.SourceID] = item
	}
	assert.Equal(t, 5, bySource["m1"].ErrorCount, "renewed failure bumps the count")
	assert.Equal(t, archive.StateError, bySource["m1"].State)
	assert.Equal(t, 5, bySource["m2"].ErrorCount, "item at the bound is skipped")
	assert.Equal(t, []string{"existing:http://x.test/a"}, h.archiver.calls,
		"only the retriable item goes back out")
}

func TestRecheckResubmitsAndRecovers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, Config{MaxRetries: 5})
	h.archiver.captures["http://x.test/a"] = "http://archive.test/a"

	item := archive.RequestItem{
		SourceID: "m1", URL: "http://x.test/a", State: archive.StateError,
		ErrorCount: 2, CreatedAt: h.clock.Now(),
	}
	require.NoError(t, h.requests.Upsert(ctx, &item))

	require.NoError(t, h.engine.RecheckPass(ctx))

	all, err := h.requests.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, archive.StateSuccess, all[0].State)
	assert.Equal(t, "http://archive.test/a", all[0].ArchiveURL)
	assert.Equal(t, 2, all[0].ErrorCount, "the count never resets")
}

func TestRecheckReverifiesHashtagItems(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, Config{MaxRetries: 5})
	site := &archive.Site{Domain: "news.test", FailureContent: []string{"subscribe now"}}
	h.fetcher.bodies["http://archive.test/a"] = []byte("<html>Subscribe NOW to read</html>")

	require.NoError(t, h.hashtags.Upsert(ctx, &archive.HashtagItem{Tag: "paywall", Items: []archive.RequestItem{
		{
			SourceID: "h1", URL: "http://news.test/a", ArchiveURL: "http://archive.test/a",
			Site: site, State: archive.StateError, ErrorCount: 1, CreatedAt: h.clock.Now(),
		},
	}}))

	require.NoError(t, h.engine.RecheckPass(ctx))

	tag, ok, err := h.hashtags.Get(ctx, "paywall")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, archive.StateAlreadyBlocked, tag.Items[0].State)
	assert.Zero(t, h.archiver.callCount(), "verification does not resubmit")
}
