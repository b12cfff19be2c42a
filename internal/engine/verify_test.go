package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fediarchive/archivebot/internal/archive"
)

func TestPageBlocked(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		body    string
		markers []string
		want    bool
	}{
		{"marker hit", "<p>Please SUBSCRIBE now</p>", []string{"subscribe now"}, true},
		{"case folding", "<p>sUbScRiBe NoW</p>", []string{"Subscribe Now"}, true},
		{"clean page", "<p>full article text</p>", []string{"subscribe now"}, false},
		{"generic wayback placeholder", "Page cannot be crawled or displayed due to robots.txt.", nil, true},
		{"empty marker ignored", "<p>anything</p>", []string{""}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, pageBlocked([]byte(tc.body), tc.markers))
		})
	}
}

func TestVerifyItemOutcomes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	site := &archive.Site{Domain: "news.test", FailureContent: []string{"subscribe now"}}

	t.Run("blocked page", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Config{})
		h.fetcher.bodies["http://archive.test/a"] = []byte("subscribe now to continue")
		item := archive.RequestItem{URL: "http://news.test/a", ArchiveURL: "http://archive.test/a", Site: site, State: archive.StateSuccess}
		h.engine.verifyItem(ctx, &item)
		assert.Equal(t, archive.StateAlreadyBlocked, item.State)
		assert.Zero(t, item.ErrorCount)
	})

	t.Run("clean page stays success", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Config{})
		h.fetcher.bodies["http://archive.test/a"] = []byte("the whole article")
		item := archive.RequestItem{URL: "http://news.test/a", ArchiveURL: "http://archive.test/a", Site: site, State: archive.StateSuccess}
		h.engine.verifyItem(ctx, &item)
		assert.Equal(t, archive.StateSuccess, item.State)
	})

	t.Run("fetch failure goes to error", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Config{})
		h.fetcher.errs["http://archive.test/a"] = assert.AnError
		item := archive.RequestItem{URL: "http://news.test/a", ArchiveURL: "http://archive.test/a", Site: site, State: archive.StateSuccess}
		h.engine.verifyItem(ctx, &item)
		assert.Equal(t, archive.StateError, item.State)
		assert.Equal(t, 1, item.ErrorCount)
	})

	t.Run("no site means no verification", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Config{})
		item := archive.RequestItem{URL: "http://news.test/a", ArchiveURL: "http://archive.test/a", State: archive.StateSuccess}
		h.engine.verifyItem(ctx, &item)
		require.Equal(t, archive.StateSuccess, item.State)
	})
}
