package engine

import (
	"context"
	"strings"

	"github.com/fediarchive/archivebot/internal/archive"
)

// Reconcile flips Pending items whose URL was archived before to
// Success without touching the network, copying the known archive URL.
// URLs compare case-insensitively and the first corpus match wins. The
// rewrite is idempotent: items already resolved are left alone.
func Reconcile(batch []*archive.RequestItem, corpus []archive.RequestItem) int {
	filled := 0
	for _, item := range batch {
		if item.State != archive.StatePending || item.URL == "" {
			continue
		}
		for _, prior := range corpus {
			if prior.ArchiveURL == "" || prior.ID == item.ID {
				continue
			}
			if strings.EqualFold(prior.URL, item.URL) {
				item.ArchiveURL = prior.ArchiveURL
				item.PreviousState = item.State
				item.State = archive.StateSuccess
				filled++
				break
			}
		}
	}
	return filled
}

// corpus loads every previously seen request, standalone and
// hashtag-embedded, for deduplication.
func (e *Engine) corpus(ctx context.Context) ([]archive.RequestItem, error) {
	standalone, err := e.requests.All(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := e.hashtags.All(ctx)
	if err != nil {
		return nil, err
	}
	out := standalone
	for _, tag := range tags {
		out = append(out, tag.Items...)
	}
	return out, nil
}
