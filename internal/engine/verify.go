package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fediarchive/archivebot/internal/archive"
)

// notArchivedMarker shows up on Wayback placeholder pages when a
// capture did not actually land.
const notArchivedMarker = "page cannot be crawled or displayed"

// verifyItem re-fetches an archived page and checks it for the site's
// paywall markers. A marker hit flips the item to AlreadyBlocked; a
// fetch failure moves it to Error so the recheck pass retries later.
// Only hashtag-originated items with a resolved site are verified.
func (e *Engine) verifyItem(ctx context.Context, item *archive.RequestItem) {
	if item.Site == nil || item.ArchiveURL == "" || item.URL == "" {
		return
	}
	body, err := e.fetcher.Fetch(ctx, item.ArchiveURL)
	if err != nil {
		e.log.Warn("failed fetching archived page for verification",
			zap.String("archive_url", item.ArchiveURL), zap.Error(err))
		item.ErrorCount++
		e.transition(item, archive.StateError)
		return
	}
	if pageBlocked(body, item.Site.FailureContent) {
		e.log.Warn("archived page mirrors a blocked original",
			zap.String("url", item.URL), zap.String("archive_url", item.ArchiveURL))
		e.transition(item, archive.StateAlreadyBlocked)
		return
	}
	e.transition(item, archive.StateSuccess)
}

// pageBlocked reports whether body contains any failure marker or the
// generic not-archived marker, case-insensitively.
func pageBlocked(body []byte, markers []string) bool {
	page := strings.ToLower(string(body))
	if strings.Contains(page, notArchivedMarker) {
		return true
	}
	for _, marker := range markers {
		if marker == "" {
			continue
		}
		if strings.Contains(page, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// verifyHashtagItems runs verification for every item of tag currently
// in state and below the retry bound, persisting the record afterwards.
func (e *Engine) verifyHashtagItems(ctx context.Context, tag *archive.HashtagItem, state archive.State) error {
	touched := false
	for i := range tag.Items {
		item := &tag.Items[i]
		if item.State != state || item.ErrorCount >= e.cfg.MaxRetries {
			continue
		}
		if item.Site == nil || item.ArchiveURL == "" || item.URL == "" {
			continue
		}
		e.verifyItem(ctx, item)
		touched = true
	}
	if !touched {
		return nil
	}
	return e.hashtags.Upsert(ctx, tag)
}
