package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fediarchive/archivebot/internal/archive"
)

// CleanupPass purges requests whose terminal state has aged past the
// per-family retention window, standalone and hashtag-embedded alike.
func (e *Engine) CleanupPass(ctx context.Context) error {
	now := e.clock.Now()
	successStates := archive.SuccessFamilyStates(e.cfg.IncludeUnfinished)
	failureStates := archive.FailureFamilyStates()
	successCutoff := now.Add(-e.cfg.SuccessRetention)
	failureCutoff := now.Add(-e.cfg.FailureRetention)

	deletedOK, err := e.requests.DeleteOlderThan(ctx, successStates, successCutoff)
	if err != nil {
		return fmt.Errorf("engine: purge finished requests: %w", err)
	}
	deletedFailed, err := e.requests.DeleteOlderThan(ctx, failureStates, failureCutoff)
	if err != nil {
		return fmt.Errorf("engine: purge failed requests: %w", err)
	}

	deletedTagOK, err := e.hashtags.DeleteItemsOlderThan(ctx, successStates, successCutoff)
	if err != nil {
		return fmt.Errorf("engine: purge finished hashtag requests: %w", err)
	}
	deletedTagFailed, err := e.hashtags.DeleteItemsOlderThan(ctx, failureStates, failureCutoff)
	if err != nil {
		return fmt.Errorf("engine: purge failed hashtag requests: %w", err)
	}

	total := deletedOK + deletedFailed + deletedTagOK + deletedTagFailed
	if total > 0 {
		e.log.Info("cleaned up aged requests",
			zap.Int64("standalone", deletedOK+deletedFailed),
			zap.Int64("hashtag", deletedTagOK+deletedTagFailed))
	}
	return nil
}

// RecheckPass re-drives every errored request below the retry bound:
// hashtag items that already hold a snapshot are re-verified, everything
// else goes back through submission. Items at the bound are skipped and
// age out through cleanup.
func (e *Engine) RecheckPass(ctx context.Context) error {
	standalone, err := e.requests.All(ctx)
	if err != nil {
		return fmt.Errorf("engine: load requests for recheck: %w", err)
	}
	for i := range standalone {
		item := &standalone[i]
		if !e.recheckable(item) {
			continue
		}
		e.recheckItem(ctx, item)
		if err := e.saveRequest(ctx, item); err != nil {
			return err
		}
	}

	tags, err := e.hashtags.All(ctx)
	if err != nil {
		return fmt.Errorf("engine: load hashtag records for recheck: %w", err)
	}
	for i := range tags {
		tag := &tags[i]
		touched := false
		for j := range tag.Items {
			item := &tag.Items[j]
			if !e.recheckable(item) {
				continue
			}
			e.recheckItem(ctx, item)
			touched = true
		}
		if touched {
			if err := e.hashtags.Upsert(ctx, tag); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) recheckable(item *archive.RequestItem) bool {
	return item.State == archive.StateError && item.ErrorCount < e.cfg.MaxRetries
}

// recheckItem retries one errored request. A renewed failure bumps the
// error count; the state only leaves Error on success.
func (e *Engine) recheckItem(ctx context.Context, item *archive.RequestItem) {
	if item.Site != nil && item.ArchiveURL != "" {
		e.verifyItem(ctx, item)
		return
	}
	if item.URL == "" {
		return
	}
	archiveURL, err := e.archiveURL(ctx, item.URL)
	if err != nil {
		e.log.Warn("recheck submission failed",
			zap.String("url", item.URL), zap.Int("error_count", item.ErrorCount+1), zap.Error(err))
		item.ErrorCount++
		item.UpdatedAt = e.clock.Now()
		return
	}
	item.ArchiveURL = archiveURL
	e.transition(item, archive.StateSuccess)
}
