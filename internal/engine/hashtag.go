package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fediarchive/archivebot/internal/archive"
	"github.com/fediarchive/archivebot/internal/metrics"
)

// HashtagPass discovers new posts under each watched tag, resolves
// their site rules and drives the resulting requests through
// reconciliation, submission, verification and replies.
func (e *Engine) HashtagPass(ctx context.Context) error {
	self, err := e.me(ctx)
	if err != nil {
		return err
	}
	for _, tag := range e.cfg.Hashtags {
		if err := e.processHashtag(ctx, tag, self); err != nil {
			e.log.Error("hashtag pass failed for tag",
				zap.String("tag", tag), zap.Error(err))
		}
	}
	return e.sendHashtagReplies(ctx)
}

func (e *Engine) processHashtag(ctx context.Context, tag string, self archive.Account) error {
	record, err := e.ingestHashtag(ctx, tag, self)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	e.resolveSites(record)

	corpus, err := e.corpus(ctx)
	if err != nil {
		return err
	}
	batch := make([]*archive.RequestItem, len(record.Items))
	for i := range record.Items {
		batch[i] = &record.Items[i]
	}
	Reconcile(batch, corpus)

	// Site resolution and reconciliation flip states without going
	// through the batch, so persist them before submission. Items that
	// became InvalidUrl or Success here produce no save otherwise.
	if err := e.hashtags.Upsert(ctx, record); err != nil {
		return fmt.Errorf("engine: save hashtag record %q: %w", tag, err)
	}

	save := func(ctx context.Context, _ *archive.RequestItem) error {
		return e.hashtags.Upsert(ctx, record)
	}
	if err := e.submitBatch(ctx, batch, save); err != nil {
		return err
	}
	return e.verifyHashtagItems(ctx, record, archive.StateSuccess)
}

// ingestHashtag appends new timeline posts under tag as Pending items.
// The first run takes a single status to seed the since-id cursor;
// later runs page from the newest known item.
func (e *Engine) ingestHashtag(ctx context.Context, tag string, self archive.Account) (*archive.HashtagItem, error) {
	record, _, err := e.hashtags.Get(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("engine: load hashtag record %q: %w", tag, err)
	}
	record.Tag = tag

	sinceID := ""
	limit := 1
	if newest := record.Newest(); newest != nil {
		sinceID = newest.SourceID
		limit = 100
	}

	statuses, err := e.messenger.TagTimeline(ctx, tag, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("engine: fetch tag timeline %q: %w", tag, err)
	}

	now := e.clock.Now()
	added := 0
	for _, status := range statuses {
		if status.Account.ID == self.ID {
			continue
		}
		if status.CardURL == "" {
			continue
		}
		// The archive does not need archiving.
		if strings.Contains(strings.ToLower(status.CardURL), "archive.org") {
			continue
		}
		record.Items = append(record.Items, archive.RequestItem{
			SourceID:  status.ID,
			Tag:       tag,
			URL:       status.CardURL,
			State:     archive.StatePending,
			CreatedAt: now,
			UpdatedAt: now,
		})
		metrics.ObserveRequest("hashtag")
		added++
	}
	if added > 0 {
		e.log.Info("discovered hashtag requests",
			zap.String("tag", tag), zap.Int("count", added))
	}
	if err := e.hashtags.Upsert(ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// resolveSites attaches the first matching site rule to each pending
// item. Items without a URL or without a configured site are invalid,
// there is nothing to verify them against.
func (e *Engine) resolveSites(record *archive.HashtagItem) {
	for i := range record.Items {
		item := &record.Items[i]
		if item.State != archive.StatePending {
			continue
		}
		if item.URL == "" {
			e.transition(item, archive.StateInvalidURL)
			continue
		}
		site := e.matchSite(item.URL)
		if site == nil {
			e.log.Debug("no configured site matches url", zap.String("url", item.URL))
			e.transition(item, archive.StateInvalidURL)
			continue
		}
		item.Site = site
	}
}

func (e *Engine) matchSite(url string) *archive.Site {
	for i := range e.cfg.Sites {
		if e.cfg.Sites[i].Matches(url) {
			site := e.cfg.Sites[i]
			return &site
		}
	}
	return nil
}
