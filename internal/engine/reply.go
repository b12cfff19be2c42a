package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fediarchive/archivebot/internal/archive"
	"github.com/fediarchive/archivebot/internal/metrics"
)

// ReplyPass sends the outcome reply for every request that owes one,
// standalone mentions first, then hashtag results. Replies are
// dispatched exactly once: a failed dispatch moves the request to
// GivingUp and is never retried.
func (e *Engine) ReplyPass(ctx context.Context) error {
	if err := e.sendStandaloneReplies(ctx); err != nil {
		return err
	}
	return e.sendHashtagReplies(ctx)
}

func (e *Engine) sendStandaloneReplies(ctx context.Context) error {
	items, err := e.requests.ReadyForReply(ctx)
	if err != nil {
		return fmt.Errorf("engine: load replyable requests: %w", err)
	}
	for i := range items {
		item := &items[i]
		text := replyText(*item)
		if text == "" {
			continue
		}
		e.dispatchReply(ctx, item, text, item.Visibility)
		if err := e.saveRequest(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// sendHashtagReplies posts an unlisted note for each successfully
// archived hashtag item. Other hashtag outcomes have no requester to
// notify and stay silent.
func (e *Engine) sendHashtagReplies(ctx context.Context) error {
	tags, err := e.hashtags.All(ctx)
	if err != nil {
		return fmt.Errorf("engine: load hashtag records: %w", err)
	}
	for i := range tags {
		tag := &tags[i]
		touched := false
		for j := range tag.Items {
			item := &tag.Items[j]
			if item.State != archive.StateSuccess {
				continue
			}
			text := fmt.Sprintf("That URL has been archived as %s.\n\n#%s", item.ArchiveURL, tag.Tag)
			e.dispatchReply(ctx, item, text, "unlisted")
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

// dispatchReply posts or edits one reply and advances the item to
// Posted, or to GivingUp when the dispatch fails.
func (e *Engine) dispatchReply(ctx context.Context, item *archive.RequestItem, text, visibility string) {
	responseID, err := e.messenger.PostReply(ctx, text, item.SourceID, item.ResponseID, visibility)
	if err != nil {
		e.log.Error("failed sending reply, will not retry",
			zap.String("id", item.ID), zap.String("source_id", item.SourceID), zap.Error(err))
		e.transition(item, archive.StateGivingUp)
		metrics.ObserveReply("giving_up")
		return
	}
	item.ResponseID = responseID
	e.transition(item, archive.StatePosted)
	metrics.ObserveReply("posted")
}

// replyText builds the outcome-specific message for a standalone
// request, or "" when the state owes no reply.
func replyText(item archive.RequestItem) string {
	switch item.State {
	case archive.StateSuccess:
		return fmt.Sprintf("@%s Here is your archived URL: %s", item.RequestedBy, item.ArchiveURL)
	case archive.StateError:
		return fmt.Sprintf("I'm sorry, @%s, I cannot do that.\n(Archiving failed for that url)", item.RequestedBy)
	case archive.StateAlreadyBlocked:
		return fmt.Sprintf("I'm sorry, @%s, looks like we are too late.\n(The paywall kicked in)", item.RequestedBy)
	case archive.StateInvalidURL:
		return fmt.Sprintf("Sorry, @%s, there was no URL anywhere in your post or the ones above it.", item.RequestedBy)
	default:
		return ""
	}
}
