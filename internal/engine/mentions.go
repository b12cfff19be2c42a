package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/fediarchive/archivebot/internal/archive"
	"github.com/fediarchive/archivebot/internal/metrics"
)

// triggerWords mark a mention as an archival request. Matching is
// case-insensitive anywhere in the status body.
var triggerWords = []string{"archivethisurl", "!archive", "!url"}

// NotificationsPass ingests mentions and follows. Mentions carrying a
// trigger word become Pending requests; the rest get a usage hint when
// they look like a conversation. Fetched notifications are cleared so
// the next pass starts fresh.
func (e *Engine) NotificationsPass(ctx context.Context) error {
	notifications, err := e.messenger.Notifications(ctx)
	if err != nil {
		return fmt.Errorf("engine: fetch notifications: %w", err)
	}
	if err := e.messenger.ClearNotifications(ctx); err != nil {
		e.log.Warn("failed clearing notifications", zap.Error(err))
	}

	var mentions, follows []archive.Notification
	for _, n := range notifications {
		switch {
		case n.Type == archive.NotificationMention && n.Status != nil:
			mentions = append(mentions, n)
		case n.Type == archive.NotificationFollow:
			follows = append(follows, n)
		}
	}

	if err := e.handleMentions(ctx, mentions); err != nil {
		return err
	}
	e.handleFollows(ctx, follows)
	return nil
}

// handleMentions turns triggered mentions into Pending requests,
// acknowledges them and favourites the originating status. Mentions in
// the same thread are deduplicated by their in-reply-to id.
func (e *Engine) handleMentions(ctx context.Context, mentions []archive.Notification) error {
	seenThread := make(map[string]bool)
	for _, mention := range mentions {
		status := mention.Status
		if status.InReplyToID != "" {
			if seenThread[status.InReplyToID] {
				continue
			}
			seenThread[status.InReplyToID] = true
		}

		if !hasTriggerWord(status.Content) {
			// Only nudge people who replied to something; a bare
			// mention with no keyword is most likely not for us.
			if status.InReplyToID != "" {
				e.postNotice(ctx, usageText(mention.Account.Handle), status.ID, "direct")
			}
			continue
		}

		targetURL, err := e.findURL(ctx, *status)
		if err != nil {
			e.log.Warn("failed walking reply chain for url",
				zap.String("status_id", status.ID), zap.Error(err))
		}
		if targetURL == "" {
			text := fmt.Sprintf("Sorry, @%s I did not find any URL in your post or the ones above yours. I only archive URLs, not the post itself.", mention.Account.Handle)
			e.postNotice(ctx, text, status.ID, status.Visibility)
			continue
		}

		item := archive.RequestItem{
			SourceID:    status.ID,
			RequestedBy: mention.Account.Handle,
			URL:         targetURL,
			State:       archive.StatePending,
			Visibility:  status.Visibility,
		}
		metrics.ObserveRequest("mention")
		e.log.Info("accepted archival request",
			zap.String("url", targetURL), zap.String("requested_by", item.RequestedBy))

		ack := fmt.Sprintf("@%s I received your request and will try to send that URL to the archive.\n\nDepending on the archive this can take hours, no need to resend.", item.RequestedBy)
		if responseID, err := e.messenger.PostReply(ctx, ack, status.ID, "", status.Visibility); err != nil {
			e.log.Warn("failed acknowledging request", zap.String("status_id", status.ID), zap.Error(err))
		} else {
			item.ResponseID = responseID
		}
		if err := e.saveRequest(ctx, &item); err != nil {
			return err
		}
		if err := e.messenger.Favourite(ctx, status.ID); err != nil {
			e.log.Warn("failed favouriting request", zap.String("status_id", status.ID), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) handleFollows(ctx context.Context, follows []archive.Notification) {
	for _, follow := range follows {
		text := fmt.Sprintf("Hey, @%s thanks for the follow. Following is not needed to use me: mention me with one of %s and I will archive the URL in your post or the thread above it. I favourite your post once I have seen it.",
			follow.Account.Handle, strings.Join(triggerWords, ", "))
		e.postNotice(ctx, text, "", "private")
	}
}

// postNotice fires a one-shot informational reply. Failures are logged
// only, nothing tracks these messages.
func (e *Engine) postNotice(ctx context.Context, text, inReplyTo, visibility string) {
	if _, err := e.messenger.PostReply(ctx, text, inReplyTo, "", visibility); err != nil {
		e.log.Warn("failed posting notice", zap.Error(err))
	}
}

// findURL hunts for a shareable URL: the status card first, then the
// rendered anchors, then the parent chain up to the configured depth.
func (e *Engine) findURL(ctx context.Context, status archive.Status) (string, error) {
	current := status
	for depth := 0; depth <= e.cfg.ReplyChainDepth; depth++ {
		if current.CardURL != "" {
			return current.CardURL, nil
		}
		if href := firstAnchorURL(current.Content); href != "" {
			return href, nil
		}
		if current.InReplyToID == "" {
			return "", nil
		}
		parent, err := e.messenger.Status(ctx, current.InReplyToID)
		if err != nil {
			return "", err
		}
		current = parent
	}
	return "", nil
}

func hasTriggerWord(content string) bool {
	lowered := strings.ToLower(content)
	for _, word := range triggerWords {
		if strings.Contains(lowered, word) {
			return true
		}
	}
	return false
}

// firstAnchorURL returns the href of the first anchor whose visible
// text looks like a URL. Mastodon renders shared links exactly so.
func firstAnchorURL(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.HasPrefix(strings.TrimSpace(sel.Text()), "http") {
			return true
		}
		found, _ = sel.Attr("href")
		return false
	})
	return found
}

func usageText(handle string) string {
	return fmt.Sprintf("Hey there, @%s. I only understand posts containing one of %s. Put one of those words anywhere in your post and I will archive the URL in it or in the posts above it.",
		handle, strings.Join(triggerWords, ", "))
}
