// Package archive defines the core types and interfaces for the archival
// request engine: the request records, their lifecycle states, and the
// collaborator contracts (messaging, archival service, persistence).
package archive

import (
	"context"
	"strings"
	"time"
)

// Site is one configured site rule: a domain to watch for and the marker
// strings whose presence in an archived page means the paywall won the race.
type Site struct {
	Domain         string   `json:"domain" mapstructure:"domain"`
	FailureContent []string `json:"failure_content" mapstructure:"failure_content"`
}

// Matches reports whether the rule's domain occurs in url, ignoring case.
func (s Site) Matches(url string) bool {
	return s.Domain != "" && strings.Contains(strings.ToLower(url), strings.ToLower(s.Domain))
}

// RequestItem is one tracked URL-archival request tied to a single
// originating status.
type RequestItem struct {
	// ID is assigned by the persistence layer on first upsert.
	ID string
	// SourceID is the originating status. It is the reply target, the
	// dedup key within a hashtag feed, and the join key between a
	// submission and its response.
	SourceID string
	// RequestedBy is the requester's handle; empty for hashtag-originated
	// requests.
	RequestedBy string
	// Tag is the owning hashtag; empty for standalone mention requests.
	Tag string
	// URL is the candidate URL. Empty means invalid input.
	URL string
	// ArchiveURL is the permanent URL once archived.
	ArchiveURL string
	// ResponseID is the bot's own reply status, edited in place on
	// subsequent replies instead of posting anew.
	ResponseID string
	// Site is the matching site rule; only resolved for hashtag requests.
	Site *Site
	// State and PreviousState follow the lifecycle state machine.
	State         State
	PreviousState State
	// ErrorCount bounds retries. It only ever increases.
	ErrorCount int
	// Visibility mirrors the originating status so replies match it.
	Visibility string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HashtagItem bundles the requests discovered under one watched tag.
// Items keep discovery order, which is not necessarily post order.
type HashtagItem struct {
	Tag   string
	Items []RequestItem
}

// Newest returns the most recently created item, or nil when empty.
func (h *HashtagItem) Newest() *RequestItem {
	var newest *RequestItem
	for i := range h.Items {
		if newest == nil || h.Items[i].CreatedAt.After(newest.CreatedAt) {
			newest = &h.Items[i]
		}
	}
	return newest
}

// Account identifies a fediverse account.
type Account struct {
	ID     string
	Handle string
}

// Status is one post as seen through the messaging collaborator. Content
// carries the rendered HTML body.
type Status struct {
	ID          string
	Account     Account
	Content     string
	CardURL     string
	InReplyToID string
	Visibility  string
}

// Notification types the engine reacts to.
const (
	NotificationMention = "mention"
	NotificationFollow  = "follow"
)

// Notification is one inbound notification; Status is nil for types that
// carry none.
type Notification struct {
	ID      string
	Type    string
	Account Account
	Status  *Status
}

// Messenger is the inbound/outbound messaging collaborator.
type Messenger interface {
	// Notifications fetches all unread notifications.
	Notifications(ctx context.Context) ([]Notification, error)
	// ClearNotifications marks everything fetched as read.
	ClearNotifications(ctx context.Context) error
	// PostReply posts text in reply to inReplyTo. When editID is non-empty
	// the existing status is edited in place instead. Returns the id of
	// the posted or edited status.
	PostReply(ctx context.Context, text, inReplyTo, editID, visibility string) (string, error)
	// Status loads a single status by id (used to walk reply chains).
	Status(ctx context.Context, id string) (Status, error)
	// TagTimeline lists statuses for a hashtag, newest last, optionally
	// only those newer than sinceID.
	TagTimeline(ctx context.Context, tag, sinceID string, limit int) ([]Status, error)
	// Favourite favourites a status (the "request seen" signal).
	Favourite(ctx context.Context, id string) error
	// Me returns the bot's own account id.
	Me(ctx context.Context) (Account, error)
}

// Archiver is the archival-service collaborator.
type Archiver interface {
	// ExistingSnapshot returns the snapshot URL for url when the service
	// already holds one, or "" when it does not.
	ExistingSnapshot(ctx context.Context, url string) (string, error)
	// Capture asks the service to take a fresh snapshot and returns its
	// permanent URL. It fails when the target refuses or times out.
	Capture(ctx context.Context, url string) (string, error)
}

// PageFetcher retrieves the body of an archived page for verification.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RequestStore persists standalone mention requests.
type RequestStore interface {
	// Upsert inserts or updates one request, assigning ID when empty.
	Upsert(ctx context.Context, item *RequestItem) error
	// All returns every stored request.
	All(ctx context.Context) ([]RequestItem, error)
	// Pending returns requests in StatePending.
	Pending(ctx context.Context) ([]RequestItem, error)
	// ReadyForReply returns requests whose state awaits a reply.
	ReadyForReply(ctx context.Context) ([]RequestItem, error)
	// DeleteOlderThan removes requests in any of the given states created
	// before cutoff, returning how many went away.
	DeleteOlderThan(ctx context.Context, states []State, cutoff time.Time) (int64, error)
}

// HashtagStore persists hashtag tracking records. It is a separate
// collection from RequestStore on purpose.
type HashtagStore interface {
	Upsert(ctx context.Context, item *HashtagItem) error
	All(ctx context.Context) ([]HashtagItem, error)
	// Get loads one tag's record; ok is false when the tag is unknown.
	Get(ctx context.Context, tag string) (HashtagItem, bool, error)
	// DeleteItemsOlderThan removes embedded requests in any of the given
	// states created before cutoff, across all tags.
	DeleteItemsOlderThan(ctx context.Context, states []State, cutoff time.Time) (int64, error)
}

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints record identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
