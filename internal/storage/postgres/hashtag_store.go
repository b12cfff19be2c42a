package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fediarchive/archivebot/internal/archive"
)

// HashtagStore implements archive.HashtagStore on the hashtag_requests
// table. A tag's record is the set of its rows ordered by discovery (seq),
// so upserting a HashtagItem upserts its embedded requests.
type HashtagStore struct {
	db  DB
	ids archive.IDGenerator
}

// NewHashtagStore creates a HashtagStore over an existing pool.
func NewHashtagStore(db DB, ids archive.IDGenerator) (*HashtagStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	return &HashtagStore{db: db, ids: ids}, nil
}

// Upsert writes every embedded request of one tag.
func (s *HashtagStore) Upsert(ctx context.Context, item *archive.HashtagItem) error {
	if item.Tag == "" {
		return fmt.Errorf("hashtag tag is required")
	}
	query := `
INSERT INTO hashtag_requests (` + requestColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
	url = EXCLUDED.url,
	archive_url = EXCLUDED.archive_url,
	response_id = EXCLUDED.response_id,
	site = EXCLUDED.site,
	state = EXCLUDED.state,
	previous_state = EXCLUDED.previous_state,
	error_count = EXCLUDED.error_count,
	visibility = EXCLUDED.visibility,
	updated_at = EXCLUDED.updated_at`
	for i := range item.Items {
		req := &item.Items[i]
		req.Tag = item.Tag
		if req.ID == "" {
			id, err := s.ids.NewID()
			if err != nil {
				return fmt.Errorf("assign hashtag request id: %w", err)
			}
			req.ID = id
		}
		siteJSON, err := marshalSite(req.Site)
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(ctx, query,
			req.ID,
			req.SourceID,
			req.RequestedBy,
			req.Tag,
			req.URL,
			req.ArchiveURL,
			req.ResponseID,
			siteJSON,
			string(req.State),
			string(req.PreviousState),
			req.ErrorCount,
			req.Visibility,
			req.CreatedAt,
			req.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert hashtag request %s: %w", req.ID, err)
		}
	}
	return nil
}

// All returns every tag's record, embedded requests in discovery order.
func (s *HashtagStore) All(ctx context.Context) ([]archive.HashtagItem, error) {
	query := `SELECT ` + requestColumns + ` FROM hashtag_requests ORDER BY tag, seq`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query hashtag requests: %w", err)
	}
	requests, err := collectRequests(rows)
	if err != nil {
		return nil, err
	}

	var items []archive.HashtagItem
	byTag := make(map[string]int)
	for _, req := range requests {
		idx, ok := byTag[req.Tag]
		if !ok {
			items = append(items, archive.HashtagItem{Tag: req.Tag})
			idx = len(items) - 1
			byTag[req.Tag] = idx
		}
		items[idx].Items = append(items[idx].Items, req)
	}
	return items, nil
}

// Get loads one tag's record.
func (s *HashtagStore) Get(ctx context.Context, tag string) (archive.HashtagItem, bool, error) {
	query := `SELECT ` + requestColumns + ` FROM hashtag_requests WHERE tag = $1 ORDER BY seq`
	rows, err := s.db.Query(ctx, query, tag)
	if err != nil {
		return archive.HashtagItem{}, false, fmt.Errorf("query hashtag %q: %w", tag, err)
	}
	requests, err := collectRequests(rows)
	if err != nil {
		return archive.HashtagItem{}, false, err
	}
	if len(requests) == 0 {
		return archive.HashtagItem{}, false, nil
	}
	return archive.HashtagItem{Tag: tag, Items: requests}, true, nil
}

// DeleteItemsOlderThan removes embedded requests in the given states
// created before cutoff, across all tags.
func (s *HashtagStore) DeleteItemsOlderThan(ctx context.Context, states []archive.State, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM hashtag_requests WHERE state = ANY($1) AND created_at < $2`,
		stateStrings(states), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old hashtag requests: %w", err)
	}
	return tag.RowsAffected(), nil
}
