package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fediarchive/archivebot/internal/archive"
)

const requestColumns = `id, source_id, requested_by, tag, url, archive_url,
	response_id, site, state, previous_state, error_count, visibility,
	created_at, updated_at`

// RequestStore implements archive.RequestStore on the requests table.
type RequestStore struct {
	db  DB
	ids archive.IDGenerator
}

// NewRequestStore creates a RequestStore over an existing pool.
func NewRequestStore(db DB, ids archive.IDGenerator) (*RequestStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	return &RequestStore{db: db, ids: ids}, nil
}

// Upsert inserts or updates one request, assigning the ID when empty.
func (s *RequestStore) Upsert(ctx context.Context, item *archive.RequestItem) error {
	if item.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return fmt.Errorf("assign request id: %w", err)
		}
		item.ID = id
	}
	siteJSON, err := marshalSite(item.Site)
	if err != nil {
		return err
	}
	query := `
INSERT INTO requests (` + requestColumns + `)
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
	if _, err := s.db.Exec(ctx, query,
		item.ID,
		item.SourceID,
		item.RequestedBy,
		item.Tag,
		item.URL,
		item.ArchiveURL,
		item.ResponseID,
		siteJSON,
		string(item.State),
		string(item.PreviousState),
		item.ErrorCount,
		item.Visibility,
		item.CreatedAt,
		item.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert request %s: %w", item.ID, err)
	}
	return nil
}

// All returns every stored request in creation order.
func (s *RequestStore) All(ctx context.Context) ([]archive.RequestItem, error) {
	query := `SELECT ` + requestColumns + ` FROM requests ORDER BY created_at`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	return collectRequests(rows)
}

// Pending returns requests awaiting submission.
func (s *RequestStore) Pending(ctx context.Context) ([]archive.RequestItem, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE state = $1 ORDER BY created_at`
	rows, err := s.db.Query(ctx, query, string(archive.StatePending))
	if err != nil {
		return nil, fmt.Errorf("query pending requests: %w", err)
	}
	return collectRequests(rows)
}

// ReadyForReply returns requests whose state still owes a reply.
func (s *RequestStore) ReadyForReply(ctx context.Context) ([]archive.RequestItem, error) {
	states := make([]string, 0, 4)
	for _, st := range archive.States() {
		if st.Replyable() {
			states = append(states, string(st))
		}
	}
	query := `SELECT ` + requestColumns + ` FROM requests WHERE state = ANY($1) ORDER BY created_at`
	rows, err := s.db.Query(ctx, query, states)
	if err != nil {
		return nil, fmt.Errorf("query reply-ready requests: %w", err)
	}
	return collectRequests(rows)
}

// DeleteOlderThan removes requests in the given states created before
// cutoff.
func (s *RequestStore) DeleteOlderThan(ctx context.Context, states []archive.State, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM requests WHERE state = ANY($1) AND created_at < $2`,
		stateStrings(states), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

func stateStrings(states []archive.State) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = string(st)
	}
	return out
}

func marshalSite(site *archive.Site) ([]byte, error) {
	if site == nil {
		return nil, nil
	}
	data, err := json.Marshal(site)
	if err != nil {
		return nil, fmt.Errorf("marshal site: %w", err)
	}
	return data, nil
}

func collectRequests(rows pgx.Rows) ([]archive.RequestItem, error) {
	defer rows.Close()
	var items []archive.RequestItem
	for rows.Next() {
		item, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return items, nil
}

func scanRequest(row pgx.Row) (archive.RequestItem, error) {
	var (
		item          archive.RequestItem
		state         string
		previousState string
		siteJSON      []byte
	)
	if err := row.Scan(
		&item.ID,
		&item.SourceID,
		&item.RequestedBy,
		&item.Tag,
		&item.URL,
		&item.ArchiveURL,
		&item.ResponseID,
		&siteJSON,
		&state,
		&previousState,
		&item.ErrorCount,
		&item.Visibility,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return archive.RequestItem{}, fmt.Errorf("scan request: %w", err)
	}
	item.State = archive.State(state)
	item.PreviousState = archive.State(previousState)
	if len(siteJSON) > 0 {
		var site archive.Site
		if err := json.Unmarshal(siteJSON, &site); err != nil {
			return archive.RequestItem{}, fmt.Errorf("unmarshal site: %w", err)
		}
		item.Site = &site
	}
	return item, nil
}
