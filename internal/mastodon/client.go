// Package mastodon implements archive.Messenger against the Mastodon
// REST API using bearer-token authentication.
package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fediarchive/archivebot/internal/archive"
	"github.com/fediarchive/archivebot/internal/config"
)

const defaultTimeout = 30 * time.Second

// Client talks to a single Mastodon instance on behalf of the bot
// account identified by the access token.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *http.Client
}

var _ archive.Messenger = (*Client)(nil)

// New builds a Client from instance configuration.
func New(cfg config.MastodonConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("mastodon: base_url is required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("mastodon: access_token is required")
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		token:     cfg.AccessToken,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// Notifications fetches all unread notifications for the bot account.
func (c *Client) Notifications(ctx context.Context) ([]archive.Notification, error) {
	var raw []apiNotification
	if err := c.do(ctx, http.MethodGet, "/api/v1/notifications", nil, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]archive.Notification, 0, len(raw))
	for _, n := range raw {
		out = append(out, n.toDomain())
	}
	return out, nil
}

// ClearNotifications marks every notification as read.
func (c *Client) ClearNotifications(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/notifications/clear", nil, nil, nil)
}

// PostReply posts text in reply to inReplyTo, or edits an existing
// status in place when editID is non-empty.
func (c *Client) PostReply(ctx context.Context, text, inReplyTo, editID, visibility string) (string, error) {
	body := postStatusRequest{Status: text, InReplyToID: inReplyTo, Visibility: visibility}

	method := http.MethodPost
	path := "/api/v1/statuses"
	if editID != "" {
		method = http.MethodPut
		path = "/api/v1/statuses/" + url.PathEscape(editID)
	}

	var posted apiStatus
	if err := c.do(ctx, method, path, nil, body, &posted); err != nil {
		return "", err
	}
	return posted.ID, nil
}

// Status loads one status by id.
func (c *Client) Status(ctx context.Context, id string) (archive.Status, error) {
	var raw apiStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/statuses/"+url.PathEscape(id), nil, nil, &raw); err != nil {
		return archive.Status{}, err
	}
	return raw.toDomain(), nil
}

// TagTimeline lists statuses tagged with tag, oldest first as returned
// by the instance, optionally only those newer than sinceID.
func (c *Client) TagTimeline(ctx context.Context, tag, sinceID string, limit int) ([]archive.Status, error) {
	query := url.Values{}
	if sinceID != "" {
		query.Set("since_id", sinceID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var raw []apiStatus
	path := "/api/v1/timelines/tag/" + url.PathEscape(tag)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]archive.Status, 0, len(raw))
	for i := range raw {
		out = append(out, raw[i].toDomain())
	}
	return out, nil
}

// Favourite favourites a status.
func (c *Client) Favourite(ctx context.Context, id string) error {
	path := "/api/v1/statuses/" + url.PathEscape(id) + "/favourite"
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// Me returns the account behind the access token.
func (c *Client) Me(ctx context.Context) (archive.Account, error) {
	var raw apiAccount
	if err := c.do(ctx, http.MethodGet, "/api/v1/accounts/verify_credentials", nil, nil, &raw); err != nil {
		return archive.Account{}, err
	}
	return raw.toDomain(), nil
}

// do executes one API call, encoding body as JSON when present and
// decoding the response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("mastodon: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("mastodon: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mastodon: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mastodon: %s %s: unexpected status %d: %s", method, path, resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mastodon: decode %s %s: %w", method, path, err)
	}
	return nil
}
