// Package wayback implements archive.Archiver against the Internet
// Archive's Wayback Machine availability and save endpoints.
package wayback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fediarchive/archivebot/internal/archive"
	"github.com/fediarchive/archivebot/internal/config"
	"github.com/fediarchive/archivebot/internal/policy/ratelimit"
)

const defaultTimeout = 120 * time.Second

// Client submits capture requests and checks snapshot availability.
// All outbound calls go through the shared per-host rate limiter, the
// Wayback Machine throttles aggressively otherwise.
type Client struct {
	availabilityURL string
	saveURL         string
	userAgent       string
	limiter         *ratelimit.Limiter
	http            *http.Client
}

var _ archive.Archiver = (*Client)(nil)

// New builds a Client. limiter may not be nil.
func New(cfg config.WaybackConfig, userAgent string, limiter *ratelimit.Limiter) (*Client, error) {
	if cfg.AvailabilityURL == "" || cfg.SaveURL == "" {
		return nil, fmt.Errorf("wayback: availability_url and save_url are required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("wayback: rate limiter is required")
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		availabilityURL: cfg.AvailabilityURL,
		saveURL:         strings.TrimRight(cfg.SaveURL, "/"),
		userAgent:       userAgent,
		limiter:         limiter,
		http:            &http.Client{Timeout: timeout},
	}, nil
}

type availabilityResponse struct {
	ArchivedSnapshots struct {
		Closest struct {
			URL       string `json:"url"`
			Available bool   `json:"available"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// ExistingSnapshot returns the closest existing snapshot URL for target,
// or "" when the Wayback Machine has none.
func (c *Client) ExistingSnapshot(ctx context.Context, target string) (string, error) {
	if err := c.limiter.Wait(ctx, c.availabilityURL); err != nil {
		return "", err
	}

	endpoint := c.availabilityURL + "?url=" + url.QueryEscape(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("wayback: build availability request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("wayback: availability %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wayback: availability %s: unexpected status %d", target, resp.StatusCode)
	}

	var payload availabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("wayback: decode availability %s: %w", target, err)
	}
	if !payload.ArchivedSnapshots.Closest.Available {
		return "", nil
	}
	return payload.ArchivedSnapshots.Closest.URL, nil
}

// Capture asks the Wayback Machine to snapshot target and returns the
// permanent snapshot URL taken from the Content-Location header.
func (c *Client) Capture(ctx context.Context, target string) (string, error) {
	if err := c.limiter.Wait(ctx, c.saveURL); err != nil {
		return "", err
	}

	endpoint := c.saveURL + "/" + target
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("wayback: build save request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("wayback: save %s: %w", target, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("wayback: save %s: unexpected status %d", target, resp.StatusCode)
	}

	location := resp.Header.Get("Content-Location")
	if location == "" {
		return "", fmt.Errorf("wayback: save %s: response missing Content-Location", target)
	}
	if strings.HasPrefix(location, "/") {
		base, err := url.Parse(c.saveURL)
		if err != nil {
			return "", fmt.Errorf("wayback: parse save_url: %w", err)
		}
		location = base.Scheme + "://" + base.Host + location
	}
	return location, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}
