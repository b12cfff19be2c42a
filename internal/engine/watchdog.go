package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fediarchive/archivebot/internal/archive"
)

// StatsWindow counts requests by state inside one reporting window.
// A nil Since means all time.
type StatsWindow struct {
	Label           string         `json:"label"`
	Since           *time.Time     `json:"since,omitempty"`
	Requests        map[string]int `json:"requests_by_state"`
	HashtagRequests map[string]int `json:"hashtag_requests_by_state"`
}

// Stats is the watchdog snapshot, logged periodically and served on the
// diagnostic endpoint.
type Stats struct {
	GeneratedAt          time.Time            `json:"generated_at"`
	TaskRuns             map[string]time.Time `json:"task_runs,omitempty"`
	TotalRequests        int                  `json:"total_requests"`
	TotalHashtags        int                  `json:"total_hashtags"`
	TotalHashtagRequests int                  `json:"total_hashtag_requests"`
	Windows              []StatsWindow        `json:"windows"`
}

// Stats assembles the current snapshot.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	standalone, err := e.requests.All(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("engine: load requests for stats: %w", err)
	}
	tags, err := e.hashtags.All(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("engine: load hashtag records for stats: %w", err)
	}
	var tagged []archive.RequestItem
	for _, tag := range tags {
		tagged = append(tagged, tag.Items...)
	}

	now := e.clock.Now()
	e.mu.Lock()
	lastRun := e.lastWatchdog
	runsFn := e.taskRuns
	e.mu.Unlock()

	stats := Stats{
		GeneratedAt:          now,
		TotalRequests:        len(standalone),
		TotalHashtags:        len(tags),
		TotalHashtagRequests: len(tagged),
	}
	if runsFn != nil {
		stats.TaskRuns = runsFn()
	}

	windows := []struct {
		label string
		since *time.Time
	}{
		{"all_time", nil},
		{"last_30d", ptrTime(now.AddDate(0, 0, -30))},
		{"last_7d", ptrTime(now.AddDate(0, 0, -7))},
		{"last_1d", ptrTime(now.AddDate(0, 0, -1))},
	}
	if !lastRun.IsZero() {
		windows = append(windows, struct {
			label string
			since *time.Time
		}{"since_last_watchdog", ptrTime(lastRun)})
	}
	for _, w := range windows {
		stats.Windows = append(stats.Windows, StatsWindow{
			Label:           w.label,
			Since:           w.since,
			Requests:        countByState(standalone, w.since),
			HashtagRequests: countByState(tagged, w.since),
		})
	}
	return stats, nil
}

// WatchdogPass logs the snapshot and remembers its run time so the next
// snapshot can report a delta window.
func (e *Engine) WatchdogPass(ctx context.Context) error {
	stats, err := e.Stats(ctx)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.Int("total_requests", stats.TotalRequests),
		zap.Int("total_hashtags", stats.TotalHashtags),
		zap.Int("total_hashtag_requests", stats.TotalHashtagRequests),
	}
	for _, w := range stats.Windows {
		fields = append(fields,
			zap.Any("requests_"+w.Label, w.Requests),
			zap.Any("hashtag_requests_"+w.Label, w.HashtagRequests))
	}
	e.log.Info("watchdog stats", fields...)

	e.mu.Lock()
	e.lastWatchdog = stats.GeneratedAt
	e.mu.Unlock()
	return nil
}

// countByState tallies items touched inside the window by state.
func countByState(items []archive.RequestItem, since *time.Time) map[string]int {
	counts := make(map[string]int)
	for _, item := range items {
		if since != nil && item.UpdatedAt.Before(*since) && item.CreatedAt.Before(*since) {
			continue
		}
		counts[string(item.State)]++
	}
	return counts
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
