// Package engine implements the request lifecycle: reconciliation,
// submission, verification, replies, retention and the diagnostic
// watchdog. Each pass is a method meant to run as a scheduled task.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fediarchive/archivebot/internal/archive"
)

// Config tunes the engine's policies.
type Config struct {
	Hashtags []string
	Sites    []archive.Site

	// MaxRetries bounds how often an errored request is re-driven.
	MaxRetries int
	// SubmitConcurrency caps in-flight archival submissions per batch.
	SubmitConcurrency int
	// ReplyChainDepth caps the parent walk when hunting for a URL.
	ReplyChainDepth int
	// RunningReclaimAfter flips Running items stranded by a crash back
	// to Pending. Zero disables reclaiming.
	RunningReclaimAfter time.Duration

	SuccessRetention  time.Duration
	FailureRetention  time.Duration
	IncludeUnfinished bool
}

// Engine drives request records through their lifecycle using the
// injected collaborators. Methods are safe to run from concurrent
// scheduler tasks; conflicting writes resolve last-writer-wins.
type Engine struct {
	cfg       Config
	requests  archive.RequestStore
	hashtags  archive.HashtagStore
	messenger archive.Messenger
	archiver  archive.Archiver
	fetcher   archive.PageFetcher
	clock     archive.Clock
	log       *zap.Logger

	mu           sync.Mutex
	self         *archive.Account
	lastWatchdog time.Time
	taskRuns     func() map[string]time.Time
}

// New wires an Engine. All collaborators are required.
func New(cfg Config, requests archive.RequestStore, hashtags archive.HashtagStore, messenger archive.Messenger, archiver archive.Archiver, fetcher archive.PageFetcher, clock archive.Clock, log *zap.Logger) (*Engine, error) {
	if requests == nil || hashtags == nil {
		return nil, fmt.Errorf("engine: stores are required")
	}
	if messenger == nil || archiver == nil || fetcher == nil {
		return nil, fmt.Errorf("engine: messenger, archiver and fetcher are required")
	}
	if clock == nil {
		return nil, fmt.Errorf("engine: clock is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.SubmitConcurrency <= 0 {
		cfg.SubmitConcurrency = 8
	}
	if cfg.ReplyChainDepth <= 0 {
		cfg.ReplyChainDepth = 10
	}
	return &Engine{
		cfg:       cfg,
		requests:  requests,
		hashtags:  hashtags,
		messenger: messenger,
		archiver:  archiver,
		fetcher:   fetcher,
		clock:     clock,
		log:       log.Named("engine"),
	}, nil
}

// SetTaskRuns injects the scheduler's last-run lookup for the watchdog.
func (e *Engine) SetTaskRuns(fn func() map[string]time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.taskRuns = fn
}

// me returns the bot's own account, cached after the first lookup.
func (e *Engine) me(ctx context.Context) (archive.Account, error) {
	e.mu.Lock()
	if e.self != nil {
		account := *e.self
		e.mu.Unlock()
		return account, nil
	}
	e.mu.Unlock()

	account, err := e.messenger.Me(ctx)
	if err != nil {
		return archive.Account{}, fmt.Errorf("engine: resolve own account: %w", err)
	}
	e.mu.Lock()
	e.self = &account
	e.mu.Unlock()
	return account, nil
}

// transition moves item to the next state through the lifecycle table.
// Illegal steps are logged and refused rather than applied.
func (e *Engine) transition(item *archive.RequestItem, to archive.State) bool {
	if item.State == to {
		return true
	}
	if !archive.CanTransition(item.State, to) {
		e.log.Warn("refusing illegal state transition",
			zap.String("id", item.ID),
			zap.String("from", string(item.State)),
			zap.String("to", string(to)))
		return false
	}
	item.PreviousState = item.State
	item.State = to
	item.UpdatedAt = e.clock.Now()
	return true
}

// saveRequest touches and upserts one standalone request.
func (e *Engine) saveRequest(ctx context.Context, item *archive.RequestItem) error {
	now := e.clock.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	return e.requests.Upsert(ctx, item)
}
