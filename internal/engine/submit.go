package engine

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fediarchive/archivebot/internal/archive"
	"github.com/fediarchive/archivebot/internal/metrics"
)

// saveFunc persists one item mid-batch. Standalone and hashtag flows
// persist through different stores, so the batch takes it as a hook.
type saveFunc func(ctx context.Context, item *archive.RequestItem) error

// submission is one fan-out result, joined back by the source id.
type submission struct {
	sourceID   string
	archiveURL string
	err        error
}

// SubmitPass reclaims stranded Running items, reconciles the pending
// standalone batch against the corpus and submits the remainder.
func (e *Engine) SubmitPass(ctx context.Context) error {
	if err := e.reclaimRunning(ctx); err != nil {
		return err
	}

	pending, err := e.requests.Pending(ctx)
	if err != nil {
		return fmt.Errorf("engine: load pending requests: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	corpus, err := e.corpus(ctx)
	if err != nil {
		return fmt.Errorf("engine: load corpus: %w", err)
	}

	batch := make([]*archive.RequestItem, len(pending))
	for i := range pending {
		batch[i] = &pending[i]
	}
	if filled := Reconcile(batch, corpus); filled > 0 {
		e.log.Info("reconciled requests from corpus", zap.Int("count", filled))
	}
	for _, item := range batch {
		if item.State == archive.StateSuccess {
			metrics.ObserveSubmission("dedup")
			if err := e.saveRequest(ctx, item); err != nil {
				return err
			}
		}
	}

	return e.submitBatch(ctx, batch, e.saveRequest)
}

// reclaimRunning flips Running items older than the reclaim window back
// to Pending so a crashed batch is eventually retried.
func (e *Engine) reclaimRunning(ctx context.Context) error {
	if e.cfg.RunningReclaimAfter <= 0 {
		return nil
	}
	all, err := e.requests.All(ctx)
	if err != nil {
		return fmt.Errorf("engine: load requests for reclaim: %w", err)
	}
	cutoff := e.clock.Now().Add(-e.cfg.RunningReclaimAfter)
	for i := range all {
		item := &all[i]
		if item.State != archive.StateRunning || item.UpdatedAt.After(cutoff) {
			continue
		}
		e.log.Warn("reclaiming stranded running request",
			zap.String("id", item.ID), zap.String("url", item.URL))
		if e.transition(item, archive.StatePending) {
			if err := e.saveRequest(ctx, item); err != nil {
				return err
			}
		}
	}
	return nil
}

// submitBatch marks pending items Running, fans out archival calls with
// a bounded concurrency limit, waits for the whole batch and joins the
// responses back by source id.
func (e *Engine) submitBatch(ctx context.Context, items []*archive.RequestItem, save saveFunc) error {
	var inFlight []*archive.RequestItem
	for _, item := range items {
		if item.State != archive.StatePending {
			continue
		}
		if item.URL == "" {
			e.transition(item, archive.StateInvalidURL)
			if err := save(ctx, item); err != nil {
				return err
			}
			continue
		}
		if !e.transition(item, archive.StateRunning) {
			continue
		}
		if err := save(ctx, item); err != nil {
			return err
		}
		inFlight = append(inFlight, item)
	}
	if len(inFlight) == 0 {
		return nil
	}

	e.log.Info("submitting batch to archive", zap.Int("count", len(inFlight)))
	results := make([]submission, len(inFlight))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.SubmitConcurrency)
	for i, item := range inFlight {
		group.Go(func() error {
			metrics.IncSubmissionsInFlight()
			defer metrics.DecSubmissionsInFlight()
			archiveURL, err := e.archiveURL(gctx, item.URL)
			results[i] = submission{sourceID: item.SourceID, archiveURL: archiveURL, err: err}
			return nil
		})
	}
	// Workers never return errors; failures travel in the results.
	_ = group.Wait()

	bySource := make(map[string]*archive.RequestItem, len(inFlight))
	for _, item := range inFlight {
		bySource[item.SourceID] = item
	}
	for _, res := range results {
		item, ok := bySource[res.sourceID]
		if !ok {
			e.log.Warn("dropping response with no matching request",
				zap.String("source_id", res.sourceID))
			continue
		}
		if res.err != nil {
			e.log.Warn("archival submission failed",
				zap.String("url", item.URL), zap.Error(res.err))
			item.ErrorCount++
			e.transition(item, archive.StateError)
			metrics.ObserveSubmission("error")
		} else {
			item.ArchiveURL = res.archiveURL
			e.transition(item, archive.StateSuccess)
			metrics.ObserveSubmission("success")
			e.log.Info("archived url",
				zap.String("url", item.URL), zap.String("archive_url", item.ArchiveURL))
		}
		if err := save(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// archiveURL resolves a permanent snapshot for target, preferring an
// existing snapshot over a fresh capture.
func (e *Engine) archiveURL(ctx context.Context, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("engine: invalid url %q", target)
	}
	existing, err := e.archiver.ExistingSnapshot(ctx, target)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}
	return e.archiver.Capture(ctx, target)
}
