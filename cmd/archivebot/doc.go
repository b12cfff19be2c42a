// Package main hosts the archive bot entrypoint.
//
// Architecture overview:
//   - Lifecycle engine: internal/engine drives every request through the
//     Pending/Running/Success/Error state machine. Mentions and watched
//     hashtags produce requests; reconciliation fills in URLs already
//     archived before, the submission batch fans out to the Wayback
//     Machine with a bounded concurrency cap, and verification re-reads
//     archived pages for paywall markers before any reply goes out.
//   - Scheduler: internal/scheduler runs one goroutine per pass
//     (notifications, submit, reply, cleanup, hashtag, recheck,
//     watchdog). A pass never overlaps itself; panics are recovered at
//     the pass boundary so a bad tick cannot take the process down.
//   - Collaborators: internal/mastodon talks to the instance REST API,
//     internal/wayback to the availability and Save Page Now endpoints
//     (paced by a per-host token bucket), and the colly-based fetcher
//     retrieves archived pages for verification.
//   - Persistence: pgx-backed stores hold standalone requests and
//     hashtag tracking records in separate tables; an empty db.dsn
//     switches to in-memory stores for local runs.
//   - Configuration & plumbing: Viper populates config from env/files
//     with the ARCHIVEBOT_ prefix; zap provides structured logging;
//     Prometheus metrics are served on /metrics next to /healthz,
//     /readyz and the watchdog snapshot on /statsz.
//
// Operational notes:
//   - Shutdown is coordinated through context cancellation: SIGTERM
//     stops the scheduler between ticks and drains the HTTP server; an
//     in-flight submission batch runs to completion first.
//   - Requests stuck in Running after a crash are reclaimed to Pending
//     once they exceed engine.running_reclaim_minutes.
//   - Run locally: go run ./cmd/archivebot -config config.yaml (or rely
//     solely on ARCHIVEBOT_* env overrides).
package main
