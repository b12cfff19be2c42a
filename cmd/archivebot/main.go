// Package main wires together the archive bot binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fediarchive/archivebot/internal/api"
	"github.com/fediarchive/archivebot/internal/archive"
	"github.com/fediarchive/archivebot/internal/clock/system"
	"github.com/fediarchive/archivebot/internal/config"
	"github.com/fediarchive/archivebot/internal/engine"
	collyfetcher "github.com/fediarchive/archivebot/internal/fetcher/colly"
	"github.com/fediarchive/archivebot/internal/id/uuid"
	"github.com/fediarchive/archivebot/internal/logging"
	"github.com/fediarchive/archivebot/internal/mastodon"
	"github.com/fediarchive/archivebot/internal/metrics"
	"github.com/fediarchive/archivebot/internal/policy/ratelimit"
	"github.com/fediarchive/archivebot/internal/scheduler"
	memoryStorage "github.com/fediarchive/archivebot/internal/storage/memory"
	"github.com/fediarchive/archivebot/internal/storage/postgres"
	"github.com/fediarchive/archivebot/internal/wayback"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	var (
		requestStore archive.RequestStore
		hashtagStore archive.HashtagStore
		ready        api.ReadyFunc
	)
	if cfg.DB.DSN != "" {
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			logger.Fatal("postgres connect failed", zap.Error(err))
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("postgres schema failed", zap.Error(err))
		}
		requests, err := postgres.NewRequestStore(pool, idGen)
		if err != nil {
			logger.Fatal("request store init failed", zap.Error(err))
		}
		hashtags, err := postgres.NewHashtagStore(pool, idGen)
		if err != nil {
			logger.Fatal("hashtag store init failed", zap.Error(err))
		}
		requestStore = requests
		hashtagStore = hashtags
		ready = pool.Ping
		logger.Info("using postgres stores")
	} else {
		requestStore = memoryStorage.NewRequestStore()
		hashtagStore = memoryStorage.NewHashtagStore()
		logger.Warn("db.dsn is empty, using in-memory stores")
	}

	messenger, err := mastodon.New(cfg.Mastodon)
	if err != nil {
		logger.Fatal("mastodon client init failed", zap.Error(err))
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Wayback.RateRPS,
		DefaultBurst: cfg.Wayback.RateBurst,
	})
	archiver, err := wayback.New(cfg.Wayback, cfg.Mastodon.UserAgent, limiter)
	if err != nil {
		logger.Fatal("wayback client init failed", zap.Error(err))
	}
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Mastodon.UserAgent,
		Timeout:   time.Duration(cfg.Wayback.TimeoutSeconds) * time.Second,
	})

	eng, err := engine.New(engine.Config{
		Hashtags:            cfg.Engine.Hashtags,
		Sites:               cfg.Engine.Sites,
		MaxRetries:          cfg.Engine.MaxRetries,
		SubmitConcurrency:   cfg.Engine.SubmitConcurrency,
		ReplyChainDepth:     cfg.Engine.ReplyChainDepth,
		RunningReclaimAfter: cfg.Engine.RunningReclaimAfter(),
		SuccessRetention:    time.Duration(cfg.Retention.SuccessDays) * 24 * time.Hour,
		FailureRetention:    time.Duration(cfg.Retention.FailureDays) * 24 * time.Hour,
		IncludeUnfinished:   cfg.Retention.IncludeUnfinished,
	}, requestStore, hashtagStore, messenger, archiver, fetcher, clock, logger)
	if err != nil {
		logger.Fatal("engine init failed", zap.Error(err))
	}

	sched := scheduler.New(logger)
	for _, task := range []struct {
		name  string
		timer config.TimerConfig
		run   func(context.Context) error
	}{
		{"notifications", cfg.Timers.Notifications, eng.NotificationsPass},
		{"submit", cfg.Timers.Submit, eng.SubmitPass},
		{"reply", cfg.Timers.Reply, eng.ReplyPass},
		{"cleanup", cfg.Timers.Cleanup, eng.CleanupPass},
		{"hashtag", cfg.Timers.Hashtag, eng.HashtagPass},
		{"recheck", cfg.Timers.Recheck, eng.RecheckPass},
		{"watchdog", cfg.Timers.Watchdog, eng.WatchdogPass},
	} {
		sched.Add(scheduler.Task{
			Name:     task.name,
			Delay:    task.timer.Delay(),
			Interval: task.timer.Interval(),
			Run:      task.run,
		})
	}
	eng.SetTaskRuns(sched.Runs)

	apiServer := api.NewServer(eng, ready, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sched.Start(ctx)

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	sched.Wait()
	logger.Info("shutdown complete")
}
