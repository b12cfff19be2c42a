// Package config loads and validates bot configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fediarchive/archivebot/internal/archive"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	DB        DBConfig        `mapstructure:"db"`
	Mastodon  MastodonConfig  `mapstructure:"mastodon"`
	Wayback   WaybackConfig   `mapstructure:"wayback"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Retention RetentionConfig `mapstructure:"retention"`
	Timers    TimersConfig    `mapstructure:"timers"`
}

// ServerConfig controls the diagnostic HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to Postgres. An empty DSN switches the bot to
// in-memory stores, which only makes sense for local runs.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// MastodonConfig holds instance credentials for the messaging client.
type MastodonConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	AccessToken    string `mapstructure:"access_token"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// WaybackConfig points at the archival service endpoints.
type WaybackConfig struct {
	AvailabilityURL string  `mapstructure:"availability_url"`
	SaveURL         string  `mapstructure:"save_url"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	RateRPS         float64 `mapstructure:"rate_rps"`
	RateBurst       int     `mapstructure:"rate_burst"`
}

// EngineConfig governs the request lifecycle engine.
type EngineConfig struct {
	Hashtags              []string       `mapstructure:"hashtags"`
	Sites                 []archive.Site `mapstructure:"sites"`
	MaxRetries            int            `mapstructure:"max_retries"`
	SubmitConcurrency     int            `mapstructure:"submit_concurrency"`
	ReplyChainDepth       int            `mapstructure:"reply_chain_depth"`
	RunningReclaimMinutes int            `mapstructure:"running_reclaim_minutes"`
}

// RunningReclaimAfter returns the age at which stranded Running requests
// are put back to Pending; zero disables reclaiming.
func (e EngineConfig) RunningReclaimAfter() time.Duration {
	return time.Duration(e.RunningReclaimMinutes) * time.Minute
}

// RetentionConfig sets the per-outcome purge windows. IncludeUnfinished
// restores the upstream sweep of Pending/Running requests alongside the
// success family; it defaults to off because it can delete work in flight.
type RetentionConfig struct {
	SuccessDays       int  `mapstructure:"success_days"`
	FailureDays       int  `mapstructure:"failure_days"`
	IncludeUnfinished bool `mapstructure:"include_unfinished"`
}

// TimerConfig schedules one pass: an initial delay, then a repeat interval.
type TimerConfig struct {
	DelaySeconds    int `mapstructure:"delay_seconds"`
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// Delay returns the initial delay as a duration.
func (t TimerConfig) Delay() time.Duration {
	return time.Duration(t.DelaySeconds) * time.Second
}

// Interval returns the repeat interval as a duration.
func (t TimerConfig) Interval() time.Duration {
	return time.Duration(t.IntervalSeconds) * time.Second
}

// TimersConfig carries the schedule for every pass.
type TimersConfig struct {
	Notifications TimerConfig `mapstructure:"notifications"`
	Submit        TimerConfig `mapstructure:"submit"`
	Reply         TimerConfig `mapstructure:"reply"`
	Cleanup       TimerConfig `mapstructure:"cleanup"`
	Hashtag       TimerConfig `mapstructure:"hashtag"`
	Recheck       TimerConfig `mapstructure:"recheck"`
	Watchdog      TimerConfig `mapstructure:"watchdog"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("mastodon.user_agent", "archivebot/0.1")
	v.SetDefault("mastodon.timeout_seconds", 30)
	v.SetDefault("wayback.availability_url", "https://archive.org/wayback/available")
	v.SetDefault("wayback.save_url", "https://web.archive.org/save")
	v.SetDefault("wayback.timeout_seconds", 120)
	v.SetDefault("wayback.rate_rps", 0.5)
	v.SetDefault("wayback.rate_burst", 2)
	v.SetDefault("engine.max_retries", 5)
	v.SetDefault("engine.submit_concurrency", 8)
	v.SetDefault("engine.reply_chain_depth", 10)
	v.SetDefault("engine.running_reclaim_minutes", 120)
	v.SetDefault("retention.success_days", 30)
	v.SetDefault("retention.failure_days", 7)
	v.SetDefault("retention.include_unfinished", false)
	v.SetDefault("timers.notifications.interval_seconds", 120)
	v.SetDefault("timers.submit.delay_seconds", 60)
	v.SetDefault("timers.submit.interval_seconds", 120)
	v.SetDefault("timers.reply.interval_seconds", 300)
	v.SetDefault("timers.cleanup.interval_seconds", 86400)
	v.SetDefault("timers.hashtag.interval_seconds", 60)
	v.SetDefault("timers.recheck.delay_seconds", 300)
	v.SetDefault("timers.recheck.interval_seconds", 1800)
	v.SetDefault("timers.watchdog.delay_seconds", 60)
	v.SetDefault("timers.watchdog.interval_seconds", 3600)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Mastodon.BaseURL == "" {
		return fmt.Errorf("mastodon.base_url is required")
	}
	if c.Mastodon.AccessToken == "" {
		return fmt.Errorf("mastodon.access_token is required")
	}
	if c.Engine.MaxRetries <= 0 {
		return fmt.Errorf("engine.max_retries must be > 0")
	}
	if c.Engine.SubmitConcurrency <= 0 {
		return fmt.Errorf("engine.submit_concurrency must be > 0")
	}
	if c.Retention.SuccessDays <= 0 || c.Retention.FailureDays <= 0 {
		return fmt.Errorf("retention.success_days and retention.failure_days must be > 0")
	}
	for i, site := range c.Engine.Sites {
		if site.Domain == "" {
			return fmt.Errorf("engine.sites[%d].domain is required", i)
		}
	}
	// A non-positive interval would blow up the ticker driving the pass.
	timers := []struct {
		name  string
		timer TimerConfig
	}{
		{"notifications", c.Timers.Notifications},
		{"submit", c.Timers.Submit},
		{"reply", c.Timers.Reply},
		{"cleanup", c.Timers.Cleanup},
		{"hashtag", c.Timers.Hashtag},
		{"recheck", c.Timers.Recheck},
		{"watchdog", c.Timers.Watchdog},
	}
	for _, t := range timers {
		if t.timer.IntervalSeconds <= 0 {
			return fmt.Errorf("timers.%s.interval_seconds must be > 0", t.name)
		}
		if t.timer.DelaySeconds < 0 {
			return fmt.Errorf("timers.%s.delay_seconds must be >= 0", t.name)
		}
	}
	return nil
}
