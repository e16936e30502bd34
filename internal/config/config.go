// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Retries int           `mapstructure:"retries"`
	Proxies []string      `mapstructure:"proxies"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Report  ReportConfig  `mapstructure:"report"`
}

// CrawlConfig governs link discovery.
type CrawlConfig struct {
	AllowExternalLinks    bool    `mapstructure:"allow_external_links"`
	MaxWorkers            int     `mapstructure:"max_workers"`
	MinDelay              float64 `mapstructure:"min_delay"`
	MaxDelay              float64 `mapstructure:"max_delay"`
	MaxRuntime            float64 `mapstructure:"max_runtime"`
	SafetySwitch          bool    `mapstructure:"safety_switch"`
	RestrictSideways      bool    `mapstructure:"restrict_sideways"`
	RestrictBackwards     bool    `mapstructure:"restrict_backwards"`
	HeadlessEnabled       bool    `mapstructure:"headless_enabled"`
	HeadlessMaxParallel   int     `mapstructure:"headless_max_parallel"`
	PerDomainRPS          float64 `mapstructure:"per_domain_rps"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
}

// ArchiveConfig governs Wayback submissions.
type ArchiveConfig struct {
	TimeoutSeconds          int     `mapstructure:"timeout_seconds"`
	CooldownDays            int     `mapstructure:"cooldown_days"`
	DefaultAction           string  `mapstructure:"default_action"`
	MaxWorkers              int     `mapstructure:"max_workers"`
	MaxRuntime              float64 `mapstructure:"max_runtime"`
	URLsPerMinute           int     `mapstructure:"urls_per_minute"`
	RateLimitPenaltySeconds int     `mapstructure:"rate_limit_penalty_seconds"`
	DropQueuedOnDomainSkip  bool    `mapstructure:"drop_queued_on_domain_skip"`
	Endpoint                string  `mapstructure:"endpoint"`
	CDXEndpoint             string  `mapstructure:"cdx_endpoint"`
	AccessKey               string  `mapstructure:"access_key"`
	SecretKey               string  `mapstructure:"secret_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls the optional control API.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LedgerConfig points the archive ledger at Postgres. An empty DSN disables it.
type LedgerConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig holds metadata for progress notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
	// RunEventsOnly limits publishing to run start and finish events.
	RunEventsOnly bool `mapstructure:"run_events_only"`
}

// ReportConfig selects where the run summary is written.
type ReportConfig struct {
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// Load builds a Config from disk/environment. With an empty path it looks for
// wayback.{yaml,json,toml} in the working directory and $HOME/.wayback-crawler.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WAYBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("wayback")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.wayback-crawler")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("crawl.allow_external_links", false)
	v.SetDefault("crawl.max_workers", 10)
	v.SetDefault("crawl.min_delay", 0.0)
	v.SetDefault("crawl.max_delay", 5.0)
	v.SetDefault("crawl.max_runtime", 0.0)
	v.SetDefault("crawl.safety_switch", false)
	v.SetDefault("crawl.restrict_sideways", false)
	v.SetDefault("crawl.restrict_backwards", true)
	v.SetDefault("crawl.headless_enabled", true)
	v.SetDefault("crawl.headless_max_parallel", 2)
	v.SetDefault("crawl.per_domain_rps", 0.0)
	v.SetDefault("crawl.request_timeout_seconds", 30)
	v.SetDefault("archive.timeout_seconds", 1200)
	v.SetDefault("archive.cooldown_days", 90)
	v.SetDefault("archive.default_action", "N")
	v.SetDefault("archive.max_workers", 1)
	v.SetDefault("archive.max_runtime", 0.0)
	v.SetDefault("archive.urls_per_minute", 15)
	v.SetDefault("archive.rate_limit_penalty_seconds", 60)
	v.SetDefault("archive.drop_queued_on_domain_skip", false)
	v.SetDefault("archive.endpoint", "https://web.archive.org/save/")
	v.SetDefault("archive.cdx_endpoint", "https://web.archive.org/cdx/search/cdx")
	v.SetDefault("retries", 5)
	v.SetDefault("proxies", []string{})
	v.SetDefault("logging.development", true)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("ledger.table", "archive_ledger")
	v.SetDefault("pubsub.run_events_only", true)
}

// Validate enforces required values and reasonable limits. The archive action
// is deliberately not checked here; an unknown value falls back to normal.
func (c Config) Validate() error {
	if c.Crawl.MaxWorkers < 0 {
		return fmt.Errorf("crawl.max_workers must be >= 0")
	}
	if c.Archive.MaxWorkers < 0 {
		return fmt.Errorf("archive.max_workers must be >= 0")
	}
	if c.Crawl.MinDelay < 0 || c.Crawl.MaxDelay < c.Crawl.MinDelay {
		return fmt.Errorf("crawl.min_delay must be >= 0 and <= crawl.max_delay")
	}
	if c.Crawl.MaxRuntime < 0 || c.Archive.MaxRuntime < 0 {
		return fmt.Errorf("max_runtime must be >= 0")
	}
	if c.Retries <= 0 {
		return fmt.Errorf("retries must be > 0")
	}
	if c.Archive.URLsPerMinute <= 0 {
		return fmt.Errorf("archive.urls_per_minute must be > 0")
	}
	if c.Archive.TimeoutSeconds <= 0 {
		return fmt.Errorf("archive.timeout_seconds must be > 0")
	}
	if c.Archive.CooldownDays < 0 {
		return fmt.Errorf("archive.cooldown_days must be >= 0")
	}
	if c.Archive.RateLimitPenaltySeconds < 0 {
		return fmt.Errorf("archive.rate_limit_penalty_seconds must be >= 0")
	}
	if c.Archive.Endpoint == "" || c.Archive.CDXEndpoint == "" {
		return fmt.Errorf("archive.endpoint and archive.cdx_endpoint must be set")
	}
	if (c.Archive.AccessKey == "") != (c.Archive.SecretKey == "") {
		return fmt.Errorf("archive.access_key and archive.secret_key must be set together")
	}
	if c.Crawl.PerDomainRPS < 0 {
		return fmt.Errorf("crawl.per_domain_rps must be >= 0")
	}
	if c.Crawl.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.request_timeout_seconds must be > 0")
	}
	if c.Crawl.HeadlessEnabled && c.Crawl.HeadlessMaxParallel <= 0 {
		return fmt.Errorf("crawl.headless_max_parallel must be > 0 when headless is enabled")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.Topic == "" {
		return fmt.Errorf("pubsub.topic must be set when pubsub.project_id is set")
	}
	return nil
}

// CrawlWorkers resolves the crawl pool size: 4 when unset, never more than 4,
// and 1 under the safety switch.
func (c Config) CrawlWorkers() int {
	if c.Crawl.SafetySwitch {
		return 1
	}
	return capWorkers(c.Crawl.MaxWorkers, 4)
}

// ArchiveWorkers resolves the archive pool size: 2 when unset, never more than 2.
func (c Config) ArchiveWorkers() int {
	return capWorkers(c.Archive.MaxWorkers, 2)
}

func capWorkers(n, ceiling int) int {
	if n <= 0 || n > ceiling {
		return ceiling
	}
	return n
}

// LinkSearchDelay returns the per-page headless delay window. The safety
// switch widens it to 12-15 seconds.
func (c Config) LinkSearchDelay() (time.Duration, time.Duration) {
	if c.Crawl.SafetySwitch {
		return 12 * time.Second, 15 * time.Second
	}
	return seconds(c.Crawl.MinDelay), seconds(c.Crawl.MaxDelay)
}

// CrawlBudget is the crawl phase time budget; zero disables it.
func (c Config) CrawlBudget() time.Duration {
	return seconds(c.Crawl.MaxRuntime)
}

// ArchiveBudget is the archive phase time budget; zero disables it.
func (c Config) ArchiveBudget() time.Duration {
	return seconds(c.Archive.MaxRuntime)
}

// SaveTimeout caps a single save attempt at five minutes.
func (c Config) SaveTimeout() time.Duration {
	d := time.Duration(c.Archive.TimeoutSeconds) * time.Second
	if d > 300*time.Second {
		return 300 * time.Second
	}
	return d
}

// MinArchiveInterval spaces archive starts to honor urls_per_minute.
func (c Config) MinArchiveInterval() time.Duration {
	if c.Archive.URLsPerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(c.Archive.URLsPerMinute)
}

// ArchiveCooldown is how recent a snapshot must be to skip a save.
func (c Config) ArchiveCooldown() time.Duration {
	return time.Duration(c.Archive.CooldownDays) * 24 * time.Hour
}

// RateLimitPenalty is the global cooldown applied after a rate-limit rejection.
func (c Config) RateLimitPenalty() time.Duration {
	return time.Duration(c.Archive.RateLimitPenaltySeconds) * time.Second
}

// RequestTimeout bounds a single page fetch.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawl.RequestTimeoutSeconds) * time.Second
}

func seconds(s float64) time.Duration {
	if s <= 0 || math.IsNaN(s) {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
