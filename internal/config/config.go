// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Pacing    PacingConfig    `mapstructure:"pacing"`
	Renderer  RendererConfig  `mapstructure:"renderer"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the read API HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the Postgres store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// CrawlConfig governs seed discovery and run limits.
type CrawlConfig struct {
	Seeds         []market.SeedConfig `mapstructure:"seeds"`
	TargetedSeeds []market.SeedConfig `mapstructure:"targeted_seeds"`
	PagesPerSeed  int                 `mapstructure:"pages_per_seed"`
	MaxRecords    int                 `mapstructure:"max_records"`
	KnownStreak   int                 `mapstructure:"known_streak"`
	RefreshKnown  bool                `mapstructure:"refresh_known"`
}

// PacingConfig shapes the anti-fingerprinting delay and retry policy.
type PacingConfig struct {
	MinDelay         time.Duration `mapstructure:"min_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	RotateEvery      int           `mapstructure:"rotate_every"`
	BlockedCooldown  time.Duration `mapstructure:"blocked_cooldown"`
	MaxFetchAttempts int           `mapstructure:"max_fetch_attempts"`
}

// RendererConfig configures the probe fetcher and headless browser.
type RendererConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	HeadlessAlways bool          `mapstructure:"headless_always"`
	DomainQPS      float64       `mapstructure:"domain_qps"`
	PromotionBytes int           `mapstructure:"promotion_bytes"`
}

// LifecycleConfig controls sold detection.
type LifecycleConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CARMARKET")
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
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("crawl.pages_per_seed", 10)
	v.SetDefault("crawl.max_records", 200)
	v.SetDefault("crawl.known_streak", 20)
	v.SetDefault("crawl.refresh_known", false)
	v.SetDefault("pacing.min_delay", "3s")
	v.SetDefault("pacing.max_delay", "7s")
	v.SetDefault("pacing.rotate_every", 5)
	v.SetDefault("pacing.blocked_cooldown", "2m")
	v.SetDefault("pacing.max_fetch_attempts", 3)
	v.SetDefault("renderer.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("renderer.fetch_timeout", "25s")
	v.SetDefault("renderer.headless_always", false)
	v.SetDefault("renderer.domain_qps", 0.5)
	v.SetDefault("renderer.promotion_bytes", 2048)
	v.SetDefault("lifecycle.grace_period", "48h")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Violations are
// fatal at startup, before any crawling begins.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.PagesPerSeed < 1 || c.Crawl.PagesPerSeed > 20 {
		return fmt.Errorf("crawl.pages_per_seed must be in [1,20]")
	}
	if c.Crawl.MaxRecords < 50 || c.Crawl.MaxRecords > 500 {
		return fmt.Errorf("crawl.max_records must be in [50,500]")
	}
	if c.Crawl.KnownStreak <= 0 {
		return fmt.Errorf("crawl.known_streak must be > 0")
	}
	if c.Pacing.MinDelay < 0 || c.Pacing.MaxDelay < c.Pacing.MinDelay {
		return fmt.Errorf("pacing delays must satisfy 0 <= min_delay <= max_delay")
	}
	if c.Pacing.RotateEvery <= 0 {
		return fmt.Errorf("pacing.rotate_every must be > 0")
	}
	if c.Pacing.MaxFetchAttempts <= 0 {
		return fmt.Errorf("pacing.max_fetch_attempts must be > 0")
	}
	if c.Renderer.FetchTimeout <= 0 {
		return fmt.Errorf("renderer.fetch_timeout must be > 0")
	}
	if c.Lifecycle.GracePeriod <= 0 {
		return fmt.Errorf("lifecycle.grace_period must be > 0")
	}
	return nil
}
