// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Website WebsiteConfig `mapstructure:"website"`
	LogoDev LogoDevConfig `mapstructure:"logodev"`
	Image   ImageConfig   `mapstructure:"image"`
	Storage StorageConfig `mapstructure:"storage"`
	MetaAPI MetaAPIConfig `mapstructure:"metaapi"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs dispatcher and per-ticker budget behavior.
type CrawlerConfig struct {
	Concurrency      int `mapstructure:"concurrency"`
	QueueDepth       int `mapstructure:"queue_depth"`
	AcquireBudgetSec int `mapstructure:"acquire_budget_seconds"`
}

// WebsiteConfig configures the rendered-page fetcher.
type WebsiteConfig struct {
	BaseURL            string   `mapstructure:"base_url"`
	Selectors          []string `mapstructure:"selectors"`
	MaxAttempts        int      `mapstructure:"max_attempts"`
	BaseTimeoutSec     int      `mapstructure:"base_timeout_seconds"`
	TimeoutGrowth      float64  `mapstructure:"timeout_growth"`
	DownloadTimeoutSec int      `mapstructure:"download_timeout_seconds"`
	StaticProbe        bool     `mapstructure:"static_probe"`
}

// LogoDevConfig configures the third-party lookup fetcher.
type LogoDevConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	Token      string `mapstructure:"token"`
	TimeoutSec int    `mapstructure:"timeout_seconds"`
	QuotaName  string `mapstructure:"quota_name"`
	QuotaMax   int    `mapstructure:"quota_max"`
}

// ImageConfig sets the rendition matrix produced by the normalizer.
type ImageConfig struct {
	Sizes       []int `mapstructure:"sizes"`
	WebPQuality int   `mapstructure:"webp_quality"`
}

// StorageConfig selects and parameterizes the blob store.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// MetaAPIConfig points at the external data API owning the tables.
type MetaAPIConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Schema     string `mapstructure:"schema"`
	TimeoutSec int    `mapstructure:"timeout_seconds"`
}

// JobsConfig selects the batch-progress store.
type JobsConfig struct {
	Store string `mapstructure:"store"`
	Dir   string `mapstructure:"dir"`
	DSN   string `mapstructure:"dsn"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOGOCRAWLER")
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
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.acquire_budget_seconds", 30)
	v.SetDefault("website.base_url", "https://www.tradingview.com")
	v.SetDefault("website.selectors", []string{
		`img[data-testid="logo"]`,
		`.tv-symbol-header__logo img`,
		`.tv-symbol-header__logo svg`,
		`img[alt*="logo" i]`,
		`img[src*="logo" i]`,
		`.tv-symbol-header img`,
		`header img`,
	})
	v.SetDefault("website.max_attempts", 3)
	v.SetDefault("website.base_timeout_seconds", 10)
	v.SetDefault("website.timeout_growth", 0.5)
	v.SetDefault("website.download_timeout_seconds", 10)
	v.SetDefault("website.static_probe", true)
	v.SetDefault("logodev.endpoint", "https://img.logo.dev")
	v.SetDefault("logodev.timeout_seconds", 15)
	v.SetDefault("logodev.quota_name", "logo_dev")
	v.SetDefault("logodev.quota_max", 5000)
	v.SetDefault("image.sizes", []int{240, 300})
	v.SetDefault("image.webp_quality", 85)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("metaapi.schema", "raw_data")
	v.SetDefault("metaapi.timeout_seconds", 10)
	v.SetDefault("jobs.store", "file")
	v.SetDefault("jobs.dir", "progress")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.AcquireBudgetSec <= 0 {
		return fmt.Errorf("crawler.acquire_budget_seconds must be > 0")
	}
	if c.Website.MaxAttempts <= 0 {
		return fmt.Errorf("website.max_attempts must be > 0")
	}
	if len(c.Image.Sizes) == 0 {
		return fmt.Errorf("image.sizes must not be empty")
	}
	if c.Image.WebPQuality <= 0 || c.Image.WebPQuality > 100 {
		return fmt.Errorf("image.webp_quality must be in (0, 100]")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
	}
	if c.Storage.Provider == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set when storage.provider is local")
	}
	if c.Jobs.Store == "postgres" && c.Jobs.DSN == "" {
		return fmt.Errorf("jobs.dsn must be set when jobs.store is postgres")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// AcquireBudget converts the per-ticker budget into a duration.
func (c Config) AcquireBudget() time.Duration {
	return time.Duration(c.Crawler.AcquireBudgetSec) * time.Second
}

// RetryBase converts the website fetcher's base timeout into a duration.
func (c Config) RetryBase() time.Duration {
	return time.Duration(c.Website.BaseTimeoutSec) * time.Second
}
