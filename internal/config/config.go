// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Source      SourceConfig      `mapstructure:"source"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Politeness  PolitenessConfig  `mapstructure:"politeness"`
	Headless    HeadlessConfig    `mapstructure:"headless"`
	Attachments AttachmentsConfig `mapstructure:"attachments"`
	OCR         OCRConfig         `mapstructure:"ocr"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Output      OutputConfig      `mapstructure:"output"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// SourceConfig identifies the tracking site and where to start.
type SourceConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	StartPage int    `mapstructure:"start_page"`
	UserAgent string `mapstructure:"user_agent"`
}

// HTTPConfig configures fetch timeout and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
	CooldownSeconds  int `mapstructure:"cooldown_seconds"`
}

// PolitenessConfig governs the minimum inter-request delay.
type PolitenessConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	RespectRobots     bool    `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	MaxParallel     int      `mapstructure:"max_parallel"`
	NavTimeoutSec   int      `mapstructure:"nav_timeout_seconds"`
	MinHTMLBytes    int      `mapstructure:"min_html_bytes"`
	MarkerKeywords  []string `mapstructure:"marker_keywords"`
}

// AttachmentsConfig controls the attachment resolver.
type AttachmentsConfig struct {
	Workers       int `mapstructure:"workers"`
	MinAlphaChars int `mapstructure:"min_alpha_chars"`
}

// OCRConfig locates the external rasterization and recognition tools.
type OCRConfig struct {
	PdftoppmBin  string `mapstructure:"pdftoppm_bin"`
	TesseractBin string `mapstructure:"tesseract_bin"`
	DPI          int    `mapstructure:"dpi"`
	Language     string `mapstructure:"language"`
}

// CacheConfig sets the optional local page cache.
type CacheConfig struct {
	Dir      string `mapstructure:"dir"`
	TTLHours int    `mapstructure:"ttl_hours"`
}

// OutputConfig locates the corpus snapshot on disk.
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("source.base_url", "https://www.business-humanrights.org/en/latest-news/")
	v.SetDefault("source.start_page", 1)
	v.SetDefault("source.user_agent", "Mozilla/5.0 (BHRRC scraper)")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.cooldown_seconds", 30)
	v.SetDefault("politeness.requests_per_second", 2)
	v.SetDefault("politeness.burst", 1)
	v.SetDefault("politeness.respect_robots", true)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.min_html_bytes", 2048)
	v.SetDefault("headless.marker_keywords", []string{"enable javascript", "checking your browser"})
	v.SetDefault("attachments.workers", 3)
	v.SetDefault("attachments.min_alpha_chars", 40)
	v.SetDefault("ocr.pdftoppm_bin", "pdftoppm")
	v.SetDefault("ocr.tesseract_bin", "tesseract")
	v.SetDefault("ocr.dpi", 200)
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("output.path", "data/corpus.json")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Source.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source.base_url must be an absolute URL")
	}
	if c.Source.StartPage < 1 {
		return fmt.Errorf("source.start_page must be >= 1")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 1 {
		return fmt.Errorf("http.max_retries must be >= 1")
	}
	if c.Attachments.Workers < 1 || c.Attachments.Workers > 8 {
		return fmt.Errorf("attachments.workers must be between 1 and 8")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path must be set")
	}
	return nil
}

// Timeout converts the HTTP timeout config into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Cooldown returns the default 429 cooldown delay.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.HTTP.CooldownSeconds) * time.Second
}
