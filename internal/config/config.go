// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends accepted by storage.backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Artifact backends accepted by artifacts.backend.
const (
	ArtifactsNone   = "none"
	ArtifactsMemory = "memory"
	ArtifactsLocal  = "local"
	ArtifactsGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Platforms PlatformsConfig `mapstructure:"platforms"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	MaxUploadMB           int `mapstructure:"max_upload_mb"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level is a zap level name; empty keeps the preset's level.
	Level string `mapstructure:"level"`
}

// CrawlerConfig governs the orchestrator and the async worker pool.
type CrawlerConfig struct {
	UserAgent          string  `mapstructure:"user_agent"`
	NavTimeoutSeconds  int     `mapstructure:"nav_timeout_seconds"`
	StepTimeoutSeconds int     `mapstructure:"step_timeout_seconds"`
	SettleMillis       int     `mapstructure:"settle_millis"`
	TargetsPerSecond   float64 `mapstructure:"targets_per_second"`
	Concurrency        int     `mapstructure:"concurrency"`
	QueueDepth         int     `mapstructure:"queue_depth"`
	CaptureFailures    bool    `mapstructure:"capture_failures"`
}

// HeadlessConfig configures the Chrome automation session.
type HeadlessConfig struct {
	// Disabled swaps Chrome for a browser that refuses every session, for
	// deployments that only serve analytics.
	Disabled    bool   `mapstructure:"disabled"`
	MaxSessions int    `mapstructure:"max_sessions"`
	NoSandbox   bool   `mapstructure:"no_sandbox"`
	DisableGPU  bool   `mapstructure:"disable_gpu"`
	ExecPath    string `mapstructure:"exec_path"`
}

// DiscoveryConfig configures listing-page target discovery.
type DiscoveryConfig struct {
	RespectRobots  bool `mapstructure:"respect_robots"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

// ProgressConfig configures progress tracking and broadcasting.
type ProgressConfig struct {
	IntervalMillis     int `mapstructure:"interval_millis"`
	RetainedRuns       int `mapstructure:"retained_runs"`
	BufferSize         int `mapstructure:"buffer_size"`
	// IdleTimeoutSeconds ends a progress subscription whose run never starts.
	IdleTimeoutSeconds int `mapstructure:"idle_timeout_seconds"`
}

// StorageConfig selects where snapshots and runs are persisted.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// ArtifactsConfig selects where failure captures are written.
type ArtifactsConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TracingConfig toggles the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// OTLP endpoints as full URLs; spans are recorded but not exported when
	// both are empty.
	GRPCEndpoint string `mapstructure:"grpc_endpoint"`
	HTTPEndpoint string `mapstructure:"http_endpoint"`
}

// PlatformsConfig holds per-platform base URLs.
type PlatformsConfig struct {
	IFood   PlatformConfig `mapstructure:"ifood"`
	Aiqfome PlatformConfig `mapstructure:"aiqfome"`
}

// PlatformConfig describes one delivery platform.
type PlatformConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// Load builds a Config from disk/environment. Without an explicit path a
// config.{yaml,json,toml} is searched for in the working directory,
// /etc/reviewtrends and $HOME/.reviewtrends; a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REVIEWTRENDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/reviewtrends/")
		v.AddConfigPath("$HOME/.reviewtrends")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("crawler.user_agent", "review-trends-bot/0.1")
	v.SetDefault("crawler.nav_timeout_seconds", 45)
	v.SetDefault("crawler.step_timeout_seconds", 10)
	v.SetDefault("crawler.settle_millis", 0)
	v.SetDefault("crawler.targets_per_second", 0)
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.queue_depth", 16)
	v.SetDefault("crawler.capture_failures", false)
	v.SetDefault("headless.disabled", false)
	v.SetDefault("headless.max_sessions", 2)
	v.SetDefault("headless.no_sandbox", true)
	v.SetDefault("headless.disable_gpu", true)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("discovery.respect_robots", false)
	v.SetDefault("discovery.timeout_seconds", 30)
	v.SetDefault("progress.interval_millis", 1000)
	v.SetDefault("progress.retained_runs", 256)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.idle_timeout_seconds", 300)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.sqlite_path", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate", true)
	v.SetDefault("artifacts.backend", ArtifactsNone)
	v.SetDefault("artifacts.base_dir", "artifacts")
	v.SetDefault("artifacts.gcs_bucket", "")
	v.SetDefault("artifacts.prefix", "failures")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.grpc_endpoint", "")
	v.SetDefault("tracing.http_endpoint", "")
	v.SetDefault("platforms.ifood.base_url", "https://www.ifood.com.br")
	v.SetDefault("platforms.aiqfome.base_url", "https://aiqfome.com")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.NavTimeoutSeconds <= 0 || c.Crawler.StepTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler timeouts must be > 0")
	}
	if c.Crawler.TargetsPerSecond < 0 {
		return fmt.Errorf("crawler.targets_per_second must be >= 0")
	}
	if c.Progress.IntervalMillis <= 0 {
		return fmt.Errorf("progress.interval_millis must be > 0")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when storage.backend is postgres")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must be set when storage.backend is sqlite")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Artifacts.Backend {
	case ArtifactsNone, ArtifactsMemory:
	case ArtifactsLocal:
		if c.Artifacts.BaseDir == "" {
			return fmt.Errorf("artifacts.base_dir must be set when artifacts.backend is local")
		}
	case ArtifactsGCS:
		if c.Artifacts.GCSBucket == "" {
			return fmt.Errorf("artifacts.gcs_bucket must be set when artifacts.backend is gcs")
		}
	default:
		return fmt.Errorf("unknown artifacts.backend %q", c.Artifacts.Backend)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// NavTimeout is the page navigation budget.
func (c CrawlerConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}

// StepTimeout is the budget of each non-fatal extraction step.
func (c CrawlerConfig) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutSeconds) * time.Second
}

// Settle overrides the profile settle delay when positive.
func (c CrawlerConfig) Settle() time.Duration {
	return time.Duration(c.SettleMillis) * time.Millisecond
}

// Interval is the broadcast cadence of progress events.
func (c ProgressConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMillis) * time.Millisecond
}

// IdleTimeout is how long a subscription waits for an unstarted run.
func (c ProgressConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// RequestTimeout bounds the short API routes.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Timeout bounds one listing-page fetch.
func (c DiscoveryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
