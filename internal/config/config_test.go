package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
	require.Equal(t, ArtifactsNone, cfg.Artifacts.Backend)
	require.Equal(t, 45*time.Second, cfg.Crawler.NavTimeout())
	require.Equal(t, 10*time.Second, cfg.Crawler.StepTimeout())
	require.Zero(t, cfg.Crawler.Settle())
	require.Equal(t, time.Second, cfg.Progress.Interval())
	require.Equal(t, 256, cfg.Progress.RetainedRuns)
	require.Equal(t, 5*time.Minute, cfg.Progress.IdleTimeout())
	require.Equal(t, 1, cfg.Crawler.Concurrency)
	require.Equal(t, "https://www.ifood.com.br", cfg.Platforms.IFood.BaseURL)
	require.Equal(t, "https://aiqfome.com", cfg.Platforms.Aiqfome.BaseURL)
	require.True(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawler:
  concurrency: 3
  settle_millis: 2500
  targets_per_second: 0.5
  capture_failures: true
progress:
  interval_millis: 250
storage:
  backend: sqlite
  sqlite_path: /tmp/reviews.db
artifacts:
  backend: gcs
  gcs_bucket: review-artifacts
pubsub:
  enabled: true
  project_id: proj
  topic_name: crawl-runs
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.Equal(t, 3, cfg.Crawler.Concurrency)
	require.Equal(t, 2500*time.Millisecond, cfg.Crawler.Settle())
	require.InDelta(t, 0.5, cfg.Crawler.TargetsPerSecond, 1e-9)
	require.True(t, cfg.Crawler.CaptureFailures)
	require.Equal(t, 250*time.Millisecond, cfg.Progress.Interval())
	require.Equal(t, BackendSQLite, cfg.Storage.Backend)
	require.Equal(t, "review-artifacts", cfg.Artifacts.GCSBucket)
	require.True(t, cfg.PubSub.Enabled)
	require.False(t, cfg.Logging.Development)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REVIEWTRENDS_SERVER_PORT", "7070")
	t.Setenv("REVIEWTRENDS_STORAGE_BACKEND", "postgres")
	t.Setenv("REVIEWTRENDS_DB_DSN", "postgres://localhost/reviews")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, BackendPostgres, cfg.Storage.Backend)
	require.Equal(t, "postgres://localhost/reviews", cfg.DB.DSN)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Server:    ServerConfig{Port: 8080},
			Crawler:   CrawlerConfig{Concurrency: 1, NavTimeoutSeconds: 45, StepTimeoutSeconds: 10},
			Progress:  ProgressConfig{IntervalMillis: 1000},
			Storage:   StorageConfig{Backend: BackendMemory},
			Artifacts: ArtifactsConfig{Backend: ArtifactsNone},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "concurrency", mutate: func(c *Config) { c.Crawler.Concurrency = 0 }, want: "crawler.concurrency"},
		{name: "timeouts", mutate: func(c *Config) { c.Crawler.StepTimeoutSeconds = 0 }, want: "timeouts"},
		{name: "rate", mutate: func(c *Config) { c.Crawler.TargetsPerSecond = -1 }, want: "targets_per_second"},
		{name: "interval", mutate: func(c *Config) { c.Progress.IntervalMillis = 0 }, want: "interval_millis"},
		{name: "backend", mutate: func(c *Config) { c.Storage.Backend = "mysql" }, want: "storage.backend"},
		{name: "postgres dsn", mutate: func(c *Config) { c.Storage.Backend = BackendPostgres }, want: "db.dsn"},
		{name: "sqlite path", mutate: func(c *Config) { c.Storage.Backend = BackendSQLite }, want: "sqlite_path"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Artifacts.Backend = ArtifactsGCS }, want: "gcs_bucket"},
		{name: "artifacts", mutate: func(c *Config) { c.Artifacts.Backend = "s3" }, want: "artifacts.backend"},
		{name: "pubsub", mutate: func(c *Config) { c.PubSub.Enabled = true }, want: "pubsub"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}
