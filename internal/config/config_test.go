package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
  level: warn
http:
  timeout_seconds: 45
  user_agent: proyectos-bot
  rate_per_second: 2.5
  burst: 3
sources:
  legacy_base_url: http://legacy.local/
  portal_base_url: http://portal.local
retry:
  max_attempts: 5
  delay_seconds: 0
crawler:
  concurrency: 6
  aggregation: partial
output:
  dir: /tmp/out
cache:
  provider: gcs
  gcs_bucket: snapshots
  prefix: proyectos
  on_run: true
pubsub:
  project_id: openpolitica
  topic: eras
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 45*time.Second, cfg.Timeout())
	assert.Equal(t, "proyectos-bot", cfg.HTTP.UserAgent)
	assert.InDelta(t, 2.5, cfg.HTTP.RatePerSecond, 0.001)
	assert.Equal(t, 3, cfg.HTTP.Burst)
	assert.Equal(t, "http://legacy.local", cfg.EraSources().LegacyBaseURL)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Duration(0), cfg.RetryDelay())
	assert.Equal(t, 6, cfg.Crawler.Concurrency)
	assert.Equal(t, "partial", cfg.Crawler.Aggregation)
	assert.Equal(t, "/tmp/out", cfg.Output.Dir)
	assert.Equal(t, CacheGCS, cfg.Cache.Provider)
	assert.Equal(t, "snapshots", cfg.Cache.GCSBucket)
	assert.True(t, cfg.Cache.OnRun)
	assert.True(t, cfg.PubSub.Enabled())
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 60*time.Second, cfg.Timeout())
	assert.Equal(t, "Mozilla/5.0 Firefox/26.0", cfg.HTTP.UserAgent)
	assert.False(t, cfg.HTTP.RespectRobots)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.RetryDelay())
	assert.Equal(t, runtime.NumCPU(), cfg.Crawler.Concurrency)
	assert.Equal(t, "abort", cfg.Crawler.Aggregation)
	assert.Equal(t, CacheLocal, cfg.Cache.Provider)
	assert.Equal(t, "https://www2.congreso.gob.pe", cfg.Sources.LegacyBaseURL)
	assert.Equal(t, "https://wb2server.congreso.gob.pe", cfg.Sources.PortalBaseURL)
	assert.False(t, cfg.PubSub.Enabled())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Tracing.Enabled)
	assert.InDelta(t, 1.0, cfg.Tracing.SampleRatio, 1e-9)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		HTTP:    HTTPConfig{TimeoutSeconds: 10, Burst: 1},
		Sources: SourcesConfig{LegacyBaseURL: "http://a", PortalBaseURL: "http://b"},
		Retry:   RetryConfig{MaxAttempts: 3, DelaySeconds: 10},
		Crawler: CrawlerConfig{Concurrency: 1, Aggregation: "abort"},
		Cache:   CacheConfig{Provider: CacheLocal},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{name: "negative rate", mutate: func(c *Config) { c.HTTP.RatePerSecond = -1 }, want: "http.rate_per_second"},
		{name: "zero burst", mutate: func(c *Config) { c.HTTP.Burst = 0 }, want: "http.burst"},
		{name: "missing host", mutate: func(c *Config) { c.Sources.PortalBaseURL = "" }, want: "sources.legacy_base_url"},
		{name: "zero attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, want: "retry.max_attempts"},
		{name: "negative delay", mutate: func(c *Config) { c.Retry.DelaySeconds = -1 }, want: "retry.delay_seconds"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Crawler.Concurrency = 0 }, want: "crawler.concurrency"},
		{name: "unknown aggregation", mutate: func(c *Config) { c.Crawler.Aggregation = "skip" }, want: "crawler.aggregation"},
		{name: "unknown provider", mutate: func(c *Config) { c.Cache.Provider = "s3" }, want: "cache.provider"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Cache.Provider = CacheGCS }, want: "cache.gcs_bucket"},
		{name: "half pubsub", mutate: func(c *Config) { c.PubSub.Topic = "eras" }, want: "pubsub.project_id"},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Tracing.SampleRatio = 1.5 }, want: "tracing.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
