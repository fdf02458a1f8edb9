// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/openpolitica/proyectos-ley/internal/era"
)

// Cache providers.
const (
	CacheLocal  = "local"
	CacheGCS    = "gcs"
	CacheMemory = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Sources SourcesConfig `mapstructure:"sources"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Output  OutputConfig  `mapstructure:"output"`
	Cache   CacheConfig   `mapstructure:"cache"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Server  ServerConfig  `mapstructure:"server"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the outbound clients shared by both adapters.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
}

// SourcesConfig points the era table at the congress hosts.
type SourcesConfig struct {
	LegacyBaseURL string `mapstructure:"legacy_base_url"`
	PortalBaseURL string `mapstructure:"portal_base_url"`
}

// RetryConfig is the detail-stage retry policy.
type RetryConfig struct {
	MaxAttempts  int `mapstructure:"max_attempts"`
	DelaySeconds int `mapstructure:"delay_seconds"`
}

// CrawlerConfig governs the per-era pipeline.
type CrawlerConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	Aggregation string `mapstructure:"aggregation"`
}

// OutputConfig locates the SQLite databases.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// CacheConfig selects the blob store behind the JSON cache.
type CacheConfig struct {
	Provider  string `mapstructure:"provider"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	// OnRun makes the run command write the cache too.
	OnRun bool `mapstructure:"on_run"`
}

// PubSubConfig holds the era-outcome notification target.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether outcome notifications are configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// MetricsConfig enables the HTTP surface during batch runs.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ServerConfig controls the serve command.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig controls OpenTelemetry span sampling.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROYECTOS")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.user_agent", "Mozilla/5.0 Firefox/26.0")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.rate_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("sources.legacy_base_url", era.DefaultLegacyBaseURL)
	v.SetDefault("sources.portal_base_url", era.DefaultPortalBaseURL)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.delay_seconds", 10)
	v.SetDefault("crawler.concurrency", runtime.NumCPU())
	v.SetDefault("crawler.aggregation", "abort")
	v.SetDefault("output.dir", ".")
	v.SetDefault("cache.provider", CacheLocal)
	v.SetDefault("cache.dir", ".")
	v.SetDefault("cache.gcs_bucket", "")
	v.SetDefault("cache.prefix", "")
	v.SetDefault("cache.on_run", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "proyectos-ley")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RatePerSecond < 0 {
		return fmt.Errorf("http.rate_per_second must be >= 0")
	}
	if c.HTTP.Burst < 1 {
		return fmt.Errorf("http.burst must be >= 1")
	}
	if c.Sources.LegacyBaseURL == "" || c.Sources.PortalBaseURL == "" {
		return fmt.Errorf("sources.legacy_base_url and sources.portal_base_url must be set")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}
	if c.Retry.DelaySeconds < 0 {
		return fmt.Errorf("retry.delay_seconds must be >= 0")
	}
	if c.Crawler.Concurrency < 1 {
		return fmt.Errorf("crawler.concurrency must be >= 1")
	}
	switch strings.ToLower(c.Crawler.Aggregation) {
	case "", "abort", "partial":
	default:
		return fmt.Errorf("crawler.aggregation must be abort or partial, got %q", c.Crawler.Aggregation)
	}
	switch c.Cache.Provider {
	case CacheLocal, CacheMemory:
	case CacheGCS:
		if c.Cache.GCSBucket == "" {
			return fmt.Errorf("cache.gcs_bucket must be set when cache.provider is gcs")
		}
	default:
		return fmt.Errorf("cache.provider must be one of local, gcs, memory, got %q", c.Cache.Provider)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	return nil
}

// Timeout is the per-request client timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetryDelay is the fixed wait between detail attempts.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Retry.DelaySeconds) * time.Second
}

// EraSources converts the source hosts into the era table input.
func (c Config) EraSources() era.Sources {
	return era.Sources{
		LegacyBaseURL: strings.TrimRight(c.Sources.LegacyBaseURL, "/"),
		PortalBaseURL: strings.TrimRight(c.Sources.PortalBaseURL, "/"),
	}
}
