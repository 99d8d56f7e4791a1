// Package config loads and validates spider configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Headless modes.
const (
	HeadlessOff     = "off"
	HeadlessAlways  = "always"
	HeadlessPromote = "promote"
)

// Output kinds.
const (
	OutputStdout = "stdout"
	OutputLocal  = "local"
	OutputGCS    = "gcs"
	OutputPubSub = "pubsub"
)

// Config captures all knobs loaded via Viper.
type Config struct {
	Spider   SpiderConfig   `mapstructure:"spider"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Output   OutputConfig   `mapstructure:"output"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SpiderConfig governs the crawl engine.
type SpiderConfig struct {
	ConcurrentRequests int `mapstructure:"concurrent_requests"`
	TaskQueueSizeBytes int `mapstructure:"task_queue_size_bytes"`
}

// HTTPConfig configures the colly transport.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the headless rendering transport.
type HeadlessConfig struct {
	Mode               string `mapstructure:"mode"`
	MaxParallel        int    `mapstructure:"max_parallel"`
	NavTimeoutSec      int    `mapstructure:"nav_timeout_seconds"`
	PromotionThreshold int    `mapstructure:"promotion_threshold"`
}

// OutputConfig selects where crawled items go.
type OutputConfig struct {
	Kind string `mapstructure:"kind"`
	// Path is the base directory for local output and the object prefix for gcs.
	Path      string `mapstructure:"path"`
	Bucket    string `mapstructure:"bucket"`
	Object    string `mapstructure:"object"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the optional status server. An empty address disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPIDER")
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
	v.SetDefault("spider.concurrent_requests", 20)
	v.SetDefault("spider.task_queue_size_bytes", 10_000_000)
	v.SetDefault("http.user_agent", "webspider/0.1")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("headless.mode", HeadlessOff)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("output.kind", OutputStdout)
	v.SetDefault("output.object", "items.jsonl")
	v.SetDefault("server.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Spider.ConcurrentRequests <= 0 {
		return fmt.Errorf("spider.concurrent_requests must be > 0")
	}
	if c.Spider.TaskQueueSizeBytes <= 0 {
		return fmt.Errorf("spider.task_queue_size_bytes must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Headless.Mode {
	case HeadlessOff:
	case HeadlessAlways, HeadlessPromote:
		if c.Headless.MaxParallel <= 0 {
			return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
		}
	default:
		return fmt.Errorf("headless.mode must be one of off, always, promote; got %q", c.Headless.Mode)
	}
	switch c.Output.Kind {
	case OutputStdout:
	case OutputLocal:
		if c.Output.Path == "" {
			return fmt.Errorf("output.path must be set for local output")
		}
	case OutputGCS:
		if c.Output.Bucket == "" {
			return fmt.Errorf("output.bucket must be set for gcs output")
		}
	case OutputPubSub:
		if c.Output.ProjectID == "" || c.Output.Topic == "" {
			return fmt.Errorf("output.project_id and output.topic must be set for pubsub output")
		}
	default:
		return fmt.Errorf("output.kind must be one of stdout, local, gcs, pubsub; got %q", c.Output.Kind)
	}
	if (c.Output.Kind == OutputLocal || c.Output.Kind == OutputGCS) && c.Output.Object == "" {
		return fmt.Errorf("output.object must be set for blob output")
	}
	return nil
}

// RequestTimeout converts http.timeout_seconds into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavigationTimeout converts headless.nav_timeout_seconds into a duration.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
