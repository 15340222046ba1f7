// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (ZERON_ prefix, runtime override)
//  2. Config file (config.yaml in the working directory or /etc/zeron)
//  3. Default values
//
// Sensitive values (API keys, connection strings) are never logged.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrMissingDatabaseURL indicates no Postgres connection string was provided.
	ErrMissingDatabaseURL = errors.New("missing database url")

	// ErrMissingRedisAddr indicates no Redis address was provided.
	ErrMissingRedisAddr = errors.New("missing redis address")

	// ErrInvalidTemperature indicates the generation temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTurns indicates the tool-loop step limit is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")

	// ErrInvalidCancelPoll indicates the cancellation poll cadence is out of range.
	ErrInvalidCancelPoll = errors.New("invalid cancel poll interval")
)

// Server holds HTTP server settings.
type Server struct {
	Addr string `mapstructure:"addr"`
}

// Log holds logging settings.
type Log struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Postgres holds database settings.
type Postgres struct {
	URL string `mapstructure:"url"`
}

// Redis holds durable-stream backend settings.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AI holds model invocation settings.
type AI struct {
	// GeminiAPIKey authenticates the Google AI provider plugin.
	GeminiAPIKey string `mapstructure:"gemini_api_key"`

	// Temperature is the sampling temperature for chat generation.
	// Fixed non-zero by design; creative output is wanted.
	Temperature float64 `mapstructure:"temperature"`

	// MaxTurns bounds tool-call round-trips within one generation.
	MaxTurns int `mapstructure:"max_turns"`

	// ResearchModel is the provider-qualified model the deep-research
	// sub-agent plans and executes with.
	ResearchModel string `mapstructure:"research_model"`

	// TitleModel is the cheap model used for chat title generation.
	TitleModel string `mapstructure:"title_model"`

	// ImageModel is the image generation model.
	ImageModel string `mapstructure:"image_model"`
}

// Blob holds S3-compatible object storage settings for generated images.
type Blob struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Search holds external web-search settings.
type Search struct {
	// Endpoint is the JSON search API base URL (SearxNG-compatible).
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

// Credits holds quota limits and per-tool costs.
type Credits struct {
	FreeLimit    int `mapstructure:"free_limit"`
	PremiumLimit int `mapstructure:"premium_limit"`
	SearchCost   int `mapstructure:"search_cost"`
	ImageCost    int `mapstructure:"image_cost"`
	ResearchCost int `mapstructure:"research_cost"`
}

// Stream holds durable-stream tuning knobs.
type Stream struct {
	// StaleAfter is how long a non-terminal stream may sit idle before its
	// status reads as timeout.
	StaleAfter time.Duration `mapstructure:"stale_after"`

	// CancelPollFrames is the forwarding cadence at which the driver
	// re-reads chat status to observe a stop request. Cancellation is
	// eventual, bounded by this cadence.
	CancelPollFrames int `mapstructure:"cancel_poll_frames"`
}

// Config is the root configuration.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Log      Log      `mapstructure:"log"`
	Postgres Postgres `mapstructure:"postgres"`
	Redis    Redis    `mapstructure:"redis"`
	AI       AI       `mapstructure:"ai"`
	Blob     Blob     `mapstructure:"blob"`
	Search   Search   `mapstructure:"search"`
	Credits  Credits  `mapstructure:"credits"`
	Stream   Stream   `mapstructure:"stream"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/zeron")

	v.SetEnvPrefix("ZERON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No file is fine: env vars and defaults cover everything.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)
	// Every configurable key needs a registered default, even an empty
	// one: AutomaticEnv only surfaces ZERON_* variables through Unmarshal
	// for keys viper already knows about.
	v.SetDefault("postgres.url", "")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ai.gemini_api_key", "")
	v.SetDefault("ai.temperature", 0.8)
	v.SetDefault("ai.max_turns", 8)
	v.SetDefault("ai.research_model", "googleai/gemini-2.5-flash")
	v.SetDefault("ai.title_model", "googleai/gemini-2.5-flash-lite")
	v.SetDefault("ai.image_model", "imagen-3.0-generate-002")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.region", "auto")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.access_key", "")
	v.SetDefault("blob.secret_key", "")
	v.SetDefault("search.endpoint", "")
	v.SetDefault("search.api_key", "")
	v.SetDefault("credits.free_limit", 25)
	v.SetDefault("credits.premium_limit", 500)
	v.SetDefault("credits.search_cost", 1)
	v.SetDefault("credits.image_cost", 5)
	v.SetDefault("credits.research_cost", 10)
	v.SetDefault("stream.stale_after", 5*time.Minute)
	v.SetDefault("stream.cancel_poll_frames", 50)
}

// Validate checks ranges and required settings.
func (c *Config) Validate() error {
	if c.Postgres.URL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Redis.Addr == "" {
		return ErrMissingRedisAddr
	}
	if c.AI.Temperature <= 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("%w: %v (must be in (0, 2])", ErrInvalidTemperature, c.AI.Temperature)
	}
	if c.AI.MaxTurns < 1 || c.AI.MaxTurns > 64 {
		return fmt.Errorf("%w: %d (must be in [1, 64])", ErrInvalidMaxTurns, c.AI.MaxTurns)
	}
	if c.Stream.CancelPollFrames < 1 {
		return fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidCancelPoll, c.Stream.CancelPollFrames)
	}
	return nil
}
