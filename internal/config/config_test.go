package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Postgres: Postgres{URL: "postgres://localhost:5432/zeron"},
		Redis:    Redis{Addr: "127.0.0.1:6379"},
		AI:       AI{Temperature: 0.8, MaxTurns: 8},
		Stream:   Stream{StaleAfter: 5 * time.Minute, CancelPollFrames: 50},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(c *Config) {}, nil},
		{"missing postgres url", func(c *Config) { c.Postgres.URL = "" }, ErrMissingDatabaseURL},
		{"missing redis addr", func(c *Config) { c.Redis.Addr = "" }, ErrMissingRedisAddr},
		{"zero temperature", func(c *Config) { c.AI.Temperature = 0 }, ErrInvalidTemperature},
		{"temperature too high", func(c *Config) { c.AI.Temperature = 2.5 }, ErrInvalidTemperature},
		{"zero max turns", func(c *Config) { c.AI.MaxTurns = 0 }, ErrInvalidMaxTurns},
		{"excessive max turns", func(c *Config) { c.AI.MaxTurns = 100 }, ErrInvalidMaxTurns},
		{"zero cancel poll", func(c *Config) { c.Stream.CancelPollFrames = 0 }, ErrInvalidCancelPoll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDefaultsAndEnvOverride(t *testing.T) {
	t.Setenv("ZERON_POSTGRES_URL", "postgres://localhost:5432/zeron_test")
	t.Setenv("ZERON_SERVER_ADDR", "0.0.0.0:9090")
	// Keys with no meaningful default still have to be reachable from the
	// environment alone.
	t.Setenv("ZERON_AI_GEMINI_API_KEY", "test-key")
	t.Setenv("ZERON_REDIS_PASSWORD", "hunter2")
	t.Setenv("ZERON_SEARCH_API_KEY", "searx-key")
	t.Setenv("ZERON_BLOB_ACCESS_KEY", "blob-access")
	t.Setenv("ZERON_BLOB_SECRET_KEY", "blob-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9090" {
		t.Errorf("Server.Addr = %q, want env override", cfg.Server.Addr)
	}
	if cfg.Postgres.URL != "postgres://localhost:5432/zeron_test" {
		t.Errorf("Postgres.URL = %q, want env value", cfg.Postgres.URL)
	}
	if cfg.AI.GeminiAPIKey != "test-key" {
		t.Errorf("AI.GeminiAPIKey = %q, want env value", cfg.AI.GeminiAPIKey)
	}
	if cfg.Redis.Password != "hunter2" {
		t.Errorf("Redis.Password = %q, want env value", cfg.Redis.Password)
	}
	if cfg.Search.APIKey != "searx-key" {
		t.Errorf("Search.APIKey = %q, want env value", cfg.Search.APIKey)
	}
	if cfg.Blob.AccessKey != "blob-access" || cfg.Blob.SecretKey != "blob-secret" {
		t.Errorf("blob credentials = %q/%q, want env values", cfg.Blob.AccessKey, cfg.Blob.SecretKey)
	}

	// Defaults.
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if cfg.AI.Temperature != 0.8 {
		t.Errorf("AI.Temperature = %v", cfg.AI.Temperature)
	}
	if cfg.AI.MaxTurns != 8 {
		t.Errorf("AI.MaxTurns = %d", cfg.AI.MaxTurns)
	}
	if cfg.Credits.FreeLimit != 25 || cfg.Credits.PremiumLimit != 500 {
		t.Errorf("credit limits = %d/%d", cfg.Credits.FreeLimit, cfg.Credits.PremiumLimit)
	}
	if cfg.Credits.SearchCost != 1 || cfg.Credits.ImageCost != 5 || cfg.Credits.ResearchCost != 10 {
		t.Errorf("tool costs = %+v", cfg.Credits)
	}
	if cfg.Stream.StaleAfter != 5*time.Minute {
		t.Errorf("Stream.StaleAfter = %v", cfg.Stream.StaleAfter)
	}
	if cfg.Stream.CancelPollFrames != 50 {
		t.Errorf("Stream.CancelPollFrames = %d", cfg.Stream.CancelPollFrames)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("ZERON_POSTGRES_URL", "")
	if _, err := Load(); !errors.Is(err, ErrMissingDatabaseURL) {
		t.Errorf("Load() = %v, want %v", err, ErrMissingDatabaseURL)
	}
}
