package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	EventStream string   `mapstructure:"EVENT_STREAM"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	OpenAIAPIKey string `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel  string `mapstructure:"OPENAI_MODEL"`

	RateLimitWindowSeconds int `mapstructure:"RATE_LIMIT_WINDOW_SECONDS"`
	RateLimitMax           int `mapstructure:"RATE_LIMIT_MAX"`
	BreakerThreshold       int `mapstructure:"BREAKER_FAILURE_THRESHOLD"`
	BreakerTimeoutSeconds  int `mapstructure:"BREAKER_TIMEOUT_SECONDS"`
	CacheTTLSeconds        int `mapstructure:"CACHE_TTL_SECONDS"`
	CacheMaxEntries        int `mapstructure:"CACHE_MAX_ENTRIES"`
	RepoMaxRetries         int `mapstructure:"REPO_MAX_RETRIES"`
	RequestTimeoutSeconds  int `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("EVENT_STREAM", "riskcore:events")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("RATE_LIMIT_MAX", 100)
	v.SetDefault("BREAKER_FAILURE_THRESHOLD", 5)
	v.SetDefault("BREAKER_TIMEOUT_SECONDS", 30)
	v.SetDefault("CACHE_TTL_SECONDS", 300)
	v.SetDefault("CACHE_MAX_ENTRIES", 1000)
	v.SetDefault("REPO_MAX_RETRIES", 3)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("EVENT_STREAM")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("OPENAI_API_KEY")
	v.BindEnv("OPENAI_MODEL")
	v.BindEnv("RATE_LIMIT_WINDOW_SECONDS")
	v.BindEnv("RATE_LIMIT_MAX")
	v.BindEnv("BREAKER_FAILURE_THRESHOLD")
	v.BindEnv("BREAKER_TIMEOUT_SECONDS")
	v.BindEnv("CACHE_TTL_SECONDS")
	v.BindEnv("CACHE_MAX_ENTRIES")
	v.BindEnv("REPO_MAX_RETRIES")
	v.BindEnv("REQUEST_TIMEOUT_SECONDS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RateLimitWindow returns the rate-limit window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// BreakerTimeout returns the circuit breaker open timeout as a duration.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutSeconds) * time.Second
}

// CacheTTL returns the default cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RequestTimeout returns the per-request deadline as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Validate checks that the configuration is safe to run with. Every resilience
// knob must be positive: a zero window or threshold would either disable
// protection silently or reject every request.
func (c *Config) Validate() error {
	checks := []struct {
		name  string
		value int
	}{
		{"RATE_LIMIT_WINDOW_SECONDS", c.RateLimitWindowSeconds},
		{"RATE_LIMIT_MAX", c.RateLimitMax},
		{"BREAKER_FAILURE_THRESHOLD", c.BreakerThreshold},
		{"BREAKER_TIMEOUT_SECONDS", c.BreakerTimeoutSeconds},
		{"CACHE_TTL_SECONDS", c.CacheTTLSeconds},
		{"CACHE_MAX_ENTRIES", c.CacheMaxEntries},
		{"REPO_MAX_RETRIES", c.RepoMaxRetries},
		{"REQUEST_TIMEOUT_SECONDS", c.RequestTimeoutSeconds},
	}
	for _, ch := range checks {
		if ch.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", ch.name, ch.value)
		}
	}
	return nil
}
