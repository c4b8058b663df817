// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/keygate/keygate/internal/auth"
)

// Config holds all application configuration.
type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"development" validate:"oneof=development staging production test"`
	AppPort int    `env:"APP_PORT" envDefault:"8080" validate:"min=1,max=65535"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10" validate:"min=1"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2" validate:"min=0,ltefield=DBMaxConns"`
	// MigrateOnStart applies embedded migrations before serving.
	MigrateOnStart bool `env:"MIGRATE_ON_START" envDefault:"true"`

	// RedisURL is optional. Without it the key event stream is off.
	RedisURL      string `env:"REDIS_URL"`
	EventsEnabled bool   `env:"EVENTS_ENABLED" envDefault:"true"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s" validate:"gt=0"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	// StoreTimeout bounds a whole command, store round trips included.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s" validate:"gte=0"`

	BulkMaxQuantity  int `env:"BULK_MAX_QUANTITY" envDefault:"1000" validate:"min=1,max=10000"`
	KeyRetryAttempts int `env:"KEY_RETRY_ATTEMPTS" envDefault:"5" validate:"min=1,max=50"`

	// OperatorKeyHash is an argon2id PHC string. When set, enable and
	// disable require the matching X-Operator-Key header.
	OperatorKeyHash string `env:"OPERATOR_KEY_HASH" validate:"omitempty,startswith=$argon2id$"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	MaxRequestBodySize int64    `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576" validate:"min=1024"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// EventsActive reports whether the key event stream should run.
func (c *Config) EventsActive() bool {
	return c.EventsEnabled && c.RedisURL != ""
}

// AllowedOrigins returns the configured CORS origins with blanks dropped.
func (c *Config) AllowedOrigins() []string {
	origins := make([]string, 0, len(c.CORSAllowedOrigins))
	for _, origin := range c.CORSAllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.OperatorKeyHash != "" {
		if err := auth.CheckOperatorKeyHash(cfg.OperatorKeyHash); err != nil {
			return nil, fmt.Errorf("invalid config: OPERATOR_KEY_HASH: %w", err)
		}
	}
	return cfg, nil
}
