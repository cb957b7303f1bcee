package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	// StoreBackend selects the job store: "memory" (no persistence,
	// nothing survives restart) or "postgres" (pgstore, DatabaseURL
	// required). spec.md §6's table leaves this to the store
	// implementation; a running process still has to pick one.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory" validate:"required,oneof=memory postgres"`
	DatabaseURL  string `env:"DATABASE_URL" validate:"required_if=StoreBackend postgres"`

	// SchedulerInstanceName/SchedulerInstanceID identify this scheduler
	// instance (spec.md §6's scheduler.instanceName/scheduler.instanceId).
	// "AUTO" for the instance ID generates one via google/uuid at startup.
	SchedulerInstanceName string `env:"SCHEDULER_INSTANCE_NAME" envDefault:"DistScheduler"`
	SchedulerInstanceID   string `env:"SCHEDULER_INSTANCE_ID" envDefault:"AUTO"`

	// ThreadCount sizes the worker pool (spec.md §6's threadPool.threadCount).
	ThreadCount int `env:"THREAD_COUNT" envDefault:"10" validate:"min=1,max=1000"`

	// BatchTriggerAcquisitionMaxCount and IdleWaitTimeMs feed
	// dispatcher.Config (spec.md §6's scheduler.batchTriggerAcquisitionMaxCount
	// and scheduler.idleWaitTime).
	BatchTriggerAcquisitionMaxCount int `env:"BATCH_TRIGGER_ACQUISITION_MAX_COUNT" envDefault:"1" validate:"min=1,max=1000"`
	IdleWaitTimeMs                  int `env:"IDLE_WAIT_TIME_MS" envDefault:"30000" validate:"min=100"`
	BatchTimeWindowMs               int `env:"BATCH_TIME_WINDOW_MS" envDefault:"0" validate:"min=0"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	// LogFile, when set, tees JSON logs through a rotating file sink
	// (lumberjack) alongside stdout; useful for non-local envs where
	// stdout isn't captured by a log shipper. Empty disables rotation.
	LogFile        string `env:"LOG_FILE" envDefault:""`
	LogMaxSizeMB   int    `env:"LOG_MAX_SIZE_MB" envDefault:"100" validate:"min=1"`
	LogMaxBackups  int    `env:"LOG_MAX_BACKUPS" envDefault:"5" validate:"min=0"`
	LogMaxAgeDays  int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28" validate:"min=0"`

	// ClerkJWKSURL is the JWKS endpoint for RS256 token verification (Clerk).
	// When set, it takes precedence over JWTSecret.
	ClerkJWKSURL string `env:"CLERK_JWKS_URL"`

	// JWTSecret guards internal/facade/httpapi when ClerkJWKSURL is unset.
	JWTSecret string `env:"JWT_SECRET"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// IdleWaitTime converts IdleWaitTimeMs to a time.Duration for
// dispatcher.Config.
func (c *Config) IdleWaitTime() time.Duration {
	return time.Duration(c.IdleWaitTimeMs) * time.Millisecond
}

// BatchTimeWindow converts BatchTimeWindowMs to a time.Duration for
// dispatcher.Config.
func (c *Config) BatchTimeWindow() time.Duration {
	return time.Duration(c.BatchTimeWindowMs) * time.Millisecond
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
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
