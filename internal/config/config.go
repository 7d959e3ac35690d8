package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port        string
	Environment string

	// Database
	DatabaseURL string

	// Redis (optional, used for batch number sequences)
	RedisURL string

	// JWT
	JWTSecret string

	// Background Workers
	WorkerCount int

	// Batches
	BatchNumberPrefix string
	DefaultPageSize   int

	// Audit retention
	AuditRetentionDays int
	AuditRetentionCron string

	// Directory for exports written by erpctl
	ExportDir string

	// Sentry
	SentryDSN string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("WORKER_COUNT", 4)
	v.SetDefault("BATCH_NUMBER_PREFIX", "PP")
	v.SetDefault("DEFAULT_PAGE_SIZE", 10)
	v.SetDefault("AUDIT_RETENTION_DAYS", 365)
	v.SetDefault("AUDIT_RETENTION_CRON", "0 3 * * *")
	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("SENTRY_DSN", "")

	cfg := &Config{
		Port:               v.GetString("PORT"),
		Environment:        v.GetString("ENVIRONMENT"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		RedisURL:           v.GetString("REDIS_URL"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		WorkerCount:        v.GetInt("WORKER_COUNT"),
		BatchNumberPrefix:  strings.ToUpper(strings.TrimSpace(v.GetString("BATCH_NUMBER_PREFIX"))),
		DefaultPageSize:    v.GetInt("DEFAULT_PAGE_SIZE"),
		AuditRetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		AuditRetentionCron: v.GetString("AUDIT_RETENTION_CRON"),
		ExportDir:          v.GetString("EXPORT_DIR"),
		SentryDSN:          v.GetString("SENTRY_DSN"),
	}

	// Validate required configuration
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" && cfg.Environment == "production" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}

	// Set default JWT secret for development
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-production"
	}

	if cfg.BatchNumberPrefix == "" {
		return nil, fmt.Errorf("BATCH_NUMBER_PREFIX must not be empty")
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.DefaultPageSize < 1 || cfg.DefaultPageSize > 100 {
		return nil, fmt.Errorf("DEFAULT_PAGE_SIZE must be between 1 and 100, got %d", cfg.DefaultPageSize)
	}
	if cfg.AuditRetentionDays < 1 {
		return nil, fmt.Errorf("AUDIT_RETENTION_DAYS must be positive, got %d", cfg.AuditRetentionDays)
	}

	return cfg, nil
}
