package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the ingestion server.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// ReportRateLimit caps reports per DSN per minute; 0 disables.
	ReportRateLimit int

	// Retention window for alert history, performance events and the
	// occurrence time series.
	Retention         time.Duration
	RetentionSchedule string

	// AlertWorkers sizes the notification dispatch pool.
	AlertWorkers int

	// Notification settings.
	SMTPAddr      string
	SMTPFrom      string
	SMTPUsername  string
	SMTPPassword  string
	WebhookSecret string
}

// Load reads configuration from the environment, with an optional .env
// file for local development.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		ReportRateLimit:   getEnvInt("REPORT_RATE_LIMIT", 600),
		Retention:         getEnvDuration("RETENTION", 30*24*time.Hour),
		RetentionSchedule: getEnv("RETENTION_SCHEDULE", "@hourly"),
		AlertWorkers:      getEnvInt("ALERT_WORKERS", 4),
		SMTPAddr:          getEnv("SMTP_ADDR", ""),
		SMTPFrom:          getEnv("SMTP_FROM", "alerts@telescope.local"),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		WebhookSecret:     getEnv("WEBHOOK_SECRET", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
