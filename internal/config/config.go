package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/trackflow/internal/attribution"
	"github.com/Priya8975/trackflow/internal/engine"
)

// Config holds all configuration for the application.
type Config struct {
	Port          string
	DatabaseURL   string
	RedisURL      string
	NumWorkers    int
	LogLevel      slog.Level
	PublicBaseURL string
	MigrationsDir string

	AttributionModel  attribution.Model
	AttributionWindow time.Duration
	TimeDecayHalfLife time.Duration

	ShortCodeLength int
	TrackRateLimit  int // per visitor per window; 0 disables limiting
	RateLimitWindow time.Duration

	CRMWebhookURL    string
	CRMWebhookSecret string
	CRMBreaker       engine.BreakerConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	model, err := attribution.ParseModel(getEnv("ATTRIBUTION_MODEL", string(attribution.LastTouch)))
	if err != nil {
		return nil, fmt.Errorf("ATTRIBUTION_MODEL: %w", err)
	}

	breaker := engine.DefaultBreakerConfig()
	breaker.Threshold = getEnvInt("CRM_BREAKER_THRESHOLD", breaker.Threshold)
	breaker.Cooldown = getEnvDuration("CRM_BREAKER_COOLDOWN", breaker.Cooldown)
	if breaker.Threshold <= 0 {
		return nil, fmt.Errorf("CRM_BREAKER_THRESHOLD must be positive")
	}

	const day = 24 * time.Hour
	return &Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       dbURL,
		RedisURL:          redisURL,
		NumWorkers:        getEnvInt("NUM_WORKERS", 20),
		LogLevel:          getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		PublicBaseURL:     getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		MigrationsDir:     getEnv("MIGRATIONS_DIR", "migrations"),
		AttributionModel:  model,
		AttributionWindow: time.Duration(getEnvFloat("ATTRIBUTION_WINDOW_DAYS", 90) * float64(day)),
		TimeDecayHalfLife: time.Duration(getEnvFloat("TIME_DECAY_HALF_LIFE_DAYS", 7) * float64(day)),
		ShortCodeLength:   getEnvInt("SHORT_CODE_LENGTH", 6),
		TrackRateLimit:    getEnvInt("TRACK_RATE_LIMIT", 20),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Second),
		CRMWebhookURL:     getEnv("CRM_WEBHOOK_URL", ""),
		CRMWebhookSecret:  getEnv("CRM_WEBHOOK_SECRET", ""),
		CRMBreaker:        breaker,
	}, nil
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

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("45s", "2m") or a bare number of
// seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	switch strings.ToLower(os.Getenv(key)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
