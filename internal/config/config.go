package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the collector
type Config struct {
	// Stops
	StopsFile string `validate:"required"`

	// Upstream
	LuasBaseURL    string        `validate:"required,url"`
	FetchTimeout   time.Duration `validate:"gte=0"`
	FetchRateLimit float64       `validate:"gte=0"`
	FetchBurst     int           `validate:"gte=1"`

	// Scheduling
	PollInterval        time.Duration `validate:"gt=0"`
	RunOnStart          bool
	OverlapPolicy       string `validate:"oneof=skip overlap"`
	MaxConcurrentCycles int    `validate:"gte=1"`

	// Aggregation
	FailurePolicy string `validate:"oneof=drop partial retry"`
	RetryAttempts int    `validate:"gte=0,lte=10"`
	MaxInFlight   int    `validate:"gte=0"`

	// Snapshot files
	HistoricDir string `validate:"required"`
	Timezone    string `validate:"required"`
	Location    *time.Location `validate:"-"`

	// Relational sinks, empty disables
	SQLiteDatabase    string
	RetentionDuration time.Duration `validate:"gte=0"`
	DatabaseURL       string        `validate:"omitempty,url"`

	// Status endpoint, empty disables
	StatusPort string `validate:"omitempty,numeric"`
}

// Load reads configuration from environment variables with defaults and validates it
func Load() (*Config, error) {
	cfg := &Config{
		StopsFile: getEnv("STOPS_FILE", "data/luas-stops.txt"),

		LuasBaseURL:    getEnv("LUAS_BASE_URL", "https://luasforecasts.rpa.ie/analysis/view.aspx"),
		FetchTimeout:   time.Duration(getEnvInt("FETCH_TIMEOUT", 15)) * time.Second,
		FetchRateLimit: getEnvFloat("FETCH_RATE_LIMIT", 0),
		FetchBurst:     getEnvInt("FETCH_BURST", 1),

		PollInterval:        time.Duration(getEnvInt("POLL_INTERVAL", 60)) * time.Second,
		RunOnStart:          getEnvBool("RUN_ON_START", true),
		OverlapPolicy:       getEnvLower("OVERLAP_POLICY", "skip"),
		MaxConcurrentCycles: getEnvInt("MAX_CONCURRENT_CYCLES", 2),

		FailurePolicy: getEnvLower("FAILURE_POLICY", "drop"),
		RetryAttempts: getEnvInt("RETRY_ATTEMPTS", 1),
		MaxInFlight:   getEnvInt("MAX_IN_FLIGHT", 0),

		HistoricDir: getEnv("HISTORIC_DIR", "historic"),
		Timezone:    getEnv("TIMEZONE", "UTC"),

		SQLiteDatabase:    os.Getenv("SQLITE_DATABASE"),
		RetentionDuration: time.Duration(getEnvInt("RETENTION_HOURS", 168)) * time.Hour,
		DatabaseURL:       postgresURL(),

		StatusPort: getEnv("STATUS_PORT", "8080"),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

// Validate checks field constraints
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// postgresURL returns DATABASE_URL, or builds one from the archive database
// variables. Empty when neither is configured.
func postgresURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}

	host := os.Getenv("REALTIME_DB_SERVERNAME")
	if host == "" {
		return ""
	}

	u := &url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + getEnv("REALTIME_DB_PORT", "5432"),
		Path:     "/" + os.Getenv("LUAS_ARCHIVE_DB_NAME"),
		RawQuery: "sslmode=" + getEnv("REALTIME_DB_SSLMODE", "require"),
	}
	if user := os.Getenv("REALTIME_DB_USER"); user != "" {
		u.User = url.UserPassword(user, os.Getenv("REALTIME_DB_PASSWORD"))
	}
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvLower reads an enum value, trimmed and lowercased
func getEnvLower(key, defaultValue string) string {
	if value := strings.ToLower(strings.TrimSpace(os.Getenv(key))); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
