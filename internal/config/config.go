// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Driver names accepted by DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration. It is read once at startup;
// there are no runtime-configurable options.
type Config struct {
	Port             string
	FrontendURL      string
	DBDriver         string
	DBPath           string        // sqlite only
	DatabaseURL      string        // postgres only
	AssistantAPIURL  string
	DefaultLLMModel  string
	MaintenanceMode  bool
	SessionRetention time.Duration // 0 = keep sessions forever
	Transcript       TranscriptConfig
}

// TranscriptConfig controls NDJSON conversation transcript logging.
type TranscriptConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		FrontendURL:      getEnv("FRONTEND_URL", ""),
		DBDriver:         strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:           getEnv("DB_PATH", "./data/gitsight.db"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		AssistantAPIURL:  getEnv("ASSISTANT_API_URL", "http://localhost:8000"),
		DefaultLLMModel:  getEnv("DEFAULT_LLM_MODEL", "nemotron"),
		MaintenanceMode:  getEnvBool("MAINTENANCE_MODE", false),
		SessionRetention: getEnvDuration("SESSION_RETENTION", 0),
		Transcript: TranscriptConfig{
			Enabled:       getEnvBool("TRANSCRIPT_LOG_ENABLED", false),
			Dir:           getEnv("TRANSCRIPT_LOG_DIR", "./data/logs/transcripts"),
			GlobalEnabled: getEnvBool("TRANSCRIPT_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("TRANSCRIPT_LOG_GLOBAL_PATH", "./data/logs/transcripts/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.AssistantAPIURL == "" {
		return fmt.Errorf("ASSISTANT_API_URL cannot be empty")
	}
	if c.SessionRetention < 0 {
		return fmt.Errorf("SESSION_RETENTION cannot be negative")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_LOG_DIR cannot be empty")
	}
	if c.Transcript.GlobalEnabled && c.Transcript.GlobalPath == "" {
		return fmt.Errorf("TRANSCRIPT_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.Transcript.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
