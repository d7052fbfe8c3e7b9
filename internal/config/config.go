// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL    string
	TursoURL       string // Remote primary for embedded replica mode (optional)
	TursoAuthToken string

	// CORS
	CORSOrigins []string

	// Uploads and processing
	DataDir           string        // Filesystem store for model files when S3 is not configured
	MaxUploadSizeMB   int           // Upload size cap (default 50)
	MeshMaxTriangles  int           // Parser triangle ceiling (default 5,000,000)
	ProcessingTimeout time.Duration // Upper bound on parse + analysis of one model (default 2m)

	// Worker
	WorkerPollInterval        time.Duration // How often to poll for queued models (default 5s)
	WorkerConcurrency         int           // Number of concurrent workers (default 2)
	WorkerShutdownGracePeriod time.Duration // Max time to wait for running models during shutdown (default 30s)

	// Queue (optional Redis; in-process channel otherwise)
	RedisURL      string
	RedisQueueKey string

	// Lifecycle events (optional Kafka)
	KafkaBrokers []string
	KafkaTopic   string

	// Object Storage (Tigris/S3-compatible)
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string // Bucket name
	StorageRegion    string // Region (auto for Tigris)

	// Cleanup
	CleanupEnabled     bool          // Enable the periodic stale/orphan sweep
	CleanupInterval    time.Duration // How often to run cleanup (default 1h)
	StaleProcessingAge time.Duration // Processing longer than this is considered interrupted (default 10m)
	OrphanGracePeriod  time.Duration // Minimum age of an unreferenced file before removal (default 1h)

	// Text generation (OpenAI-compatible)
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	// Sampling temperature for generated texts (default 0.7)
	OpenAITemperature float64

	// Rate limiting (requests per minute per client IP, 0 disables)
	RateLimitPerMinute int

	// Scale-to-zero
	IdleTimeout time.Duration // Time before shutting down when idle (0 = disabled)
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first; variables already set take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:meshquote.db?_journal=WAL&_timeout=5000"),
		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		TursoURL:       getEnv("TURSO_URL", ""),
		TursoAuthToken: getEnv("TURSO_AUTH_TOKEN", ""),

		DataDir:           getEnv("DATA_DIR", "./data"),
		MaxUploadSizeMB:   getEnvInt("MAX_UPLOAD_SIZE_MB", 50),
		MeshMaxTriangles:  getEnvInt("MESH_MAX_TRIANGLES", 5_000_000),
		ProcessingTimeout: getEnvDuration("PROCESSING_TIMEOUT", 2*time.Minute),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisQueueKey: getEnv("REDIS_QUEUE_KEY", "meshquote:models:queued"),

		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "model.events"),

		// Object Storage (Tigris/S3-compatible) - uses Fly's standard env vars
		// BUCKET_NAME is set automatically by `fly storage create`
		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		OpenAITemperature:  getEnvFloat("OPENAI_TEMPERATURE", 0.7),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 300),
	}

	// Enable storage if bucket is configured
	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	// Cleanup configuration
	cfg.CleanupEnabled = getEnvBool("CLEANUP_ENABLED", true)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.StaleProcessingAge = getEnvDuration("STALE_PROCESSING_AGE", 10*time.Minute)
	cfg.OrphanGracePeriod = getEnvDuration("ORPHAN_GRACE_PERIOD", time.Hour)

	// Worker configuration
	cfg.WorkerPollInterval = getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second)
	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 2)
	cfg.WorkerShutdownGracePeriod = getEnvDuration("WORKER_SHUTDOWN_GRACE_PERIOD", 30*time.Second)

	cfg.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", 0) // 0 = disabled

	if cfg.MaxUploadSizeMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_SIZE_MB must be positive, got %d", cfg.MaxUploadSizeMB)
	}
	if cfg.WorkerConcurrency <= 0 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", cfg.WorkerConcurrency)
	}
	if cfg.MeshMaxTriangles <= 0 {
		return nil, fmt.Errorf("MESH_MAX_TRIANGLES must be positive, got %d", cfg.MeshMaxTriangles)
	}

	return cfg, nil
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) << 20
}

// QueueEnabled returns true if a Redis queue is configured.
func (c *Config) QueueEnabled() bool {
	return c.RedisURL != ""
}

// EventsEnabled returns true if Kafka brokers are configured.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// TextGenerationEnabled returns true if an OpenAI-compatible key is configured.
func (c *Config) TextGenerationEnabled() bool {
	return c.OpenAIAPIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}
