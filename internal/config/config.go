package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Filesystem
	TempDir   string // Session-scoped upload storage
	OutputDir string // Rendered clip storage

	// Notification
	WebhookURL string // Optional: empty disables the completion webhook

	// Rendering
	CaptionFontPath string // Optional: empty or missing file disables caption overlays

	// Worker
	MaxConcurrentJobs      int
	RenderTimeoutMinutes   int
	OutputRetentionMinutes int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:                getEnv("API_PORT", "8080"),
		WorkerEnabled:          getEnvBool("WORKER_ENABLED", true),
		CorsAllowedOrigins:     getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisURL:               getEnv("REDIS_URL", "redis://localhost:6379"),
		TempDir:                getEnv("TEMP_DIR", "/tmp/clipstitch/uploads"),
		OutputDir:              getEnv("OUTPUT_DIR", "/tmp/clipstitch/output"),
		WebhookURL:             getEnv("WEBHOOK_URL", ""),
		CaptionFontPath:        getEnv("CAPTION_FONT_PATH", ""),
		MaxConcurrentJobs:      getEnvInt("MAX_CONCURRENT_JOBS", 2),
		RenderTimeoutMinutes:   getEnvInt("RENDER_TIMEOUT_MINUTES", 15),
		OutputRetentionMinutes: getEnvInt("OUTPUT_RETENTION_MINUTES", 10),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.MaxConcurrentJobs < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
