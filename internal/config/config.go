package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerURL  string
	PipelineID string
	Width      int
	Height     int
	Seed       *int64
	InputMode  string
	LogLevel   string
}

// Load reads configuration from a .env file (if present) and environment
// variables. Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	serverURL := os.Getenv("DW_SERVER_URL")
	if serverURL == "" {
		return nil, fmt.Errorf("DW_SERVER_URL environment variable is required")
	}

	pipelineID := os.Getenv("DW_PIPELINE_ID")
	if pipelineID == "" {
		return nil, fmt.Errorf("DW_PIPELINE_ID environment variable is required")
	}

	cfg := &Config{
		ServerURL:  serverURL,
		PipelineID: pipelineID,
		Width:      intEnv("DW_WIDTH", 512),
		Height:     intEnv("DW_HEIGHT", 512),
		InputMode:  envOr("DW_INPUT_MODE", "video"),
		LogLevel:   envOr("DW_LOG_LEVEL", "info"),
	}

	if raw := os.Getenv("DW_SEED"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("DW_SEED must be an integer: %w", err)
		}
		cfg.Seed = &seed
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
