// ABOUTME: Runtime configuration for the player and test producer
// ABOUTME: Reads .env and environment variables; CLI flags override the result
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds player settings from the environment and CLI flags
type Config struct {
	// Producer
	ServerAddr string // host:port, empty means discover via mDNS
	Name       string

	// Output
	Backend      string // "oto", "malgo" or "portaudio"
	PollInterval time.Duration
	Volume       int

	// Playback
	Enabled       bool
	MaxQueueDepth int

	// Logging
	LogLevel string
	LogFile  string

	// Metrics listen address, empty disables the exporter
	MetricsAddr string
}

// Load reads configuration from .env (if present) and the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables only")
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "pcm-player"
	}

	cfg := &Config{
		ServerAddr: os.Getenv("PCM_SERVER"),
		Name:       getEnvOrDefault("PCM_NAME", hostname+"-player"),

		Backend:      getEnvOrDefault("PCM_BACKEND", "oto"),
		PollInterval: time.Duration(getIntEnvOrDefault("PCM_POLL_MS", 5)) * time.Millisecond,
		Volume:       getIntEnvOrDefault("PCM_VOLUME", 100),

		Enabled:       getBoolEnvOrDefault("PCM_ENABLED", false),
		MaxQueueDepth: getIntEnvOrDefault("PCM_MAX_QUEUE", 0),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:  getEnvOrDefault("PCM_LOG_FILE", "pcm-player.log"),

		MetricsAddr: os.Getenv("PCM_METRICS_ADDR"),
	}

	return cfg, cfg.Validate()
}

// Validate checks values that flags may also have set
func (c *Config) Validate() error {
	switch c.Backend {
	case "oto", "malgo", "portaudio":
	default:
		return fmt.Errorf("PCM_BACKEND must be 'oto', 'malgo' or 'portaudio', got %q", c.Backend)
	}

	if c.Volume < 0 || c.Volume > 100 {
		return fmt.Errorf("PCM_VOLUME must be between 0 and 100, got %d", c.Volume)
	}

	if c.MaxQueueDepth < 0 {
		return fmt.Errorf("PCM_MAX_QUEUE must not be negative, got %d", c.MaxQueueDepth)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("PCM_POLL_MS must be positive")
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return nil
}

// Level returns the parsed log level, falling back to info
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-numeric value")
	}
	return defaultValue
}

func getBoolEnvOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-boolean value")
	}
	return defaultValue
}
