package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config aggregates runtime configuration for the Grocery Buddy client.
type Config struct {
	APIURL       string
	TokenPath    string
	Passphrase   string
	CachePath    string
	PollInterval time.Duration
	LogLevel     string

	// Credentials for non-interactive sign-in when no stored session exists.
	Email    string
	Password string
}

// Load reads configuration from environment variables with defaults suitable
// for local use against a LAN backend.
func Load() (Config, error) {
	stateDir := getEnv("GROCERYBUDDY_STATE_DIR", defaultStateDir())

	cfg := Config{
		APIURL:     getEnv("GROCERYBUDDY_API_URL", "http://localhost:3000"),
		TokenPath:  getEnv("GROCERYBUDDY_TOKEN_PATH", filepath.Join(stateDir, "credentials")),
		Passphrase: os.Getenv("GROCERYBUDDY_PASSPHRASE"),
		CachePath:  getEnv("GROCERYBUDDY_CACHE_PATH", filepath.Join(stateDir, "cache.db")),
		LogLevel:   getEnv("GROCERYBUDDY_LOG_LEVEL", "info"),
		Email:      os.Getenv("GROCERYBUDDY_EMAIL"),
		Password:   os.Getenv("GROCERYBUDDY_PASSWORD"),
	}

	intervalValue := getEnv("GROCERYBUDDY_POLL_INTERVAL", "10s")
	interval, err := time.ParseDuration(intervalValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid poll interval %q: %w", intervalValue, err)
	}
	if interval <= 0 {
		return Config{}, fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	cfg.PollInterval = interval

	if cfg.Passphrase == "" {
		return Config{}, fmt.Errorf("GROCERYBUDDY_PASSPHRASE is not set")
	}

	return cfg, nil
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".grocerybuddy"
	}
	return filepath.Join(home, ".grocerybuddy")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
