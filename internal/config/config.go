// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// VaultKey is the hex-encoded 32-byte key for message bodies at rest.
	// Empty disables encryption (bodies pass through unchanged).
	VaultKey string

	// AdminMode appends the reference-citation instruction block to every
	// assembled context.
	AdminMode bool

	Session SessionAPIConfig
}

// SessionAPIConfig configures the external session API client.
type SessionAPIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/convopilot.db"),
		VaultKey:    getEnv("VAULT_KEY", ""),
		AdminMode:   getEnvBool("ADMIN_MODE", false),
		Session: SessionAPIConfig{
			BaseURL:        getEnv("SESSION_API_URL", ""),
			APIKey:         getEnv("SESSION_API_KEY", ""),
			Model:          getEnv("SESSION_API_MODEL", ""),
			RequestTimeout: time.Duration(getEnvInt("SESSION_API_TIMEOUT_SECONDS", 60)) * time.Second,
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
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Session.BaseURL == "" {
		return fmt.Errorf("SESSION_API_URL cannot be empty")
	}
	if c.Session.RequestTimeout <= 0 {
		return fmt.Errorf("SESSION_API_TIMEOUT_SECONDS must be > 0")
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
