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
	APIBaseURL  string
	PushURL     string
	UIOrigin    string
	DBPath      string
	Geo         GeoConfig
	SweepEvery  time.Duration
	HTTPTimeout time.Duration
}

// GeoConfig controls how the agent acquires a geolocation fix.
type GeoConfig struct {
	Mode      string // "helper" = query the location helper endpoint, "static" = fixed coordinate, "none" = no capability
	HelperURL string
	Lat       float64
	Lng       float64
	Timeout   time.Duration
	MaxFixAge time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "7350"),
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:3001"),
		PushURL:     getEnv("PUSH_URL", ""),
		UIOrigin:    getEnv("UI_ORIGIN", ""),
		DBPath:      getEnv("DB_PATH", "./data/presence.db"),
		SweepEvery:  getEnvDuration("EXPIRY_SWEEP_INTERVAL", time.Minute),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 15*time.Second),
		Geo: GeoConfig{
			Mode:      getEnv("GEO_MODE", "helper"),
			HelperURL: getEnv("GEO_HELPER_URL", "http://localhost:7351/position"),
			Lat:       getEnvFloat("GEO_LAT", 0),
			Lng:       getEnvFloat("GEO_LNG", 0),
			Timeout:   getEnvDuration("GEO_TIMEOUT", 10*time.Second),
			MaxFixAge: getEnvDuration("GEO_MAX_FIX_AGE", 30*time.Second),
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
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.Geo.Mode {
	case "helper":
		if c.Geo.HelperURL == "" {
			return fmt.Errorf("GEO_HELPER_URL cannot be empty in helper mode")
		}
	case "static":
		// A (0, 0) static fix is almost certainly misconfiguration.
		if c.Geo.Lat == 0 && c.Geo.Lng == 0 {
			return fmt.Errorf("GEO_LAT/GEO_LNG must be set in static mode")
		}
	case "none":
	default:
		return fmt.Errorf("GEO_MODE must be one of helper, static, none")
	}
	if c.Geo.Timeout <= 0 {
		return fmt.Errorf("GEO_TIMEOUT must be > 0")
	}
	if c.SweepEvery <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be > 0")
	}
	return nil
}

// ResolvedPushURL returns the push channel URL, deriving it from the API base
// URL when PUSH_URL is not set explicitly.
func (c *Config) ResolvedPushURL() string {
	if c.PushURL != "" {
		return c.PushURL
	}
	url := c.APIBaseURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/socket"
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.UIOrigin == "" ||
		strings.Contains(c.UIOrigin, "localhost") ||
		strings.Contains(c.UIOrigin, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
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

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}
