package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "7350" {
		t.Errorf("Expected port 7350, got %s", cfg.Port)
	}
	if cfg.APIBaseURL != "http://localhost:3001" {
		t.Errorf("Expected default API base URL, got %s", cfg.APIBaseURL)
	}
	if cfg.Geo.Mode != "helper" {
		t.Errorf("Expected helper geo mode, got %s", cfg.Geo.Mode)
	}
	if cfg.SweepEvery != time.Minute {
		t.Errorf("Expected 1m sweep interval, got %v", cfg.SweepEvery)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("GEO_MODE", "static")
	t.Setenv("GEO_LAT", "52.37")
	t.Setenv("GEO_LNG", "4.89")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Port)
	}
	if cfg.Geo.Lat != 52.37 || cfg.Geo.Lng != 4.89 {
		t.Errorf("Expected static coordinates, got %v,%v", cfg.Geo.Lat, cfg.Geo.Lng)
	}
	if cfg.SweepEvery != 30*time.Second {
		t.Errorf("Expected 30s sweep interval, got %v", cfg.SweepEvery)
	}
}

func TestLoad_MalformedDurationFallsBack(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPTimeout != 15*time.Second {
		t.Errorf("Expected fallback timeout, got %v", cfg.HTTPTimeout)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:       "7350",
		APIBaseURL: "http://localhost:3001",
		DBPath:     "./data/presence.db",
		SweepEvery: time.Minute,
		Geo:        GeoConfig{Mode: "none", Timeout: 10 * time.Second},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	missingPort := valid
	missingPort.Port = ""
	if err := missingPort.Validate(); err == nil {
		t.Error("Expected error for empty port")
	}

	badMode := valid
	badMode.Geo.Mode = "gps"
	if err := badMode.Validate(); err == nil {
		t.Error("Expected error for unknown geo mode")
	}

	staticNoCoords := valid
	staticNoCoords.Geo.Mode = "static"
	if err := staticNoCoords.Validate(); err == nil {
		t.Error("Expected error for static mode without coordinates")
	}

	helperNoURL := valid
	helperNoURL.Geo.Mode = "helper"
	if err := helperNoURL.Validate(); err == nil {
		t.Error("Expected error for helper mode without URL")
	}
}

func TestResolvedPushURL(t *testing.T) {
	explicit := Config{PushURL: "wss://push.example.com/socket"}
	if got := explicit.ResolvedPushURL(); got != "wss://push.example.com/socket" {
		t.Errorf("Expected explicit push URL, got %s", got)
	}

	derivedHTTP := Config{APIBaseURL: "http://localhost:3001"}
	if got := derivedHTTP.ResolvedPushURL(); got != "ws://localhost:3001/socket" {
		t.Errorf("Expected ws derivation, got %s", got)
	}

	derivedHTTPS := Config{APIBaseURL: "https://api.example.com"}
	if got := derivedHTTPS.ResolvedPushURL(); got != "wss://api.example.com/socket" {
		t.Errorf("Expected wss derivation, got %s", got)
	}
}

func TestIsDevelopment(t *testing.T) {
	dev := Config{UIOrigin: "http://localhost:5173"}
	if !dev.IsDevelopment() {
		t.Error("Expected localhost origin to count as development")
	}

	unset := Config{}
	if !unset.IsDevelopment() {
		t.Error("Expected empty origin to count as development")
	}

	prod := Config{UIOrigin: "https://app.example.com"}
	if prod.IsDevelopment() {
		t.Error("Expected production origin to not count as development")
	}
}
