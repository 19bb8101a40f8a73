// Package geo acquires geolocation fixes for check-in requests.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lumameet/presenced/internal/config"
	"github.com/lumameet/presenced/internal/domain"
)

// Fix is a one-shot geolocation result.
type Fix struct {
	Point      domain.GeoPoint
	AcquiredAt time.Time
}

// Provider produces a current position, bounded by the configured timeout.
// Implementations may serve a cached fix no older than the configured maximum
// fix age to reduce latency.
type Provider interface {
	Position(ctx context.Context) (Fix, error)
}

// FromConfig builds a Provider from configuration. Returns nil when geolocation
// is disabled; callers must treat a nil provider as missing capability.
func FromConfig(cfg config.GeoConfig) Provider {
	switch cfg.Mode {
	case "static":
		return &StaticProvider{Point: domain.GeoPoint{Lat: cfg.Lat, Lng: cfg.Lng}}
	case "helper":
		return NewHelperProvider(cfg.HelperURL, cfg.Timeout, cfg.MaxFixAge)
	default:
		return nil
	}
}

// StaticProvider returns a fixed coordinate. Used for kiosk-style deployments
// where the device does not move.
type StaticProvider struct {
	Point domain.GeoPoint
}

// Position returns the configured coordinate.
func (p *StaticProvider) Position(_ context.Context) (Fix, error) {
	return Fix{Point: p.Point, AcquiredAt: time.Now()}, nil
}

// HelperProvider queries a local location helper endpoint for the device
// position. The helper is whatever platform service exposes GPS/WiFi fixes as
// JSON; a fix is cached and reused while younger than maxFixAge.
type HelperProvider struct {
	url       string
	timeout   time.Duration
	maxFixAge time.Duration
	client    *http.Client

	mu   sync.Mutex
	last *Fix
}

// NewHelperProvider creates a provider backed by the helper endpoint.
func NewHelperProvider(url string, timeout, maxFixAge time.Duration) *HelperProvider {
	return &HelperProvider{
		url:       url,
		timeout:   timeout,
		maxFixAge: maxFixAge,
		client:    &http.Client{Timeout: timeout},
	}
}

type helperResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Position returns a cached fix when fresh enough, otherwise queries the
// helper endpoint.
func (p *HelperProvider) Position(ctx context.Context) (Fix, error) {
	p.mu.Lock()
	if p.last != nil && time.Since(p.last.AcquiredAt) <= p.maxFixAge {
		fix := *p.last
		p.mu.Unlock()
		slog.Debug("Serving cached geolocation fix", "age", time.Since(fix.AcquiredAt))
		return fix, nil
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Fix{}, &PositionError{Kind: KindUnavailable, Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return Fix{}, &PositionError{Kind: KindTimeout, Err: err}
		}
		return Fix{}, &PositionError{Kind: KindUnavailable, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("Failed to close helper response body", "error", closeErr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return Fix{}, &PositionError{Kind: KindDenied}
	case resp.StatusCode != http.StatusOK:
		return Fix{}, &PositionError{
			Kind: KindUnavailable,
			Err:  fmt.Errorf("helper returned status %d", resp.StatusCode),
		}
	}

	var body helperResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Fix{}, &PositionError{Kind: KindUnavailable, Err: fmt.Errorf("decode helper response: %w", err)}
	}

	fix := Fix{
		Point:      domain.GeoPoint{Lat: body.Lat, Lng: body.Lng},
		AcquiredAt: time.Now(),
	}

	p.mu.Lock()
	p.last = &fix
	p.mu.Unlock()

	return fix, nil
}
