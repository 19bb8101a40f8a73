// Package state provides durable local storage for the presence agent.
package state

import (
	"context"

	"github.com/lumameet/presenced/internal/domain"
)

// Store persists the active presence session and device identity across agent
// restarts. A persisted session is what lets a restart restore "still checked
// in" state.
type Store interface {
	// GetSession retrieves the persisted presence session, or nil if none.
	GetSession(ctx context.Context) (*domain.Session, error)

	// SaveSession persists the presence session, replacing any prior one.
	SaveSession(ctx context.Context, session *domain.Session) error

	// ClearSession removes the persisted presence session.
	ClearSession(ctx context.Context) error

	// DeviceID retrieves the persisted device identity, or "" if none.
	DeviceID(ctx context.Context) (string, error)

	// SaveDeviceID persists the device identity.
	SaveDeviceID(ctx context.Context, deviceID string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
