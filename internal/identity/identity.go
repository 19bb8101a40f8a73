// Package identity provides anonymous per-device identity primitives.
//
// The agent identifies itself to the backend with an opaque device ID sent on
// every request and on the push-channel handshake. The ID carries no account
// semantics; account credentials live in the transport's cookie jar.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/lumameet/presenced/internal/state"
)

// HeaderName is the HTTP header carrying the device identity.
const HeaderName = "X-Device-ID"

var deviceIDPattern = regexp.MustCompile(`^dev_[a-f0-9]{32}$`)

// Generate creates a new random device ID.
func Generate() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate device id: %w", err)
	}
	return "dev_" + hex.EncodeToString(buf), nil
}

// IsValid reports whether id is a well-formed device ID.
func IsValid(id string) bool {
	return deviceIDPattern.MatchString(id)
}

// Ensure loads the persisted device ID, generating and persisting a new one
// when none exists or the stored value is malformed.
func Ensure(ctx context.Context, store state.Store) (string, error) {
	id, err := store.DeviceID(ctx)
	if err != nil {
		return "", fmt.Errorf("load device id: %w", err)
	}
	if IsValid(id) {
		return id, nil
	}

	id, err = Generate()
	if err != nil {
		return "", err
	}
	if err := store.SaveDeviceID(ctx, id); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}
