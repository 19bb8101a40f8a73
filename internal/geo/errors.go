package geo

import (
	"errors"
	"fmt"
)

// ErrUnsupported reports that no geolocation capability is configured.
// Actions that need a fix must fail before any network call is made.
var ErrUnsupported = errors.New("geolocation is not supported on this device")

// PositionKind classifies geolocation failures.
type PositionKind int

const (
	// KindDenied means location permission was denied.
	KindDenied PositionKind = iota
	// KindTimeout means the fix did not arrive within the configured timeout.
	KindTimeout
	// KindUnavailable means position information could not be determined.
	KindUnavailable
)

// PositionError is a recoverable geolocation failure; the user may retry.
type PositionError struct {
	Kind PositionKind
	Err  error
}

func (e *PositionError) Error() string {
	switch e.Kind {
	case KindDenied:
		return "location permission denied"
	case KindTimeout:
		return "location request timed out"
	default:
		if e.Err != nil {
			return fmt.Sprintf("location information is unavailable: %v", e.Err)
		}
		return "location information is unavailable"
	}
}

func (e *PositionError) Unwrap() error { return e.Err }

// IsPositionError reports whether err is a geolocation failure.
func IsPositionError(err error) bool {
	var pe *PositionError
	return errors.As(err, &pe)
}
