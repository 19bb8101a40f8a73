package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/containerd/errdefs"
	"github.com/lumameet/presenced/internal/domain"
)

// TooFarError is the business-rule rejection of a check-in: the user is
// geographically too far from the venue. The server suggests a nearer or
// alternate venue, which the UI can turn into a directions affordance.
type TooFarError struct {
	Alternate *domain.Venue
	Origin    domain.GeoPoint
}

func (e *TooFarError) Error() string {
	return "too far from the venue to check in"
}

// IsTooFar reports whether err is a too-far rejection.
func IsTooFar(err error) bool {
	var tf *TooFarError
	return errors.As(err, &tf)
}

// APIError is a generic request failure carrying the server's message.
// Unwrap maps well-known statuses onto errdefs sentinels so callers can
// classify with errdefs.IsNotFound and friends.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (status %d)", e.Status)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return errdefs.ErrNotFound
	case http.StatusForbidden:
		return errdefs.ErrPermissionDenied
	case http.StatusUnauthorized:
		return errdefs.ErrUnauthenticated
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return errdefs.ErrUnavailable
	default:
		return nil
	}
}
