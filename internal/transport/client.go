// Package transport implements the HTTP client for the remote product API.
//
// Requests are credential-bearing: the cookie jar holds session cookies and
// every request carries the device identity header. A request rejected with an
// expired-session 401 is replayed exactly once after a token refresh.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/lumameet/presenced/internal/domain"
	"github.com/lumameet/presenced/internal/identity"
)

// tooFarMessage is the backend's check-in rejection for a user outside the
// venue's check-in radius.
const tooFarMessage = "User is too far away from the event, and must get directions."

// Client talks to the remote product API.
type Client struct {
	baseURL  string
	deviceID string
	http     *http.Client

	// refreshMu single-flights token refreshes: concurrent 401s must not
	// fire parallel refresh requests.
	refreshMu sync.Mutex
}

// NewClient creates an API client rooted at baseURL.
func NewClient(baseURL, deviceID string, timeout time.Duration) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Client{
		baseURL:  baseURL,
		deviceID: deviceID,
		http: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
	}, nil
}

type checkInResponse struct {
	Message  string     `json:"message"`
	NewEvent *wireEvent `json:"newEvent"`
}

// CheckIn submits a check-in at the venue with the given coordinates.
// A too-far rejection is returned as *TooFarError carrying the server's
// suggested alternate venue.
func (c *Client) CheckIn(ctx context.Context, venueID string, point domain.GeoPoint) error {
	body := map[string]float64{"lat": point.Lat, "lng": point.Lng}

	var resp checkInResponse
	if err := c.do(ctx, http.MethodPost, "/events/"+venueID+"/checkin", body, &resp); err != nil {
		return err
	}

	if resp.Message == tooFarMessage || resp.NewEvent != nil {
		return &TooFarError{Alternate: resp.NewEvent.toVenue(), Origin: point}
	}
	return nil
}

// CheckOut submits a checkout from the venue.
func (c *Client) CheckOut(ctx context.Context, venueID string) error {
	return c.do(ctx, http.MethodPost, "/events/"+venueID+"/checkout", nil, nil)
}

// Roster fetches the users currently checked in at the venue.
func (c *Client) Roster(ctx context.Context, venueID string) ([]domain.Attendee, error) {
	var users []wireUser
	if err := c.do(ctx, http.MethodGet, "/events/"+venueID+"/users", nil, &users); err != nil {
		return nil, err
	}

	roster := make([]domain.Attendee, 0, len(users))
	for _, u := range users {
		roster = append(roster, u.toAttendee())
	}
	return roster, nil
}

// RefreshToken refreshes the session token. Exposed for startup probing; the
// client also calls it internally on an expired-session 401.
func (c *Client) RefreshToken(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Client) refreshLocked(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/refresh-token", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Message: "token refresh failed"}
	}
	return nil
}

type errorBody struct {
	Message      string `json:"message"`
	Error        string `json:"error"`
	TokenExpired bool   `json:"tokenExpired"`
}

// do performs a JSON request and decodes the response into out (when non-nil).
// On a 401 with tokenExpired set, the token is refreshed and the request is
// replayed once; a second 401 fails.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		var eb errorBody
		decodeErr := json.NewDecoder(resp.Body).Decode(&eb)
		drainAndClose(resp.Body)

		if decodeErr != nil || !eb.TokenExpired {
			return &APIError{Status: http.StatusUnauthorized, Message: eb.Message}
		}

		slog.Debug("Session token expired, refreshing and replaying", "method", method, "path", path)
		if err := c.RefreshToken(ctx); err != nil {
			return fmt.Errorf("session expired and refresh failed: %w", err)
		}

		resp, err = c.send(ctx, method, path, payload)
		if err != nil {
			return err
		}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		msg := ""
		if err := json.NewDecoder(resp.Body).Decode(&eb); err == nil {
			msg = eb.Message
			if msg == "" {
				msg = eb.Error
			}
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identity.HeaderName, c.deviceID)
	return req, nil
}

func drainAndClose(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, io.LimitReader(body, 4096)); err != nil {
		slog.Debug("Failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Debug("Failed to close response body", "error", err)
	}
}
