package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/lumameet/presenced/internal/domain"
	"github.com/lumameet/presenced/internal/geo"
	"github.com/lumameet/presenced/internal/presence"
	"github.com/lumameet/presenced/internal/push"
	"github.com/lumameet/presenced/internal/transport"
)

type stubAPI struct {
	checkInErr error
	roster     []domain.Attendee
}

func (s *stubAPI) CheckIn(_ context.Context, _ string, _ domain.GeoPoint) error { return s.checkInErr }
func (s *stubAPI) CheckOut(_ context.Context, _ string) error                   { return nil }
func (s *stubAPI) Roster(_ context.Context, _ string) ([]domain.Attendee, error) {
	return s.roster, nil
}

type stubChannel struct{}

func (stubChannel) On(_ string, _ push.Handler)                 {}
func (stubChannel) Off(_ string)                                {}
func (stubChannel) JoinRoom(_ context.Context, _ string) error  { return nil }
func (stubChannel) LeaveRoom(_ context.Context, _ string) error { return nil }

type stubGeo struct {
	err error
}

func (s *stubGeo) Position(_ context.Context) (geo.Fix, error) {
	if s.err != nil {
		return geo.Fix{}, s.err
	}
	return geo.Fix{Point: domain.GeoPoint{Lat: 1, Lng: 2}}, nil
}

type stubSessions struct {
	sess *domain.Session
}

func (s *stubSessions) GetSession(_ context.Context) (*domain.Session, error) { return s.sess, nil }
func (s *stubSessions) SaveSession(_ context.Context, sess *domain.Session) error {
	s.sess = sess
	return nil
}
func (s *stubSessions) ClearSession(_ context.Context) error           { s.sess = nil; return nil }
func (s *stubSessions) DeviceID(_ context.Context) (string, error)     { return "", nil }
func (s *stubSessions) SaveDeviceID(_ context.Context, _ string) error { return nil }
func (s *stubSessions) Ping(_ context.Context) error                   { return nil }
func (s *stubSessions) Close() error                                   { return nil }

func newTestRouter(api *stubAPI, provider geo.Provider) *chi.Mux {
	orc := presence.NewOrchestrator(api, stubChannel{}, provider, presence.NewStore(), &stubSessions{})
	h := NewHandler(orc, true)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestHandleSnapshot(t *testing.T) {
	r := newTestRouter(&stubAPI{}, &stubGeo{})

	req := httptest.NewRequest(http.MethodGet, "/api/presence", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var snap domain.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if snap.CheckedIn {
		t.Error("Expected checked_in false for fresh state")
	}
}

func TestHandleCheckIn_Success(t *testing.T) {
	r := newTestRouter(&stubAPI{roster: []domain.Attendee{{ID: "a"}}}, &stubGeo{})

	body := `{"venue": {"id": "e1", "name": "Rooftop Social"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/checkin", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var snap domain.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if !snap.CheckedIn || snap.Venue == nil || snap.Venue.ID != "e1" {
		t.Errorf("Expected checked-in snapshot for e1, got %+v", snap)
	}
}

func TestHandleCheckIn_MissingVenueID(t *testing.T) {
	r := newTestRouter(&stubAPI{}, &stubGeo{})

	req := httptest.NewRequest(http.MethodPost, "/api/checkin", strings.NewReader(`{"venue": {}}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestHandleCheckIn_InvalidBody(t *testing.T) {
	r := newTestRouter(&stubAPI{}, &stubGeo{})

	req := httptest.NewRequest(http.MethodPost, "/api/checkin", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestHandleCheckIn_TooFar(t *testing.T) {
	alternate := &domain.Venue{ID: "e2", Name: "Closer Meetup", Coordinate: &domain.GeoPoint{Lat: 3, Lng: 4}}
	api := &stubAPI{checkInErr: &transport.TooFarError{Alternate: alternate, Origin: domain.GeoPoint{Lat: 1, Lng: 2}}}
	r := newTestRouter(api, &stubGeo{})

	body := `{"venue": {"id": "e1"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/checkin", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", w.Code)
	}

	var resp struct {
		Error         string        `json:"error"`
		Alternate     *domain.Venue `json:"alternate"`
		DirectionsURL string        `json:"directions_url"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Error != "too_far" {
		t.Errorf("Expected too_far error code, got %q", resp.Error)
	}
	if resp.Alternate == nil || resp.Alternate.ID != "e2" {
		t.Errorf("Expected alternate venue e2, got %v", resp.Alternate)
	}
	if resp.DirectionsURL == "" {
		t.Error("Expected a directions URL")
	}
}

func TestHandleCheckIn_NoGeoCapability(t *testing.T) {
	r := newTestRouter(&stubAPI{}, nil)

	body := `{"venue": {"id": "e1"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/checkin", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d", w.Code)
	}
}

func TestHandleCheckIn_PositionDenied(t *testing.T) {
	r := newTestRouter(&stubAPI{}, &stubGeo{err: &geo.PositionError{Kind: geo.KindDenied}})

	body := `{"venue": {"id": "e1"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/checkin", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d", w.Code)
	}
}

func TestHandleCheckOut_NotCheckedIn(t *testing.T) {
	r := newTestRouter(&stubAPI{}, &stubGeo{})

	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 no-op checkout, got %d", w.Code)
	}
}

func TestHandleNotices_EmptyIsArray(t *testing.T) {
	r := newTestRouter(&stubAPI{}, &stubGeo{})

	req := httptest.NewRequest(http.MethodGet, "/api/notices", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("Expected empty JSON array, got %s", got)
	}
}
