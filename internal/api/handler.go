// Package api provides the local HTTP surface consumed by the UI shell.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lumameet/presenced/internal/domain"
	"github.com/lumameet/presenced/internal/geo"
	"github.com/lumameet/presenced/internal/presence"
	"github.com/lumameet/presenced/internal/transport"
)

// Handler exposes the presence state machine over the local API.
type Handler struct {
	orc   *presence.Orchestrator
	isDev bool
}

// NewHandler creates a new Handler.
func NewHandler(orc *presence.Orchestrator, isDev bool) *Handler {
	return &Handler{orc: orc, isDev: isDev}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes mounts the presence endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/presence", h.handleSnapshot)
	r.Post("/api/checkin", h.handleCheckIn)
	r.Post("/api/checkout", h.handleCheckOut)
	r.Get("/api/notices", h.handleNotices)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.orc.Store().Snapshot())
}

type checkInRequest struct {
	Venue domain.Venue `json:"venue"`
}

// tooFarResponse carries the server-suggested alternate venue and a
// ready-made directions link for the UI's "get directions" affordance.
type tooFarResponse struct {
	Error         string        `json:"error"`
	Message       string        `json:"message"`
	Alternate     *domain.Venue `json:"alternate,omitempty"`
	DirectionsURL string        `json:"directions_url,omitempty"`
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Venue.ID == "" {
		Error(w, http.StatusBadRequest, "venue id is required")
		return
	}

	err := h.orc.CheckIn(r.Context(), req.Venue)
	if err == nil {
		JSON(w, http.StatusOK, h.orc.Store().Snapshot())
		return
	}

	var tooFar *transport.TooFarError
	switch {
	case errors.As(err, &tooFar):
		JSON(w, http.StatusConflict, tooFarResponse{
			Error:         "too_far",
			Message:       "You are too far from the venue to check in.",
			Alternate:     tooFar.Alternate,
			DirectionsURL: tooFar.Alternate.DirectionsURL(tooFar.Origin),
		})
	case errors.Is(err, presence.ErrInFlight):
		Error(w, http.StatusConflict, "another presence operation is in flight")
	case errors.Is(err, geo.ErrUnsupported):
		Error(w, http.StatusUnprocessableEntity, "geolocation is not supported on this device")
	case geo.IsPositionError(err):
		Error(w, http.StatusUnprocessableEntity, err.Error())
	default:
		Error(w, http.StatusBadGateway, err.Error())
	}
}

func (h *Handler) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	err := h.orc.CheckOut(r.Context())
	if err == nil {
		JSON(w, http.StatusOK, h.orc.Store().Snapshot())
		return
	}

	if errors.Is(err, presence.ErrInFlight) {
		Error(w, http.StatusConflict, "another presence operation is in flight")
		return
	}
	Error(w, http.StatusBadGateway, err.Error())
}

func (h *Handler) handleNotices(w http.ResponseWriter, r *http.Request) {
	notices := h.orc.Store().DrainNotices()
	if notices == nil {
		notices = []domain.Notice{}
	}
	JSON(w, http.StatusOK, notices)
}
