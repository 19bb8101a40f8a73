package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/lumameet/presenced/internal/presence"
)

// StreamHandler pushes live presence updates to connected UI clients over a
// WebSocket. Each connection gets its own store subscription; the store drops
// updates for a client that stops reading instead of stalling the state
// machine.
type StreamHandler struct {
	store         *presence.Store
	allowedOrigin string
	isDev         bool
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(store *presence.Store, allowedOrigin string, isDev bool) *StreamHandler {
	return &StreamHandler{
		store:         store,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept stream WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close stream websocket", "error", closeErr)
		}
	}()

	clientID := uuid.NewString()
	updates := h.store.Subscribe(clientID)
	defer h.store.Unsubscribe(clientID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	slog.Info("Stream client connected", "client_id", clientID, "ip", r.RemoteAddr)

	// Read loop: the UI sends nothing meaningful; reading surfaces the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				if websocket.CloseStatus(err) != -1 {
					slog.Debug("Stream closed by client", "client_id", clientID)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stream client disconnected", "client_id", clientID)
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			frame, err := json.Marshal(update)
			if err != nil {
				slog.Warn("Failed to encode stream update", "error", err)
				continue
			}
			if err := ws.Write(ctx, websocket.MessageText, frame); err != nil {
				if ctx.Err() == nil {
					slog.Debug("Stream write error", "client_id", clientID, "error", err)
				}
				return
			}
		}
	}
}

func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Stream origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
