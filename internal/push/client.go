// Package push maintains the persistent push-channel connection that delivers
// presence events from the server without polling.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/lumameet/presenced/internal/identity"
)

// Handler receives the raw data payload of a push event.
type Handler func(data json.RawMessage)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Client is a push-channel client over a WebSocket connection. It dispatches
// incoming events to registered handlers and replays the room join after a
// reconnect so a transient drop does not silently stop event delivery.
//
// Handler registration is last-registration-wins: registering an event name
// twice replaces the previous handler, it never duplicates delivery.
type Client struct {
	url      string
	deviceID string

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]Handler
	room     string
}

// NewClient creates a push-channel client for the given WebSocket URL.
func NewClient(url, deviceID string) *Client {
	return &Client{
		url:      url,
		deviceID: deviceID,
		handlers: make(map[string]Handler),
	}
}

// On registers a handler for the event name, replacing any previous handler.
func (c *Client) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// Off removes the handler for the event name.
func (c *Client) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// JoinRoom subscribes this client to the room scoped to the venue id. The
// room is remembered so it is rejoined after a reconnect.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	c.mu.Lock()
	c.room = roomID
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		// Not connected yet; the run loop joins on connect.
		return nil
	}
	return c.emit(ctx, conn, cmdJoinEvent, roomID)
}

// LeaveRoom tells the server to stop delivering events for the room.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	c.mu.Lock()
	if c.room == roomID {
		c.room = ""
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.emit(ctx, conn, cmdLeaveEvent, roomID)
}

func (c *Client) emit(ctx context.Context, conn *websocket.Conn, event, roomID string) error {
	data, err := json.Marshal(map[string]string{"eventId": roomID})
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", event, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Run maintains the connection until ctx is cancelled, reconnecting with
// exponential backoff. It blocks and is meant to be started as a goroutine
// from main.
func (c *Client) Run(ctx context.Context) {
	delay := reconnectBaseDelay

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			slog.Warn("Push channel dial failed", "error", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay = min(delay*2, reconnectMaxDelay)
			continue
		}
		delay = reconnectBaseDelay

		c.mu.Lock()
		c.conn = conn
		room := c.room
		c.mu.Unlock()

		slog.Info("Push channel connected", "url", c.url)
		if room != "" {
			if err := c.emit(ctx, conn, cmdJoinEvent, room); err != nil {
				slog.Warn("Failed to rejoin room after reconnect", "room", room, "error", err)
			} else {
				slog.Info("Rejoined push room", "room", room)
			}
		}

		c.readLoop(ctx, conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()

		if closeErr := conn.Close(websocket.StatusNormalClosure, "reconnecting"); closeErr != nil {
			slog.Debug("Failed to close push connection", "error", closeErr)
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set(identity.HeaderName, c.deviceID)

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial push channel: %w", err)
	}
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, message, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Push channel closed by server")
			} else if ctx.Err() == nil {
				slog.Warn("Push channel read error", "error", err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			slog.Warn("Malformed push frame", "error", err)
			continue
		}

		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope) {
	c.mu.Lock()
	h := c.handlers[env.Event]
	c.mu.Unlock()

	if h == nil {
		slog.Debug("No handler for push event", "event", env.Event)
		return
	}
	h(env.Data)
}

// Close tears down the current connection, if any. Run will exit once its
// context is cancelled.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "agent shutting down"); err != nil {
			slog.Debug("Failed to close push connection", "error", err)
		}
	}
}
