package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/lumameet/presenced/internal/identity"
)

func TestDispatch_LastRegistrationWins(t *testing.T) {
	c := NewClient("ws://unused", "dev_test")

	var first, second int
	c.On(EventUserCheckedIn, func(json.RawMessage) { first++ })
	c.On(EventUserCheckedIn, func(json.RawMessage) { second++ })

	c.dispatch(envelope{Event: EventUserCheckedIn, Data: json.RawMessage(`{}`)})

	if first != 0 {
		t.Errorf("Expected replaced handler to never fire, got %d", first)
	}
	if second != 1 {
		t.Errorf("Expected current handler to fire once, got %d", second)
	}
}

func TestDispatch_UnknownEventIgnored(t *testing.T) {
	c := NewClient("ws://unused", "dev_test")
	c.dispatch(envelope{Event: "mystery-event", Data: json.RawMessage(`{}`)})
}

func TestOff_RemovesHandler(t *testing.T) {
	c := NewClient("ws://unused", "dev_test")

	var calls int
	c.On(EventExpired, func(json.RawMessage) { calls++ })
	c.Off(EventExpired)

	c.dispatch(envelope{Event: EventExpired, Data: json.RawMessage(`{}`)})
	if calls != 0 {
		t.Errorf("Expected no dispatch after Off, got %d", calls)
	}
}

func TestJoinRoom_BeforeConnectIsRemembered(t *testing.T) {
	c := NewClient("ws://unused", "dev_test")

	if err := c.JoinRoom(context.Background(), "e1"); err != nil {
		t.Fatalf("Expected join before connect to succeed, got %v", err)
	}

	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room != "e1" {
		t.Errorf("Expected room e1 remembered, got %q", room)
	}
}

func TestLeaveRoom_ForgetsRememberedRoom(t *testing.T) {
	c := NewClient("ws://unused", "dev_test")

	_ = c.JoinRoom(context.Background(), "e1")
	if err := c.LeaveRoom(context.Background(), "e1"); err != nil {
		t.Fatalf("Expected leave to succeed, got %v", err)
	}

	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room != "" {
		t.Errorf("Expected room forgotten, got %q", room)
	}
}

func TestRun_DeliversEventsAndRejoinsRoom(t *testing.T) {
	type frame struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}

	gotDevice := make(chan string, 1)
	gotJoin := make(chan frame, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDevice <- r.Header.Get(identity.HeaderName)

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("Accept failed: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()

		// The client joins its remembered room right after connecting.
		_, message, err := conn.Read(ctx)
		if err != nil {
			t.Errorf("Read failed: %v", err)
			return
		}
		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			t.Errorf("Failed to decode join frame: %v", err)
			return
		}
		gotJoin <- f

		payload, _ := json.Marshal(envelope{
			Event: EventUserCheckedIn,
			Data:  json.RawMessage(`{"eventId": "e1", "user": {"_id": "u1"}}`),
		})
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			t.Errorf("Write failed: %v", err)
		}

		// Hold the connection open until the client goes away.
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewClient(url, "dev_test")

	delivered := make(chan UserCheckedIn, 1)
	c.On(EventUserCheckedIn, func(data json.RawMessage) {
		var p UserCheckedIn
		if err := json.Unmarshal(data, &p); err != nil {
			t.Errorf("Failed to decode payload: %v", err)
			return
		}
		delivered <- p
	})
	_ = c.JoinRoom(context.Background(), "e1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	select {
	case device := <-gotDevice:
		if device != "dev_test" {
			t.Errorf("Expected device header on handshake, got %q", device)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for handshake")
	}

	select {
	case join := <-gotJoin:
		if join.Event != "join-event" {
			t.Errorf("Expected join-event, got %q", join.Event)
		}
		var body map[string]string
		if err := json.Unmarshal(join.Data, &body); err != nil {
			t.Fatalf("Failed to decode join payload: %v", err)
		}
		if body["eventId"] != "e1" {
			t.Errorf("Expected room e1 in join payload, got %v", body)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for join frame")
	}

	select {
	case p := <-delivered:
		if p.EventID != "e1" || p.User.ID != "u1" {
			t.Errorf("Unexpected payload: %+v", p)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for event delivery")
	}
}
