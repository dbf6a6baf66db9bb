package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var testUpgrader = websocket.Upgrader{}

// newEventServer serves one websocket endpoint that forwards every frame
// from the returned channel to the connected client.
func newEventServer(t *testing.T) (string, chan []byte) {
	t.Helper()
	frames := make(chan []byte, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(frames) })
	return "ws" + strings.TrimPrefix(srv.URL, "http"), frames
}

func envelope(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := json.Marshal(map[string]any{"type": eventType, "payload": json.RawMessage(data)})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return frame
}

func waitPayload(t *testing.T, ch chan json.RawMessage) json.RawMessage {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for dispatched payload")
		return nil
	}
}

func TestDispatchRoutesEventsByType(t *testing.T) {
	url, frames := newEventServer(t)
	bus := NewBus(url, nil, zap.NewNop())
	defer bus.Disconnect()

	got := make(chan json.RawMessage, 1)
	bus.On("message", func(payload json.RawMessage) { got <- payload })

	if err := bus.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	frames <- envelope(t, "message", map[string]int{"id": 7})

	payload := waitPayload(t, got)
	if !strings.Contains(string(payload), `"id":7`) {
		t.Fatalf("unexpected payload: %s", payload)
	}
}

func TestMalformedPayloadsAreDropped(t *testing.T) {
	url, frames := newEventServer(t)
	bus := NewBus(url, nil, zap.NewNop())
	defer bus.Disconnect()

	got := make(chan json.RawMessage, 2)
	bus.On("message", func(payload json.RawMessage) { got <- payload })

	if err := bus.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	frames <- []byte("not json at all")
	frames <- []byte(`{"payload":{"id":1}}`) // missing type
	frames <- envelope(t, "message", map[string]int{"id": 2})

	payload := waitPayload(t, got)
	if !strings.Contains(string(payload), `"id":2`) {
		t.Fatalf("loop should have survived the garbage, got %s", payload)
	}
	if len(got) != 0 {
		t.Fatal("malformed frames must not reach handlers")
	}
}

func TestUnknownEventTypesAreIgnored(t *testing.T) {
	url, frames := newEventServer(t)
	bus := NewBus(url, nil, zap.NewNop())
	defer bus.Disconnect()

	got := make(chan json.RawMessage, 2)
	bus.On("message", func(payload json.RawMessage) { got <- payload })

	if err := bus.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	frames <- envelope(t, "presence-update", map[string]int{"id": 1})
	frames <- envelope(t, "message", map[string]int{"id": 2})

	payload := waitPayload(t, got)
	if !strings.Contains(string(payload), `"id":2`) {
		t.Fatalf("unexpected payload: %s", payload)
	}
}

func TestHandlerRegistrationLastWins(t *testing.T) {
	url, frames := newEventServer(t)
	bus := NewBus(url, nil, zap.NewNop())
	defer bus.Disconnect()

	var first, second atomic.Int32
	done := make(chan struct{}, 1)
	bus.On("message", func(json.RawMessage) { first.Add(1) })
	bus.On("message", func(json.RawMessage) {
		second.Add(1)
		done <- struct{}{}
	})

	if err := bus.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	frames <- envelope(t, "message", map[string]int{"id": 1})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("replacement handler never ran")
	}
	if first.Load() != 0 {
		t.Fatal("replaced handler must not run")
	}
	if second.Load() != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", second.Load())
	}
}

func TestOffRemovesHandler(t *testing.T) {
	url, frames := newEventServer(t)
	bus := NewBus(url, nil, zap.NewNop())
	defer bus.Disconnect()

	removed := make(chan json.RawMessage, 1)
	kept := make(chan json.RawMessage, 1)
	bus.On("request-created", func(payload json.RawMessage) { removed <- payload })
	bus.On("message", func(payload json.RawMessage) { kept <- payload })
	bus.Off("request-created")

	if err := bus.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	frames <- envelope(t, "request-created", map[string]int{"id": 1})
	frames <- envelope(t, "message", map[string]int{"id": 2})

	payload := waitPayload(t, kept)
	if !strings.Contains(string(payload), `"id":2`) {
		t.Fatalf("unexpected payload: %s", payload)
	}
	if len(removed) != 0 {
		t.Fatal("removed handler must not fire")
	}
}

func TestSendWithoutConnectionIsSilent(t *testing.T) {
	bus := NewBus("ws://127.0.0.1:0", nil, zap.NewNop())
	bus.Send(map[string]string{"type": "noop"}) // must not panic
}

func TestReconnectKeepsRegisteredHandlers(t *testing.T) {
	var conns atomic.Int32
	frames := make(chan []byte, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if conns.Add(1) == 1 {
			// Drop the first connection immediately to force a redial.
			conn.Close()
			return
		}
		defer conn.Close()
		for frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}))
	defer srv.Close()
	defer close(frames)

	bus := NewBus("ws"+strings.TrimPrefix(srv.URL, "http"), nil, zap.NewNop())
	defer bus.Disconnect()

	got := make(chan json.RawMessage, 1)
	bus.On("message", func(payload json.RawMessage) { got <- payload })

	if err := bus.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	frames <- envelope(t, "message", map[string]int{"id": 9})

	select {
	case payload := <-got:
		if !strings.Contains(string(payload), `"id":9`) {
			t.Fatalf("unexpected payload: %s", payload)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("handler did not survive the reconnect")
	}
}
