package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func testLogger() zerolog.Logger {
	return zerolog.New(&bytes.Buffer{})
}

func TestDispatchInvokesHandler(t *testing.T) {
	received := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		frame := `{"event":"callEnded","data":{"from":"u2"}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return
		}
		// Keep the connection open until the client is done
		conn.ReadMessage()
	}))
	defer srv.Close()

	client := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), "", testLogger())
	off := client.On("callEnded", func(data json.RawMessage) {
		var payload struct {
			From string `json:"from"`
		}
		json.Unmarshal(data, &payload)
		received <- payload.From
	})
	defer off()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	defer client.Close()

	select {
	case from := <-received:
		if from != "u2" {
			t.Errorf("expected from u2, got %s", from)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestOffRemovesHandler(t *testing.T) {
	client := NewClient("ws://unused", "", testLogger())

	calls := 0
	off := client.On("newMessage", func(json.RawMessage) { calls++ })

	client.dispatch([]byte(`{"event":"newMessage","data":{}}`))
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}

	off()
	client.dispatch([]byte(`{"event":"newMessage","data":{}}`))
	if calls != 1 {
		t.Errorf("expected handler to be removed, got %d calls", calls)
	}
}

func TestMultipleHandlersSameEvent(t *testing.T) {
	client := NewClient("ws://unused", "", testLogger())

	var order []string
	client.On("callRejected", func(json.RawMessage) { order = append(order, "a") })
	client.On("callRejected", func(json.RawMessage) { order = append(order, "b") })

	client.dispatch([]byte(`{"event":"callRejected"}`))
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("expected handlers in registration order, got %v", order)
	}
}

func TestEmitNotConnected(t *testing.T) {
	client := NewClient("ws://unused", "", testLogger())

	err := client.Emit("endCall", map[string]string{"to": "u2"})
	if err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestStatsDuringReconnect(t *testing.T) {
	// Nothing listens on port 1; Run stays in its retry loop while the
	// counters are read concurrently.
	client := NewClient("ws://127.0.0.1:1/socket", "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	defer client.Close()

	deadline := time.Now().Add(3 * time.Second)
	for {
		_, _, reconnects := client.Stats()
		if reconnects >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reconnect counter never advanced")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if client.Connected() {
		t.Error("client must not report connected")
	}
}

func TestEmitWritesEnvelope(t *testing.T) {
	frames := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frames <- msg
	}))
	defer srv.Close()

	client := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), "token", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	defer client.Close()

	// Wait for the connection to come up
	deadline := time.Now().Add(2 * time.Second)
	for !client.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("client never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := client.Emit("rejectCall", map[string]string{"to": "u7"}); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	select {
	case frame := <-frames:
		var env struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("invalid envelope: %v", err)
		}
		if env.Event != "rejectCall" {
			t.Errorf("expected event rejectCall, got %s", env.Event)
		}
		if !bytes.Contains(env.Data, []byte(`"u7"`)) {
			t.Errorf("expected payload to contain recipient, got %s", env.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}
