package events_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/jarvis/internal/events"
	"github.com/MrWong99/jarvis/internal/turn"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func next(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var ev events.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Unmarshal %s: %v", data, err)
	}
	return ev
}

func waitSubscribers(t *testing.T, h *events.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Snapshot().Subscribers != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d, want %d", h.Snapshot().Subscribers, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_ReplayThenLive(t *testing.T) {
	t.Parallel()

	h := events.New()
	h.OnPhase(turn.WakeListening)
	h.OnMessage(turn.Message{ID: "1", Role: turn.RoleUser, Content: "hello"})

	srv := httptest.NewServer(h)
	defer srv.Close()
	conn := dial(t, srv)

	if ev := next(t, conn); ev.Type != events.TypeState || ev.State != "wake_listening" {
		t.Errorf("first event = %+v, want state wake_listening", ev)
	}
	if ev := next(t, conn); ev.Type != events.TypeMessage || ev.Message.Content != "hello" {
		t.Errorf("replayed = %+v", ev)
	}

	waitSubscribers(t, h, 1)
	h.OnPhase(turn.Recording)
	h.OnMessage(turn.Message{ID: "2", Role: turn.RoleAssistant, Content: "Hi."})
	h.OnMeta("2", map[string]any{"latency_ms": 900})

	if ev := next(t, conn); ev.State != "recording" {
		t.Errorf("live state = %+v", ev)
	}
	if ev := next(t, conn); ev.Message == nil || ev.Message.ID != "2" {
		t.Errorf("live message = %+v", ev)
	}
	ev := next(t, conn)
	if ev.Type != events.TypeMeta || ev.MessageID != "2" || ev.Meta["latency_ms"] != float64(900) {
		t.Errorf("meta = %+v", ev)
	}
}

func TestHub_SnapshotMergesMeta(t *testing.T) {
	t.Parallel()

	h := events.New(events.WithHistory(2))
	h.OnMessage(turn.Message{ID: "a", Content: "one"})
	h.OnMessage(turn.Message{ID: "b", Content: "two", Meta: map[string]any{"tts_tokens_est": 1}})
	h.OnMessage(turn.Message{ID: "c", Content: "three"})
	h.OnMeta("b", map[string]any{"latency_ms": 10})
	h.OnPhase(turn.Speaking)

	s := h.Snapshot()
	if s.State != "speaking" {
		t.Errorf("State = %q", s.State)
	}
	if len(s.Messages) != 2 || s.Messages[0].ID != "b" {
		t.Fatalf("Messages = %+v, want [b c]", s.Messages)
	}
	if s.Messages[0].Meta["tts_tokens_est"] != 1 || s.Messages[0].Meta["latency_ms"] != 10 {
		t.Errorf("meta = %v", s.Messages[0].Meta)
	}
}

func TestHub_UnsubscribesOnDisconnect(t *testing.T) {
	t.Parallel()

	h := events.New()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	waitSubscribers(t, h, 1)
	conn.Close(websocket.StatusNormalClosure, "bye")
	waitSubscribers(t, h, 0)
}
