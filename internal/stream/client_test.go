package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/strandkit/strand/internal/core"
)

func TestSSEScanner(t *testing.T) {
	input := ": comment\n" +
		"event: message\n" +
		"data: {\"a\":1}\n" +
		"\n" +
		"data: line1\n" +
		"data: line2\n" +
		"\n"

	scanner := newSSEScanner(strings.NewReader(input))

	if !scanner.Next() {
		t.Fatal("expected first event")
	}
	if got := scanner.Event(); got.Type != "message" || got.Data != `{"a":1}` {
		t.Fatalf("unexpected event %+v", got)
	}

	if !scanner.Next() {
		t.Fatal("expected second event")
	}
	if got := scanner.Event(); got.Data != "line1\nline2" {
		t.Fatalf("multi-line data not joined: %+v", got)
	}

	if scanner.Next() {
		t.Fatal("expected end of stream")
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("clean EOF should not be an error: %v", err)
	}
}

func TestSSEScannerFinalEventWithoutNewline(t *testing.T) {
	scanner := newSSEScanner(strings.NewReader("data: tail"))

	if !scanner.Next() {
		t.Fatal("expected trailing event")
	}
	if got := scanner.Event(); got.Data != "tail" {
		t.Fatalf("unexpected event %+v", got)
	}
	if scanner.Next() {
		t.Fatal("expected end of stream")
	}
}

func TestSubscribeDeliversEnvelopes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("unexpected Accept header %q", got)
		}
		if got := r.URL.Query().Get("directory"); got != "/tmp/proj" {
			t.Errorf("unexpected directory %q", got)
		}
		if r.URL.Query().Get("subscriber") == "" {
			t.Error("missing subscriber id")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"directory":"/tmp/proj","payload":{"type":"server.connected"}}` + "\n\n"))
		w.Write([]byte(`data: {"directory":"/tmp/proj","payload":{"type":"session.updated","properties":{"info":{"id":"ses_1","directory":"/tmp/proj"}}}}` + "\n\n"))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := New(server.URL, NoReconnect())
	events := client.Subscribe(ctx, "/tmp/proj")

	first := <-events
	if first.Disconnected || first.Envelope.Payload.Type != core.EventServerConnected {
		t.Fatalf("unexpected first event %+v", first)
	}

	second := <-events
	if second.Envelope.Payload.Type != core.EventSessionUpdated {
		t.Fatalf("unexpected second event %+v", second)
	}

	// Server closed the stream; NoReconnect means one disconnect notice
	// then channel close.
	third := <-events
	if !third.Disconnected {
		t.Fatalf("expected disconnect notice, got %+v", third)
	}
	if _, open := <-events; open {
		t.Fatal("channel should be closed after policy stops")
	}
}

func TestSubscribeSkipsMalformedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: not json\n\n"))
		w.Write([]byte(`data: {"directory":"/tmp/proj","payload":{"type":"server.heartbeat"}}` + "\n\n"))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := New(server.URL, NoReconnect())
	events := client.Subscribe(ctx, "/tmp/proj")

	first := <-events
	if first.Disconnected {
		t.Fatalf("expected heartbeat before disconnect, got %+v", first)
	}
	if first.Envelope.Payload.Type != core.EventServerHeartbeat {
		t.Fatalf("malformed event should be skipped, got %+v", first)
	}
}

func TestSubscribeReconnects(t *testing.T) {
	connections := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connections++
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"directory":"d","payload":{"type":"server.connected"}}` + "\n\n"))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	attempts := 0
	policy := func(attempt int, err error) (time.Duration, bool) {
		attempts = attempt
		return 0, attempt < 2
	}

	client := New(server.URL, policy)
	events := client.Subscribe(ctx, "d")

	delivered := 0
	for event := range events {
		if !event.Disconnected {
			delivered++
		}
	}

	if connections != 2 {
		t.Fatalf("expected 2 connections, got %d", connections)
	}
	if delivered != 2 {
		t.Fatalf("expected 2 delivered events, got %d", delivered)
	}
	if attempts != 2 {
		t.Fatalf("expected policy consulted through attempt 2, got %d", attempts)
	}
}
