package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/strandkit/strand/internal/core"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL)
}

func TestList(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("directory"); got != "/tmp/proj" {
			t.Errorf("unexpected directory %q", got)
		}
		json.NewEncoder(w).Encode(SessionList{
			Sessions: []core.Session{{ID: "ses_1", Directory: "/tmp/proj", Title: "first"}},
			Total:    1,
		})
	})

	list, err := client.List(context.Background(), "/tmp/proj", ListFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || len(list.Sessions) != 1 {
		t.Fatalf("unexpected list %+v", list)
	}
	if list.Sessions[0].ID != "ses_1" {
		t.Fatalf("unexpected session %+v", list.Sessions[0])
	}
}

func TestMessagesQuery(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/ses_1/message" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("unexpected limit %q", got)
		}
		json.NewEncoder(w).Encode(MessageList{
			Messages: []core.MessageWithParts{
				{Info: core.Message{ID: "msg_1", SessionID: "ses_1", Role: core.RoleUser}},
			},
			Total: 120,
		})
	})

	list, err := client.Messages(context.Background(), "/tmp/proj", "ses_1", 50)
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 120 || len(list.Messages) != 1 {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestRevertBody(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(err)
		}
		if body["messageID"] != "msg_2" {
			t.Errorf("unexpected body %v", body)
		}
		json.NewEncoder(w).Encode(core.Session{
			ID:     "ses_1",
			Revert: &core.Revert{MessageID: "msg_2"},
		})
	})

	session, err := client.Revert(context.Background(), "ses_1", "msg_2")
	if err != nil {
		t.Fatal(err)
	}
	if session.Revert == nil || session.Revert.MessageID != "msg_2" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestStatusError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"type":"session_busy","message":"session is generating"}}`))
	})

	_, err := client.Revert(context.Background(), "ses_1", "msg_2")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Status != http.StatusConflict || statusErr.Type != "session_busy" {
		t.Fatalf("unexpected error %+v", statusErr)
	}
	if statusErr.IsTransient() {
		t.Fatal("409 should not be transient")
	}
}

func TestStatusErrorPlainBody(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	})

	err := client.Delete(context.Background(), "ses_1")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if !statusErr.IsTransient() {
		t.Fatal("502 should be transient")
	}
	if statusErr.Message != "upstream unavailable" {
		t.Fatalf("unexpected message %q", statusErr.Message)
	}
}

func TestRespond(t *testing.T) {
	var gotPath string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["response"] != "always" {
			t.Errorf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.Respond(context.Background(), "ses_1", "per_9", core.PermissionAlways); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/session/ses_1/permission/per_9" {
		t.Fatalf("unexpected path %s", gotPath)
	}
}
