package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/strandkit/strand/internal/core"
)

func envelope(t *testing.T, eventType string, properties any) core.Envelope {
	t.Helper()
	raw, err := json.Marshal(properties)
	if err != nil {
		t.Fatal(err)
	}
	return core.Envelope{
		Directory: "/tmp/proj",
		Payload:   core.Payload{Type: eventType, Properties: raw},
	}
}

func TestEventLineSessionDeleted(t *testing.T) {
	env := envelope(t, core.EventSessionDeleted, core.SessionDeleted{
		Info: core.Session{ID: "ses_1", Directory: "/tmp/proj"},
	})

	line, ok := eventLine(env)
	if !ok {
		t.Fatal("session.deleted should produce a line")
	}
	if !strings.Contains(line, "ses_1") {
		t.Errorf("line %q missing deleted session id", line)
	}
}

func TestEventLineSuppressesHeartbeat(t *testing.T) {
	env := core.Envelope{Payload: core.Payload{Type: core.EventServerHeartbeat}}
	if _, ok := eventLine(env); ok {
		t.Fatal("heartbeats should not be printed")
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()

	cases := []struct {
		millis int64
		want   string
	}{
		{now.Add(-30 * time.Second).UnixMilli(), "just now"},
		{now.Add(-time.Minute).UnixMilli(), "1 minute ago"},
		{now.Add(-5 * time.Minute).UnixMilli(), "5 minutes ago"},
		{now.Add(-time.Hour).UnixMilli(), "1 hour ago"},
		{now.Add(-30 * time.Hour).UnixMilli(), "yesterday"},
		{now.Add(-72 * time.Hour).UnixMilli(), "3 days ago"},
	}

	for _, tc := range cases {
		if got := formatTime(tc.millis); got != tc.want {
			t.Errorf("formatTime(%d) = %q, want %q", tc.millis, got, tc.want)
		}
	}
}

func TestIndent(t *testing.T) {
	got := indent("one\ntwo\n")
	want := "  one\n  two"
	if got != want {
		t.Errorf("indent = %q, want %q", got, want)
	}
}

func TestSessionFlags(t *testing.T) {
	session := core.Session{
		ID:       "ses_1",
		ParentID: "ses_0",
		Time:     core.SessionTime{Archived: 1},
		Revert:   &core.Revert{MessageID: "msg_1"},
	}

	flags := sessionFlags(session)
	for _, want := range []string{"archived", "reverted", "fork"} {
		if !strings.Contains(flags, want) {
			t.Errorf("flags %q missing %q", flags, want)
		}
	}
	if strings.Contains(flags, "shared") {
		t.Errorf("flags %q should not contain shared", flags)
	}
}
