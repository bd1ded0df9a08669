package revert

import (
	"context"
	"errors"
	"testing"

	"github.com/strandkit/strand/internal/api"
	"github.com/strandkit/strand/internal/core"
	"github.com/strandkit/strand/internal/store"
)

type fakeRemote struct {
	aborted   []core.SessionID
	revertErr error
	session   core.Session
}

func (f *fakeRemote) Revert(ctx context.Context, sessionID core.SessionID, messageID core.MessageID) (core.Session, error) {
	if f.revertErr != nil {
		return core.Session{}, f.revertErr
	}
	session := f.session
	session.ID = sessionID
	session.Revert = &core.Revert{MessageID: messageID}
	return session, nil
}

func (f *fakeRemote) Unrevert(ctx context.Context, sessionID core.SessionID) (core.Session, error) {
	session := f.session
	session.ID = sessionID
	session.Revert = nil
	return session, nil
}

func (f *fakeRemote) Abort(ctx context.Context, sessionID core.SessionID) error {
	f.aborted = append(f.aborted, sessionID)
	return nil
}

type nopFetcher struct{}

func (nopFetcher) List(ctx context.Context, directory string, filters api.ListFilters) (api.SessionList, error) {
	return api.SessionList{}, nil
}

func (nopFetcher) Messages(ctx context.Context, directory string, sessionID core.SessionID, limit int) (api.MessageList, error) {
	return api.MessageList{}, nil
}

func newController(t *testing.T, remote *fakeRemote) (*Controller, *store.Store) {
	t.Helper()
	st := store.New("/tmp/proj", nopFetcher{})
	st.ReconcileSession(core.Session{ID: "ses_1", Directory: "/tmp/proj"})
	st.ReconcileMessages("ses_1", []core.MessageWithParts{
		{Info: core.Message{ID: "msg_1", SessionID: "ses_1", Role: core.RoleUser},
			Parts: []core.Part{{ID: "prt_1", MessageID: "msg_1", SessionID: "ses_1", Type: core.PartText, Text: "first prompt"}}},
		{Info: core.Message{ID: "msg_2", SessionID: "ses_1", Role: core.RoleAssistant}},
		{Info: core.Message{ID: "msg_3", SessionID: "ses_1", Role: core.RoleUser},
			Parts: []core.Part{{ID: "prt_1", MessageID: "msg_3", SessionID: "ses_1", Type: core.PartText, Text: "third prompt"}}},
	}, 3)
	return New(st, remote, nil), st
}

func messageIDs(messages []core.Message) []core.MessageID {
	ids := make([]core.MessageID, len(messages))
	for i, message := range messages {
		ids[i] = message.ID
	}
	return ids
}

func TestRevertVisibility(t *testing.T) {
	c, _ := newController(t, &fakeRemote{})
	ctx := context.Background()

	if err := c.Revert(ctx, "ses_1", "msg_2"); err != nil {
		t.Fatal(err)
	}

	visible := c.Visible("ses_1")
	if len(visible) != 1 || visible[0].ID != "msg_1" {
		t.Fatalf("expected visible [msg_1], got %v", messageIDs(visible))
	}

	if err := c.Unrevert(ctx, "ses_1"); err != nil {
		t.Fatal(err)
	}
	visible = c.Visible("ses_1")
	if len(visible) != 3 {
		t.Fatalf("unrevert should restore all messages, got %v", messageIDs(visible))
	}
}

func TestRedoAsForwardRevert(t *testing.T) {
	c, _ := newController(t, &fakeRemote{})
	ctx := context.Background()

	if err := c.Revert(ctx, "ses_1", "msg_2"); err != nil {
		t.Fatal(err)
	}

	target, ok := c.RedoTarget("ses_1")
	if !ok || target != "msg_3" {
		t.Fatalf("expected redo target msg_3, got %q %v", target, ok)
	}

	if err := c.Revert(ctx, "ses_1", target); err != nil {
		t.Fatal(err)
	}
	visible := c.Visible("ses_1")
	if len(visible) != 2 || visible[0].ID != "msg_1" || visible[1].ID != "msg_2" {
		t.Fatalf("expected visible [msg_1 msg_2], got %v", messageIDs(visible))
	}
}

func TestRedoAtEndUnreverts(t *testing.T) {
	c, _ := newController(t, &fakeRemote{})
	ctx := context.Background()

	if err := c.Revert(ctx, "ses_1", "msg_3"); err != nil {
		t.Fatal(err)
	}
	if err := c.Redo(ctx, "ses_1"); err != nil {
		t.Fatal(err)
	}
	if len(c.Visible("ses_1")) != 3 {
		t.Fatal("redo past the last message should unrevert fully")
	}
}

func TestRedoWithoutMarkerFails(t *testing.T) {
	c, _ := newController(t, &fakeRemote{})
	if err := c.Redo(context.Background(), "ses_1"); err == nil {
		t.Fatal("redo without a marker should fail")
	}
}

func TestRevertUnknownMessage(t *testing.T) {
	c, st := newController(t, &fakeRemote{})

	err := c.Revert(context.Background(), "ses_1", "msg_missing")
	if err == nil {
		t.Fatal("marker must reference an existing message")
	}
	if session, _ := st.Session("ses_1"); session.Revert != nil {
		t.Fatal("failed revert must leave the store unchanged")
	}
}

func TestRevertAbortsBusySession(t *testing.T) {
	remote := &fakeRemote{}
	c, st := newController(t, remote)
	st.SetSessionStatus("ses_1", core.StatusBusy)

	if err := c.Revert(context.Background(), "ses_1", "msg_2"); err != nil {
		t.Fatal(err)
	}
	if len(remote.aborted) != 1 || remote.aborted[0] != "ses_1" {
		t.Fatalf("busy session must be aborted before revert: %v", remote.aborted)
	}
}

func TestRevertRemoteRejectionLeavesStore(t *testing.T) {
	remote := &fakeRemote{revertErr: errors.New("session busy")}
	c, st := newController(t, remote)

	if err := c.Revert(context.Background(), "ses_1", "msg_2"); err == nil {
		t.Fatal("expected remote rejection")
	}
	if session, _ := st.Session("ses_1"); session.Revert != nil {
		t.Fatal("rejected revert must not move the marker")
	}
	if got := len(c.Visible("ses_1")); got != 3 {
		t.Fatalf("visibility must be unchanged, got %d", got)
	}
}

func TestDraftRestoredFromRevertedMessage(t *testing.T) {
	c, _ := newController(t, &fakeRemote{})

	if err := c.Revert(context.Background(), "ses_1", "msg_3"); err != nil {
		t.Fatal(err)
	}
	if got := c.Draft("ses_1"); got != "third prompt" {
		t.Fatalf("expected restored draft, got %q", got)
	}

	if err := c.Unrevert(context.Background(), "ses_1"); err != nil {
		t.Fatal(err)
	}
	if got := c.Draft("ses_1"); got != "" {
		t.Fatalf("unrevert should clear the draft, got %q", got)
	}
}
