// Package revert implements "rewind the conversation and optionally redo"
// as a soft, invertible history edit. Nothing is deleted: a per-session
// marker hides messages at or after a given ID, and the visible list is a
// pure filter over the store, recomputed on every call.
package revert

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/strandkit/strand/internal/core"
	"github.com/strandkit/strand/internal/store"
	"github.com/strandkit/strand/internal/syncer"
)

// API is the slice of the remote surface the controller drives.
// *api.Client satisfies it.
type API interface {
	Revert(ctx context.Context, sessionID core.SessionID, messageID core.MessageID) (core.Session, error)
	Unrevert(ctx context.Context, sessionID core.SessionID) (core.Session, error)
	Abort(ctx context.Context, sessionID core.SessionID) error
}

// Controller moves a session's revert marker and keeps the restored prompt
// draft for re-editing. One controller serves one directory's store.
type Controller struct {
	store    *store.Store
	remote   API
	notifier syncer.Notifier

	mu     sync.Mutex
	drafts map[core.SessionID]string
}

func New(st *store.Store, remote API, notifier syncer.Notifier) *Controller {
	if notifier == nil {
		notifier = syncer.NopNotifier{}
	}
	return &Controller{
		store:    st,
		remote:   remote,
		notifier: notifier,
		drafts:   make(map[core.SessionID]string),
	}
}

// Revert sets the session's marker to messageID: messages at or after it
// disappear from the visible list but stay stored. A busy session is
// aborted first. The prompt draft is restored from the reverted message's
// text parts so the user can re-edit and resubmit.
func (c *Controller) Revert(ctx context.Context, sessionID core.SessionID, messageID core.MessageID) error {
	if !c.hasMessage(sessionID, messageID) {
		return fmt.Errorf("revert: message %s not found in session %s", messageID, sessionID)
	}

	if c.store.SessionStatus(sessionID) == core.StatusBusy {
		if err := c.remote.Abort(ctx, sessionID); err != nil {
			c.notifier.Notify(syncer.LevelError, fmt.Sprintf("abort before revert failed: %v", err))
			return fmt.Errorf("revert: abort session %s: %w", sessionID, err)
		}
	}

	session, err := c.remote.Revert(ctx, sessionID, messageID)
	if err != nil {
		c.notifier.Notify(syncer.LevelError, fmt.Sprintf("revert failed: %v", err))
		return err
	}
	c.store.ReconcileSession(session)

	draft := c.draftFromMessage(messageID)
	c.mu.Lock()
	c.drafts[sessionID] = draft
	c.mu.Unlock()

	return nil
}

// Unrevert clears the marker, restoring full visibility.
func (c *Controller) Unrevert(ctx context.Context, sessionID core.SessionID) error {
	session, err := c.remote.Unrevert(ctx, sessionID)
	if err != nil {
		c.notifier.Notify(syncer.LevelError, fmt.Sprintf("unrevert failed: %v", err))
		return err
	}
	c.store.ReconcileSession(session)

	c.mu.Lock()
	delete(c.drafts, sessionID)
	c.mu.Unlock()

	return nil
}

// RedoTarget computes the next message ID strictly after the current
// marker. Redo is expressed as a forward revert to that ID, not a separate
// code path; false means there is no marker or nothing left to redo.
func (c *Controller) RedoTarget(sessionID core.SessionID) (core.MessageID, bool) {
	marker, ok := c.marker(sessionID)
	if !ok {
		return "", false
	}
	for _, message := range c.store.Messages(sessionID) {
		if message.ID > marker {
			return message.ID, true
		}
	}
	return "", false
}

// Redo moves the marker forward one message; when the marker already sits
// on the last hidden message, redo completes as a full unrevert.
func (c *Controller) Redo(ctx context.Context, sessionID core.SessionID) error {
	target, ok := c.RedoTarget(sessionID)
	if !ok {
		if _, reverted := c.marker(sessionID); !reverted {
			return fmt.Errorf("revert: session %s has no revert marker", sessionID)
		}
		return c.Unrevert(ctx, sessionID)
	}
	return c.Revert(ctx, sessionID, target)
}

// Visible returns the session's effective message list: all messages when
// no marker is set, otherwise those with ID strictly below the marker.
func (c *Controller) Visible(sessionID core.SessionID) []core.Message {
	messages := c.store.Messages(sessionID)
	marker, ok := c.marker(sessionID)
	if !ok {
		return messages
	}

	visible := make([]core.Message, 0, len(messages))
	for _, message := range messages {
		if message.ID < marker {
			visible = append(visible, message)
		}
	}
	return visible
}

// Draft returns the prompt draft restored by the last revert, if any.
func (c *Controller) Draft(sessionID core.SessionID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drafts[sessionID]
}

func (c *Controller) ClearDraft(sessionID core.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.drafts, sessionID)
}

func (c *Controller) marker(sessionID core.SessionID) (core.MessageID, bool) {
	session, ok := c.store.Session(sessionID)
	if !ok || session.Revert == nil {
		return "", false
	}
	return session.Revert.MessageID, true
}

func (c *Controller) hasMessage(sessionID core.SessionID, messageID core.MessageID) bool {
	for _, message := range c.store.Messages(sessionID) {
		if message.ID == messageID {
			return true
		}
	}
	return false
}

func (c *Controller) draftFromMessage(messageID core.MessageID) string {
	var texts []string
	for _, part := range c.store.Parts(messageID) {
		if part.Type == core.PartText && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}
