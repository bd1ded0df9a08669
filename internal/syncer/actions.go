package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/strandkit/strand/internal/api"
	"github.com/strandkit/strand/internal/core"
)

// User-initiated mutations. Rename and archive apply optimistically: the
// local store is updated first, then the remote call re-reconciles the
// entity from the server response. On remote failure the optimistic state
// is left in place and the failure is surfaced through the Notifier; the
// next authoritative reconcile corrects any divergence.

// Rename sets a session's title.
func (r *Registry) Rename(ctx context.Context, directory string, sessionID core.SessionID, title string) error {
	st := r.Child(directory, false)

	if session, ok := st.Session(sessionID); ok {
		session.Title = title
		session.Time.Updated = time.Now().UnixMilli()
		st.ReconcileSession(session)
	}

	updated, err := r.remote.Update(ctx, sessionID, api.UpdateRequest{Title: &title})
	if err != nil {
		r.notifier.Notify(LevelError, fmt.Sprintf("rename failed: %v", err))
		return err
	}
	st.ReconcileSession(updated)
	return nil
}

// SetArchived archives or unarchives a session.
func (r *Registry) SetArchived(ctx context.Context, directory string, sessionID core.SessionID, archived bool) error {
	st := r.Child(directory, false)

	if session, ok := st.Session(sessionID); ok {
		if archived {
			session.Time.Archived = time.Now().UnixMilli()
		} else {
			session.Time.Archived = 0
		}
		st.ReconcileSession(session)
	}

	updated, err := r.remote.Update(ctx, sessionID, api.UpdateRequest{Archived: &archived})
	if err != nil {
		r.notifier.Notify(LevelError, fmt.Sprintf("archive failed: %v", err))
		return err
	}
	st.ReconcileSession(updated)
	return nil
}

// CreateSession creates a new session in a directory.
func (r *Registry) CreateSession(ctx context.Context, directory, title string) (core.Session, error) {
	session, err := r.remote.Create(ctx, api.CreateRequest{Directory: directory, Title: title})
	if err != nil {
		r.notifier.Notify(LevelError, fmt.Sprintf("create session failed: %v", err))
		return core.Session{}, err
	}
	r.Child(directory, false).ReconcileSession(session)
	return session, nil
}

// DeleteSession removes a session remotely, then mirrors the cascade
// locally. Deletion is not optimistic: losing a whole thread on a failed
// call would be far worse than a moment of lag.
func (r *Registry) DeleteSession(ctx context.Context, directory string, sessionID core.SessionID) error {
	if err := r.remote.Delete(ctx, sessionID); err != nil {
		r.notifier.Notify(LevelError, fmt.Sprintf("delete failed: %v", err))
		return err
	}
	r.Child(directory, false).DeleteSession(sessionID)
	return nil
}

// ForkSession creates a child session branching at messageID.
func (r *Registry) ForkSession(ctx context.Context, directory string, sessionID core.SessionID, messageID core.MessageID) (core.Session, error) {
	child, err := r.remote.Fork(ctx, sessionID, messageID)
	if err != nil {
		r.notifier.Notify(LevelError, fmt.Sprintf("fork failed: %v", err))
		return core.Session{}, err
	}
	r.Child(directory, false).ReconcileSession(child)
	return child, nil
}

// SetShared publishes or unpublishes a session.
func (r *Registry) SetShared(ctx context.Context, directory string, sessionID core.SessionID, shared bool) error {
	var (
		updated core.Session
		err     error
	)
	if shared {
		updated, err = r.remote.Share(ctx, sessionID)
	} else {
		updated, err = r.remote.Unshare(ctx, sessionID)
	}
	if err != nil {
		r.notifier.Notify(LevelError, fmt.Sprintf("share failed: %v", err))
		return err
	}
	r.Child(directory, false).ReconcileSession(updated)
	return nil
}

// Summarize asks the server to compact a session; the result arrives as
// message events on the feed.
func (r *Registry) Summarize(ctx context.Context, sessionID core.SessionID) error {
	if err := r.remote.Summarize(ctx, sessionID); err != nil {
		r.notifier.Notify(LevelError, fmt.Sprintf("summarize failed: %v", err))
		return err
	}
	return nil
}

// RespondPermission resolves one pending permission request.
func (r *Registry) RespondPermission(ctx context.Context, directory string, sessionID core.SessionID, permissionID core.PermissionID, response core.PermissionResponse) error {
	if err := r.remote.Respond(ctx, sessionID, permissionID, response); err != nil {
		r.notifier.Notify(LevelError, fmt.Sprintf("permission response failed: %v", err))
		return err
	}
	r.Child(directory, false).ResolvePermission(sessionID, permissionID)
	return nil
}
