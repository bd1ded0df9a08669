// Package store maintains the authoritative local snapshot for one working
// directory and applies remote updates idempotently.
//
// All mutation goes through the Reconcile operations. Merging is by primary
// key; an incoming set removes existing entities only when it is
// authoritative for that exact sub-scope (the full session list of a
// directory, or the full part list of one message). Entity lists are kept
// sorted ascending by ID after every reconcile, so views never re-sort.
package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/strandkit/strand/internal/api"
	"github.com/strandkit/strand/internal/core"
)

// SyncState tracks bootstrap progress for a directory.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncReady   SyncState = "ready"
	SyncError   SyncState = "error"
)

// Fetcher is the slice of the remote API the store needs. *api.Client
// satisfies it.
type Fetcher interface {
	List(ctx context.Context, directory string, filters api.ListFilters) (api.SessionList, error)
	Messages(ctx context.Context, directory string, sessionID core.SessionID, limit int) (api.MessageList, error)
}

// Store holds the reconciled snapshot for one directory. Methods are safe
// for concurrent use; no I/O happens while the lock is held, so every
// reconcile is atomic with respect to readers.
type Store struct {
	directory string
	fetcher   Fetcher

	mu            sync.Mutex
	state         SyncState
	sessions      map[core.SessionID]core.Session
	messages      map[core.SessionID][]core.Message
	parts         map[core.MessageID][]core.Part
	statuses      map[core.SessionID]core.SessionStatus
	permissions   map[core.SessionID][]core.Permission
	messageTotals map[core.SessionID]int
	loaded        map[core.SessionID]bool
	totalSessions int
	worktree      core.WorktreeState
	worktreeError string

	bootstrap singleflight.Group
}

func New(directory string, fetcher Fetcher) *Store {
	return &Store{
		directory:     directory,
		fetcher:       fetcher,
		state:         SyncPending,
		sessions:      make(map[core.SessionID]core.Session),
		messages:      make(map[core.SessionID][]core.Message),
		parts:         make(map[core.MessageID][]core.Part),
		statuses:      make(map[core.SessionID]core.SessionStatus),
		permissions:   make(map[core.SessionID][]core.Permission),
		messageTotals: make(map[core.SessionID]int),
		loaded:        make(map[core.SessionID]bool),
	}
}

func (s *Store) Directory() string {
	return s.directory
}

func (s *Store) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Bootstrap populates the store with the directory's full session list.
// Concurrent calls share a single fetch. A failed bootstrap leaves any
// existing data untouched, marks the store SyncError, and is not retried
// until Bootstrap is called again.
func (s *Store) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	if s.state == SyncReady {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	_, err, _ := s.bootstrap.Do("bootstrap", func() (any, error) {
		list, err := s.fetcher.List(ctx, s.directory, api.ListFilters{})
		if err != nil {
			s.mu.Lock()
			s.state = SyncError
			s.mu.Unlock()
			return nil, fmt.Errorf("store: bootstrap %s: %w", s.directory, err)
		}

		s.ReconcileSessionList(list.Sessions, list.Total)

		s.mu.Lock()
		s.state = SyncReady
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

// Refresh refetches the session list even when the store is already
// ready. Used after an event feed reconnect, where events may have been
// missed. Concurrent calls share a single fetch.
func (s *Store) Refresh(ctx context.Context) error {
	_, err, _ := s.bootstrap.Do("refresh", func() (any, error) {
		list, err := s.fetcher.List(ctx, s.directory, api.ListFilters{})
		if err != nil {
			return nil, fmt.Errorf("store: refresh %s: %w", s.directory, err)
		}

		s.ReconcileSessionList(list.Sessions, list.Total)

		s.mu.Lock()
		s.state = SyncReady
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

// ReconcileSessionList replaces the directory's session set wholesale.
// Messages of sessions no longer present are pruned.
func (s *Store) ReconcileSessionList(sessions []core.Session, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[core.SessionID]core.Session, len(sessions))
	for _, session := range sessions {
		next[session.ID] = session
	}

	for id := range s.sessions {
		if _, kept := next[id]; !kept {
			s.dropSessionLocked(id)
		}
	}
	s.sessions = next
	s.totalSessions = total
}

// ReconcileSession upserts one session without touching its siblings.
func (s *Store) ReconcileSession(session core.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.sessions[session.ID]; !known {
		s.totalSessions++
	}
	s.sessions[session.ID] = session
}

// DeleteSession removes a session and every descendant reachable through
// parentID chains, in one operation.
func (s *Store) DeleteSession(id core.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doomed := map[core.SessionID]bool{id: true}
	// Children may nest arbitrarily deep; sweep until the set stops growing.
	for {
		grew := false
		for _, session := range s.sessions {
			if session.ParentID == "" || doomed[session.ID] {
				continue
			}
			if doomed[session.ParentID] {
				doomed[session.ID] = true
				grew = true
			}
		}
		if !grew {
			break
		}
	}

	for sessionID := range doomed {
		if _, known := s.sessions[sessionID]; !known {
			continue
		}
		delete(s.sessions, sessionID)
		s.dropSessionLocked(sessionID)
		if s.totalSessions > 0 {
			s.totalSessions--
		}
	}
}

// dropSessionLocked discards everything hanging off a session. Caller holds
// the lock and removes the session entry itself.
func (s *Store) dropSessionLocked(id core.SessionID) {
	for _, message := range s.messages[id] {
		delete(s.parts, message.ID)
	}
	delete(s.messages, id)
	delete(s.statuses, id)
	delete(s.permissions, id)
	delete(s.messageTotals, id)
	delete(s.loaded, id)
}

// ReconcileMessages merges one fetched transcript page: each message is
// upserted and its part list replaced wholesale (the fetch is authoritative
// for parts of the messages it returns, not for sibling messages).
func (s *Store) ReconcileMessages(sessionID core.SessionID, page []core.MessageWithParts, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range page {
		s.upsertMessageLocked(entry.Info)

		parts := slices.Clone(entry.Parts)
		slices.SortFunc(parts, func(a, b core.Part) int {
			switch {
			case a.ID < b.ID:
				return -1
			case a.ID > b.ID:
				return 1
			}
			return 0
		})
		s.parts[entry.Info.ID] = parts
	}

	s.messageTotals[sessionID] = total
	s.loaded[sessionID] = true
}

// ReconcileMessage upserts a single message.
func (s *Store) ReconcileMessage(message core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertMessageLocked(message)
}

func (s *Store) upsertMessageLocked(message core.Message) {
	list := s.messages[message.SessionID]
	idx := sort.Search(len(list), func(i int) bool { return list[i].ID >= message.ID })
	if idx < len(list) && list[idx].ID == message.ID {
		list[idx] = message
	} else {
		list = slices.Insert(list, idx, message)
	}
	s.messages[message.SessionID] = list
}

// RemoveMessage drops one message and its parts.
func (s *Store) RemoveMessage(sessionID core.SessionID, messageID core.MessageID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[sessionID]
	idx := sort.Search(len(list), func(i int) bool { return list[i].ID >= messageID })
	if idx < len(list) && list[idx].ID == messageID {
		s.messages[sessionID] = slices.Delete(list, idx, idx+1)
	}
	delete(s.parts, messageID)
}

// ReconcilePart upserts one part in its message's ordered list. A part for
// a message the store has not seen yet is kept; it becomes visible once the
// message arrives.
func (s *Store) ReconcilePart(part core.Part) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.parts[part.MessageID]
	idx := sort.Search(len(list), func(i int) bool { return list[i].ID >= part.ID })
	if idx < len(list) && list[idx].ID == part.ID {
		list[idx] = part
	} else {
		list = slices.Insert(list, idx, part)
	}
	s.parts[part.MessageID] = list
}

// RemovePart drops one part.
func (s *Store) RemovePart(messageID core.MessageID, partID core.PartID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.parts[messageID]
	idx := sort.Search(len(list), func(i int) bool { return list[i].ID >= partID })
	if idx < len(list) && list[idx].ID == partID {
		s.parts[messageID] = slices.Delete(list, idx, idx+1)
	}
}

// SetSessionStatus records the latest status event for a session.
func (s *Store) SetSessionStatus(sessionID core.SessionID, status core.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[sessionID] = status
}

// ReconcilePermission appends a pending permission unless already queued.
func (s *Store) ReconcilePermission(permission core.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.permissions[permission.SessionID]
	for i, pending := range queue {
		if pending.ID == permission.ID {
			queue[i] = permission
			return
		}
	}
	s.permissions[permission.SessionID] = append(queue, permission)
}

// ResolvePermission removes a permission from the pending queue. Resolving
// an unknown permission is a no-op; replies can race removal.
func (s *Store) ResolvePermission(sessionID core.SessionID, permissionID core.PermissionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.permissions[sessionID]
	for i, pending := range queue {
		if pending.ID == permissionID {
			s.permissions[sessionID] = append(queue[:i:i], queue[i+1:]...)
			return
		}
	}
}

// SetWorktree records the directory's worktree lifecycle state.
func (s *Store) SetWorktree(state core.WorktreeState, errMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worktree = state
	s.worktreeError = errMessage
}

// DropMessages evicts a session's cached transcript. Used by the prefetch
// warm-set eviction; the session entry itself stays.
func (s *Store) DropMessages(sessionID core.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, message := range s.messages[sessionID] {
		delete(s.parts, message.ID)
	}
	delete(s.messages, sessionID)
	delete(s.loaded, sessionID)
	delete(s.messageTotals, sessionID)
}

// LoadMessages fetches up to limit messages for a session and merges them.
// All-or-nothing: a fetch failure leaves the store untouched.
func (s *Store) LoadMessages(ctx context.Context, sessionID core.SessionID, limit int) error {
	list, err := s.fetcher.Messages(ctx, s.directory, sessionID, limit)
	if err != nil {
		return fmt.Errorf("store: load messages %s: %w", sessionID, err)
	}
	s.ReconcileMessages(sessionID, list.Messages, list.Total)
	return nil
}
