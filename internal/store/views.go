package store

import (
	"slices"

	"github.com/strandkit/strand/internal/core"
)

// Sessions returns the directory's sessions, most recently updated first.
// Archived sessions are included; callers filter as needed.
func (s *Store) Sessions() []core.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]core.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		list = append(list, session)
	}
	slices.SortFunc(list, func(a, b core.Session) int {
		switch {
		case a.Time.Updated > b.Time.Updated:
			return -1
		case a.Time.Updated < b.Time.Updated:
			return 1
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	return list
}

func (s *Store) Session(id core.SessionID) (core.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Messages returns a session's full transcript in ascending ID order. The
// returned slice is a copy; mutating it does not affect the store.
func (s *Store) Messages(sessionID core.SessionID) []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages[sessionID])
}

// Parts returns a message's parts in ascending ID order.
func (s *Store) Parts(messageID core.MessageID) []core.Part {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.parts[messageID])
}

// MessagesLoaded reports whether a transcript fetch has completed for the
// session since the last eviction.
func (s *Store) MessagesLoaded(sessionID core.SessionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded[sessionID]
}

// MessageTotal returns the server-reported message count for a session, or
// zero when no fetch has completed.
func (s *Store) MessageTotal(sessionID core.SessionID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageTotals[sessionID]
}

// MessageCount returns how many messages are currently cached locally.
func (s *Store) MessageCount(sessionID core.SessionID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[sessionID])
}

func (s *Store) TotalSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalSessions
}

// SessionStatus returns the last status event for a session, defaulting to
// idle when none has arrived.
func (s *Store) SessionStatus(sessionID core.SessionID) core.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.statuses[sessionID]; ok {
		return status
	}
	return core.StatusIdle
}

// Permissions returns the pending permission queue for a session in
// arrival order.
func (s *Store) Permissions(sessionID core.SessionID) []core.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.permissions[sessionID])
}

// Worktree returns the directory's worktree state and error message, if any.
func (s *Store) Worktree() (core.WorktreeState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worktree, s.worktreeError
}
