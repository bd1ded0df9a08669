// Package syncer owns the per-directory stores and routes the server event
// feed into them. One Registry serves one server endpoint.
package syncer

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/strandkit/strand/internal/api"
	"github.com/strandkit/strand/internal/core"
	"github.com/strandkit/strand/internal/store"
	"github.com/strandkit/strand/internal/stream"
)

// RemoteAPI is everything the registry and its action layer call on the
// server. *api.Client satisfies it.
type RemoteAPI interface {
	store.Fetcher
	Create(ctx context.Context, req api.CreateRequest) (core.Session, error)
	Update(ctx context.Context, sessionID core.SessionID, req api.UpdateRequest) (core.Session, error)
	Delete(ctx context.Context, sessionID core.SessionID) error
	Fork(ctx context.Context, sessionID core.SessionID, messageID core.MessageID) (core.Session, error)
	Share(ctx context.Context, sessionID core.SessionID) (core.Session, error)
	Unshare(ctx context.Context, sessionID core.SessionID) (core.Session, error)
	Summarize(ctx context.Context, sessionID core.SessionID) error
	Respond(ctx context.Context, sessionID core.SessionID, permissionID core.PermissionID, response core.PermissionResponse) error
}

// Notifier surfaces user-visible failures. The CLI prints a styled line;
// a UI would show a toast.
type Notifier interface {
	Notify(level Level, message string)
}

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(Level, string) {}

// Registry creates stores on demand, keyed by normalized directory path,
// and demultiplexes incoming events to them. Repeated Child calls for the
// same directory return the same instance.
type Registry struct {
	remote   RemoteAPI
	notifier Notifier

	mu     sync.Mutex
	stores map[string]*store.Store
	active string

	generation atomic.Uint64
}

func New(remote RemoteAPI, notifier Notifier) *Registry {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Registry{
		remote:   remote,
		notifier: notifier,
		stores:   make(map[string]*store.Store),
	}
}

func normalize(directory string) string {
	return filepath.Clean(directory)
}

// Child returns the store for a directory, creating it if absent. With
// bootstrap set, a background bootstrap is kicked off; the store's
// single-flight guarantees at most one fetch regardless of how many
// callers ask.
func (r *Registry) Child(directory string, bootstrap bool) *store.Store {
	key := normalize(directory)

	r.mu.Lock()
	st, ok := r.stores[key]
	if !ok {
		st = store.New(key, r.remote)
		r.stores[key] = st
	}
	r.mu.Unlock()

	if bootstrap {
		go func() {
			if err := st.Bootstrap(context.Background()); err != nil {
				slog.Warn("bootstrap failed", "directory", key, "error", err)
			}
		}()
	}
	return st
}

// lookup returns an existing store without creating one.
func (r *Registry) lookup(directory string) (*store.Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stores[normalize(directory)]
	return st, ok
}

// Directories lists the known directories, sorted, for the project
// switcher.
func (r *Registry) Directories() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]string, 0, len(r.stores))
	for directory := range r.stores {
		list = append(list, directory)
	}
	sort.Strings(list)
	return list
}

// TotalSessions sums the session counts across all known directories.
func (r *Registry) TotalSessions() int {
	r.mu.Lock()
	stores := make([]*store.Store, 0, len(r.stores))
	for _, st := range r.stores {
		stores = append(stores, st)
	}
	r.mu.Unlock()

	total := 0
	for _, st := range stores {
		total += st.TotalSessions()
	}
	return total
}

// Generation is the current token for stale-result discard. Async
// completions capture it before fetching and compare on arrival.
func (r *Registry) Generation() uint64 {
	return r.generation.Load()
}

// SetActive records the directory the user is looking at. Switching bumps
// the generation token so in-flight fetches for the previous context are
// discarded on arrival.
func (r *Registry) SetActive(directory string) {
	key := normalize(directory)

	r.mu.Lock()
	changed := r.active != key
	r.active = key
	r.mu.Unlock()

	if changed {
		r.generation.Add(1)
	}
}

func (r *Registry) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// BumpGeneration invalidates all in-flight speculative fetches. Called when
// the connection endpoint changes.
func (r *Registry) BumpGeneration() {
	r.generation.Add(1)
}

// Run consumes a subscription until the channel closes or ctx is canceled,
// routing each envelope in arrival order. Disconnect notices are logged;
// no events are synthesized for the gap, so stores self-heal on the next
// bootstrap or fetch.
func (r *Registry) Run(ctx context.Context, events <-chan stream.Event) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Disconnected {
				slog.Warn("event feed disconnected", "error", event.Err)
				continue
			}
			r.Route(event.Envelope)
		case <-ctx.Done():
			return
		}
	}
}

// Route applies one envelope to the owning store. Events for directories
// no consumer has asked for are dropped: stores are created on demand, not
// by event arrival, so background noise cannot grow memory unboundedly.
func (r *Registry) Route(envelope core.Envelope) {
	st, ok := r.lookup(envelope.Directory)
	if !ok {
		slog.Debug("dropping event for unknown directory",
			"directory", envelope.Directory, "type", envelope.Payload.Type)
		return
	}

	payload := envelope.Payload
	switch payload.Type {
	case core.EventServerConnected, core.EventServerHeartbeat:
		// Liveness only.

	case core.EventMessageUpdated:
		var props core.MessageUpdated
		if decode(payload, &props) {
			st.ReconcileMessage(props.Info)
		}

	case core.EventMessageRemoved:
		var props core.MessageRemoved
		if decode(payload, &props) {
			st.RemoveMessage(props.SessionID, props.MessageID)
		}

	case core.EventPartUpdated:
		var props core.PartUpdated
		if decode(payload, &props) {
			st.ReconcilePart(props.Part)
		}

	case core.EventPartRemoved:
		var props core.PartRemoved
		if decode(payload, &props) {
			st.RemovePart(props.MessageID, props.PartID)
		}

	case core.EventSessionUpdated:
		var props core.SessionUpdated
		if decode(payload, &props) {
			st.ReconcileSession(props.Info)
		}

	case core.EventSessionDeleted:
		var props core.SessionDeleted
		if decode(payload, &props) {
			st.DeleteSession(props.Info.ID)
		}

	case core.EventSessionStatus:
		var props core.SessionStatusChanged
		if decode(payload, &props) {
			st.SetSessionStatus(props.SessionID, props.Status)
		}

	case core.EventPermissionAsked:
		var props core.PermissionAsked
		if decode(payload, &props) {
			st.ReconcilePermission(props.Permission)
		}

	case core.EventPermissionReplied:
		var props core.PermissionReplied
		if decode(payload, &props) {
			st.ResolvePermission(props.SessionID, props.PermissionID)
		}

	case core.EventWorktreeReady:
		st.SetWorktree(core.WorktreeReady, "")

	case core.EventWorktreeFailed:
		var props core.WorktreeEvent
		if decode(payload, &props) {
			st.SetWorktree(core.WorktreeFailed, props.Error)
		}

	default:
		slog.Debug("ignoring unknown event type", "type", payload.Type)
	}
}

func decode(payload core.Payload, v any) bool {
	if err := payload.Decode(v); err != nil {
		slog.Warn("dropping undecodable event", "type", payload.Type, "error", err)
		return false
	}
	return true
}
