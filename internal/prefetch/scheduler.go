// Package prefetch speculatively warms session transcripts so that
// navigating to an adjacent session renders instantly. Memory stays bounded
// by a per-directory warm set; foreground traffic stays unharmed by a
// per-directory in-flight cap.
package prefetch

import (
	"container/list"
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/strandkit/strand/internal/core"
	"github.com/strandkit/strand/internal/store"
)

type Priority int

const (
	// Normal prefetches respect the warm-set cap and join the back of the
	// queue.
	Normal Priority = iota
	// High prefetches (the session the user is about to open) jump the
	// queue and bypass the cap.
	High
)

const (
	DefaultWarmSize    = 10
	DefaultConcurrency = 1
)

// GenerationSource supplies the token used to discard stale completions.
// *syncer.Registry satisfies it.
type GenerationSource interface {
	Generation() uint64
}

// StoreSource resolves a directory to its store. *syncer.Registry
// satisfies it.
type StoreSource interface {
	Child(directory string, bootstrap bool) *store.Store
}

// Scheduler runs one FIFO+priority queue per directory. There is no hard
// cancellation: a completion whose generation token is stale is simply
// dropped, which is safe because reconciliation is idempotent.
type Scheduler struct {
	stores      StoreSource
	fetcher     store.Fetcher
	generations GenerationSource
	pageSize    int
	warmSize    int
	concurrency int64

	mu   sync.Mutex
	dirs map[string]*directoryQueue
}

type request struct {
	sessionID core.SessionID
}

type directoryQueue struct {
	queue    []request
	queued   map[core.SessionID]bool
	inflight map[core.SessionID]bool

	// warm orders the kept-warm sessions LRU (front) to MRU (back).
	warm      *list.List
	warmIndex map[core.SessionID]*list.Element

	sem      *semaphore.Weighted
	draining bool
}

// Options tune the scheduler; zero values take the defaults.
type Options struct {
	PageSize    int
	WarmSize    int
	Concurrency int
}

func New(stores StoreSource, fetcher store.Fetcher, generations GenerationSource, opts Options) *Scheduler {
	if opts.WarmSize <= 0 {
		opts.WarmSize = DefaultWarmSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Scheduler{
		stores:      stores,
		fetcher:     fetcher,
		generations: generations,
		pageSize:    opts.PageSize,
		warmSize:    opts.WarmSize,
		concurrency: int64(opts.Concurrency),
		dirs:        make(map[string]*directoryQueue),
	}
}

func (s *Scheduler) dir(directory string) *directoryQueue {
	dq, ok := s.dirs[directory]
	if !ok {
		dq = &directoryQueue{
			queued:    make(map[core.SessionID]bool),
			inflight:  make(map[core.SessionID]bool),
			warm:      list.New(),
			warmIndex: make(map[core.SessionID]*list.Element),
			sem:       semaphore.NewWeighted(s.concurrency),
		}
		s.dirs[directory] = dq
	}
	return dq
}

// Prefetch enqueues a speculative transcript fetch. It is skipped when the
// session's messages are already cached, a fetch is queued or in flight,
// or the warm set is full and priority is not High.
func (s *Scheduler) Prefetch(ctx context.Context, directory string, sessionID core.SessionID, priority Priority) {
	st := s.stores.Child(directory, false)

	if st.MessagesLoaded(sessionID) {
		s.Touch(directory, sessionID)
		return
	}

	s.mu.Lock()
	dq := s.dir(directory)

	if dq.queued[sessionID] || dq.inflight[sessionID] {
		s.mu.Unlock()
		return
	}
	_, inWarm := dq.warmIndex[sessionID]
	if priority != High && !inWarm && dq.warm.Len() >= s.warmSize {
		s.mu.Unlock()
		return
	}

	dq.queued[sessionID] = true
	if priority == High {
		dq.queue = append([]request{{sessionID: sessionID}}, dq.queue...)
	} else {
		dq.queue = append(dq.queue, request{sessionID: sessionID})
	}

	start := !dq.draining
	dq.draining = true
	s.mu.Unlock()

	if start {
		go s.drain(ctx, directory, dq)
	}
}

func (s *Scheduler) drain(ctx context.Context, directory string, dq *directoryQueue) {
	var workers sync.WaitGroup
	for {
		s.mu.Lock()
		if len(dq.queue) == 0 {
			dq.draining = false
			s.mu.Unlock()
			workers.Wait()
			return
		}
		next := dq.queue[0]
		dq.queue = dq.queue[1:]
		delete(dq.queued, next.sessionID)
		dq.inflight[next.sessionID] = true
		s.mu.Unlock()

		if err := dq.sem.Acquire(ctx, 1); err != nil {
			s.mu.Lock()
			delete(dq.inflight, next.sessionID)
			dq.draining = false
			s.mu.Unlock()
			workers.Wait()
			return
		}

		workers.Add(1)
		go func(sessionID core.SessionID) {
			defer workers.Done()
			defer dq.sem.Release(1)
			s.fetch(ctx, directory, dq, sessionID)
		}(next.sessionID)
	}
}

// fetch performs one speculative load and merges it unless the generation
// token moved while the request was in flight.
func (s *Scheduler) fetch(ctx context.Context, directory string, dq *directoryQueue, sessionID core.SessionID) {
	token := s.generations.Generation()

	page, err := s.fetcher.Messages(ctx, directory, sessionID, s.pageSize)

	s.mu.Lock()
	delete(dq.inflight, sessionID)
	s.mu.Unlock()

	if err != nil {
		// Transient by assumption; the next trigger re-queues.
		slog.Debug("prefetch failed", "directory", directory, "session", sessionID, "error", err)
		return
	}
	if s.generations.Generation() != token {
		slog.Debug("discarding stale prefetch", "directory", directory, "session", sessionID)
		return
	}

	st := s.stores.Child(directory, false)
	st.ReconcileMessages(sessionID, page.Messages, page.Total)
	s.Touch(directory, sessionID)
}

// Touch marks a session as recently used, inserting it into the warm set
// and evicting the least recently used entry when the set overflows.
// Eviction drops the evicted session's cached messages from the store.
func (s *Scheduler) Touch(directory string, sessionID core.SessionID) {
	var evicted []core.SessionID

	s.mu.Lock()
	dq := s.dir(directory)

	if element, ok := dq.warmIndex[sessionID]; ok {
		dq.warm.MoveToBack(element)
	} else {
		dq.warmIndex[sessionID] = dq.warm.PushBack(sessionID)
	}

	for dq.warm.Len() > s.warmSize {
		front := dq.warm.Front()
		victim := front.Value.(core.SessionID)
		dq.warm.Remove(front)
		delete(dq.warmIndex, victim)
		evicted = append(evicted, victim)
	}
	s.mu.Unlock()

	if len(evicted) > 0 {
		st := s.stores.Child(directory, false)
		for _, victim := range evicted {
			st.DropMessages(victim)
		}
	}
}

// Warm returns the warm set for a directory, least recently used first.
func (s *Scheduler) Warm(directory string) []core.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()

	dq, ok := s.dirs[directory]
	if !ok {
		return nil
	}
	ids := make([]core.SessionID, 0, dq.warm.Len())
	for element := dq.warm.Front(); element != nil; element = element.Next() {
		ids = append(ids, element.Value.(core.SessionID))
	}
	return ids
}

// Idle reports whether a directory has no queued or in-flight prefetches.
func (s *Scheduler) Idle(directory string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	dq, ok := s.dirs[directory]
	if !ok {
		return true
	}
	return len(dq.queue) == 0 && len(dq.inflight) == 0
}
