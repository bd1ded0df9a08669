// Package history pages long transcripts backward. Loading more bumps a
// per-session limit and re-fetches; the store's reconciliation merges the
// larger result set, so the pager itself never splices lists. Scroll
// preservation is a layout concern left to the caller; the pager only
// exposes the loading and has-more affordances.
package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/strandkit/strand/internal/core"
	"github.com/strandkit/strand/internal/store"
)

const DefaultPageSize = 50

// GenerationSource supplies the stale-discard token, shared with the
// prefetch scheduler. *syncer.Registry satisfies it.
type GenerationSource interface {
	Generation() uint64
}

// Pager tracks per-session fetch limits for one directory's store.
type Pager struct {
	store       *store.Store
	fetcher     store.Fetcher
	generations GenerationSource
	pageSize    int

	mu      sync.Mutex
	limits  map[core.SessionID]int
	loading map[core.SessionID]bool
}

func New(st *store.Store, fetcher store.Fetcher, generations GenerationSource, pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pager{
		store:       st,
		fetcher:     fetcher,
		generations: generations,
		pageSize:    pageSize,
		limits:      make(map[core.SessionID]int),
		loading:     make(map[core.SessionID]bool),
	}
}

// LoadMore extends the session's window by one page and re-fetches.
// Overlapping calls for the same session coalesce into the first one.
// Completions arriving after a generation bump are dropped unmerged.
func (p *Pager) LoadMore(ctx context.Context, sessionID core.SessionID) error {
	p.mu.Lock()
	if p.loading[sessionID] {
		p.mu.Unlock()
		return nil
	}
	limit := p.limits[sessionID]
	if limit == 0 {
		limit = p.store.MessageCount(sessionID)
	}
	limit += p.pageSize
	p.limits[sessionID] = limit
	p.loading[sessionID] = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.loading, sessionID)
		p.mu.Unlock()
	}()

	token := p.generations.Generation()

	page, err := p.fetcher.Messages(ctx, p.store.Directory(), sessionID, limit)
	if err != nil {
		return fmt.Errorf("history: load more %s: %w", sessionID, err)
	}
	if p.generations.Generation() != token {
		return nil
	}

	p.store.ReconcileMessages(sessionID, page.Messages, page.Total)
	return nil
}

// Loading reports whether a fetch for the session is in flight.
func (p *Pager) Loading(sessionID core.SessionID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading[sessionID]
}

// HasMore reports whether older messages remain beyond the loaded window.
func (p *Pager) HasMore(sessionID core.SessionID) bool {
	return p.store.MessageTotal(sessionID) > p.store.MessageCount(sessionID)
}
