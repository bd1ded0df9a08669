package prefetch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/strandkit/strand/internal/api"
	"github.com/strandkit/strand/internal/core"
	"github.com/strandkit/strand/internal/store"
)

type fakeFetcher struct {
	mu    sync.Mutex
	gate  chan struct{}
	calls []core.SessionID
}

func (f *fakeFetcher) List(ctx context.Context, directory string, filters api.ListFilters) (api.SessionList, error) {
	return api.SessionList{}, nil
}

func (f *fakeFetcher) Messages(ctx context.Context, directory string, sessionID core.SessionID, limit int) (api.MessageList, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sessionID)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return api.MessageList{
		Messages: []core.MessageWithParts{
			{Info: core.Message{ID: "msg_1", SessionID: sessionID, Role: core.RoleUser}},
		},
		Total: 1,
	}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStores struct {
	st *store.Store
}

func (f *fakeStores) Child(directory string, bootstrap bool) *store.Store {
	return f.st
}

type fakeGen struct {
	n atomic.Uint64
}

func (g *fakeGen) Generation() uint64 {
	return g.n.Load()
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func sessionID(i int) core.SessionID {
	return core.SessionID(fmt.Sprintf("ses_%03d", i))
}

func newScheduler(fetcher *fakeFetcher, gen GenerationSource, warm int) (*Scheduler, *store.Store) {
	st := store.New("/tmp/proj", fetcher)
	return New(&fakeStores{st: st}, fetcher, gen, Options{WarmSize: warm}), st
}

func TestWarmSetCapWithLRUEviction(t *testing.T) {
	fetcher := &fakeFetcher{gate: make(chan struct{})}
	sched, st := newScheduler(fetcher, &fakeGen{}, 10)
	ctx := context.Background()

	for i := 1; i <= 15; i++ {
		sched.Prefetch(ctx, "/tmp/proj", sessionID(i), Normal)
	}
	close(fetcher.gate)

	waitFor(t, func() bool {
		return sched.Idle("/tmp/proj") && st.MessagesLoaded(sessionID(15))
	})

	warm := sched.Warm("/tmp/proj")
	if len(warm) != 10 {
		t.Fatalf("expected warm set of 10, got %d: %v", len(warm), warm)
	}
	for i := 1; i <= 5; i++ {
		if st.MessagesLoaded(sessionID(i)) {
			t.Fatalf("session %d should have been evicted", i)
		}
	}
	for i := 6; i <= 15; i++ {
		if !st.MessagesLoaded(sessionID(i)) {
			t.Fatalf("session %d should still be warm", i)
		}
	}
	if warm[0] != sessionID(6) || warm[9] != sessionID(15) {
		t.Fatalf("unexpected LRU order: %v", warm)
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	fetcher := &fakeFetcher{gate: make(chan struct{})}
	gen := &fakeGen{}
	sched, st := newScheduler(fetcher, gen, 10)

	sched.Prefetch(context.Background(), "/tmp/proj", "ses_1", Normal)
	waitFor(t, func() bool { return fetcher.callCount() == 1 })

	// The context changed while the request was in flight.
	gen.n.Add(1)
	close(fetcher.gate)

	waitFor(t, func() bool { return sched.Idle("/tmp/proj") })
	time.Sleep(20 * time.Millisecond)

	if st.MessagesLoaded("ses_1") {
		t.Fatal("stale completion must not mutate the store")
	}
	if got := sched.Warm("/tmp/proj"); len(got) != 0 {
		t.Fatalf("stale completion must not touch the warm set: %v", got)
	}
}

func TestPrefetchSkipsCachedSession(t *testing.T) {
	fetcher := &fakeFetcher{}
	sched, st := newScheduler(fetcher, &fakeGen{}, 10)

	st.ReconcileMessages("ses_1", nil, 0)

	sched.Prefetch(context.Background(), "/tmp/proj", "ses_1", Normal)

	if fetcher.callCount() != 0 {
		t.Fatal("cached session must not be refetched")
	}
	if got := sched.Warm("/tmp/proj"); len(got) != 1 || got[0] != "ses_1" {
		t.Fatalf("cached hit should still touch the warm set: %v", got)
	}
}

func TestPrefetchDeduplicatesInFlight(t *testing.T) {
	fetcher := &fakeFetcher{gate: make(chan struct{})}
	sched, _ := newScheduler(fetcher, &fakeGen{}, 10)
	ctx := context.Background()

	sched.Prefetch(ctx, "/tmp/proj", "ses_1", Normal)
	waitFor(t, func() bool { return fetcher.callCount() == 1 })
	sched.Prefetch(ctx, "/tmp/proj", "ses_1", Normal)
	sched.Prefetch(ctx, "/tmp/proj", "ses_1", High)
	close(fetcher.gate)

	waitFor(t, func() bool { return sched.Idle("/tmp/proj") })

	if got := fetcher.callCount(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
}

func TestNormalPriorityRespectsFullWarmSet(t *testing.T) {
	fetcher := &fakeFetcher{}
	sched, st := newScheduler(fetcher, &fakeGen{}, 3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		sched.Touch("/tmp/proj", sessionID(i))
	}

	sched.Prefetch(ctx, "/tmp/proj", "ses_new", Normal)
	time.Sleep(20 * time.Millisecond)
	if fetcher.callCount() != 0 {
		t.Fatal("normal priority must not exceed the warm-set cap")
	}

	sched.Prefetch(ctx, "/tmp/proj", "ses_new", High)
	waitFor(t, func() bool {
		return sched.Idle("/tmp/proj") && st.MessagesLoaded("ses_new")
	})
	if fetcher.callCount() != 1 {
		t.Fatal("high priority must bypass the cap")
	}
}

func TestTouchMovesToMostRecent(t *testing.T) {
	fetcher := &fakeFetcher{}
	sched, _ := newScheduler(fetcher, &fakeGen{}, 3)

	sched.Touch("/tmp/proj", "ses_a")
	sched.Touch("/tmp/proj", "ses_b")
	sched.Touch("/tmp/proj", "ses_c")
	sched.Touch("/tmp/proj", "ses_a")

	warm := sched.Warm("/tmp/proj")
	if len(warm) != 3 || warm[0] != "ses_b" || warm[2] != "ses_a" {
		t.Fatalf("unexpected LRU order: %v", warm)
	}

	// ses_d overflows the set; ses_b is now least recently used.
	sched.Touch("/tmp/proj", "ses_d")
	warm = sched.Warm("/tmp/proj")
	if len(warm) != 3 || warm[0] != "ses_c" {
		t.Fatalf("unexpected eviction order: %v", warm)
	}
}
