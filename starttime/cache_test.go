package starttime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errUnavailable = errors.New("start time not available")

type fakeFetcher struct {
	calls atomic.Int32
	start time.Time
	err   error
	delay time.Duration
}

func (f *fakeFetcher) ActualStartTime(ctx context.Context, id string) (time.Time, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.start, f.err
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("store down")
}

func (failingStore) PutIfAbsent(context.Context, string, time.Time) (time.Time, error) {
	return time.Time{}, errors.New("store down")
}

func TestResolveLooksUpOnceThenHits(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	f := &fakeFetcher{start: start}
	c := New(f, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.Resolve(ctx, "XYZ123")
		if err != nil {
			t.Fatalf("Resolve() #%d error = %v", i, err)
		}
		if !got.Equal(start) {
			t.Fatalf("Resolve() #%d = %v, want %v", i, got, start)
		}
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetcher called %d times, want 1", n)
	}
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	f := &fakeFetcher{err: errUnavailable}
	store := NewMemoryStore()
	c := New(f, store)

	for i := 0; i < 2; i++ {
		if _, err := c.Resolve(context.Background(), "XYZ123"); !errors.Is(err, errUnavailable) {
			t.Fatalf("Resolve() error = %v, want errUnavailable", err)
		}
	}
	if n := f.calls.Load(); n != 2 {
		t.Errorf("fetcher called %d times, want 2", n)
	}
	if store.Len() != 0 {
		t.Errorf("store has %d entries after failures", store.Len())
	}

	// Once details appear the next request succeeds and is cached.
	f.err = nil
	f.start = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if _, err := c.Resolve(context.Background(), "XYZ123"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d entries, want 1", store.Len())
	}
}

func TestResolveCollapsesConcurrentMisses(t *testing.T) {
	f := &fakeFetcher{start: time.Unix(1700000000, 0).UTC(), delay: 50 * time.Millisecond}
	c := New(f, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Resolve(context.Background(), "XYZ123"); err != nil {
				t.Errorf("Resolve() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetcher called %d times, want 1", n)
	}
}

func TestResolveDistinctIDs(t *testing.T) {
	f := &fakeFetcher{start: time.Unix(1700000000, 0).UTC()}
	c := New(f, nil)
	for _, id := range []string{"A", "B", "A", "B"} {
		if _, err := c.Resolve(context.Background(), id); err != nil {
			t.Fatalf("Resolve(%s) error = %v", id, err)
		}
	}
	if n := f.calls.Load(); n != 2 {
		t.Errorf("fetcher called %d times, want 2", n)
	}
}

func TestResolveStoreFailureDegrades(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	f := &fakeFetcher{start: start}
	c := New(f, failingStore{})

	got, err := c.Resolve(context.Background(), "XYZ123")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !got.Equal(start) {
		t.Errorf("Resolve() = %v, want %v", got, start)
	}
}

func TestMemoryStoreFirstWriterWins(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	first := time.Unix(100, 0)
	second := time.Unix(200, 0)

	if got, _ := m.PutIfAbsent(ctx, "id", first); !got.Equal(first) {
		t.Errorf("PutIfAbsent() = %v, want %v", got, first)
	}
	if got, _ := m.PutIfAbsent(ctx, "id", second); !got.Equal(first) {
		t.Errorf("second PutIfAbsent() = %v, want %v", got, first)
	}
	got, ok, err := m.Get(ctx, "id")
	if err != nil || !ok || !got.Equal(first) {
		t.Errorf("Get() = %v, %v, %v", got, ok, err)
	}
	if _, ok, _ := m.Get(ctx, "missing"); ok {
		t.Error("Get(missing) reported a hit")
	}
}

// gatedFetcher blocks until released and honours its context.
type gatedFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	start   time.Time
}

func (g *gatedFetcher) ActualStartTime(ctx context.Context, id string) (time.Time, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	case <-g.release:
		return g.start, nil
	}
}

func TestResolveSharedLookupSurvivesCallerCancel(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	f := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{}), start: start}
	c := New(f, nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Resolve(ctxA, "XYZ123")
		errA <- err
	}()
	<-f.started

	type result struct {
		t   time.Time
		err error
	}
	resB := make(chan result, 1)
	go func() {
		got, err := c.Resolve(context.Background(), "XYZ123")
		resB <- result{got, err}
	}()
	// Give the second caller time to join the in-flight lookup.
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled caller error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller still waiting")
	}

	close(f.release)
	select {
	case r := <-resB:
		if r.err != nil {
			t.Fatalf("second caller error = %v", r.err)
		}
		if !r.t.Equal(start) {
			t.Errorf("second caller = %v, want %v", r.t, start)
		}
	case <-time.After(time.Second):
		t.Fatal("second caller never resolved")
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetcher called %d times, want 1", n)
	}

	// The detached lookup still populated the cache.
	if _, err := c.Resolve(context.Background(), "XYZ123"); err != nil {
		t.Fatalf("Resolve() after flight error = %v", err)
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetcher called %d times after cached read, want 1", n)
	}
}

func TestResolveSharedLookupTimesOut(t *testing.T) {
	f := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	c := New(f, nil)
	c.fetchTimeout = 20 * time.Millisecond

	if _, err := c.Resolve(context.Background(), "XYZ123"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Resolve() error = %v, want context.DeadlineExceeded", err)
	}
}
