// Package starttime caches broadcast start times so each broadcast costs at
// most one metered lookup per backing store.
//
// Start times never change for a given broadcast id, so entries are kept for
// the life of the store with no eviction or expiry. Only successful lookups are
// stored: a broadcast whose details were not yet available is looked up again
// on the next request.
package starttime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onnwee/clipstream/telemetry"
)

// Fetcher performs the metered lookup.
type Fetcher interface {
	ActualStartTime(ctx context.Context, broadcastID string) (time.Time, error)
}

// Store persists start times. PutIfAbsent keeps the first value written for an
// id and returns whichever value is stored after the call.
type Store interface {
	Get(ctx context.Context, broadcastID string) (time.Time, bool, error)
	PutIfAbsent(ctx context.Context, broadcastID string, start time.Time) (time.Time, error)
}

// DefaultFetchTimeout bounds a shared lookup once it is detached from the
// request that started it.
const DefaultFetchTimeout = 15 * time.Second

// Cache resolves start times through a Store, falling back to a Fetcher.
type Cache struct {
	fetcher      Fetcher
	store        Store
	group        singleflight.Group
	fetchTimeout time.Duration
}

// New returns a cache backed by store. A nil store selects a MemoryStore.
func New(fetcher Fetcher, store Store) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Cache{fetcher: fetcher, store: store, fetchTimeout: DefaultFetchTimeout}
}

// Resolve returns the start time for broadcastID. Errors from the fetcher are
// returned unchanged so callers can tell an unavailable start time from an
// upstream failure. Store failures are logged and never surface.
//
// Concurrent misses for one id share a single lookup. The lookup runs on a
// context detached from any one caller, so a caller that gives up only ends
// its own wait.
func (c *Cache) Resolve(ctx context.Context, broadcastID string) (time.Time, error) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "starttime"), slog.String("broadcast_id", broadcastID))

	if t, ok, err := c.store.Get(ctx, broadcastID); err != nil {
		logger.Warn("start time store read failed", slog.Any("err", err))
	} else if ok {
		telemetry.CountCache(true)
		return t, nil
	}
	telemetry.CountCache(false)

	ch := c.group.DoChan(broadcastID, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		// A flight for this id may have finished between the read above and here.
		if t, ok, err := c.store.Get(fetchCtx, broadcastID); err == nil && ok {
			return t, nil
		}
		t, err := c.fetcher.ActualStartTime(fetchCtx, broadcastID)
		if err != nil {
			return time.Time{}, err
		}
		stored, perr := c.store.PutIfAbsent(fetchCtx, broadcastID, t)
		if perr != nil {
			logger.Warn("start time store write failed", slog.Any("err", perr))
			return t, nil
		}
		return stored, nil
	})

	select {
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			logger.Debug("start time lookup shared with concurrent request")
		}
		if res.Err != nil {
			return time.Time{}, res.Err
		}
		return res.Val.(time.Time), nil
	}
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]time.Time)}
}

func (m *MemoryStore) Get(_ context.Context, broadcastID string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.entries[broadcastID]
	return t, ok, nil
}

func (m *MemoryStore) PutIfAbsent(_ context.Context, broadcastID string, start time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[broadcastID]; ok {
		return existing, nil
	}
	m.entries[broadcastID] = start
	return start, nil
}

// Len reports the number of cached entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
