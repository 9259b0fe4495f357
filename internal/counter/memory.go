package counter

import (
	"context"
	"sync"
	"time"
)

// memoryEntry holds one counter and its expiry. The TTL recorded at creation
// is never refreshed by later increments.
type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is a mutex-guarded in-process Store. It mirrors the fixed-window
// semantics of the Redis backend but only sees requests handled by this
// process, so it suits tests and single-instance deployments. Expired entries
// are dropped on access and by a periodic sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	done    chan struct{}
	closed  bool
}

// NewMemoryStore creates an in-memory counter store and starts a background
// goroutine that sweeps expired buckets.
func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		done:    make(chan struct{}),
	}
	go ms.sweep()
	return ms
}

// IncrementAndGet increments the counter, creating it with ttl when absent or
// expired.
func (ms *MemoryStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := time.Now()

	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = &memoryEntry{expiresAt: now.Add(ttl)}
		ms.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// Get returns the current count, 0 when absent or expired.
func (ms *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	now := time.Now()

	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.entries[key]
	if !ok {
		return 0, nil
	}
	if now.After(e.expiresAt) {
		delete(ms.entries, key)
		return 0, nil
	}
	return e.count, nil
}

// Delete removes the given keys.
func (ms *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, key := range keys {
		delete(ms.entries, key)
	}
	return nil
}

// Len returns the number of live buckets. Used by tests to assert that
// excluded paths create no counters.
func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.entries)
}

// Close stops the sweep goroutine.
func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !ms.closed {
		ms.closed = true
		close(ms.done)
	}
	return nil
}

// sweep periodically evicts expired buckets so idle scopes do not accumulate.
func (ms *MemoryStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ms.done:
			return
		case <-ticker.C:
			now := time.Now()
			ms.mu.Lock()
			for key, e := range ms.entries {
				if now.After(e.expiresAt) {
					delete(ms.entries, key)
				}
			}
			ms.mu.Unlock()
		}
	}
}
