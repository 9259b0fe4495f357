// Package counter provides the shared, atomically-incremented fixed-window
// counters behind the admission-control engine. The increment is a single
// backend operation so concurrent requests across service instances never
// lose updates; the window TTL is applied only when a bucket is first
// created, never refreshed, so windows always close on schedule.
package counter

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend connectivity failures. Callers treat it (and
// any other error) as a fail-open signal: an outage of the counter backend
// must never become an outage of the whole service.
var ErrUnavailable = errors.New("counter backend unavailable")

// Store is the atomic counter contract. Implementations must be safe for
// concurrent use from many goroutines and, for shared backends, many
// process instances.
type Store interface {
	// IncrementAndGet atomically increments key and returns the new count.
	// When the increment creates the key, ttl is applied in the same
	// backend operation.
	IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the current count for key, 0 when absent. It never
	// creates or touches the key.
	Get(ctx context.Context, key string) (int64, error)

	// Delete removes the given keys, backing the management reset
	// operation. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Close releases backend resources.
	Close() error
}
