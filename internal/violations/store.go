// Package violations persists and serves the append-only audit trail of
// denied requests. Writes happen off the request-serving path through the
// Recorder; reads back the management API's paged listing.
package violations

import (
	"context"

	"admission/internal/models"
)

// Store is the audit storage contract. Records are write-once; listings are
// newest first.
type Store interface {
	// Insert appends one violation record.
	Insert(ctx context.Context, record *models.ViolationRecord) error

	// List returns a filtered page of records ordered by created_at
	// descending, plus the total count matching the filter.
	List(ctx context.Context, filter models.ViolationFilter) ([]*models.ViolationRecord, int, error)

	// Close closes the storage connection and cleans up resources.
	Close() error
}
