package violations

import (
	"context"
	"sync"

	"admission/internal/models"
)

// MemoryStore implements Store with in-memory slices. Data is lost on
// restart; intended for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*models.ViolationRecord
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends a copy of the record.
func (m *MemoryStore) Insert(ctx context.Context, record *models.ViolationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	recordCopy := *record
	m.records = append(m.records, &recordCopy)
	return nil
}

// List returns a newest-first page matching the filter.
func (m *MemoryStore) List(ctx context.Context, filter models.ViolationFilter) ([]*models.ViolationRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*models.ViolationRecord, 0, len(m.records))
	// Records are appended in arrival order; walk backwards for newest first.
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if filter.TargetType != "" && r.ViolationTier != filter.TargetType {
			continue
		}
		if filter.OrganizationID != "" && r.OrganizationID != filter.OrganizationID {
			continue
		}
		matched = append(matched, r)
	}

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}

	page := make([]*models.ViolationRecord, 0, end-start)
	for _, r := range matched[start:end] {
		recordCopy := *r
		page = append(page, &recordCopy)
	}
	return page, total, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
