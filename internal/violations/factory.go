package violations

import (
	"fmt"

	"admission/internal/models"
)

// NewStore instantiates an audit store based on configuration.
// Supported backends:
//   - postgres: production audit trail, paged tenant queries
//   - sqlite: single-node durable storage
//   - memory: development and testing
func NewStore(cfg models.AuditConfig) (Store, error) {
	switch cfg.Type {
	case models.AuditTypePostgres:
		return NewPostgresStore(cfg.Database)
	case models.AuditTypeSQLite:
		return NewSQLiteStore(cfg.Database)
	case models.AuditTypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported audit type: %s", cfg.Type)
	}
}
