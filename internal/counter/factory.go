package counter

import (
	"fmt"

	"admission/internal/models"
)

// NewStore instantiates a counter backend based on configuration.
// Supported backends:
//   - redis: shared atomic counters for multi-instance deployments
//   - memory: in-process counters (testing/single instance)
func NewStore(cfg models.CounterConfig) (Store, error) {
	switch cfg.Type {
	case models.CounterTypeRedis:
		return NewRedisStore(cfg.Redis)
	case models.CounterTypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported counter type: %s", cfg.Type)
	}
}
