package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admission/internal/counter"
	"admission/internal/models"
	"admission/internal/policy"
)

// failingStore simulates a counter backend outage.
type failingStore struct{}

func (failingStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, errors.New("backend down")
}

func (failingStore) Get(ctx context.Context, key string) (int64, error) {
	return 0, errors.New("backend down")
}

func (failingStore) Delete(ctx context.Context, keys ...string) error {
	return errors.New("backend down")
}

func (failingStore) Close() error { return nil }

func newTestEngine(t *testing.T, cfg models.LimitsConfig) (*Engine, *counter.MemoryStore) {
	t.Helper()
	store := counter.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	return NewEngine(store, policy.NewRegistry(cfg), 60), store
}

func baseLimits() models.LimitsConfig {
	return models.LimitsConfig{
		IP:           models.LimitPolicy{Requests: 5, WindowSeconds: 3600, Enabled: true},
		User:         models.LimitPolicy{Requests: 3, WindowSeconds: 3600, Enabled: true},
		Organization: models.LimitPolicy{Requests: 100, WindowSeconds: 3600, Enabled: true},
		Endpoints: map[string]models.LimitPolicy{
			"POST /auth/login": {Requests: 2, WindowSeconds: 3600, Enabled: true},
		},
		BurstWindowSeconds: 60,
	}
}

func TestEvaluate_AllowsWithinLimit(t *testing.T) {
	engine, _ := newTestEngine(t, baseLimits())

	cc := models.ClientContext{IP: "203.0.113.7"}
	for i := 0; i < 5; i++ {
		result := engine.Evaluate(context.Background(), cc)
		assert.True(t, result.Allowed)
		assert.False(t, result.Degraded)
	}

	st, ok := engine.Evaluate(context.Background(), cc).Status(models.TierIP)
	require.True(t, ok)
	assert.True(t, st.Exceeded)
}

func TestEvaluate_DeniesAboveLimit(t *testing.T) {
	engine, _ := newTestEngine(t, baseLimits())

	cc := models.ClientContext{IP: "203.0.113.7"}
	for i := 0; i < 5; i++ {
		require.True(t, engine.Evaluate(context.Background(), cc).Allowed)
	}

	result := engine.Evaluate(context.Background(), cc)
	assert.False(t, result.Allowed)
	require.NotNil(t, result.FirstExceededTier)
	assert.Equal(t, models.TierIP, *result.FirstExceededTier)

	st, ok := result.Status(models.TierIP)
	require.True(t, ok)
	assert.Equal(t, int64(6), st.Count)
	assert.Zero(t, st.Remaining)
}

func TestEvaluate_DeniedRequestsStillCount(t *testing.T) {
	engine, _ := newTestEngine(t, baseLimits())

	cc := models.ClientContext{IP: "203.0.113.7"}
	for i := 0; i < 10; i++ {
		engine.Evaluate(context.Background(), cc)
	}

	// 5 allowed + 5 denied: the counter keeps growing, so a retry storm
	// never drains the window back under the limit.
	result := engine.Evaluate(context.Background(), cc)
	st, ok := result.Status(models.TierIP)
	require.True(t, ok)
	assert.Equal(t, int64(11), st.Count)
}

func TestEvaluate_TightestTierWins(t *testing.T) {
	engine, _ := newTestEngine(t, baseLimits())

	cc := models.ClientContext{IP: "203.0.113.7", Endpoint: "POST /auth/login"}
	for i := 0; i < 2; i++ {
		require.True(t, engine.Evaluate(context.Background(), cc).Allowed)
	}

	// The endpoint budget (2) trips well before the ip budget (5); the
	// violation must name the endpoint tier even though ip is also counted.
	result := engine.Evaluate(context.Background(), cc)
	assert.False(t, result.Allowed)
	require.NotNil(t, result.FirstExceededTier)
	assert.Equal(t, models.TierEndpoint, *result.FirstExceededTier)

	ipStatus, ok := result.Status(models.TierIP)
	require.True(t, ok)
	assert.Equal(t, int64(3), ipStatus.Count)
	assert.False(t, ipStatus.Exceeded)
}

func TestEvaluate_EndpointTierRequiresOverride(t *testing.T) {
	engine, _ := newTestEngine(t, baseLimits())

	cc := models.ClientContext{IP: "203.0.113.7", Endpoint: "GET /api/v1/messages"}
	result := engine.Evaluate(context.Background(), cc)

	assert.True(t, result.Allowed)
	_, ok := result.Status(models.TierEndpoint)
	assert.False(t, ok, "no endpoint status without a configured override")
}

func TestEvaluate_AnonymousSkipsUserAndOrgTiers(t *testing.T) {
	engine, _ := newTestEngine(t, baseLimits())

	result := engine.Evaluate(context.Background(), models.ClientContext{IP: "203.0.113.7"})

	_, hasUser := result.Status(models.TierUser)
	_, hasOrg := result.Status(models.TierOrganization)
	assert.False(t, hasUser)
	assert.False(t, hasOrg)
}

func TestEvaluate_OrganizationIsolation(t *testing.T) {
	limits := baseLimits()
	limits.Organization.Requests = 3
	engine, _ := newTestEngine(t, limits)

	orgA := models.ClientContext{IP: "203.0.113.7", UserID: "u-1", OrganizationID: "org-a"}
	orgB := models.ClientContext{IP: "203.0.113.8", UserID: "u-2", OrganizationID: "org-b"}

	for i := 0; i < 3; i++ {
		require.True(t, engine.Evaluate(context.Background(), orgA).Allowed)
	}
	assert.False(t, engine.Evaluate(context.Background(), orgA).Allowed)

	// A different organization's budget is untouched
	result := engine.Evaluate(context.Background(), orgB)
	assert.True(t, result.Allowed)
	st, ok := result.Status(models.TierOrganization)
	require.True(t, ok)
	assert.Equal(t, int64(1), st.Count)
}

func TestEvaluate_BurstThreshold(t *testing.T) {
	limits := baseLimits()
	limits.IP = models.LimitPolicy{Requests: 100, WindowSeconds: 3600, BurstThreshold: 3, Enabled: true}
	engine, _ := newTestEngine(t, limits)

	cc := models.ClientContext{IP: "203.0.113.7"}
	for i := 0; i < 3; i++ {
		require.True(t, engine.Evaluate(context.Background(), cc).Allowed)
	}

	// Base budget has plenty left; the burst sub-window trips first.
	result := engine.Evaluate(context.Background(), cc)
	assert.False(t, result.Allowed)
	require.NotNil(t, result.FirstExceededTier)
	assert.Equal(t, models.TierIP.Burst(), *result.FirstExceededTier)

	burstStatus, ok := result.Status(models.TierIP.Burst())
	require.True(t, ok)
	assert.True(t, burstStatus.Exceeded)
	assert.Equal(t, int64(3), burstStatus.Limit)
}

// partialFailStore fails increments for one tier's keys and delegates the
// rest, simulating a backend that is only partially reachable.
type partialFailStore struct {
	*counter.MemoryStore
	failPrefix string
}

func (p *partialFailStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if len(key) >= len(p.failPrefix) && key[:len(p.failPrefix)] == p.failPrefix {
		return 0, errors.New("backend down")
	}
	return p.MemoryStore.IncrementAndGet(ctx, key, ttl)
}

func TestEvaluate_PartialFailureStillFailsOpen(t *testing.T) {
	store := &partialFailStore{
		MemoryStore: counter.NewMemoryStore(),
		failPrefix:  "ratelimit:ip:",
	}
	defer store.Close()

	engine := NewEngine(store, policy.NewRegistry(baseLimits()), 60)
	cc := models.ClientContext{IP: "203.0.113.7", Endpoint: "POST /auth/login"}

	// The endpoint counter keeps working and goes over its budget of 2,
	// but the ip increment fails every time. One failing tier degrades
	// the whole decision to Allowed.
	for i := 0; i < 4; i++ {
		result := engine.Evaluate(context.Background(), cc)
		assert.True(t, result.Allowed)
		assert.True(t, result.Degraded)
		assert.Nil(t, result.FirstExceededTier)
	}

	endpointStatus, ok := engine.Evaluate(context.Background(), cc).Status(models.TierEndpoint)
	require.True(t, ok)
	assert.True(t, endpointStatus.Exceeded, "the working tier is still counted and reported")
}

func TestEvaluate_FailsOpenOnBackendError(t *testing.T) {
	registry := policy.NewRegistry(baseLimits())
	engine := NewEngine(failingStore{}, registry, 60)

	result := engine.Evaluate(context.Background(), models.ClientContext{IP: "203.0.113.7"})

	assert.True(t, result.Allowed, "backend outage must never deny a request")
	assert.True(t, result.Degraded)
	assert.Empty(t, result.Statuses)
}

func TestStatus_DoesNotIncrement(t *testing.T) {
	engine, store := newTestEngine(t, baseLimits())

	cc := models.ClientContext{IP: "203.0.113.7"}
	engine.Evaluate(context.Background(), cc)

	for i := 0; i < 3; i++ {
		statuses, err := engine.Status(context.Background(), cc)
		require.NoError(t, err)
		st, ok := statuses[models.TierIP]
		require.True(t, ok)
		assert.Equal(t, int64(1), st.Count)
	}

	assert.Equal(t, 1, store.Len(), "status reads must not create buckets")
}

func TestStatus_UnusedScopeReportsZero(t *testing.T) {
	engine, _ := newTestEngine(t, baseLimits())

	statuses, err := engine.Status(context.Background(), models.ClientContext{IP: "198.51.100.1"})
	require.NoError(t, err)

	st, ok := statuses[models.TierIP]
	require.True(t, ok)
	assert.Zero(t, st.Count)
	assert.Equal(t, int64(5), st.Remaining)
}

func TestReset_RestoresBudget(t *testing.T) {
	engine, _ := newTestEngine(t, baseLimits())

	cc := models.ClientContext{IP: "203.0.113.7"}
	for i := 0; i < 6; i++ {
		engine.Evaluate(context.Background(), cc)
	}
	require.False(t, engine.Evaluate(context.Background(), cc).Allowed)

	require.NoError(t, engine.Reset(context.Background(), models.TierIP, "203.0.113.7"))

	result := engine.Evaluate(context.Background(), cc)
	assert.True(t, result.Allowed)
	st, ok := result.Status(models.TierIP)
	require.True(t, ok)
	assert.Equal(t, int64(1), st.Count)
}

func TestReset_ScopedToValue(t *testing.T) {
	engine, _ := newTestEngine(t, baseLimits())

	first := models.ClientContext{IP: "203.0.113.7"}
	second := models.ClientContext{IP: "203.0.113.8"}
	engine.Evaluate(context.Background(), first)
	engine.Evaluate(context.Background(), second)

	require.NoError(t, engine.Reset(context.Background(), models.TierIP, "203.0.113.7"))

	statuses, err := engine.Status(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), statuses[models.TierIP].Count)
}
