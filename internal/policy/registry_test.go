package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admission/internal/models"
)

func testLimits() models.LimitsConfig {
	return models.LimitsConfig{
		IP:           models.LimitPolicy{Requests: 1000, WindowSeconds: 3600, BurstThreshold: 50, Enabled: true},
		User:         models.LimitPolicy{Requests: 500, WindowSeconds: 3600, Enabled: true},
		Organization: models.LimitPolicy{Requests: 5000, WindowSeconds: 3600, Enabled: true},
		Endpoints: map[string]models.LimitPolicy{
			"POST /auth/login": {Requests: 5, WindowSeconds: 60, Enabled: true},
		},
		BurstWindowSeconds: 1,
	}
}

func TestNewRegistry_SeedsPolicies(t *testing.T) {
	r := NewRegistry(testLimits())

	ip := r.Policy(models.TierIP)
	assert.Equal(t, models.TierIP, ip.Tier)
	assert.Equal(t, int64(1000), ip.Requests)
	assert.Equal(t, int64(50), ip.BurstThreshold)

	override, ok := r.EndpointOverride("POST /auth/login")
	require.True(t, ok)
	assert.Equal(t, models.TierEndpoint, override.Tier)
	assert.Equal(t, int64(5), override.Requests)

	_, ok = r.EndpointOverride("GET /api/v1/messages")
	assert.False(t, ok)
}

func TestRegistry_UnknownTierDisabled(t *testing.T) {
	r := NewRegistry(models.LimitsConfig{})

	p := r.Policy(models.TierIP)
	assert.False(t, p.Enabled)
	assert.Zero(t, p.Requests)
}

func TestRegistry_BurstTierResolvesToBase(t *testing.T) {
	r := NewRegistry(testLimits())

	p := r.Policy(models.TierIP.Burst())
	assert.Equal(t, models.TierIP, p.Tier)
	assert.Equal(t, int64(1000), p.Requests)
}

func TestUpdatePolicy_Tier(t *testing.T) {
	r := NewRegistry(testLimits())

	updated, err := r.UpdatePolicy("ip", 2000, 1800)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), updated.Requests)
	assert.Equal(t, int64(1800), updated.WindowSeconds)
	assert.True(t, updated.Enabled)

	// Burst threshold carries over unchanged
	assert.Equal(t, int64(50), updated.BurstThreshold)
	assert.Equal(t, updated, r.Policy(models.TierIP))
}

func TestUpdatePolicy_EndpointOverride(t *testing.T) {
	r := NewRegistry(testLimits())

	updated, err := r.UpdatePolicy("POST /auth/login", 10, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(10), updated.Requests)

	// An unknown endpoint target creates a new override
	created, err := r.UpdatePolicy("POST /api/v1/messages", 100, 60)
	require.NoError(t, err)
	assert.Equal(t, models.TierEndpoint, created.Tier)

	override, ok := r.EndpointOverride("POST /api/v1/messages")
	require.True(t, ok)
	assert.Equal(t, int64(100), override.Requests)
}

func TestUpdatePolicy_RejectsInvalidValues(t *testing.T) {
	r := NewRegistry(testLimits())

	_, err := r.UpdatePolicy("ip", 0, 60)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "requests", verr.Field)

	_, err = r.UpdatePolicy("ip", 100, -5)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "window_seconds", verr.Field)

	// Rejected updates leave the existing policy untouched
	assert.Equal(t, int64(1000), r.Policy(models.TierIP).Requests)
}

func TestUpdatePolicy_RejectsBareEndpointTarget(t *testing.T) {
	r := NewRegistry(testLimits())

	_, err := r.UpdatePolicy("endpoint", 10, 60)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "target", verr.Field)

	// No stray override keyed by the tier name
	_, ok := r.EndpointOverride("endpoint")
	assert.False(t, ok)
}

func TestSetEnabled(t *testing.T) {
	r := NewRegistry(testLimits())

	r.SetEnabled(models.TierUser, false)
	assert.False(t, r.Policy(models.TierUser).Enabled)

	r.SetEnabled(models.TierUser, true)
	assert.True(t, r.Policy(models.TierUser).Enabled)
}

func TestEndpointOverrides_ReturnsCopy(t *testing.T) {
	r := NewRegistry(testLimits())

	overrides := r.EndpointOverrides()
	require.Len(t, overrides, 1)

	delete(overrides, "POST /auth/login")
	_, ok := r.EndpointOverride("POST /auth/login")
	assert.True(t, ok)
}
