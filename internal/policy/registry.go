// Package policy holds the runtime-mutable limit policies: one default per
// tier plus sparse per-endpoint overrides. The registry is an explicitly
// owned object injected into the engine and the management API, never a
// process-wide singleton. Reads return immutable policy values; updates swap
// whole values under the lock and are visible to the very next evaluation.
package policy

import (
	"fmt"
	"sync"

	"admission/internal/models"
)

// ValidationError reports a rejected policy update. Bad values are never
// silently clamped.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid policy: %s %s", e.Field, e.Reason)
}

// Registry is the thread-safe policy store.
type Registry struct {
	mu        sync.RWMutex
	tiers     map[models.Tier]models.LimitPolicy
	endpoints map[string]models.LimitPolicy
}

// NewRegistry seeds the registry from the boot-time limits configuration.
func NewRegistry(cfg models.LimitsConfig) *Registry {
	r := &Registry{
		tiers:     make(map[models.Tier]models.LimitPolicy),
		endpoints: make(map[string]models.LimitPolicy),
	}

	ip := cfg.IP
	ip.Tier = models.TierIP
	user := cfg.User
	user.Tier = models.TierUser
	org := cfg.Organization
	org.Tier = models.TierOrganization

	r.tiers[models.TierIP] = ip
	r.tiers[models.TierUser] = user
	r.tiers[models.TierOrganization] = org

	for endpoint, p := range cfg.Endpoints {
		p.Tier = models.TierEndpoint
		r.endpoints[endpoint] = p
	}

	return r
}

// Policy returns the policy for a base tier. Unknown tiers get a disabled
// zero policy; absence of configuration is not an error.
func (r *Registry) Policy(tier models.Tier) models.LimitPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.tiers[tier.Base()]
	if !ok {
		return models.LimitPolicy{Tier: tier.Base(), Enabled: false}
	}
	return p
}

// EndpointOverride returns the override for a normalized endpoint, if one is
// configured.
func (r *Registry) EndpointOverride(endpoint string) (models.LimitPolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.endpoints[endpoint]
	return p, ok
}

// EndpointOverrides returns a copy of all configured endpoint overrides.
func (r *Registry) EndpointOverrides() map[string]models.LimitPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]models.LimitPolicy, len(r.endpoints))
	for endpoint, p := range r.endpoints {
		out[endpoint] = p
	}
	return out
}

// UpdatePolicy applies a runtime limit change to a tier (target is a tier
// name) or an endpoint override (target is "METHOD route-template"). The
// update is atomic and requires no restart. Existing burst thresholds and
// enablement carry over; an endpoint target without an existing override
// creates one.
func (r *Registry) UpdatePolicy(target string, requests, windowSeconds int64) (models.LimitPolicy, error) {
	if requests <= 0 {
		return models.LimitPolicy{}, &ValidationError{Field: "requests", Reason: "must be positive"}
	}
	if windowSeconds <= 0 {
		return models.LimitPolicy{}, &ValidationError{Field: "window_seconds", Reason: "must be positive"}
	}
	// Endpoint budgets are addressed by their "METHOD route-template" key;
	// the bare tier name is not a valid target.
	if target == string(models.TierEndpoint) {
		return models.LimitPolicy{}, &ValidationError{Field: "target", Reason: "endpoint overrides must name a specific endpoint"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if models.ValidTier(target) {
		tier := models.Tier(target)
		p := r.tiers[tier]
		p.Tier = tier
		p.Requests = requests
		p.WindowSeconds = windowSeconds
		p.Enabled = true
		r.tiers[tier] = p
		return p, nil
	}

	p, ok := r.endpoints[target]
	if !ok {
		p = models.LimitPolicy{Tier: models.TierEndpoint}
	}
	p.Requests = requests
	p.WindowSeconds = windowSeconds
	p.Enabled = true
	r.endpoints[target] = p
	return p, nil
}

// SetEnabled flips a tier policy on or off. Policies are disabled, never
// deleted.
func (r *Registry) SetEnabled(tier models.Tier, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.tiers[tier.Base()]
	if !ok {
		return
	}
	p.Enabled = enabled
	r.tiers[tier.Base()] = p
}
