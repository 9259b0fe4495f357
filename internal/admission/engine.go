package admission

import (
	"context"
	"log/slog"
	"time"

	"admission/internal/counter"
	"admission/internal/models"
	"admission/internal/policy"
)

// Engine evaluates every applicable tier for a request and produces the
// admission verdict. Tiers are checked in fixed precedence (endpoint, ip,
// user, organization); the tightest-scoped exceeded tier is reported as the
// violation. Counters are incremented unconditionally - denied requests still
// count, so retry storms cannot silently reset a window.
type Engine struct {
	store       counter.Store
	registry    *policy.Registry
	burstWindow int64
}

// NewEngine creates a decision engine over the given counter store and policy
// registry. burstWindowSeconds is the sub-window used by burst thresholds.
func NewEngine(store counter.Store, registry *policy.Registry, burstWindowSeconds int64) *Engine {
	if burstWindowSeconds <= 0 {
		burstWindowSeconds = 1
	}
	return &Engine{
		store:       store,
		registry:    registry,
		burstWindow: burstWindowSeconds,
	}
}

// Evaluate runs the full tier evaluation for one request. It never returns an
// error: a counter backend failure degrades the whole decision to Allowed
// with a warning, because an outage of the counter backend must not become an
// outage of the service. Evaluation always completes all tiers so the
// response can report full per-tier status.
func (e *Engine) Evaluate(ctx context.Context, cc models.ClientContext) models.AdmissionResult {
	now := time.Now()
	result := models.AdmissionResult{Allowed: true}

	for _, tier := range models.EvaluationOrder {
		pol, ok := e.applicablePolicy(tier, cc)
		if !ok {
			continue
		}

		scope := cc.ScopeValue(tier)
		if scope == "" {
			continue
		}

		st, err := e.incrementTier(ctx, tier, scope, pol.Requests, pol.WindowSeconds, now)
		if err != nil {
			slog.Warn("Counter backend failed, failing open",
				"tier", tier,
				"scope", scope,
				"error", err)
			result.Degraded = true
		} else {
			result.Statuses = append(result.Statuses, st)
			if st.Exceeded {
				result.Allowed = false
				if result.FirstExceededTier == nil {
					t := tier
					result.FirstExceededTier = &t
				}
			}
		}

		// Burst check: an independent short sub-window that catches
		// spikes a large window would absorb too slowly. It behaves as
		// a virtual tier directly below its base tier in precedence.
		if pol.BurstThreshold <= 0 {
			continue
		}

		bst, err := e.incrementTier(ctx, tier.Burst(), scope, pol.BurstThreshold, e.burstWindow, now)
		if err != nil {
			slog.Warn("Counter backend failed on burst check, failing open",
				"tier", tier.Burst(),
				"scope", scope,
				"error", err)
			result.Degraded = true
			continue
		}
		result.Statuses = append(result.Statuses, bst)
		if bst.Exceeded {
			result.Allowed = false
			if result.FirstExceededTier == nil {
				t := tier.Burst()
				result.FirstExceededTier = &t
			}
		}
	}

	// The fail-open contract covers the whole decision: any backend failure
	// during evaluation admits the request, even when another tier's counter
	// could still be read and was over its limit.
	if result.Degraded {
		result.Allowed = true
		result.FirstExceededTier = nil
	}

	return result
}

// Status reports current per-tier state for a scope without creating or
// incrementing any counter, so repeated reads are idempotent.
func (e *Engine) Status(ctx context.Context, cc models.ClientContext) (map[models.Tier]models.TierStatus, error) {
	now := time.Now()
	statuses := make(map[models.Tier]models.TierStatus)

	for _, tier := range models.EvaluationOrder {
		pol, ok := e.applicablePolicy(tier, cc)
		if !ok {
			continue
		}

		scope := cc.ScopeValue(tier)
		if scope == "" {
			continue
		}

		key := counter.Key(string(tier), scope, pol.WindowSeconds, now)
		count, err := e.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		statuses[tier] = tierStatus(tier, count, pol.Requests, pol.WindowSeconds, now)

		if pol.BurstThreshold > 0 {
			burstKey := counter.Key(string(tier.Burst()), scope, e.burstWindow, now)
			burstCount, err := e.store.Get(ctx, burstKey)
			if err != nil {
				return nil, err
			}
			statuses[tier.Burst()] = tierStatus(tier.Burst(), burstCount, pol.BurstThreshold, e.burstWindow, now)
		}
	}

	return statuses, nil
}

// Reset clears the current window bucket (and burst bucket) for one scope.
// An in-flight evaluation that already read the pre-reset count may admit one
// extra request past the nominal limit; that race is accepted in favor of
// lock-free simplicity.
func (e *Engine) Reset(ctx context.Context, tier models.Tier, value string) error {
	now := time.Now()
	pol := e.registry.Policy(tier)

	keys := []string{counter.Key(string(tier), value, pol.WindowSeconds, now)}
	if pol.BurstThreshold > 0 {
		keys = append(keys, counter.Key(string(tier.Burst()), value, e.burstWindow, now))
	}

	return e.store.Delete(ctx, keys...)
}

// applicablePolicy resolves the enabled policy for a tier, if any. The
// endpoint tier only applies when an override is configured for the
// request's endpoint.
func (e *Engine) applicablePolicy(tier models.Tier, cc models.ClientContext) (models.LimitPolicy, bool) {
	var pol models.LimitPolicy
	if tier == models.TierEndpoint {
		override, ok := e.registry.EndpointOverride(cc.Endpoint)
		if !ok {
			return models.LimitPolicy{}, false
		}
		pol = override
	} else {
		pol = e.registry.Policy(tier)
	}

	if !pol.Enabled || pol.Requests <= 0 || pol.WindowSeconds <= 0 {
		return models.LimitPolicy{}, false
	}
	return pol, true
}

// incrementTier performs the unconditional atomic increment for one tier and
// computes its status.
func (e *Engine) incrementTier(ctx context.Context, tier models.Tier, scope string, limit, windowSeconds int64, now time.Time) (models.TierStatus, error) {
	key := counter.Key(string(tier), scope, windowSeconds, now)
	count, err := e.store.IncrementAndGet(ctx, key, time.Duration(windowSeconds)*time.Second)
	if err != nil {
		return models.TierStatus{}, err
	}
	return tierStatus(tier, count, limit, windowSeconds, now), nil
}

func tierStatus(tier models.Tier, count, limit, windowSeconds int64, now time.Time) models.TierStatus {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return models.TierStatus{
		Tier:      tier,
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		ResetTime: counter.WindowEnd(windowSeconds, now),
		Exceeded:  count > limit,
	}
}
