// Package models - Rate limit tiers, policies, and admission outcomes.
// This file defines the core value types flowing through the admission-control
// pipeline. Policies are immutable values: the registry swaps whole values on
// update, in-flight evaluations keep the copy they read.
package models

import (
	"time"
)

// Tier is an independent dimension along which request volume is bounded.
type Tier string

const (
	TierEndpoint     Tier = "endpoint"
	TierIP           Tier = "ip"
	TierUser         Tier = "user"
	TierOrganization Tier = "organization"
)

// BurstSuffix marks the virtual sub-window tier derived from a base tier,
// e.g. "ip_burst". Burst tiers never have policies of their own; they inherit
// the BurstThreshold of their base tier's policy.
const BurstSuffix = "_burst"

// Burst returns the virtual burst tier derived from t.
func (t Tier) Burst() Tier {
	return t + BurstSuffix
}

// IsBurst reports whether t is a derived burst tier.
func (t Tier) IsBurst() bool {
	return len(t) > len(BurstSuffix) && t[len(t)-len(BurstSuffix):] == BurstSuffix
}

// Base returns the underlying tier for a burst tier, or t itself.
func (t Tier) Base() Tier {
	if t.IsBurst() {
		return t[:len(t)-len(BurstSuffix)]
	}
	return t
}

// EvaluationOrder is the fixed tier precedence: endpoint first because
// endpoint overrides are the most restrictive and protect hot routes such as
// login. The tightest-scoped exceeded tier also wins the violation_type
// reported to the caller.
var EvaluationOrder = []Tier{TierEndpoint, TierIP, TierUser, TierOrganization}

// ValidTier reports whether s names one of the four base tiers.
func ValidTier(s string) bool {
	switch Tier(s) {
	case TierEndpoint, TierIP, TierUser, TierOrganization:
		return true
	}
	return false
}

// LimitPolicy is the admission budget for one tier or one endpoint override.
// A policy is never mutated in place; updates replace the whole value.
type LimitPolicy struct {
	Tier           Tier  `yaml:"-" json:"tier"`
	Requests       int64 `yaml:"requests" json:"requests"`
	WindowSeconds  int64 `yaml:"window_seconds" json:"window_seconds"`
	BurstThreshold int64 `yaml:"burst_threshold" json:"burst_threshold,omitempty"`
	Enabled        bool  `yaml:"enabled" json:"enabled"`
}

// Window returns the policy window as a duration.
func (p LimitPolicy) Window() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

// ClientContext identifies the caller of a single request. It is built once
// by the extractor and read-only afterwards. UserID and OrganizationID are
// empty for unauthenticated requests, which are then limited by IP only.
type ClientContext struct {
	IP             string
	UserID         string
	OrganizationID string
	// Endpoint is "METHOD route-template" (e.g. "POST /api/v1/messages"),
	// never the raw path, so counter cardinality stays bounded.
	Endpoint  string
	UserAgent string
}

// ScopeValue returns the counter scope for the given tier, or "" when the
// identity required by that tier is absent from the context.
func (c ClientContext) ScopeValue(tier Tier) string {
	switch tier.Base() {
	case TierEndpoint:
		return c.Endpoint
	case TierIP:
		return c.IP
	case TierUser:
		return c.UserID
	case TierOrganization:
		return c.OrganizationID
	}
	return ""
}

// TierStatus is the computed state of one tier after (or without) an
// increment. It is never stored; headers and the status API are built from it.
type TierStatus struct {
	Tier      Tier      `json:"tier"`
	Count     int64     `json:"count"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
	Exceeded  bool      `json:"exceeded"`
}

// AdmissionResult is the verdict for one request. Denial is an expected
// outcome carried as a value, not an error.
type AdmissionResult struct {
	Allowed bool
	// Statuses holds the status of every tier that was evaluated, in
	// EvaluationOrder (with burst tiers directly after their base tier),
	// so responses always report full per-tier state.
	Statuses []TierStatus
	// FirstExceededTier is the tightest-scoped tier that failed, or nil.
	FirstExceededTier *Tier
	// Degraded is set when a counter backend failure forced a fail-open
	// verdict.
	Degraded bool
}

// Status returns the recorded status for tier, if any.
func (r AdmissionResult) Status(tier Tier) (TierStatus, bool) {
	for _, st := range r.Statuses {
		if st.Tier == tier {
			return st, true
		}
	}
	return TierStatus{}, false
}
