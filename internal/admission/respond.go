package admission

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"admission/internal/models"
)

// headerTierName canonicalizes a tier for use in X-RateLimit-* header names:
// ip -> IP, user -> User, organization -> Organization, endpoint -> Endpoint,
// ip_burst -> IP-Burst.
func headerTierName(tier models.Tier) string {
	name := canonicalTier(tier.Base())
	if tier.IsBurst() {
		name += "-Burst"
	}
	return name
}

func canonicalTier(tier models.Tier) string {
	if tier == models.TierIP {
		return "IP"
	}
	return strings.ToUpper(string(tier)[:1]) + string(tier)[1:]
}

// SetRateLimitHeaders attaches the per-tier limit, remaining, and reset
// headers for every evaluated tier. They are set on allowed and denied
// responses alike so callers can always see their full standing.
func SetRateLimitHeaders(w http.ResponseWriter, result models.AdmissionResult) {
	for _, st := range result.Statuses {
		name := headerTierName(st.Tier)
		w.Header().Set("X-RateLimit-Limit-"+name, fmt.Sprintf("%d", st.Limit))
		w.Header().Set("X-RateLimit-Remaining-"+name, fmt.Sprintf("%d", st.Remaining))
		w.Header().Set("X-RateLimit-Reset-"+name, fmt.Sprintf("%d", st.ResetTime.Unix()))
	}
}

// WriteDenial writes the single user-visible failure this subsystem ever
// produces: HTTP 429 with Retry-After and the structured rate-limited body
// for the tightest exceeded tier.
func WriteDenial(w http.ResponseWriter, result models.AdmissionResult) {
	st := violatedStatus(result)

	retryAfter := int(time.Until(st.ResetTime).Seconds()) + 1
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(models.NewRateLimitedResponse(st))
}

// violatedStatus resolves the status of the violated tier. The engine always
// records a status for the tier it marks exceeded; the fallbacks only guard
// against a malformed result.
func violatedStatus(result models.AdmissionResult) models.TierStatus {
	if result.FirstExceededTier != nil {
		if st, ok := result.Status(*result.FirstExceededTier); ok {
			return st
		}
	}
	for _, st := range result.Statuses {
		if st.Exceeded {
			return st
		}
	}
	return models.TierStatus{ResetTime: time.Now()}
}
