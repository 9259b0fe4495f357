package admission

import (
	"net/http"

	"admission/internal/models"
)

// ViolationSink receives denied-request records off the serving path. Record
// must never block; persistence failures stay inside the sink.
type ViolationSink interface {
	Record(record *models.ViolationRecord)
}

// Metrics observes admission decisions. Implementations must be safe for
// concurrent use; a nil Metrics disables observation.
type Metrics interface {
	ObserveDecision(allowed, degraded bool)
	ObserveDenial(tier models.Tier)
}

// Middleware returns HTTP middleware enforcing admission control in front of
// every handler. Per request:
//
//	excluded-path check -> context extraction -> tier evaluation ->
//	allowed: forward + decorate | denied: record violation + 429
//
// Excluded paths short-circuit with zero side effects. There are no internal
// retries; each evaluation step is a single atomic counter operation, so a
// cancelled request leaves no partial state behind.
func Middleware(extractor *Extractor, engine *Engine, sink ViolationSink, metrics Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if extractor.Excluded(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cc := extractor.Extract(r)
			result := engine.Evaluate(r.Context(), cc)

			SetRateLimitHeaders(w, result)
			if metrics != nil {
				metrics.ObserveDecision(result.Allowed, result.Degraded)
			}

			if !result.Allowed {
				tier := models.TierIP
				if result.FirstExceededTier != nil {
					tier = *result.FirstExceededTier
				}
				if metrics != nil {
					metrics.ObserveDenial(tier)
				}
				if sink != nil {
					sink.Record(models.NewViolationRecord(cc, tier))
				}
				WriteDenial(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
