package admission

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admission/internal/counter"
	"admission/internal/models"
	"admission/internal/policy"
)

type captureSink struct {
	records []*models.ViolationRecord
}

func (s *captureSink) Record(record *models.ViolationRecord) {
	s.records = append(s.records, record)
}

type captureMetrics struct {
	decisions int
	denials   []models.Tier
	degraded  int
}

func (m *captureMetrics) ObserveDecision(allowed, degraded bool) {
	m.decisions++
	if degraded {
		m.degraded++
	}
}

func (m *captureMetrics) ObserveDenial(tier models.Tier) {
	m.denials = append(m.denials, tier)
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func middlewareFixture(t *testing.T, limits models.LimitsConfig) (http.Handler, *counter.MemoryStore, *captureSink, *captureMetrics) {
	t.Helper()

	store := counter.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	engine := NewEngine(store, policy.NewRegistry(limits), limits.BurstWindowSeconds)
	extractor := NewExtractor(limits)
	sink := &captureSink{}
	metrics := &captureMetrics{}

	handler := Middleware(extractor, engine, sink, metrics)(http.HandlerFunc(okHandler))
	return handler, store, sink, metrics
}

func middlewareLimits() models.LimitsConfig {
	return models.LimitsConfig{
		IP:                 models.LimitPolicy{Requests: 3, WindowSeconds: 3600, Enabled: true},
		User:               models.LimitPolicy{Requests: 2, WindowSeconds: 3600, Enabled: true},
		Organization:       models.LimitPolicy{Requests: 100, WindowSeconds: 3600, Enabled: true},
		BurstWindowSeconds: 60,
		ExcludedPaths:      []string{"/health", "/metrics"},
	}
}

func TestMiddleware_AllowedRequest(t *testing.T) {
	handler, _, sink, metrics := middlewareFixture(t, middlewareLimits())

	req := httptest.NewRequest("GET", "/api/v1/messages", nil)
	req.RemoteAddr = "203.0.113.7:4431"
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "3", rr.Header().Get("X-RateLimit-Limit-IP"))
	assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Remaining-IP"))
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Reset-IP"))
	assert.Empty(t, sink.records)
	assert.Equal(t, 1, metrics.decisions)
}

func TestMiddleware_DeniedRequest(t *testing.T) {
	handler, _, sink, metrics := middlewareFixture(t, middlewareLimits())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/v1/messages", nil)
		req.RemoteAddr = "203.0.113.7:4431"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/messages", nil)
	req.RemoteAddr = "203.0.113.7:4431"
	req.Header.Set("User-Agent", "smtp-client/2.1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining-IP"))

	var body models.RateLimitedResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMITED", body.Error)
	assert.Equal(t, models.TierIP, body.ViolationType)
	assert.Equal(t, int64(3), body.Limit)
	assert.Zero(t, body.Remaining)
	assert.NotEmpty(t, body.ResetTime)

	require.Len(t, sink.records, 1)
	assert.Equal(t, "203.0.113.7", sink.records[0].IP)
	assert.Equal(t, models.TierIP, sink.records[0].ViolationTier)
	assert.Equal(t, "smtp-client/2.1", sink.records[0].UserAgent)

	require.Len(t, metrics.denials, 1)
	assert.Equal(t, models.TierIP, metrics.denials[0])
}

func TestMiddleware_ExcludedPathNoSideEffects(t *testing.T) {
	handler, store, sink, metrics := middlewareFixture(t, middlewareLimits())

	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "203.0.113.7:4431"
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("X-RateLimit-Limit-IP"))
	assert.Equal(t, 0, store.Len(), "excluded paths must create no counters")
	assert.Empty(t, sink.records)
	assert.Zero(t, metrics.decisions)
}

func TestMiddleware_AuthenticatedIdentityTiers(t *testing.T) {
	handler, _, _, _ := middlewareFixture(t, middlewareLimits())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/v1/messages", nil)
		req.RemoteAddr = "203.0.113.7:4431"
		req = req.WithContext(ContextWithIdentity(req.Context(), Identity{
			UserID:         "u-1",
			OrganizationID: "org-a",
		}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	rr := send()
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit-User"))
	assert.Equal(t, "100", rr.Header().Get("X-RateLimit-Limit-Organization"))

	// The user budget (2) is tighter than the ip budget (3)
	send()
	rr = send()
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	var body models.RateLimitedResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, models.TierUser, body.ViolationType)
}

func TestMiddleware_NilSinkAndMetrics(t *testing.T) {
	limits := middlewareLimits()
	limits.IP.Requests = 1

	store := counter.NewMemoryStore()
	defer store.Close()

	engine := NewEngine(store, policy.NewRegistry(limits), limits.BurstWindowSeconds)
	handler := Middleware(NewExtractor(limits), engine, nil, nil)(http.HandlerFunc(okHandler))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/api/v1/messages", nil)
		req.RemoteAddr = "203.0.113.7:4431"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
	}
	// Reaching here without a panic is the assertion.
}
