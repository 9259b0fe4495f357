// Package admission implements the request admission-control pipeline:
// client context extraction, multi-tier limit evaluation against the shared
// counter store, response decoration, and the HTTP middleware that ties them
// together in front of every application handler.
package admission

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"admission/internal/models"
)

type identityContextKey struct{}

// Identity is the already-resolved caller identity attached to the request
// context by the upstream authentication collaborator. How identity is
// authenticated is out of scope here; absent identity simply means the
// request is limited by IP alone.
type Identity struct {
	UserID         string
	OrganizationID string
}

// ContextWithIdentity attaches a resolved identity to ctx.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity attached by the auth collaborator,
// if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// Extractor derives the ClientContext for a request. It is created once at
// boot from the limits configuration and is safe for concurrent use.
type Extractor struct {
	trustProxyHeaders bool
	excludedPaths     []string
}

// NewExtractor creates an extractor with the configured proxy trust and
// excluded path prefixes.
func NewExtractor(cfg models.LimitsConfig) *Extractor {
	return &Extractor{
		trustProxyHeaders: cfg.TrustProxyHeaders,
		excludedPaths:     cfg.ExcludedPaths,
	}
}

// Excluded reports whether path is exempt from admission control (health
// checks, metrics, static assets). Matching happens before any other work so
// excluded requests cause zero side effects.
func (e *Extractor) Excluded(path string) bool {
	for _, prefix := range e.excludedPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Extract builds the per-request ClientContext. The endpoint is the matched
// route template ("METHOD /path/{id}"), never the raw path, so per-endpoint
// counter cardinality stays bounded.
func (e *Extractor) Extract(r *http.Request) models.ClientContext {
	cc := models.ClientContext{
		IP:        e.clientIP(r),
		Endpoint:  endpointTemplate(r),
		UserAgent: r.Header.Get("User-Agent"),
	}

	if id, ok := IdentityFromContext(r.Context()); ok {
		cc.UserID = id.UserID
		cc.OrganizationID = id.OrganizationID
	}

	return cc
}

// clientIP returns the transport-layer peer address. Forwarding headers are
// honored only when explicitly trusted, otherwise a caller could spoof its
// way out of the ip tier.
func (e *Extractor) clientIP(r *http.Request) string {
	if e.trustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// endpointTemplate normalizes the request to "METHOD route-template". When no
// mux route matched (the middleware can wrap non-mux handlers) the raw path
// is the best available fallback.
func endpointTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return r.Method + " " + tmpl
		}
	}
	return r.Method + " " + r.URL.Path
}
