// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Machine-readable error codes for programmatic handling
// - Standardized pagination with metadata
// - RFC3339 timestamps for international compatibility
package models

import (
	"time"
)

// RateLimitedResponse is the body of every 429 this service produces. It is
// the only user-visible failure of the admission layer; the same per-tier
// headers accompany it so callers can self-correct.
type RateLimitedResponse struct {
	Error         string `json:"error"`          // Always "RATE_LIMITED"
	ViolationType Tier   `json:"violation_type"` // Tightest exceeded tier
	Limit         int64  `json:"limit"`          // Budget of the violated tier
	Remaining     int64  `json:"remaining"`      // Always 0 on denial
	ResetTime     string `json:"reset_time"`     // ISO 8601 window rollover
}

// NewRateLimitedResponse builds the denial body from the violated tier's status.
func NewRateLimitedResponse(status TierStatus) *RateLimitedResponse {
	return &RateLimitedResponse{
		Error:         "RATE_LIMITED",
		ViolationType: status.Tier,
		Limit:         status.Limit,
		Remaining:     0,
		ResetTime:     status.ResetTime.UTC().Format(time.RFC3339),
	}
}

// StatusResponse reports per-tier state for the management status endpoint.
// Reads are idempotent: no counter is created or incremented.
type StatusResponse struct {
	Tiers map[Tier]TierStatus `json:"tiers"`
}

// ConfigUpdateRequest is the body of a policy update.
type ConfigUpdateRequest struct {
	// Target is a tier name (ip, user, organization) or an endpoint
	// template such as "POST /auth/login".
	Target        string `json:"target"`
	Requests      int64  `json:"requests"`
	WindowSeconds int64  `json:"window_seconds"`
}

// ConfigUpdateResponse acknowledges an applied policy update.
type ConfigUpdateResponse struct {
	Target string      `json:"target"`
	Policy LimitPolicy `json:"policy"`
}

// ResetRequest clears the current window for one scope.
type ResetRequest struct {
	TargetType  string `json:"target_type"` // ip | user | organization
	TargetValue string `json:"target_value"`
}

// ResetResponse acknowledges a reset.
type ResetResponse struct {
	TargetType  string `json:"target_type"`
	TargetValue string `json:"target_value"`
	Message     string `json:"message"`
}

// ListViolationsResponse is a newest-first page of violation records.
type ListViolationsResponse struct {
	Violations []*ViolationRecord `json:"violations"`
	TotalCount int                `json:"total_count"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
	HasMore    bool               `json:"has_more"`
}

// ErrorResponse provides structured error information with debugging context.
type ErrorResponse struct {
	Error     string            `json:"error"`             // Error type (always "error")
	Message   string            `json:"message"`           // Human-readable error description
	Code      string            `json:"code,omitempty"`    // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"` // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`         // Error occurrence time
}

// HealthCheckResponse reports overall and per-component health.
type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality (e.g. counter backend down, failing open)
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Machine-readable for client error handling
const (
	ErrorCodeBadRequest     = "BAD_REQUEST"      // 400: Invalid request format
	ErrorCodeInvalidRequest = "INVALID_REQUEST"  // 400: Invalid request data
	ErrorCodeValidation     = "VALIDATION_ERROR" // 422: Policy validation failed
	ErrorCodeInternalError  = "INTERNAL_ERROR"   // 500: Server-side error
	ErrorCodeUnauthorized   = "UNAUTHORIZED"     // 401: Authentication required
	ErrorCodeForbidden      = "FORBIDDEN"        // 403: Permission denied
	ErrorCodeNotFound       = "NOT_FOUND"        // 404: Resource doesn't exist
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}
