// Package api exposes the admission-control management surface: per-scope
// status reads, runtime policy updates, counter resets, and the violation
// audit listing, plus service health.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"admission/internal/admission"
	"admission/internal/counter"
	"admission/internal/models"
	"admission/internal/policy"
	"admission/internal/version"
	"admission/internal/violations"
)

const (
	defaultViolationsLimit = 50
	maxViolationsLimit     = 500
)

// Handlers contains the HTTP handlers for the management API.
type Handlers struct {
	engine   *admission.Engine
	registry *policy.Registry
	recorder *violations.Recorder
	store    counter.Store
}

// NewHandlers creates a handlers instance over the admission components.
func NewHandlers(engine *admission.Engine, registry *policy.Registry, recorder *violations.Recorder, store counter.Store) *Handlers {
	return &Handlers{
		engine:   engine,
		registry: registry,
		recorder: recorder,
		store:    store,
	}
}

// Status reports current per-tier state for the scopes given as query
// parameters. Reads are idempotent: no counter is created or incremented.
// GET /api/v1/ratelimit/status?ip=&user_id=&organization_id=&endpoint=
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	cc := models.ClientContext{
		IP:             r.URL.Query().Get("ip"),
		UserID:         r.URL.Query().Get("user_id"),
		OrganizationID: r.URL.Query().Get("organization_id"),
		Endpoint:       r.URL.Query().Get("endpoint"),
	}

	if cc.IP == "" && cc.UserID == "" && cc.OrganizationID == "" && cc.Endpoint == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest,
			"at least one of ip, user_id, organization_id, endpoint is required")
		return
	}

	statuses, err := h.engine.Status(r.Context(), cc)
	if err != nil {
		slog.Error("Failed to read tier status", "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError,
			"failed to read counter backend")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, &models.StatusResponse{Tiers: statuses})
}

// UpdateConfig applies a runtime limit change to a tier or endpoint override.
// The new policy is visible to the very next evaluation; no restart needed.
// PUT /api/v1/ratelimit/config
func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req models.ConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "invalid JSON body")
		return
	}

	if req.Target == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "target is required")
		return
	}

	updated, err := h.registry.UpdatePolicy(req.Target, req.Requests, req.WindowSeconds)
	if err != nil {
		var verr *policy.ValidationError
		if errors.As(err, &verr) {
			h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, verr.Error())
			return
		}
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, err.Error())
		return
	}

	slog.Info("Limit policy updated",
		"target", req.Target,
		"requests", req.Requests,
		"window_seconds", req.WindowSeconds)

	h.writeJSONResponse(w, http.StatusOK, &models.ConfigUpdateResponse{
		Target: req.Target,
		Policy: updated,
	})
}

// Reset clears the current window for one scope, restoring its full budget.
// POST /api/v1/ratelimit/reset
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	var req models.ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "invalid JSON body")
		return
	}

	tier := models.Tier(req.TargetType)
	switch tier {
	case models.TierIP, models.TierUser, models.TierOrganization:
	default:
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest,
			"target_type must be one of ip, user, organization")
		return
	}

	if req.TargetValue == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "target_value is required")
		return
	}

	if err := h.engine.Reset(r.Context(), tier, req.TargetValue); err != nil {
		slog.Error("Failed to reset counters", "target_type", req.TargetType, "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError,
			"failed to reset counter backend")
		return
	}

	slog.Info("Counters reset", "target_type", req.TargetType, "target_value", req.TargetValue)

	h.writeJSONResponse(w, http.StatusOK, &models.ResetResponse{
		TargetType:  req.TargetType,
		TargetValue: req.TargetValue,
		Message:     "counters reset",
	})
}

// ListViolations returns a newest-first page of denied-request audit records.
// GET /api/v1/ratelimit/violations?limit=&offset=&target_type=&organization_id=
func (h *Handlers) ListViolations(w http.ResponseWriter, r *http.Request) {
	filter := models.ViolationFilter{
		OrganizationID: r.URL.Query().Get("organization_id"),
		Limit:          defaultViolationsLimit,
	}

	if targetType := r.URL.Query().Get("target_type"); targetType != "" {
		if !models.ValidTier(targetType) && !models.Tier(targetType).IsBurst() {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest,
				"invalid target_type")
			return
		}
		filter.TargetType = models.Tier(targetType)
	}

	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if limit, err := strconv.Atoi(limitParam); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if filter.Limit > maxViolationsLimit {
		filter.Limit = maxViolationsLimit
	}

	if offsetParam := r.URL.Query().Get("offset"); offsetParam != "" {
		if offset, err := strconv.Atoi(offsetParam); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	records, total, err := h.recorder.List(r.Context(), filter)
	if err != nil {
		slog.Error("Failed to list violations", "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError,
			"failed to query audit store")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, &models.ListViolationsResponse{
		Violations: records,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
		HasMore:    filter.Offset+len(records) < total,
	})
}

// HealthCheck reports service and dependency health.
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]models.ComponentHealth)
	status := models.StatusHealthy

	// The probe key never exists; a successful read is enough to prove the
	// backend is reachable.
	if _, err := h.store.Get(r.Context(), "ratelimit:health:probe:0"); err != nil {
		components["counter"] = models.ComponentHealth{
			Status:  models.StatusUnhealthy,
			Message: err.Error(),
		}
		// Counter outage degrades to fail-open but does not take the
		// service down.
		status = models.StatusDegraded
	} else {
		components["counter"] = models.ComponentHealth{Status: models.StatusHealthy}
	}

	if _, _, err := h.recorder.List(r.Context(), models.ViolationFilter{Limit: 1}); err != nil {
		components["audit"] = models.ComponentHealth{
			Status:  models.StatusUnhealthy,
			Message: err.Error(),
		}
		status = models.StatusDegraded
	} else {
		components["audit"] = models.ComponentHealth{Status: models.StatusHealthy}
	}

	h.writeJSONResponse(w, http.StatusOK, &models.HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Version:    version.GetInfo().Version,
		Components: components,
	})
}

// writeJSONResponse writes a JSON response with the given status code.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a structured JSON error response.
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(message, code))
}
