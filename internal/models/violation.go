// Package models - Violation audit records.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ViolationRecord is an append-only audit entry for one denied request. It is
// written fire-and-forget by the recorder and owned by the audit store.
type ViolationRecord struct {
	ID             string    `json:"id"`
	IP             string    `json:"ip"`
	UserID         string    `json:"user_id,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Endpoint       string    `json:"endpoint"`
	ViolationTier  Tier      `json:"violation_tier"`
	UserAgent      string    `json:"user_agent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewViolationRecord builds a record for a denied request.
func NewViolationRecord(ctx ClientContext, tier Tier) *ViolationRecord {
	return &ViolationRecord{
		ID:             uuid.New().String(),
		IP:             ctx.IP,
		UserID:         ctx.UserID,
		OrganizationID: ctx.OrganizationID,
		Endpoint:       ctx.Endpoint,
		ViolationTier:  tier,
		UserAgent:      ctx.UserAgent,
		CreatedAt:      time.Now().UTC(),
	}
}

// ViolationFilter narrows and pages violation listings. Zero values mean
// "no filter"; Limit is clamped by the handler, not here.
type ViolationFilter struct {
	TargetType     Tier
	OrganizationID string
	Limit          int
	Offset         int
}
