package models

import (
	"time"

	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusGranted Status = "GRANTED"
	StatusRevoked Status = "REVOKED"
	StatusExpired Status = "EXPIRED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusGranted, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// Consent is one requester's permission to see the name disclosed by one of
// the granter's contexts. At most one live consent exists per
// (granter, requester) pair; a fresh request after revocation or expiry opens
// a new row, preserving history. Status moves PENDING -> GRANTED -> REVOKED,
// never backwards; expiry is a property of time, read lazily via
// EffectiveStatus.
type Consent struct {
	ID          id.ConsentID `json:"id"`
	GranterID   id.UserID    `json:"granter_id"`
	RequesterID id.UserID    `json:"requester_id"`
	ContextID   id.ContextID `json:"context_id"`
	Status      Status       `json:"status"`
	RequestedAt time.Time    `json:"requested_at"`
	GrantedAt   *time.Time   `json:"granted_at,omitempty"`
	RevokedAt   *time.Time   `json:"revoked_at,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
}

func NewConsent(consentID id.ConsentID, granterID, requesterID id.UserID, contextID id.ContextID, expiresAt *time.Time, now time.Time) (*Consent, error) {
	if granterID.IsNil() || requesterID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "consent requires granter and requester")
	}
	if granterID == requesterID {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "cannot request consent from yourself")
	}
	if contextID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "consent requires a context")
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "consent expiry must be in the future")
	}
	return &Consent{
		ID:          consentID,
		GranterID:   granterID,
		RequesterID: requesterID,
		ContextID:   contextID,
		Status:      StatusPending,
		RequestedAt: now,
		ExpiresAt:   expiresAt,
	}, nil
}

// EffectiveStatus folds expiry into the stored status. A PENDING or GRANTED
// consent whose expiry has passed reads as EXPIRED without a write.
func (c *Consent) EffectiveStatus(now time.Time) Status {
	if (c.Status == StatusPending || c.Status == StatusGranted) &&
		c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return StatusExpired
	}
	return c.Status
}

// IsLive reports whether the consent still occupies the (granter, requester)
// pair: PENDING or GRANTED, and not yet expired.
func (c *Consent) IsLive(now time.Time) bool {
	switch c.EffectiveStatus(now) {
	case StatusPending, StatusGranted:
		return true
	}
	return false
}

// IsActive reports whether the consent authorizes disclosure right now.
func (c *Consent) IsActive(now time.Time) bool {
	return c.EffectiveStatus(now) == StatusGranted
}

// ApplyGrant transitions PENDING -> GRANTED. It reports false when the consent
// was not pending, so callers can distinguish a fresh grant from a repeat.
func (c *Consent) ApplyGrant(now time.Time) bool {
	if c.EffectiveStatus(now) != StatusPending {
		return false
	}
	c.Status = StatusGranted
	granted := now
	c.GrantedAt = &granted
	return true
}

// ApplyRevoke transitions GRANTED -> REVOKED. False means there was no grant
// to withdraw; a PENDING consent can only leave by grant or expiry.
func (c *Consent) ApplyRevoke(now time.Time) bool {
	if c.EffectiveStatus(now) != StatusGranted {
		return false
	}
	c.Status = StatusRevoked
	revoked := now
	c.RevokedAt = &revoked
	return true
}
