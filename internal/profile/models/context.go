package models

import (
	"strings"
	"time"

	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
)

// Context is a user-defined named grouping used to choose which of the user's
// names is shown.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - (OwnerID, Name) is unique per owner (store-enforced)
//   - Context name matching during resolution is exact and case-sensitive
type Context struct {
	ID          id.ContextID `json:"id"`
	OwnerID     id.UserID    `json:"owner_id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func NewContext(contextID id.ContextID, ownerID id.UserID, name, description string, now time.Time) (*Context, error) {
	name = strings.TrimSpace(name)
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "context owner is required")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "context name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "context name must be 128 characters or less")
	}
	return &Context{
		ID:          contextID,
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ContextNameAssignment binds a context to the single name it discloses.
//
// Invariants:
//   - At most one assignment per ContextID (store-enforced upsert)
//   - The assigned name must belong to the same owner as the context
type ContextNameAssignment struct {
	ContextID  id.ContextID `json:"context_id"`
	NameID     id.NameID    `json:"name_id"`
	OwnerID    id.UserID    `json:"owner_id"`
	AssignedAt time.Time    `json:"assigned_at"`
}
