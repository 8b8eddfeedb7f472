package models

import (
	"strings"
	"time"

	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
)

// NameKind classifies how a name relates to its owner.
type NameKind string

const (
	NameKindLegal        NameKind = "LEGAL"
	NameKindPreferred    NameKind = "PREFERRED"
	NameKindNickname     NameKind = "NICKNAME"
	NameKindAlias        NameKind = "ALIAS"
	NameKindProfessional NameKind = "PROFESSIONAL"
	NameKindCultural     NameKind = "CULTURAL"
)

func (k NameKind) IsValid() bool {
	switch k {
	case NameKindLegal, NameKindPreferred, NameKindNickname,
		NameKindAlias, NameKindProfessional, NameKindCultural:
		return true
	}
	return false
}

// Name is one entry in a user's name catalog.
//
// Invariants:
//   - Text is non-empty and at most 256 characters
//   - Kind is one of the known kinds
//   - OwnerID is set and immutable after construction
//   - At most one Name per owner has IsPreferred = true (enforced by the
//     store's atomic preferred swap, not by this struct)
type Name struct {
	ID          id.NameID `json:"id"`
	OwnerID     id.UserID `json:"owner_id"`
	Text        string    `json:"text"`
	Kind        NameKind  `json:"kind"`
	IsPreferred bool      `json:"is_preferred"`
	Source      string    `json:"source,omitempty"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewName(nameID id.NameID, ownerID id.UserID, text string, kind NameKind, source string, now time.Time) (*Name, error) {
	text = strings.TrimSpace(text)
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "name owner is required")
	}
	if text == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "name text cannot be empty")
	}
	if len(text) > 256 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "name text must be 256 characters or less")
	}
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid name kind")
	}
	return &Name{
		ID:        nameID,
		OwnerID:   ownerID,
		Text:      text,
		Kind:      kind,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
