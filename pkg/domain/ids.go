// Package domain defines typed identifiers shared across features. Distinct
// types prevent a requester id from slipping into a granter parameter (and the
// like) at compile time.
package domain

import (
	"regexp"

	"github.com/google/uuid"

	dErrors "namegate/pkg/domain-errors"
)

type (
	// UserID identifies a profile owner (granter, requester, or target).
	UserID uuid.UUID
	// NameID identifies a single name record.
	NameID uuid.UUID
	// ContextID identifies a user-defined disclosure context.
	ContextID uuid.UUID
	// ConsentID identifies one consent lifecycle row.
	ConsentID uuid.UUID
	// SessionID identifies a bearer-token session.
	SessionID uuid.UUID
)

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id NameID) String() string    { return uuid.UUID(id).String() }
func (id ContextID) String() string { return uuid.UUID(id).String() }
func (id ConsentID) String() string { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id NameID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ContextID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ConsentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Ids cross the JSON boundary as canonical UUID strings, never as raw bytes.

func (id UserID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id NameID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id ContextID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ConsentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id SessionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(text []byte) error {
	parsed, err := ParseUserID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *NameID) UnmarshalText(text []byte) error {
	parsed, err := ParseNameID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ContextID) UnmarshalText(text []byte) error {
	parsed, err := ParseContextID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ConsentID) UnmarshalText(text []byte) error {
	parsed, err := ParseConsentID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *SessionID) UnmarshalText(text []byte) error {
	parsed, err := ParseSessionID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// parseUUID enforces the shared invariant: ids must be valid, non-empty,
// non-nil UUIDs. Rejections are reported as invalid input at trust boundaries.
func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	if len(raw) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is too long")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw)
	return UserID(parsed), err
}

func ParseNameID(raw string) (NameID, error) {
	parsed, err := parseUUID(raw)
	return NameID(parsed), err
}

func ParseContextID(raw string) (ContextID, error) {
	parsed, err := parseUUID(raw)
	return ContextID(parsed), err
}

func ParseConsentID(raw string) (ConsentID, error) {
	parsed, err := parseUUID(raw)
	return ConsentID(parsed), err
}

func ParseSessionID(raw string) (SessionID, error) {
	parsed, err := parseUUID(raw)
	return SessionID(parsed), err
}

// ClientID is the public identifier of a registered client application. It is
// not a UUID: clients present a fixed-format opaque id issued at registration.
type ClientID string

var clientIDPattern = regexp.MustCompile(`^nc_[0-9a-f]{16}$`)

func (id ClientID) String() string { return string(id) }

// ParseClientID validates the fixed client id format: the "nc_" prefix
// followed by 16 lowercase hex characters.
func ParseClientID(raw string) (ClientID, error) {
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "client_id must not be empty")
	}
	if !clientIDPattern.MatchString(raw) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "client_id has an invalid format")
	}
	return ClientID(raw), nil
}
