package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
)

// TokenPattern is the opaque bearer token format: a fixed prefix and 128 bits
// of entropy in lowercase hex. The prefix makes leaked tokens greppable.
const tokenPrefix = "nst_"

var tokenPattern = regexp.MustCompile(`^nst_[0-9a-f]{32}$`)

// NewToken mints a fresh bearer token.
func NewToken() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("read token entropy: %w", err)
	}
	return tokenPrefix + hex.EncodeToString(buf[:]), nil
}

// ValidateToken checks the shape of a presented token before any store
// lookup, so malformed input never reaches the database.
func ValidateToken(raw string) error {
	if !tokenPattern.MatchString(raw) {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return nil
}

// Session is one authorization of a client application to learn the name a
// target user discloses to it. The token is single-audience and short-lived;
// UsedAt records the first successful resolve.
type Session struct {
	ID        id.SessionID `json:"id"`
	Token     string       `json:"-"`
	ClientID  id.ClientID  `json:"client_id"`
	UserID    id.UserID    `json:"user_id"`
	ContextID id.ContextID `json:"context_id"`
	ReturnURL string       `json:"return_url"`
	State     string       `json:"state,omitempty"`
	IPAddress string       `json:"ip_address,omitempty"`
	UserAgent string       `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	UsedAt    *time.Time   `json:"used_at,omitempty"`
	RevokedAt *time.Time   `json:"revoked_at,omitempty"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// IsActive reports whether the token can still be resolved.
func (s *Session) IsActive(now time.Time) bool {
	return s.RevokedAt == nil && !s.IsExpired(now)
}

// MarkUsed stamps the first resolve; later resolves keep the original stamp.
func (s *Session) MarkUsed(now time.Time) {
	if s.UsedAt == nil {
		used := now
		s.UsedAt = &used
	}
}

func (s *Session) Revoke(now time.Time) {
	if s.RevokedAt == nil {
		revoked := now
		s.RevokedAt = &revoked
	}
}
