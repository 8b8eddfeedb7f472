package jwtclaims

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
)

// Claims is the signed payload a client application receives when it resolves
// a session. Only the disclosed name crosses the boundary; the standard OIDC
// name claims all carry the same contextual value so off-the-shelf clients
// pick it up regardless of which claim they read.
type Claims struct {
	jwt.RegisteredClaims
	Name              string `json:"name"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	Nickname          string `json:"nickname,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	ContextName       string `json:"context_name,omitempty"`
	AppName           string `json:"app_name,omitempty"`
}

// Signer issues and verifies HS256 tokens carrying disclosure claims.
type Signer struct {
	key    []byte
	issuer string
}

func NewSigner(key []byte, issuer string) (*Signer, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes")
	}
	return &Signer{key: key, issuer: issuer}, nil
}

type TokenInput struct {
	SessionID     id.SessionID
	TargetUserID  id.UserID
	ClientID      id.ClientID
	DisclosedName string
	ContextName   string
	AppName       string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Sign produces a compact HS256 token for one resolved session.
func (s *Signer) Sign(in TokenInput) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   in.TargetUserID.String(),
			Audience:  jwt.ClaimStrings{string(in.ClientID)},
			ID:        in.SessionID.String(),
			IssuedAt:  jwt.NewNumericDate(in.IssuedAt),
			NotBefore: jwt.NewNumericDate(in.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(in.ExpiresAt),
		},
		Name:              in.DisclosedName,
		PreferredUsername: in.DisclosedName,
		ContextName:       in.ContextName,
		AppName:           in.AppName,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign claims: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns its claims. Expired or tampered tokens
// report CodeInvalidToken.
func (s *Signer) Verify(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidToken, "invalid claims token")
	}
	return &claims, nil
}
