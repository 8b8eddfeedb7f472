package jwtclaims

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func testInput(issued time.Time) TokenInput {
	return TokenInput{
		SessionID:     id.SessionID(uuid.New()),
		TargetUserID:  id.UserID(uuid.New()),
		ClientID:      id.ClientID("nc_0123456789abcdef"),
		DisclosedName: "Jed",
		ContextName:   "gaming",
		AppName:       "Chess Club",
		IssuedAt:      issued,
		ExpiresAt:     issued.Add(time.Hour),
	}
}

func TestSignAndVerify(t *testing.T) {
	signer, err := NewSigner(testKey, "https://namegate.example")
	require.NoError(t, err)

	in := testInput(time.Now())
	token, err := signer.Sign(in)
	require.NoError(t, err)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "Jed", claims.Name)
	assert.Equal(t, "Jed", claims.PreferredUsername)
	assert.Equal(t, "gaming", claims.ContextName)
	assert.Equal(t, "Chess Club", claims.AppName)
	assert.Equal(t, in.TargetUserID.String(), claims.Subject)
	assert.Equal(t, in.SessionID.String(), claims.ID)
}

func TestVerifyRejectsExpired(t *testing.T) {
	signer, err := NewSigner(testKey, "https://namegate.example")
	require.NoError(t, err)

	token, err := signer.Sign(testInput(time.Now().Add(-2 * time.Hour)))
	require.NoError(t, err)

	_, err = signer.Verify(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer, err := NewSigner(testKey, "https://namegate.example")
	require.NoError(t, err)
	other, err := NewSigner([]byte("ffffffffffffffffffffffffffffffff"), "https://namegate.example")
	require.NoError(t, err)

	token, err := signer.Sign(testInput(time.Now()))
	require.NoError(t, err)

	_, err = other.Verify(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func TestNewSignerRejectsShortKey(t *testing.T) {
	_, err := NewSigner([]byte("short"), "https://namegate.example")
	require.Error(t, err)
}
