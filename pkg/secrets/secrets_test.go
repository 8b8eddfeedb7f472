package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "namegate/pkg/domain-errors"
)

func TestGenerate_Unique(t *testing.T) {
	first, err := Generate()
	require.NoError(t, err)
	second, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.NotEmpty(t, first)
}

func TestHashAndVerify(t *testing.T) {
	secret, err := Generate()
	require.NoError(t, err)

	hash, err := Hash(secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, hash)

	assert.True(t, Verify(hash, secret))
	assert.False(t, Verify(hash, "wrong"))
}

func TestHash_RejectsEmpty(t *testing.T) {
	_, err := Hash("")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
