package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attest/pkg/domain-errors"
)

func TestGenerateHashVerify(t *testing.T) {
	secret, err := Generate()
	require.NoError(t, err)
	assert.NotEmpty(t, secret)

	other, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)

	hash, err := Hash(secret)
	require.NoError(t, err)

	assert.NoError(t, Verify(secret, hash))

	err = Verify(other, hash)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestHashRejectsBadInput(t *testing.T) {
	_, err := Hash("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = Hash(strings.Repeat("x", 100))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
