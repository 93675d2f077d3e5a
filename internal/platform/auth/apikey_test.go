package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKey_Check(t *testing.T) {
	hash, err := HashKey("s3cret")
	require.NoError(t, err)
	k, err := NewAPIKey(hash)
	require.NoError(t, err)
	require.True(t, k.Enabled())

	assert.NoError(t, k.Check("s3cret"))
	assert.ErrorIs(t, k.Check("wrong"), ErrInvalidKey)
	assert.ErrorIs(t, k.Check(""), ErrMissingKey)
}

func TestAPIKey_DisabledAcceptsAnything(t *testing.T) {
	k, err := NewAPIKey("  ")
	require.NoError(t, err)
	assert.False(t, k.Enabled())
	assert.NoError(t, k.Check(""))
}

func TestNewAPIKey_RejectsPlaintext(t *testing.T) {
	_, err := NewAPIKey("not-a-bcrypt-hash")
	assert.Error(t, err)
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer tok")
	assert.Equal(t, "tok", FromRequest(r))

	r.Header.Set(HeaderAPIKey, "key")
	assert.Equal(t, "key", FromRequest(r))

	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("Bearer"))
}
