package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("fresh-basil-42")
	require.NoError(t, err)

	assert.True(t, CheckPassword("fresh-basil-42", hash))
	assert.False(t, CheckPassword("Fresh-basil-42", hash))
	assert.False(t, CheckPassword("", hash))

	again, err := HashPassword("fresh-basil-42")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "bcrypt salts each hash")
}

func TestHashPassword_TooShort(t *testing.T) {
	for _, pw := range []string{"", "1234567"} {
		hash, err := HashPassword(pw)
		assert.ErrorIs(t, err, ErrPasswordTooShort)
		assert.Empty(t, hash)
	}
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	assert.False(t, CheckPassword("anything", ""))
	assert.False(t, CheckPassword("anything", "not-a-bcrypt-hash"))
}

func TestHashPassword_TooLong(t *testing.T) {
	_, err := HashPassword(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestValidateHash(t *testing.T) {
	hash, err := HashPassword("fresh-basil-42")
	require.NoError(t, err)
	assert.NoError(t, ValidateHash(hash))

	weak, err := bcrypt.GenerateFromPassword([]byte("fresh-basil-42"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.ErrorIs(t, ValidateHash(string(weak)), ErrMalformedHash)

	assert.ErrorIs(t, ValidateHash("plaintext"), ErrMalformedHash)
}
