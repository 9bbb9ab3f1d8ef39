package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminLogin(t *testing.T) {
	hash, err := HashPassword("counter-staff-only")
	require.NoError(t, err)
	tokens := NewJWTService(testSecret, time.Hour)
	login := NewAdminLogin(" Ops@Grocer.example ", hash, tokens)

	token, _, err := login.Login("ops@grocer.example", "counter-staff-only")
	require.NoError(t, err)
	claims, err := tokens.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "ops@grocer.example", claims.Email)

	_, _, err = login.Login("ops@grocer.example", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = login.Login("intruder@grocer.example", "counter-staff-only")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAdminLogin_Disabled(t *testing.T) {
	login := NewAdminLogin("", "", NewJWTService(testSecret, time.Hour))

	_, _, err := login.Login("", "")
	assert.ErrorIs(t, err, ErrAdminLoginDisabled)
}
