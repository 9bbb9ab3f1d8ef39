package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAdminLoginDisabled = errors.New("admin login is not configured")
)

// AdminLogin checks the single admin console account and issues admin tokens.
type AdminLogin struct {
	email        string
	passwordHash string
	tokens       *JWTService
}

func NewAdminLogin(email, passwordHash string, tokens *JWTService) *AdminLogin {
	return &AdminLogin{
		email:        strings.ToLower(strings.TrimSpace(email)),
		passwordHash: passwordHash,
		tokens:       tokens,
	}
}

// Login returns an admin access token when the credentials match.
func (a *AdminLogin) Login(email, password string) (string, time.Time, error) {
	if a.email == "" || a.passwordHash == "" {
		return "", time.Time{}, ErrAdminLoginDisabled
	}
	given := strings.ToLower(strings.TrimSpace(email))
	emailOK := subtle.ConstantTimeCompare([]byte(given), []byte(a.email)) == 1
	// always run bcrypt so a wrong email costs the same as a wrong password
	passwordOK := CheckPassword(password, a.passwordHash)
	if !emailOK || !passwordOK {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.tokens.GenerateAccessToken("admin:"+a.email, a.email, RoleAdmin)
}
