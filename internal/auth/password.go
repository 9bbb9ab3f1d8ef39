package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	// bcrypt ignores everything past 72 bytes, so longer input is refused.
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
	ErrMalformedHash   = errors.New("not a bcrypt hash")
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
	maxPasswordBytes  = 72
)

// HashPassword returns the bcrypt hash stored as ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	switch {
	case len(password) < minPasswordLength:
		return "", ErrPasswordTooShort
	case len(password) > maxPasswordBytes:
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. Malformed hashes never match.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidateHash checks that hash is a bcrypt hash with at least the default
// cost, so a misconfigured admin account fails at start-up instead of at login.
func ValidateHash(hash string) error {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if cost < bcrypt.DefaultCost {
		return fmt.Errorf("%w: cost %d is below %d", ErrMalformedHash, cost, bcrypt.DefaultCost)
	}
	return nil
}
