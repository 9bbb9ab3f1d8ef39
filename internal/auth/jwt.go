package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrUnknownRole  = errors.New("token carries an unknown role")
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

const clockSkew = 30 * time.Second

func knownRole(role string) bool {
	return role == RoleCustomer || role == RoleAdmin
}

// Claims are shared with the storefront identity provider, which mints the
// customer tokens with the same HS256 key. Admin tokens come from AdminLogin.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type JWTService struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewJWTService(secretKey string, accessExpiry time.Duration) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		ttl:       accessExpiry,
		now:       time.Now,
	}
}

// GenerateAccessToken signs a token for userID and returns its expiry.
func (s *JWTService) GenerateAccessToken(userID, email, role string) (string, time.Time, error) {
	if !knownRole(role) {
		return "", time.Time{}, ErrUnknownRole
	}
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.ttl)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken accepts only HS256 tokens that carry an expiry, a
// user and a known role. Tokens without user_id fall back to sub.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secretKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	if !knownRole(claims.Role) {
		return nil, ErrUnknownRole
	}
	return claims, nil
}
