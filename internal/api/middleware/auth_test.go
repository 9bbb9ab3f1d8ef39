package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/grocery-orders/internal/auth"
	"github.com/example/grocery-orders/internal/domain/order"
)

const testSecret = "test-secret-key-for-testing-purposes"

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(testSecret, 15*time.Minute)
}

func mustToken(t *testing.T, svc *auth.JWTService, userID, role string) string {
	t.Helper()
	token, _, err := svc.GenerateAccessToken(userID, userID+"@example.com", role)
	require.NoError(t, err)
	return token
}

// captureActor records the actor that reached the wrapped handler.
func captureActor(got *order.Actor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, ok := ActorFromContext(r.Context()); ok {
			*got = actor
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_Header(t *testing.T) {
	jwtService := newTestJWTService()
	var actor order.Actor

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, jwtService, "user-123", auth.RoleCustomer))
	rec := httptest.NewRecorder()
	AuthMiddleware(jwtService)(captureActor(&actor)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.Actor{ID: "user-123", Role: order.RoleCustomer}, actor)
}

func TestAuthMiddleware_CookieTakesPrecedence(t *testing.T) {
	jwtService := newTestJWTService()
	var actor order.Actor

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: mustToken(t, jwtService, "ops", auth.RoleAdmin)})
	req.Header.Set("Authorization", "Bearer "+mustToken(t, jwtService, "user-1", auth.RoleCustomer))
	rec := httptest.NewRecorder()
	AuthMiddleware(jwtService)(captureActor(&actor)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.Actor{ID: "ops", Role: order.RoleAdmin}, actor)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	jwtService := newTestJWTService()
	other := auth.NewJWTService("a-completely-different-signing-key!", time.Minute)
	expired := auth.NewJWTService(testSecret, -time.Minute)

	tests := []struct {
		name   string
		header string
		body   string
	}{
		{"no token", "", "unauthorized"},
		{"garbage", "Bearer invalid-token", "invalid token"},
		{"wrong signature", "Bearer " + mustToken(t, other, "user-1", auth.RoleCustomer), "invalid token"},
		{"expired", "Bearer " + mustToken(t, expired, "user-1", auth.RoleCustomer), "token expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			AuthMiddleware(jwtService)(next).ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name   string
		claims *auth.Claims
		want   int
	}{
		{"admin allowed", &auth.Claims{UserID: "ops", Role: auth.RoleAdmin}, http.StatusOK},
		{"customer forbidden", &auth.Claims{UserID: "u", Role: auth.RoleCustomer}, http.StatusForbidden},
		{"no claims", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
			req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()

			RequireRole(auth.RoleAdmin)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestActorFromContext(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &auth.Claims{UserID: "x", Role: "courier"})
	_, ok = ActorFromContext(ctx)
	assert.False(t, ok)

	ctx = WithClaims(context.Background(), &auth.Claims{UserID: "user-9", Role: auth.RoleCustomer})
	assert.Equal(t, "user-9", GetUserID(ctx))
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer", "Bearer abc", "abc"},
		{"lowercase scheme", "bearer abc", "abc"},
		{"basic", "Basic abc", ""},
		{"no scheme", "abc", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, ExtractToken(req))
		})
	}
}
