package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/auth"
	"github.com/example/grocery-orders/internal/domain/order"
	"github.com/example/grocery-orders/internal/logging"
)

// AccessTokenCookie carries the admin console session.
const AccessTokenCookie = "access_token"

type claimsKey struct{}

// WithClaims returns ctx carrying the authenticated caller.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ExtractToken reads the bearer token, preferring the session cookie over the
// Authorization header.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AuthMiddleware rejects requests without a valid access token and stores the
// token's claims on the request context.
func AuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				unauthorized(w, "unauthorized")
				return
			}

			claims, err := jwtService.ValidateAccessToken(token)
			if err != nil {
				logging.FromContext(r.Context()).Debug("access token rejected", zap.Error(err))
				if errors.Is(err, auth.ErrExpiredToken) {
					unauthorized(w, "token expired")
				} else {
					unauthorized(w, "invalid token")
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole lets the request through only when the caller holds one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			switch {
			case !ok:
				unauthorized(w, "unauthorized")
			case !slices.Contains(roles, claims.Role):
				writeError(w, http.StatusForbidden, "forbidden")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func GetUserFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims, ok && claims != nil
}

func GetUserID(ctx context.Context) string {
	if claims, ok := GetUserFromContext(ctx); ok {
		return claims.UserID
	}
	return ""
}

// ActorFromContext maps the authenticated caller onto an order actor.
func ActorFromContext(ctx context.Context) (order.Actor, bool) {
	claims, ok := GetUserFromContext(ctx)
	if !ok {
		return order.Actor{}, false
	}
	switch claims.Role {
	case auth.RoleAdmin:
		return order.Actor{ID: claims.UserID, Role: order.RoleAdmin}, true
	case auth.RoleCustomer:
		return order.Actor{ID: claims.UserID, Role: order.RoleCustomer}, true
	}
	return order.Actor{}, false
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="grocery-orders"`)
	writeError(w, http.StatusUnauthorized, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
