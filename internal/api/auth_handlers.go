package api

import (
	"net/http"
	"time"

	"github.com/example/grocery-orders/internal/api/middleware"
	"github.com/example/grocery-orders/internal/auth"
)

// AuthHandlers serves the admin console login. Customer tokens are issued
// by the storefront identity provider.
type AuthHandlers struct {
	login *auth.AdminLogin
}

func NewAuthHandlers(login *auth.AdminLogin) *AuthHandlers {
	return &AuthHandlers{login: login}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *AuthHandlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	token, expiresAt, err := h.login.Login(req.Email, req.Password)
	if err != nil {
		respondDomainError(w, r, err, nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, loginResponse{AccessToken: token, ExpiresAt: expiresAt})
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"user_id": claims.UserID,
		"email":   claims.Email,
		"role":    claims.Role,
	})
}
