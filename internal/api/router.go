package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/api/middleware"
	"github.com/example/grocery-orders/internal/auth"
)

const requestTimeout = 30 * time.Second

// RouterConfig holds the configuration for the router
type RouterConfig struct {
	Handlers         *Handlers
	AuthHandlers     *AuthHandlers
	SettingsHandlers *SettingsHandlers
	JWTService       *auth.JWTService
	Logger           *zap.Logger
	AllowedOrigins   []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handlers
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	authenticate := middleware.AuthMiddleware(cfg.JWTService)

	r.Post("/checkout/quote", h.Quote)
	r.Get("/geocode/search", h.GeocodeSearch)
	r.Get("/geocode/reverse", h.GeocodeReverse)

	if a := cfg.AuthHandlers; a != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/admin/login", a.AdminLogin)
			r.Post("/logout", a.Logout)
			r.With(authenticate).Get("/me", a.Me)
		})
	}

	r.Route("/orders", func(r chi.Router) {
		// gateway callback, verified server-side
		r.Post("/{orderID}/payment/confirm", h.ConfirmPayment)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/", h.GetOrders)
			r.Post("/", h.PlaceOrder)
			r.Get("/{orderID}", h.GetOrder)
			r.Delete("/{orderID}", h.HideOrder)
			r.Post("/{orderID}/cancel", h.CancelOrder)
			r.Post("/{orderID}/payment", h.InitPayment)
			r.Post("/{orderID}/payment/cancel", h.CancelPayment)
			r.Post("/{orderID}/payment/failure", h.ReportPaymentFailure)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.RequireRole(auth.RoleAdmin))

		r.Get("/orders", h.AdminListOrders)
		r.Get("/orders/summary", h.AdminOrderSummary)
		r.Post("/orders/{orderID}/transition", h.AdminTransition)
		r.Post("/orders/{orderID}/fast-forward", h.AdminFastForward)

		if s := cfg.SettingsHandlers; s != nil {
			r.Get("/settings/delivery", s.Get)
			r.Put("/settings/delivery", s.Put)
			r.Post("/settings/delivery/reload", s.Reload)
		}
	})

	return r
}
