package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/grocery-orders/internal/api/middleware"
	"github.com/example/grocery-orders/internal/command"
	"github.com/example/grocery-orders/internal/domain/order"
	"github.com/example/grocery-orders/internal/geo"
	"github.com/example/grocery-orders/internal/query"
)

// Geocoder turns addresses into coordinates and back.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]geo.Place, error)
	Reverse(ctx context.Context, point geo.Coordinate) (*geo.ReverseResult, error)
}

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	geocoder     Geocoder
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, geocoder Geocoder) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		geocoder:     geocoder,
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func actorOrReject(w http.ResponseWriter, r *http.Request) (order.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
	}
	return actor, ok
}

// Checkout Handlers

func (h *Handlers) Quote(w http.ResponseWriter, r *http.Request) {
	var cmd command.ComputeQuote
	if !decode(w, r, &cmd) {
		return
	}
	quote, err := h.cmdHandler.ComputeQuote(r.Context(), cmd)
	if err != nil {
		respondDomainError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

func (h *Handlers) GeocodeSearch(w http.ResponseWriter, r *http.Request) {
	places, err := h.geocoder.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondDomainError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, places)
}

func (h *Handlers) GeocodeReverse(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		respondError(w, http.StatusBadRequest, "lat and lon must be numbers")
		return
	}
	result, err := h.geocoder.Reverse(r.Context(), geo.Coordinate{Latitude: lat, Longitude: lon})
	if err != nil {
		respondDomainError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Order Handlers

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	var cmd command.PlaceOrder
	if !decode(w, r, &cmd) {
		return
	}
	cmd.UserID = actor.ID

	o, err := h.cmdHandler.PlaceOrder(r.Context(), cmd)
	if err != nil {
		respondDomainError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.queryHandler.ListOrdersByUser(middleware.GetUserID(r.Context()))
	respondJSON(w, http.StatusOK, orders)
}

// GetOrder serves the owner or an admin; anyone else gets a 404.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	o, found := h.queryHandler.GetOrder(chi.URLParam(r, "orderID"))
	if !found || (actor.Role != order.RoleAdmin && o.UserID != actor.ID) {
		respondError(w, http.StatusNotFound, "order not found")
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	o, err := h.cmdHandler.CancelOrder(r.Context(), chi.URLParam(r, "orderID"), actor)
	if err != nil {
		respondDomainError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) HideOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	if err := h.cmdHandler.HideOrder(r.Context(), chi.URLParam(r, "orderID"), actor); err != nil {
		respondDomainError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Payment Handlers

func (h *Handlers) InitPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	checkout, err := h.cmdHandler.InitPayment(r.Context(), chi.URLParam(r, "orderID"), actor)
	if err != nil {
		respondDomainError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusCreated, checkout)
}

// ConfirmPayment is reached by the gateway redirect; the callback itself is
// verified server-side, so no session is required.
func (h *Handlers) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var cmd command.ConfirmPayment
	if !decode(w, r, &cmd) {
		return
	}
	cmd.OrderID = chi.URLParam(r, "orderID")

	o, err := h.cmdHandler.ConfirmPayment(r.Context(), cmd)
	if err != nil {
		respondDomainError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) CancelPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	o, err := h.cmdHandler.CancelPayment(r.Context(), chi.URLParam(r, "orderID"), actor)
	if err != nil {
		respondDomainError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) ReportPaymentFailure(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	var cmd command.ReportPaymentFailure
	if !decode(w, r, &cmd) {
		return
	}
	cmd.OrderID = chi.URLParam(r, "orderID")

	o, err := h.cmdHandler.ReportPaymentFailure(r.Context(), cmd, actor)
	if err != nil {
		respondDomainError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Admin Handlers

func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	respondJSON(w, http.StatusOK, h.queryHandler.ListAllOrders(status))
}

func (h *Handlers) AdminOrderSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.queryHandler.CountByStatus())
}

func (h *Handlers) AdminTransition(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	var cmd command.TransitionOrder
	if !decode(w, r, &cmd) {
		return
	}
	cmd.OrderID = chi.URLParam(r, "orderID")

	o, err := h.cmdHandler.TransitionOrder(r.Context(), cmd, actor)
	if err != nil {
		respondDomainError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// AdminFastForward reports the order as far as it got when a step fails.
func (h *Handlers) AdminFastForward(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	o, err := h.cmdHandler.FastForwardOrder(r.Context(), chi.URLParam(r, "orderID"), actor)
	if err != nil {
		respondDomainError(w, r, err, o)
		return
	}
	respondJSON(w, http.StatusOK, o)
}
