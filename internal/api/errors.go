package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/auth"
	"github.com/example/grocery-orders/internal/domain/order"
	"github.com/example/grocery-orders/internal/geo"
	"github.com/example/grocery-orders/internal/logging"
	"github.com/example/grocery-orders/internal/payment"
	"github.com/example/grocery-orders/internal/pricing"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, pricing.ErrDistanceExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrConflictingTransition),
		errors.Is(err, order.ErrOrderCancelled),
		errors.Is(err, payment.ErrPaymentConflict):
		return http.StatusConflict
	case errors.Is(err, payment.ErrVerificationFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, geo.ErrProviderUnavailable),
		errors.Is(err, payment.ErrGatewayInit),
		errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, geo.ErrInvalidCoordinate),
		errors.Is(err, geo.ErrEmptyQuery),
		errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidItem),
		errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, order.ErrNotCashOnDelivery),
		errors.Is(err, order.ErrNotOnlinePayment),
		errors.Is(err, pricing.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrAdminLoginDisabled),
		errors.Is(err, pricing.ErrNoSettingsFile):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string       `json:"error"`
	Order *order.Order `json:"order,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message})
}

// respondDomainError writes err with its mapped status. Internal errors are
// not echoed to the client.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error, partial *order.Order) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", zap.Error(err))
		message = "internal error"
	}
	respondJSON(w, status, errorBody{Error: message, Order: partial})
}
