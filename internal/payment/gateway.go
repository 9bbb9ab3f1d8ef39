package payment

import (
	"context"
	"errors"
	"math"
)

var (
	ErrVerificationFailed = errors.New("payment verification failed")
	ErrGatewayInit        = errors.New("payment gateway session could not be created")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrPaymentConflict    = errors.New("payment conflicts with the order state")
)

// SessionRequest asks the gateway for one payment attempt.
type SessionRequest struct {
	OrderID   string
	Reference string
	Amount    float64
	Currency  string
	Email     string
}

// Session is the gateway handle handed to the client.
type Session struct {
	Provider        string `json:"provider"`
	ProviderOrderID string `json:"provider_order_id"`
	CheckoutURL     string `json:"checkout_url,omitempty"`
	KeyID           string `json:"key_id,omitempty"`
}

// Callback is what the client relays after the gateway reports success.
type Callback struct {
	ProviderOrderID string `json:"provider_order_id"`
	PaymentID       string `json:"payment_id"`
	Signature       string `json:"signature"`
}

// Gateway is the external payment provider.
type Gateway interface {
	Name() string
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	// Verify checks the callback server-side. false with a nil error means the
	// callback is not genuine.
	Verify(ctx context.Context, cb Callback) (bool, error)
	// NotifyCancelled tells the gateway the session was abandoned.
	NotifyCancelled(ctx context.Context, providerOrderID string) error
}

// minorUnits converts an amount to the smallest currency unit.
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
