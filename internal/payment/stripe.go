package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const ProviderStripe = "stripe"

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Expire(id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)
}

// StripeGateway opens Stripe Checkout sessions. A callback is trusted only
// after the session is fetched back from Stripe and reports paid.
type StripeGateway struct {
	sessions   stripeSessionAPI
	successURL string
	cancelURL  string
}

type StripeGatewayConfig struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
	Backends   *stripe.Backends
	sessions   stripeSessionAPI
}

func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	sessions := cfg.sessions
	if sessions == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sessions = client.New(apiKey, cfg.Backends).CheckoutSessions
	}
	return &StripeGateway{
		sessions:   sessions,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}, nil
}

func (g *StripeGateway) Name() string { return ProviderStripe }

func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		Metadata:          map[string]string{"order_id": req.OrderID, "reference": req.Reference},
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(minorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Order " + req.OrderID),
				},
			},
		}},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.Reference)
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	session, err := g.sessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return Session{
		Provider:        ProviderStripe,
		ProviderOrderID: session.ID,
		CheckoutURL:     session.URL,
	}, nil
}

func (g *StripeGateway) Verify(ctx context.Context, cb Callback) (bool, error) {
	if cb.ProviderOrderID == "" {
		return false, nil
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := g.sessions.Get(cb.ProviderOrderID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("%w: stripe: %v", ErrGatewayUnavailable, err)
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return false, nil
	}
	if cb.PaymentID != "" && session.PaymentIntent != nil && session.PaymentIntent.ID != cb.PaymentID {
		return false, nil
	}
	return true, nil
}

func (g *StripeGateway) NotifyCancelled(ctx context.Context, providerOrderID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := g.sessions.Expire(providerOrderID, params); err != nil {
		return fmt.Errorf("stripe: expire checkout session: %w", err)
	}
	return nil
}
