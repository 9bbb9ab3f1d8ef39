package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/domain/order"
)

var tracer = otel.Tracer("github.com/example/grocery-orders/internal/payment")

// OrderService is the part of the order domain the coordinator drives.
type OrderService interface {
	Get(ctx context.Context, orderID string) (*order.Order, error)
	OpenPaymentSession(ctx context.Context, orderID string, session order.PaymentSession) (*order.Order, error)
	ConfirmPayment(ctx context.Context, orderID, providerOrderID, paymentID string) (*order.Order, error)
	AbandonPayment(ctx context.Context, orderID, reason string) (*order.Order, error)
}

// Checkout is returned to the client to open the gateway UI.
type Checkout struct {
	OrderID   string  `json:"order_id"`
	Reference string  `json:"reference"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Attempt   int     `json:"attempt"`
	Session
}

// FailureCallback is a gateway-reported payment failure.
type FailureCallback struct {
	ProviderOrderID string `json:"provider_order_id"`
	Code            string `json:"code"`
	Description     string `json:"description"`
}

// Coordinator sequences gateway sessions, callback verification and
// cancellation against the order state machine.
type Coordinator struct {
	orders       OrderService
	gateway      Gateway
	currency     string
	logger       *zap.Logger
	newReference func() string
}

func NewCoordinator(orders OrderService, gateway Gateway, currency string, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		orders:   orders,
		gateway:  gateway,
		currency: currency,
		logger:   logger,
		newReference: func() string {
			return "rcpt_" + ulid.Make().String()
		},
	}
}

// InitPayment opens a fresh gateway session for the order. It serves both the
// first attempt and every retry; the order is never duplicated. When the
// gateway fails, the order is left as it was and stays cancellable.
func (c *Coordinator) InitPayment(ctx context.Context, orderID string, actor order.Actor) (*Checkout, error) {
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(o, actor); err != nil {
		return nil, err
	}
	if err := payable(o); err != nil {
		return nil, err
	}

	reference := c.newReference()
	session, err := c.gateway.CreateSession(ctx, SessionRequest{
		OrderID:   o.ID,
		Reference: reference,
		Amount:    o.TotalAmount,
		Currency:  c.currency,
		Email:     o.ShippingAddress.Email,
	})
	if err != nil {
		c.logger.Warn("payment session init failed",
			zap.String("order_id", o.ID),
			zap.String("provider", c.gateway.Name()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrGatewayInit, err)
	}

	updated, err := c.orders.OpenPaymentSession(ctx, o.ID, order.PaymentSession{
		Reference:       reference,
		ProviderOrderID: session.ProviderOrderID,
		Amount:          o.TotalAmount,
		Currency:        c.currency,
	})
	if err != nil {
		if cancelErr := c.gateway.NotifyCancelled(ctx, session.ProviderOrderID); cancelErr != nil {
			c.logger.Warn("orphaned payment session not cancelled",
				zap.String("order_id", o.ID),
				zap.String("provider_order_id", session.ProviderOrderID),
				zap.Error(cancelErr),
			)
		}
		return nil, c.mapOrderErr(err)
	}

	c.logger.Info("payment session opened",
		zap.String("order_id", o.ID),
		zap.String("reference", reference),
		zap.String("provider_order_id", session.ProviderOrderID),
		zap.Int("attempt", updated.PaymentAttempts),
	)
	return &Checkout{
		OrderID:   o.ID,
		Reference: reference,
		Amount:    o.TotalAmount,
		Currency:  c.currency,
		Attempt:   updated.PaymentAttempts,
		Session:   session,
	}, nil
}

// ConfirmPayment verifies a success callback with the gateway before the
// order is marked PAID. Duplicate callbacks for a paid order are no-ops.
func (c *Coordinator) ConfirmPayment(ctx context.Context, orderID string, cb Callback) (*order.Order, error) {
	ctx, span := tracer.Start(ctx, "payment.Confirm")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("payment.provider", c.gateway.Name()),
	)

	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	// A retry opens a new session but a payment captured on an earlier one
	// still counts; the gateway decides whether it is genuine.
	if !o.HasPaymentSession(cb.ProviderOrderID) {
		c.logger.Warn("payment callback does not match any session of the order",
			zap.String("order_id", orderID),
			zap.String("provider_order_id", cb.ProviderOrderID),
		)
		span.SetStatus(codes.Error, "session mismatch")
		return o, fmt.Errorf("%w: callback is not for a session of this order", ErrVerificationFailed)
	}

	ok, err := c.gateway.Verify(ctx, cb)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verify failed")
		if errors.Is(err, ErrGatewayUnavailable) {
			return o, err
		}
		return o, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if !ok {
		c.logger.Warn("payment signature rejected",
			zap.String("order_id", orderID),
			zap.String("provider_order_id", cb.ProviderOrderID),
			zap.String("payment_id", cb.PaymentID),
		)
		span.SetStatus(codes.Error, "signature rejected")
		return o, ErrVerificationFailed
	}

	updated, err := c.orders.ConfirmPayment(ctx, orderID, cb.ProviderOrderID, cb.PaymentID)
	if err != nil {
		mapped := c.mapOrderErr(err)
		if errors.Is(mapped, ErrPaymentConflict) {
			c.logger.Warn("verified payment arrived for a cancelled order",
				zap.String("order_id", orderID),
				zap.String("payment_id", cb.PaymentID),
			)
		}
		span.RecordError(mapped)
		return updated, mapped
	}
	span.SetAttributes(attribute.String("order.status", string(updated.Status)))
	return updated, nil
}

// CancelPayment handles the customer dismissing the gateway UI.
func (c *Coordinator) CancelPayment(ctx context.Context, orderID string, actor order.Actor) (*order.Order, error) {
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(o, actor); err != nil {
		return nil, err
	}
	return c.abandon(ctx, o, order.AbandonDismissed)
}

// HandleFailure handles a gateway-reported payment failure relayed by the
// order's owner.
func (c *Coordinator) HandleFailure(ctx context.Context, orderID string, actor order.Actor, cb FailureCallback) (*order.Order, error) {
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(o, actor); err != nil {
		return nil, err
	}
	if cb.ProviderOrderID != "" && cb.ProviderOrderID != o.ProviderOrderID {
		return o, fmt.Errorf("%w: failure is not for the current session", ErrVerificationFailed)
	}
	c.logger.Info("gateway reported payment failure",
		zap.String("order_id", orderID),
		zap.String("code", cb.Code),
		zap.String("description", cb.Description),
	)
	return c.abandon(ctx, o, order.AbandonGatewayFailure)
}

func (c *Coordinator) abandon(ctx context.Context, o *order.Order, reason string) (*order.Order, error) {
	if o.PaymentStatus == order.PaymentStatusPaid {
		return o, nil
	}
	updated, err := c.orders.AbandonPayment(ctx, o.ID, reason)
	if err != nil {
		return updated, c.mapOrderErr(err)
	}
	if o.ProviderOrderID != "" {
		if err := c.gateway.NotifyCancelled(ctx, o.ProviderOrderID); err != nil {
			c.logger.Warn("gateway cancel notification failed",
				zap.String("order_id", o.ID),
				zap.String("provider_order_id", o.ProviderOrderID),
				zap.Error(err),
			)
		}
	}
	return updated, nil
}

// mapOrderErr reports a cancelled order as a payment conflict.
func (c *Coordinator) mapOrderErr(err error) error {
	if errors.Is(err, order.ErrOrderCancelled) {
		return fmt.Errorf("%w: %v", ErrPaymentConflict, err)
	}
	return err
}

func checkOwner(o *order.Order, actor order.Actor) error {
	switch actor.Role {
	case order.RoleAdmin, order.RoleSystem:
		return nil
	case order.RoleCustomer:
		if actor.ID != "" && actor.ID == o.UserID {
			return nil
		}
	}
	return order.ErrForbidden
}

func payable(o *order.Order) error {
	if o.PaymentMethod != order.PaymentMethodOnline {
		return order.ErrNotOnlinePayment
	}
	if o.Status == order.StatusCancelled {
		return fmt.Errorf("%w: %v", ErrPaymentConflict, order.ErrOrderCancelled)
	}
	if o.PaymentStatus == order.PaymentStatusPaid {
		return fmt.Errorf("%w: order is already paid", order.ErrInvalidTransition)
	}
	if o.Status != order.StatusCreated && o.Status != order.StatusPaymentPending {
		return fmt.Errorf("%w: order is %s", order.ErrInvalidTransition, o.Status)
	}
	return nil
}
