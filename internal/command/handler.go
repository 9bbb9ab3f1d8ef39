package command

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/domain/order"
	"github.com/example/grocery-orders/internal/geo"
	"github.com/example/grocery-orders/internal/payment"
	"github.com/example/grocery-orders/internal/pricing"
)

// DistanceResolver turns two points into a billable distance.
type DistanceResolver interface {
	ResolveDetailed(ctx context.Context, origin, destination geo.Coordinate) (geo.Distance, error)
}

// SettingsProvider hands out the current delivery settings snapshot.
type SettingsProvider interface {
	Current() pricing.DeliverySettings
}

type Handler struct {
	orderSvc *order.Service
	payments *payment.Coordinator
	resolver DistanceResolver
	settings SettingsProvider
	logger   *zap.Logger
}

func NewHandler(
	orderSvc *order.Service,
	payments *payment.Coordinator,
	resolver DistanceResolver,
	settings SettingsProvider,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orderSvc: orderSvc,
		payments: payments,
		resolver: resolver,
		settings: settings,
		logger:   logger,
	}
}

// ComputeQuote prices delivery from the store to the destination.
func (h *Handler) ComputeQuote(ctx context.Context, cmd ComputeQuote) (pricing.Quote, error) {
	return h.quote(ctx, h.settings.Current(), cmd.Destination, cmd.Subtotal)
}

func (h *Handler) quote(ctx context.Context, settings pricing.DeliverySettings, destination geo.Coordinate, subtotal float64) (pricing.Quote, error) {
	distance, err := h.resolver.ResolveDetailed(ctx, settings.StoreLocation, destination)
	if err != nil {
		return pricing.Quote{}, err
	}
	q, err := pricing.BuildQuote(distance.Km, subtotal, settings)
	if err != nil {
		return pricing.Quote{}, err
	}
	h.logger.Debug("delivery quoted",
		zap.Float64("distance_km", q.DistanceKm),
		zap.String("source", distance.Source),
		zap.Float64("charge", q.DeliveryCharge),
	)
	return q, nil
}

// PlaceOrder creates an order from a cart snapshot. The delivery charge is
// priced here against one settings snapshot; a destination beyond the
// delivery radius fails before anything is stored.
func (h *Handler) PlaceOrder(ctx context.Context, cmd PlaceOrder) (*order.Order, error) {
	if len(cmd.Items) == 0 {
		return nil, order.ErrEmptyOrder
	}
	method, err := order.ParsePaymentMethod(cmd.PaymentMethod)
	if err != nil {
		return nil, err
	}

	items := make([]order.LineItem, 0, len(cmd.Items))
	var subtotal float64
	for _, item := range cmd.Items {
		line := order.LineItem{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Name:           item.Name,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			TaxRatePercent: item.TaxRatePercent,
			TaxInclusive:   item.TaxInclusive,
		}
		items = append(items, line)
		subtotal += order.LineSubtotal(line)
	}

	q, err := h.quote(ctx, h.settings.Current(), cmd.ShippingAddress.Location, subtotal)
	if err != nil {
		return nil, err
	}

	return h.orderSvc.Place(ctx, order.PlaceOrder{
		UserID:               cmd.UserID,
		Items:                items,
		ShippingAddress:      cmd.ShippingAddress,
		PaymentMethod:        method,
		DistanceKm:           q.DistanceKm,
		DeliveryChargeAmount: q.DeliveryCharge,
	})
}

// TransitionOrder changes an order's status. Legacy status names are accepted.
func (h *Handler) TransitionOrder(ctx context.Context, cmd TransitionOrder, actor order.Actor) (*order.Order, error) {
	target, err := order.ParseStatus(cmd.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", order.ErrInvalidTransition, err)
	}
	return h.orderSvc.Transition(ctx, cmd.OrderID, target, actor)
}

// CancelOrder is the customer-facing cancel.
func (h *Handler) CancelOrder(ctx context.Context, orderID string, actor order.Actor) (*order.Order, error) {
	return h.orderSvc.Transition(ctx, orderID, order.StatusCancelled, actor)
}

func (h *Handler) FastForwardOrder(ctx context.Context, orderID string, actor order.Actor) (*order.Order, error) {
	return h.orderSvc.FastForwardCOD(ctx, orderID, actor)
}

// HideOrder removes an order from the customer's history.
func (h *Handler) HideOrder(ctx context.Context, orderID string, actor order.Actor) error {
	_, err := h.orderSvc.Hide(ctx, orderID, actor)
	return err
}

func (h *Handler) InitPayment(ctx context.Context, orderID string, actor order.Actor) (*payment.Checkout, error) {
	return h.payments.InitPayment(ctx, orderID, actor)
}

func (h *Handler) ConfirmPayment(ctx context.Context, cmd ConfirmPayment) (*order.Order, error) {
	return h.payments.ConfirmPayment(ctx, cmd.OrderID, cmd.Callback)
}

func (h *Handler) CancelPayment(ctx context.Context, orderID string, actor order.Actor) (*order.Order, error) {
	return h.payments.CancelPayment(ctx, orderID, actor)
}

func (h *Handler) ReportPaymentFailure(ctx context.Context, cmd ReportPaymentFailure, actor order.Actor) (*order.Order, error) {
	return h.payments.HandleFailure(ctx, cmd.OrderID, actor, cmd.FailureCallback)
}
