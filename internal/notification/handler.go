package notification

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/domain/order"
	"github.com/example/grocery-orders/internal/email"
	"github.com/example/grocery-orders/internal/infrastructure/store"
	"github.com/example/grocery-orders/internal/readmodel"
)

// Mailer sends a rendered order notification.
type Mailer interface {
	Notify(to string, kind email.Kind, notice email.OrderNotice) error
}

// Handler processes events for sending notifications
type Handler struct {
	mailer    Mailer
	readStore store.ReadStoreInterface
	logger    *zap.Logger
}

// NewHandler creates a new notification handler
func NewHandler(mailer Mailer, readStore store.ReadStoreInterface, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		mailer:    mailer,
		readStore: readStore,
		logger:    logger,
	}
}

// HandleEvent processes an event from the bus
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Error("failed to unmarshal event", zap.Error(err))
		return err
	}
	if event.AggregateType != order.AggregateType {
		return nil
	}

	switch event.EventType {
	case order.EventOrderPlaced:
		return h.handleOrderPlaced(event)
	case order.EventPaymentConfirmed:
		return h.notifyFromReadModel(event.AggregateID, email.KindPaymentConfirmed)
	case order.EventOrderStatusChanged:
		var e order.OrderStatusChanged
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		switch e.To {
		case order.StatusShipped:
			return h.notifyFromReadModel(e.OrderID, email.KindShipped)
		case order.StatusDelivered:
			return h.notifyFromReadModel(e.OrderID, email.KindDelivered)
		}
	}
	return nil
}

// handleOrderPlaced uses the event payload directly; the read model may not
// be projected yet.
func (h *Handler) handleOrderPlaced(event store.Event) error {
	var e order.OrderPlaced
	if err := json.Unmarshal(event.Data, &e); err != nil {
		h.logger.Error("failed to unmarshal OrderPlaced", zap.Error(err))
		return err
	}

	items := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		items[i] = email.OrderItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.SubtotalAmount,
		}
	}
	notice := email.OrderNotice{
		OrderNumber:    e.OrderNumber,
		CustomerName:   e.ShippingAddress.Name,
		PaymentMethod:  string(e.PaymentMethod),
		Items:          items,
		Subtotal:       e.SubtotalAmount,
		DeliveryCharge: e.DeliveryChargeAmount,
		Total:          e.TotalAmount,
	}
	return h.send(e.OrderID, e.ShippingAddress.Email, email.KindOrderPlaced, notice)
}

func (h *Handler) notifyFromReadModel(orderID string, kind email.Kind) error {
	data, ok, err := h.readStore.Get(store.CollectionOrders, orderID)
	if err != nil {
		h.logger.Error("read order for notification", zap.String("order_id", orderID), zap.Error(err))
		return nil
	}
	if !ok {
		h.logger.Warn("order not found for notification", zap.String("order_id", orderID), zap.String("kind", string(kind)))
		return nil
	}
	o := data.(*readmodel.OrderReadModel)

	notice := email.OrderNotice{
		OrderNumber:    o.OrderNumber,
		CustomerName:   o.ShippingAddress.Name,
		PaymentMethod:  o.PaymentMethod,
		Subtotal:       o.SubtotalAmount,
		DeliveryCharge: o.DeliveryChargeAmount,
		Total:          o.TotalAmount,
	}
	return h.send(orderID, o.ShippingAddress.Email, kind, notice)
}

func (h *Handler) send(orderID, to string, kind email.Kind, notice email.OrderNotice) error {
	if to == "" {
		h.logger.Info("no email on order, skipping notification", zap.String("order_id", orderID), zap.String("kind", string(kind)))
		return nil
	}
	if err := h.mailer.Notify(to, kind, notice); err != nil {
		h.logger.Error("failed to send email", zap.String("order_id", orderID), zap.String("kind", string(kind)), zap.Error(err))
		return err
	}
	h.logger.Info("notification sent", zap.String("order_id", orderID), zap.String("kind", string(kind)))
	return nil
}
