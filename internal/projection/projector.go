package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/domain/order"
	"github.com/example/grocery-orders/internal/infrastructure/store"
	"github.com/example/grocery-orders/internal/readmodel"
)

// Projector builds order read models from order events. Events at or below
// the version already projected are skipped, so redelivery is harmless.
type Projector struct {
	readStore store.ReadStoreInterface
	logger    *zap.Logger
}

func NewProjector(readStore store.ReadStoreInterface, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{readStore: readStore, logger: logger}
}

// HandleEvent decodes a bus message and projects it.
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	return p.Project(ctx, event)
}

// Project applies a single stored event to the read store.
func (p *Projector) Project(_ context.Context, event store.Event) error {
	if event.AggregateType != order.AggregateType {
		return nil
	}
	p.logger.Debug("projecting event",
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID),
		zap.Int("version", event.Version),
	)

	if event.EventType == order.EventOrderPlaced {
		return p.projectPlaced(event)
	}
	return p.update(event)
}

// Replay rebuilds read models from every stored event, in append order.
func (p *Projector) Replay(ctx context.Context, es store.EventStoreInterface) (int, error) {
	events, err := es.GetAllEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("load events: %w", err)
	}
	var applied int
	for _, event := range events {
		if err := p.Project(ctx, event); err != nil {
			return applied, fmt.Errorf("project %s v%d: %w", event.AggregateID, event.Version, err)
		}
		applied++
	}
	p.logger.Info("replayed events", zap.Int("count", applied))
	return applied, nil
}

func (p *Projector) projectPlaced(event store.Event) error {
	var e order.OrderPlaced
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	if current, ok, err := p.readStore.Get(store.CollectionOrders, e.OrderID); err != nil {
		return err
	} else if ok && current.(*readmodel.OrderReadModel).Version >= event.Version {
		return nil
	}

	items := make([]readmodel.OrderItemReadModel, 0, len(e.Items))
	for _, item := range e.Items {
		items = append(items, readmodel.OrderItemReadModel{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Name:           item.Name,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			TaxRatePercent: item.TaxRatePercent,
			TaxInclusive:   item.TaxInclusive,
			SubtotalAmount: item.SubtotalAmount,
		})
	}
	addr := e.ShippingAddress

	return p.readStore.Set(store.CollectionOrders, e.OrderID, &readmodel.OrderReadModel{
		ID:                   e.OrderID,
		OrderNumber:          e.OrderNumber,
		UserID:               e.UserID,
		Items:                items,
		SubtotalAmount:       e.SubtotalAmount,
		DeliveryChargeAmount: e.DeliveryChargeAmount,
		TotalAmount:          e.TotalAmount,
		PaymentMethod:        string(e.PaymentMethod),
		PaymentStatus:        string(order.PaymentStatusUnpaid),
		Status:               string(order.StatusCreated),
		ShippingAddress: readmodel.AddressReadModel{
			Name:       addr.Name,
			Phone:      addr.Phone,
			Email:      addr.Email,
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Latitude:   addr.Location.Latitude,
			Longitude:  addr.Location.Longitude,
		},
		DistanceKm: e.DistanceKm,
		CreatedAt:  e.PlacedAt,
		UpdatedAt:  e.PlacedAt,
		Version:    event.Version,
	})
}

func (p *Projector) update(event store.Event) error {
	apply, err := decodeUpdate(event)
	if err != nil {
		return err
	}
	if apply == nil {
		return nil
	}

	// Readers may still hold the stored pointer, so the update goes to a copy.
	ok, err := p.readStore.Update(store.CollectionOrders, event.AggregateID, func(current any) any {
		o := current.(*readmodel.OrderReadModel)
		if o.Version >= event.Version {
			return nil
		}
		cp := *o
		apply(&cp)
		cp.Version = event.Version
		return &cp
	})
	if err != nil {
		return err
	}
	if !ok {
		p.logger.Warn("order read model missing for event",
			zap.String("order_id", event.AggregateID),
			zap.String("event_type", event.EventType),
		)
	}
	return nil
}

// decodeUpdate returns the mutation an event applies to an existing read model.
func decodeUpdate(event store.Event) (func(*readmodel.OrderReadModel), error) {
	switch event.EventType {
	case order.EventOrderStatusChanged:
		var e order.OrderStatusChanged
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return nil, err
		}
		return func(o *readmodel.OrderReadModel) {
			o.Status = string(e.To)
			o.UpdatedAt = e.ChangedAt
		}, nil

	case order.EventPaymentSessionOpened:
		var e order.PaymentSessionOpened
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return nil, err
		}
		return func(o *readmodel.OrderReadModel) {
			o.Status = string(order.StatusPaymentPending)
			o.PaymentStatus = string(order.PaymentStatusUnpaid)
			o.PaymentReference = e.PaymentReference
			o.ProviderOrderID = e.ProviderOrderID
			o.PaymentAttempts = e.Attempt
			o.UpdatedAt = e.OpenedAt
		}, nil

	case order.EventPaymentConfirmed:
		var e order.PaymentConfirmed
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return nil, err
		}
		return func(o *readmodel.OrderReadModel) {
			o.Status = string(order.StatusPaid)
			o.PaymentStatus = string(order.PaymentStatusPaid)
			o.ProviderOrderID = e.ProviderOrderID
			o.PaymentID = e.PaymentID
			o.UpdatedAt = e.ConfirmedAt
		}, nil

	case order.EventPaymentAbandoned:
		var e order.PaymentAbandoned
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return nil, err
		}
		return func(o *readmodel.OrderReadModel) {
			o.PaymentStatus = string(order.PaymentStatusFailed)
			o.UpdatedAt = e.AbandonedAt
		}, nil

	case order.EventOrderHidden:
		return func(o *readmodel.OrderReadModel) {
			o.HiddenByCustomer = true
		}, nil
	}
	return nil, nil
}
