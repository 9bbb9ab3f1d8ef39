package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/domain/aggregate"
	"github.com/example/grocery-orders/internal/infrastructure/lock"
	"github.com/example/grocery-orders/internal/infrastructure/store"
)

// fastForwardChain is the cash-on-delivery shortcut applied by FastForwardCOD.
var fastForwardChain = []Status{StatusAdminConfirmed, StatusShipped, StatusDelivered}

type Service struct {
	eventStore store.EventStoreInterface
	orders     *aggregate.Repository[*Order]
	locker     lock.Locker
	logger     *zap.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithLocker(l lock.Locker) Option { return func(s *Service) { s.locker = l } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(es store.EventStoreInterface, opts ...Option) *Service {
	s := &Service{
		eventStore: es,
		orders:     aggregate.NewRepository(es, AggregateType, func() *Order { return &Order{} }),
		locker:     lock.NewMemoryLocker(),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder is the validated cart snapshot an order is created from.
type PlaceOrder struct {
	UserID               string
	Items                []LineItem
	ShippingAddress      Address
	PaymentMethod        PaymentMethod
	DistanceKm           float64
	DeliveryChargeAmount float64
}

// PaymentSession describes a gateway session opened for an order.
type PaymentSession struct {
	Reference       string
	ProviderOrderID string
	Amount          float64
	Currency        string
}

// Get loads an order by replaying its events.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.loadOrder(ctx, orderID)
}

func (s *Service) loadOrder(ctx context.Context, orderID string) (*Order, error) {
	order, err := s.orders.Load(ctx, orderID)
	if errors.Is(err, aggregate.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

// Place creates an order in CREATED. Line subtotals and the total are
// computed here and never recomputed afterwards.
func (s *Service) Place(ctx context.Context, cmd PlaceOrder) (*Order, error) {
	if len(cmd.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if cmd.PaymentMethod != PaymentMethodCOD && cmd.PaymentMethod != PaymentMethodOnline {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, cmd.PaymentMethod)
	}
	if cmd.DeliveryChargeAmount < 0 || cmd.DistanceKm < 0 {
		return nil, fmt.Errorf("%w: negative delivery values", ErrInvalidItem)
	}

	items := make([]LineItem, len(cmd.Items))
	var subtotal float64
	for i, item := range cmd.Items {
		if item.ProductID == "" || item.Quantity <= 0 || item.UnitPrice < 0 || item.TaxRatePercent < 0 {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidItem, i+1)
		}
		item.SubtotalAmount = LineSubtotal(item)
		items[i] = item
		subtotal += item.SubtotalAmount
	}
	subtotal = roundAmount(subtotal)

	orderID := uuid.New().String()
	now := s.now().UTC()

	event := OrderPlaced{
		OrderID:              orderID,
		OrderNumber:          NewOrderNumber(orderID, now),
		UserID:               cmd.UserID,
		Items:                items,
		SubtotalAmount:       subtotal,
		DeliveryChargeAmount: cmd.DeliveryChargeAmount,
		TotalAmount:          roundAmount(subtotal + cmd.DeliveryChargeAmount),
		PaymentMethod:        cmd.PaymentMethod,
		ShippingAddress:      cmd.ShippingAddress,
		DistanceKm:           cmd.DistanceKm,
		PlacedAt:             now,
	}

	storedEvent, err := s.eventStore.Append(ctx, orderID, AggregateType, EventOrderPlaced, 0, event)
	if err != nil {
		return nil, err
	}

	order := &Order{}
	if err := order.ApplyEvent(*storedEvent); err != nil {
		return nil, err
	}

	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("payment_method", string(order.PaymentMethod)),
		zap.Float64("total", order.TotalAmount),
	)
	return order, nil
}

// Transition applies an actor-driven status change checked against the
// admin transition table.
func (s *Service) Transition(ctx context.Context, orderID string, target Status, actor Actor) (*Order, error) {
	return s.mutate(ctx, orderID, func(o *Order) (string, any, error) {
		if err := authorize(o, target, actor); err != nil {
			return "", nil, err
		}
		if !o.CanTransitionTo(target) {
			return "", nil, fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.Status, target)
		}
		return EventOrderStatusChanged, OrderStatusChanged{
			OrderID:   o.ID,
			From:      o.Status,
			To:        target,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			ChangedAt: s.now().UTC(),
		}, nil
	})
}

// FastForwardCOD walks a cash-on-delivery order through ADMIN_CONFIRMED,
// SHIPPED and DELIVERED, one validated transition at a time. Steps the order
// has already passed are skipped. A failing step stops the chain and leaves
// the order at the last status reached.
func (s *Service) FastForwardCOD(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	current, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.PaymentMethod != PaymentMethodCOD {
		return current, ErrNotCashOnDelivery
	}

	start := 0
	for i, step := range fastForwardChain {
		if current.Status == step {
			start = i + 1
		}
	}

	for _, step := range fastForwardChain[start:] {
		next, err := s.Transition(ctx, orderID, step, actor)
		if err != nil {
			s.logger.Warn("fast-forward stopped",
				zap.String("order_id", orderID),
				zap.String("reached", string(current.Status)),
				zap.String("failed_step", string(step)),
				zap.Error(err),
			)
			// Partial progress is kept; reload so the caller sees what is stored.
			if reloaded, loadErr := s.loadOrder(ctx, orderID); loadErr == nil {
				current = reloaded
			}
			return current, fmt.Errorf("fast-forward stopped at %s before %s: %w", current.Status, step, err)
		}
		current = next
	}
	return current, nil
}

// OpenPaymentSession records a fresh gateway session and moves the order to
// PAYMENT_PENDING. Retries append a new session for the same order.
func (s *Service) OpenPaymentSession(ctx context.Context, orderID string, session PaymentSession) (*Order, error) {
	return s.mutate(ctx, orderID, func(o *Order) (string, any, error) {
		if err := checkPayable(o); err != nil {
			return "", nil, err
		}
		return EventPaymentSessionOpened, PaymentSessionOpened{
			OrderID:          o.ID,
			PaymentReference: session.Reference,
			ProviderOrderID:  session.ProviderOrderID,
			Amount:           session.Amount,
			Currency:         session.Currency,
			Attempt:          o.PaymentAttempts + 1,
			OpenedAt:         s.now().UTC(),
		}, nil
	})
}

// ConfirmPayment marks a verified payment. An already paid order is returned
// unchanged; a cancelled order yields ErrOrderCancelled.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, providerOrderID, paymentID string) (*Order, error) {
	return s.mutate(ctx, orderID, func(o *Order) (string, any, error) {
		if o.PaymentStatus == PaymentStatusPaid {
			return "", nil, nil
		}
		if err := checkPayable(o); err != nil {
			return "", nil, err
		}
		return EventPaymentConfirmed, PaymentConfirmed{
			OrderID:         o.ID,
			ProviderOrderID: providerOrderID,
			PaymentID:       paymentID,
			ConfirmedAt:     s.now().UTC(),
		}, nil
	})
}

// AbandonPayment records a dismissed or failed payment attempt. The order
// keeps its status so the customer can retry.
func (s *Service) AbandonPayment(ctx context.Context, orderID, reason string) (*Order, error) {
	return s.mutate(ctx, orderID, func(o *Order) (string, any, error) {
		if o.PaymentStatus == PaymentStatusPaid {
			return "", nil, fmt.Errorf("%w: order is already paid", ErrInvalidTransition)
		}
		if err := checkPayable(o); err != nil {
			return "", nil, err
		}
		return EventPaymentAbandoned, PaymentAbandoned{
			OrderID:          o.ID,
			PaymentReference: o.PaymentReference,
			Reason:           reason,
			AbandonedAt:      s.now().UTC(),
		}, nil
	})
}

// Hide removes the order from its owner's history. The order itself stays.
func (s *Service) Hide(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	return s.mutate(ctx, orderID, func(o *Order) (string, any, error) {
		if actor.ID == "" || actor.ID != o.UserID {
			return "", nil, ErrForbidden
		}
		if o.HiddenByCustomer {
			return "", nil, nil
		}
		return EventOrderHidden, OrderHiddenFromHistory{
			OrderID:  o.ID,
			UserID:   actor.ID,
			HiddenAt: s.now().UTC(),
		}, nil
	})
}

// mutate runs decide against the current order under the per-order lock and
// appends the resulting event at the loaded version. An empty event type
// means nothing to do.
func (s *Service) mutate(ctx context.Context, orderID string, decide func(*Order) (string, any, error)) (*Order, error) {
	unlock, err := s.locker.Lock(ctx, orderID)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, fmt.Errorf("%w: %v", ErrConflictingTransition, err)
		}
		return nil, err
	}
	defer unlock()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	eventType, data, err := decide(order)
	if err != nil {
		return order, err
	}
	if eventType == "" {
		return order, nil
	}

	storedEvent, err := s.eventStore.Append(ctx, orderID, AggregateType, eventType, order.Version, data)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: %s on order %s", ErrConflictingTransition, eventType, orderID)
		}
		return nil, err
	}
	if err := order.ApplyEvent(*storedEvent); err != nil {
		return nil, err
	}

	if _, err := s.orders.Snapshot(ctx, order); err != nil {
		s.logger.Warn("failed to create snapshot", zap.String("order_id", order.ID), zap.Error(err))
	}
	return order, nil
}

// authorize enforces actor permissions: admins may request any table
// transition, customers may only cancel their own unpaid orders.
func authorize(o *Order, target Status, actor Actor) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleCustomer:
		if actor.ID != o.UserID {
			return ErrForbidden
		}
		if target != StatusCancelled {
			return ErrForbidden
		}
		if !o.Status.awaitingPayment() {
			return fmt.Errorf("%w: customers can only cancel before payment", ErrInvalidTransition)
		}
		return nil
	}
	return ErrForbidden
}

func checkPayable(o *Order) error {
	if o.PaymentMethod != PaymentMethodOnline {
		return ErrNotOnlinePayment
	}
	if o.Status == StatusCancelled {
		return ErrOrderCancelled
	}
	if !o.Status.awaitingPayment() {
		return fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.Status)
	}
	return nil
}

// LineSubtotal prices one line: unit price × quantity, plus tax when the
// price does not already include it.
func LineSubtotal(item LineItem) float64 {
	base := item.UnitPrice * float64(item.Quantity)
	if !item.TaxInclusive {
		base += base * item.TaxRatePercent / 100
	}
	return roundAmount(base)
}

// NewOrderNumber returns ORD-YYYYMMDD-XXXXXXXX for an order id.
func NewOrderNumber(orderID string, placedAt time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(orderID, "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("ORD-%s-%s", placedAt.UTC().Format("20060102"), suffix)
}

func roundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}
