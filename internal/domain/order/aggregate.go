package order

import (
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/example/grocery-orders/internal/infrastructure/store"
)

const AggregateType = "Order"

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrEmptyOrder            = errors.New("order must have at least one item")
	ErrInvalidItem           = errors.New("invalid order item")
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
	ErrInvalidTransition     = errors.New("invalid order status transition")
	ErrConflictingTransition = errors.New("order was modified concurrently")
	ErrForbidden             = errors.New("actor is not allowed to change this order")
	ErrOrderCancelled        = errors.New("order is cancelled")
	ErrNotCashOnDelivery     = errors.New("fast-forward is only available for cash-on-delivery orders")
	ErrNotOnlinePayment      = errors.New("order is not paid online")
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
	RoleSystem   Role = "system"
)

// Actor identifies who requests a change.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor is used for gateway-driven payment transitions.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

type Order struct {
	ID                   string        `json:"id"`
	OrderNumber          string        `json:"order_number"`
	UserID               string        `json:"user_id"`
	Items                []LineItem    `json:"items"`
	SubtotalAmount       float64       `json:"subtotal_amount"`
	DeliveryChargeAmount float64       `json:"delivery_charge_amount"`
	TotalAmount          float64       `json:"total_amount"`
	PaymentMethod        PaymentMethod `json:"payment_method"`
	PaymentStatus        PaymentStatus `json:"payment_status"`
	Status               Status        `json:"status"`
	ShippingAddress      Address       `json:"shipping_address"`
	DistanceKm           float64       `json:"distance_km"`
	PaymentReference     string        `json:"payment_reference,omitempty"`
	ProviderOrderID      string        `json:"provider_order_id,omitempty"`
	PaymentSessions      []string      `json:"payment_sessions,omitempty"` // provider order ids, oldest first
	PaymentID            string        `json:"payment_id,omitempty"`
	PaymentAttempts      int           `json:"payment_attempts"`
	HiddenByCustomer     bool          `json:"hidden_by_customer"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
	Version              int           `json:"version"` // Current event version
}

// Aggregate interface implementation
func (o *Order) GetID() string    { return o.ID }
func (o *Order) GetVersion() int  { return o.Version }
func (o *Order) SetVersion(v int) { o.Version = v }

// CanTransitionTo checks the admin transition table from the current status.
func (o *Order) CanTransitionTo(target Status) bool {
	return CanTransition(o.Status, target)
}

// HasPaymentSession reports whether providerOrderID belongs to any gateway
// session opened for this order, not only the latest one.
func (o *Order) HasPaymentSession(providerOrderID string) bool {
	return providerOrderID != "" && slices.Contains(o.PaymentSessions, providerOrderID)
}

// ApplyEvent applies a single event to the order state (implements aggregate.Root)
func (o *Order) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventOrderPlaced:
		var data OrderPlaced
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.ID = data.OrderID
		o.OrderNumber = data.OrderNumber
		o.UserID = data.UserID
		o.Items = data.Items
		o.SubtotalAmount = data.SubtotalAmount
		o.DeliveryChargeAmount = data.DeliveryChargeAmount
		o.TotalAmount = data.TotalAmount
		o.PaymentMethod = data.PaymentMethod
		o.PaymentStatus = PaymentStatusUnpaid
		o.Status = StatusCreated
		o.ShippingAddress = data.ShippingAddress
		o.DistanceKm = data.DistanceKm
		o.CreatedAt = data.PlacedAt
		o.UpdatedAt = data.PlacedAt
	case EventOrderStatusChanged:
		var data OrderStatusChanged
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = data.To
		o.UpdatedAt = data.ChangedAt
	case EventPaymentSessionOpened:
		var data PaymentSessionOpened
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusPaymentPending
		o.PaymentStatus = PaymentStatusUnpaid
		o.PaymentReference = data.PaymentReference
		o.ProviderOrderID = data.ProviderOrderID
		o.PaymentSessions = append(o.PaymentSessions, data.ProviderOrderID)
		o.PaymentAttempts = data.Attempt
		o.UpdatedAt = data.OpenedAt
	case EventPaymentConfirmed:
		var data PaymentConfirmed
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusPaid
		o.PaymentStatus = PaymentStatusPaid
		o.ProviderOrderID = data.ProviderOrderID
		o.PaymentID = data.PaymentID
		o.UpdatedAt = data.ConfirmedAt
	case EventPaymentAbandoned:
		var data PaymentAbandoned
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.PaymentStatus = PaymentStatusFailed
		o.UpdatedAt = data.AbandonedAt
	case EventOrderHidden:
		o.HiddenByCustomer = true
	}
	o.Version = event.Version
	return nil
}
