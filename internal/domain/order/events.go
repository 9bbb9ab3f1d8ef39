package order

import (
	"time"

	"github.com/example/grocery-orders/internal/geo"
)

const (
	EventOrderPlaced          = "OrderPlaced"
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventPaymentSessionOpened = "PaymentSessionOpened"
	EventPaymentConfirmed     = "PaymentConfirmed"
	EventPaymentAbandoned     = "PaymentAbandoned"
	EventOrderHidden          = "OrderHiddenFromHistory"
)

// Payment abandonment reasons.
const (
	AbandonDismissed      = "dismissed"
	AbandonGatewayFailure = "gateway_failure"
)

// LineItem is a copy of product data taken when the order is placed.
type LineItem struct {
	ProductID      string  `json:"product_id"`
	VariantID      *string `json:"variant_id,omitempty"`
	Name           string  `json:"name"`
	UnitPrice      float64 `json:"unit_price"`
	Quantity       int     `json:"quantity"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	TaxInclusive   bool    `json:"tax_inclusive"`
	SubtotalAmount float64 `json:"subtotal_amount"`
}

type Address struct {
	Name       string         `json:"name"`
	Phone      string         `json:"phone"`
	Email      string         `json:"email,omitempty"`
	Line1      string         `json:"line1"`
	Line2      string         `json:"line2,omitempty"`
	City       string         `json:"city"`
	State      string         `json:"state"`
	PostalCode string         `json:"postal_code"`
	Location   geo.Coordinate `json:"location"`
}

type OrderPlaced struct {
	OrderID              string        `json:"order_id"`
	OrderNumber          string        `json:"order_number"`
	UserID               string        `json:"user_id"`
	Items                []LineItem    `json:"items"`
	SubtotalAmount       float64       `json:"subtotal_amount"`
	DeliveryChargeAmount float64       `json:"delivery_charge_amount"`
	TotalAmount          float64       `json:"total_amount"`
	PaymentMethod        PaymentMethod `json:"payment_method"`
	ShippingAddress      Address       `json:"shipping_address"`
	DistanceKm           float64       `json:"distance_km"`
	PlacedAt             time.Time     `json:"placed_at"`
}

type OrderStatusChanged struct {
	OrderID   string    `json:"order_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ActorID   string    `json:"actor_id"`
	ActorRole Role      `json:"actor_role"`
	ChangedAt time.Time `json:"changed_at"`
}

type PaymentSessionOpened struct {
	OrderID          string    `json:"order_id"`
	PaymentReference string    `json:"payment_reference"`
	ProviderOrderID  string    `json:"provider_order_id"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	Attempt          int       `json:"attempt"`
	OpenedAt         time.Time `json:"opened_at"`
}

type PaymentConfirmed struct {
	OrderID         string    `json:"order_id"`
	ProviderOrderID string    `json:"provider_order_id"`
	PaymentID       string    `json:"payment_id"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
}

type PaymentAbandoned struct {
	OrderID          string    `json:"order_id"`
	PaymentReference string    `json:"payment_reference"`
	Reason           string    `json:"reason"`
	AbandonedAt      time.Time `json:"abandoned_at"`
}

type OrderHiddenFromHistory struct {
	OrderID  string    `json:"order_id"`
	UserID   string    `json:"user_id"`
	HiddenAt time.Time `json:"hidden_at"`
}
