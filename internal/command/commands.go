package command

import (
	"github.com/example/grocery-orders/internal/domain/order"
	"github.com/example/grocery-orders/internal/geo"
	"github.com/example/grocery-orders/internal/payment"
)

// Checkout Commands
type ComputeQuote struct {
	Destination geo.Coordinate `json:"destination"`
	Subtotal    float64        `json:"subtotal"`
}

// CartItem is one line of the validated cart snapshot sent at checkout.
type CartItem struct {
	ProductID      string  `json:"product_id"`
	VariantID      *string `json:"variant_id,omitempty"`
	Name           string  `json:"name"`
	UnitPrice      float64 `json:"unit_price"`
	Quantity       int     `json:"quantity"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	TaxInclusive   bool    `json:"tax_inclusive"`
}

// Order Commands
type PlaceOrder struct {
	UserID          string        `json:"-"`
	Items           []CartItem    `json:"items"`
	ShippingAddress order.Address `json:"shipping_address"`
	PaymentMethod   string        `json:"payment_method"`
}

type TransitionOrder struct {
	OrderID string `json:"-"`
	Status  string `json:"status"`
}

// Payment Commands
type ConfirmPayment struct {
	OrderID string `json:"-"`
	payment.Callback
}

type ReportPaymentFailure struct {
	OrderID string `json:"-"`
	payment.FailureCallback
}
