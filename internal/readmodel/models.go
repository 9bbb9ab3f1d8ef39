package readmodel

import "time"

// OrderItemReadModel is the embedded product copy shown in order views
type OrderItemReadModel struct {
	ProductID      string  `json:"product_id"`
	VariantID      *string `json:"variant_id,omitempty"`
	Name           string  `json:"name"`
	UnitPrice      float64 `json:"unit_price"`
	Quantity       int     `json:"quantity"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	TaxInclusive   bool    `json:"tax_inclusive"`
	SubtotalAmount float64 `json:"subtotal_amount"`
}

// AddressReadModel is the shipping address attached to an order
type AddressReadModel struct {
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Email      string  `json:"email"`
	Line1      string  `json:"line1"`
	Line2      string  `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// OrderReadModel is the read model for orders, used by customer history and admin listings
type OrderReadModel struct {
	ID                   string               `json:"id"`
	OrderNumber          string               `json:"order_number"`
	UserID               string               `json:"user_id"`
	Items                []OrderItemReadModel `json:"items"`
	SubtotalAmount       float64              `json:"subtotal_amount"`
	DeliveryChargeAmount float64              `json:"delivery_charge_amount"`
	TotalAmount          float64              `json:"total_amount"`
	PaymentMethod        string               `json:"payment_method"`
	PaymentStatus        string               `json:"payment_status"`
	Status               string               `json:"status"`
	ShippingAddress      AddressReadModel     `json:"shipping_address"`
	DistanceKm           float64              `json:"distance_km"`
	PaymentReference     string               `json:"payment_reference,omitempty"`
	ProviderOrderID      string               `json:"provider_order_id,omitempty"`
	PaymentID            string               `json:"payment_id,omitempty"`
	PaymentAttempts      int                  `json:"payment_attempts"`
	HiddenByCustomer     bool                 `json:"hidden_by_customer"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
	Version              int                  `json:"version"` // last projected event version
}
