package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// Kind selects the subject line and heading of a notification.
type Kind string

const (
	KindOrderPlaced      Kind = "order_placed"
	KindPaymentConfirmed Kind = "payment_confirmed"
	KindShipped          Kind = "shipped"
	KindDelivered        Kind = "delivered"
)

// OrderItem represents an item in an order for email purposes
type OrderItem struct {
	Name      string
	Quantity  int
	UnitPrice float64
	Subtotal  float64
}

// OrderNotice carries the order details rendered into every notification.
type OrderNotice struct {
	OrderNumber    string
	CustomerName   string
	PaymentMethod  string
	Items          []OrderItem
	Subtotal       float64
	DeliveryCharge float64
	Total          float64
}

type kindCopy struct {
	subject string
	heading string
	message string
}

var copies = map[Kind]kindCopy{
	KindOrderPlaced: {
		subject: "Order received: %s",
		heading: "Thanks for your order",
		message: "We have received your order and will confirm it shortly.",
	},
	KindPaymentConfirmed: {
		subject: "Payment received for %s",
		heading: "Payment confirmed",
		message: "Your payment went through. We will start packing once the store confirms the order.",
	},
	KindShipped: {
		subject: "Your order %s is on the way",
		heading: "Out for delivery",
		message: "Your groceries have left the store.",
	},
	KindDelivered: {
		subject: "Your order %s was delivered",
		heading: "Delivered",
		message: "Your order has been delivered. Enjoy!",
	},
}

var bodyTemplate = template.Must(template.New("order").Funcs(template.FuncMap{
	"money": formatAmount,
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #2e7d32; padding: 24px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 22px;">{{.Heading}}</h1>
	</div>
	<div style="padding: 24px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		{{if .Notice.CustomerName}}<p>Hi {{.Notice.CustomerName}},</p>{{end}}
		<p>{{.Message}}</p>
		<p style="font-family: monospace; font-size: 16px; font-weight: bold;">{{.Notice.OrderNumber}}</p>
		{{if .Notice.Items}}
		<table style="width: 100%; border-collapse: collapse;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 8px; text-align: left;">Item</th>
					<th style="padding: 8px; text-align: center;">Qty</th>
					<th style="padding: 8px; text-align: right;">Price</th>
					<th style="padding: 8px; text-align: right;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
			{{range .Notice.Items}}
				<tr>
					<td style="padding: 8px; border-bottom: 1px solid #eee;">{{.Name}}</td>
					<td style="padding: 8px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
					<td style="padding: 8px; border-bottom: 1px solid #eee; text-align: right;">{{money .UnitPrice}}</td>
					<td style="padding: 8px; border-bottom: 1px solid #eee; text-align: right;">{{money .Subtotal}}</td>
				</tr>
			{{end}}
			</tbody>
		</table>
		{{end}}
		<p style="text-align: right;">Delivery: {{money .Notice.DeliveryCharge}}</p>
		<p style="text-align: right; font-size: 18px; font-weight: bold;">Total: {{money .Notice.Total}}</p>
		{{if .Notice.PaymentMethod}}<p style="color: #666;">Payment: {{.Notice.PaymentMethod}}</p>{{end}}
	</div>
</body>
</html>`))

// BuildSubject returns the subject line for a notification kind.
func BuildSubject(kind Kind, orderNumber string) (string, error) {
	c, ok := copies[kind]
	if !ok {
		return "", fmt.Errorf("email: unknown notification kind %q", kind)
	}
	return fmt.Sprintf(c.subject, orderNumber), nil
}

// BuildBody renders the HTML body for a notification kind.
func BuildBody(kind Kind, notice OrderNotice) (string, error) {
	c, ok := copies[kind]
	if !ok {
		return "", fmt.Errorf("email: unknown notification kind %q", kind)
	}
	var buf bytes.Buffer
	err := bodyTemplate.Execute(&buf, struct {
		Heading string
		Message string
		Notice  OrderNotice
	}{c.heading, c.message, notice})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatAmount(v float64) string {
	return fmt.Sprintf("₹%.2f", v)
}
