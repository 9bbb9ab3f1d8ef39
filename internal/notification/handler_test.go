package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/grocery-orders/internal/domain/order"
	"github.com/example/grocery-orders/internal/email"
	"github.com/example/grocery-orders/internal/infrastructure/store"
	"github.com/example/grocery-orders/internal/infrastructure/store/mocks"
	"github.com/example/grocery-orders/internal/readmodel"
)

type sent struct {
	to     string
	kind   email.Kind
	notice email.OrderNotice
}

type fakeMailer struct {
	sent []sent
	err  error
}

func (m *fakeMailer) Notify(to string, kind email.Kind, notice email.OrderNotice) error {
	m.sent = append(m.sent, sent{to: to, kind: kind, notice: notice})
	return m.err
}

func newTestHandler() (*Handler, *fakeMailer, *mocks.MockReadStore) {
	mailer := &fakeMailer{}
	readStore := mocks.NewMockReadStore()
	return NewHandler(mailer, readStore, nil), mailer, readStore
}

func makeEvent(aggregateID, eventType string, data any) []byte {
	jsonData, _ := json.Marshal(data)
	value, _ := json.Marshal(store.Event{
		ID:            "evt-1",
		AggregateID:   aggregateID,
		AggregateType: order.AggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
	})
	return value
}

func seedReadModel(readStore *mocks.MockReadStore, emailAddr string) {
	readStore.SetData(store.CollectionOrders, "order-1", &readmodel.OrderReadModel{
		ID:          "order-1",
		OrderNumber: "ORD-1",
		TotalAmount: 150,
		ShippingAddress: readmodel.AddressReadModel{
			Name:  "Asha",
			Email: emailAddr,
		},
	})
}

func TestHandler_OrderPlaced(t *testing.T) {
	handler, mailer, _ := newTestHandler()

	err := handler.HandleEvent(context.Background(), nil, makeEvent("order-1", order.EventOrderPlaced, order.OrderPlaced{
		OrderID:     "order-1",
		OrderNumber: "ORD-1",
		Items: []order.LineItem{
			{ProductID: "milk", Name: "Milk", UnitPrice: 60, Quantity: 2, SubtotalAmount: 120},
		},
		SubtotalAmount:       120,
		DeliveryChargeAmount: 30,
		TotalAmount:          150,
		PaymentMethod:        order.PaymentMethodCOD,
		ShippingAddress:      order.Address{Name: "Asha", Email: "asha@example.com"},
	}))

	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "asha@example.com", mailer.sent[0].to)
	assert.Equal(t, email.KindOrderPlaced, mailer.sent[0].kind)
	assert.Equal(t, "Milk", mailer.sent[0].notice.Items[0].Name)
	assert.Equal(t, 150.0, mailer.sent[0].notice.Total)
}

func TestHandler_StatusNotifications(t *testing.T) {
	tests := []struct {
		name string
		to   order.Status
		want []email.Kind
	}{
		{"shipped", order.StatusShipped, []email.Kind{email.KindShipped}},
		{"delivered", order.StatusDelivered, []email.Kind{email.KindDelivered}},
		{"admin confirmed is silent", order.StatusAdminConfirmed, nil},
		{"cancelled is silent", order.StatusCancelled, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, mailer, readStore := newTestHandler()
			seedReadModel(readStore, "asha@example.com")

			err := handler.HandleEvent(context.Background(), nil, makeEvent("order-1", order.EventOrderStatusChanged, order.OrderStatusChanged{
				OrderID: "order-1",
				To:      tt.to,
			}))

			require.NoError(t, err)
			var kinds []email.Kind
			for _, s := range mailer.sent {
				kinds = append(kinds, s.kind)
			}
			assert.Equal(t, tt.want, kinds)
		})
	}
}

func TestHandler_PaymentConfirmed(t *testing.T) {
	handler, mailer, readStore := newTestHandler()
	seedReadModel(readStore, "asha@example.com")

	err := handler.HandleEvent(context.Background(), nil, makeEvent("order-1", order.EventPaymentConfirmed, order.PaymentConfirmed{OrderID: "order-1"}))

	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, email.KindPaymentConfirmed, mailer.sent[0].kind)
	assert.Equal(t, "ORD-1", mailer.sent[0].notice.OrderNumber)
}

func TestHandler_SkipsWithoutRecipient(t *testing.T) {
	handler, mailer, readStore := newTestHandler()
	seedReadModel(readStore, "")

	err := handler.HandleEvent(context.Background(), nil, makeEvent("order-1", order.EventPaymentConfirmed, order.PaymentConfirmed{OrderID: "order-1"}))

	require.NoError(t, err)
	assert.Empty(t, mailer.sent)
}

func TestHandler_MissingReadModel(t *testing.T) {
	handler, mailer, _ := newTestHandler()

	err := handler.HandleEvent(context.Background(), nil, makeEvent("order-1", order.EventOrderStatusChanged, order.OrderStatusChanged{
		OrderID: "order-1",
		To:      order.StatusShipped,
	}))

	require.NoError(t, err)
	assert.Empty(t, mailer.sent)
}

func TestHandler_MailerError(t *testing.T) {
	handler, mailer, readStore := newTestHandler()
	mailer.err = errors.New("smtp down")
	seedReadModel(readStore, "asha@example.com")

	err := handler.HandleEvent(context.Background(), nil, makeEvent("order-1", order.EventPaymentConfirmed, order.PaymentConfirmed{OrderID: "order-1"}))

	assert.EqualError(t, err, "smtp down")
}

func TestHandler_InvalidJSON(t *testing.T) {
	handler, _, _ := newTestHandler()

	assert.Error(t, handler.HandleEvent(context.Background(), nil, []byte("{")))
}
