package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/grocery-orders/internal/geo"
	"github.com/example/grocery-orders/internal/infrastructure/store"
	"github.com/example/grocery-orders/internal/infrastructure/store/mocks"
)

var (
	admin    = Actor{ID: "admin-1", Role: RoleAdmin}
	customer = Actor{ID: "user-123", Role: RoleCustomer}
	fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
)

func newTestOrderService() (*Service, *mocks.MockEventStore) {
	eventStore := mocks.NewMockEventStore()
	service := NewService(eventStore, WithClock(func() time.Time { return fixedNow }))
	return service, eventStore
}

// seedOrder stores an OrderPlaced event followed by events that move the
// order to status.
func seedOrder(t *testing.T, es *mocks.MockEventStore, orderID string, method PaymentMethod, status Status) {
	t.Helper()
	require.NoError(t, es.AddEvent(orderID, AggregateType, EventOrderPlaced, OrderPlaced{
		OrderID:       orderID,
		UserID:        "user-123",
		PaymentMethod: method,
		Items:         []LineItem{{ProductID: "prod-1", Quantity: 1, UnitPrice: 100, SubtotalAmount: 100}},
		TotalAmount:   100,
	}))

	switch status {
	case StatusCreated:
	case StatusPaymentPending:
		require.NoError(t, es.AddEvent(orderID, AggregateType, EventPaymentSessionOpened, PaymentSessionOpened{
			OrderID: orderID, PaymentReference: "rcpt_1", ProviderOrderID: "prov_1", Attempt: 1,
		}))
	case StatusPaid:
		require.NoError(t, es.AddEvent(orderID, AggregateType, EventPaymentConfirmed, PaymentConfirmed{
			OrderID: orderID, ProviderOrderID: "prov_1", PaymentID: "pay_1",
		}))
	default:
		path := map[Status][]Status{
			StatusAdminConfirmed: {StatusAdminConfirmed},
			StatusShipped:        {StatusAdminConfirmed, StatusShipped},
			StatusDelivered:      {StatusAdminConfirmed, StatusShipped, StatusDelivered},
			StatusCancelled:      {StatusCancelled},
		}[status]
		for _, to := range path {
			require.NoError(t, es.AddEvent(orderID, AggregateType, EventOrderStatusChanged, OrderStatusChanged{
				OrderID: orderID, To: to, ActorID: "admin-1", ActorRole: RoleAdmin,
			}))
		}
	}
}

func sampleCommand() PlaceOrder {
	variant := "500g"
	return PlaceOrder{
		UserID: "user-123",
		Items: []LineItem{
			{ProductID: "prod-1", Name: "Basmati Rice", UnitPrice: 120, Quantity: 2, TaxRatePercent: 5, TaxInclusive: true},
			{ProductID: "prod-2", VariantID: &variant, Name: "Ghee", UnitPrice: 200, Quantity: 1, TaxRatePercent: 12},
		},
		ShippingAddress: Address{
			Name: "Asha", Phone: "9999999999", Line1: "12 South Street", City: "Thanjavur",
			State: "TN", PostalCode: "613001", Location: geo.Coordinate{Latitude: 10.79, Longitude: 79.14},
		},
		PaymentMethod:        PaymentMethodOnline,
		DistanceKm:           8,
		DeliveryChargeAmount: 60,
	}
}

// ============================================
// Place Order Tests
// ============================================

func TestService_Place_Success(t *testing.T) {
	service, eventStore := newTestOrderService()

	order, err := service.Place(context.Background(), sampleCommand())

	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, StatusCreated, order.Status)
	assert.Equal(t, PaymentStatusUnpaid, order.PaymentStatus)
	require.Len(t, order.Items, 2)
	assert.Equal(t, 240.0, order.Items[0].SubtotalAmount) // tax inclusive
	assert.Equal(t, 224.0, order.Items[1].SubtotalAmount) // 200 + 12%
	assert.Equal(t, 464.0, order.SubtotalAmount)
	assert.Equal(t, 60.0, order.DeliveryChargeAmount)
	assert.Equal(t, order.SubtotalAmount+order.DeliveryChargeAmount, order.TotalAmount)
	assert.Equal(t, 1, order.Version)
	assert.Regexp(t, `^ORD-20260314-[0-9A-F]{8}$`, order.OrderNumber)

	require.Len(t, eventStore.AppendCalls, 1)
	assert.Equal(t, EventOrderPlaced, eventStore.AppendCalls[0].EventType)
	assert.Equal(t, AggregateType, eventStore.AppendCalls[0].AggregateType)
	assert.Equal(t, 0, eventStore.AppendCalls[0].ExpectedVersion)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) error {
	return errors.New("kafka down")
}

func TestService_Place_PublishFailureStillReportsOrder(t *testing.T) {
	eventStore := store.NewEventStore(failingPublisher{})
	service := NewService(eventStore, WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	placed, err := service.Place(ctx, sampleCommand())
	require.NoError(t, err)
	require.NotNil(t, placed)

	confirmed, err := service.Transition(ctx, placed.ID, StatusAdminConfirmed, admin)
	require.NoError(t, err)
	assert.Equal(t, StatusAdminConfirmed, confirmed.Status)

	events, err := eventStore.GetAllEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventOrderPlaced, events[0].EventType)
}

func TestService_Place_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PlaceOrder)
		wantErr error
	}{
		{"no items", func(c *PlaceOrder) { c.Items = nil }, ErrEmptyOrder},
		{"zero quantity", func(c *PlaceOrder) { c.Items[0].Quantity = 0 }, ErrInvalidItem},
		{"negative price", func(c *PlaceOrder) { c.Items[1].UnitPrice = -1 }, ErrInvalidItem},
		{"missing product", func(c *PlaceOrder) { c.Items[0].ProductID = "" }, ErrInvalidItem},
		{"unknown payment method", func(c *PlaceOrder) { c.PaymentMethod = "CARD" }, ErrInvalidPaymentMethod},
		{"negative delivery", func(c *PlaceOrder) { c.DeliveryChargeAmount = -5 }, ErrInvalidItem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, eventStore := newTestOrderService()
			cmd := sampleCommand()
			tt.mutate(&cmd)

			order, err := service.Place(context.Background(), cmd)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, order)
			assert.Empty(t, eventStore.AppendCalls)
		})
	}
}

func TestService_Place_LineItemsAreCopies(t *testing.T) {
	service, _ := newTestOrderService()
	cmd := sampleCommand()

	order, err := service.Place(context.Background(), cmd)
	require.NoError(t, err)

	cmd.Items[0].UnitPrice = 999
	assert.Equal(t, 120.0, order.Items[0].UnitPrice)
}

// ============================================
// Transition Tests
// ============================================

func TestService_Transition_Table(t *testing.T) {
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				service, eventStore := newTestOrderService()
				seedOrder(t, eventStore, "order-1", PaymentMethodOnline, from)
				before := len(eventStore.EventTypes("order-1"))

				order, err := service.Transition(context.Background(), "order-1", to, admin)

				if CanTransition(from, to) {
					require.NoError(t, err)
					assert.Equal(t, to, order.Status)
					assert.Len(t, eventStore.EventTypes("order-1"), before+1)
					return
				}
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Len(t, eventStore.EventTypes("order-1"), before)
				stored, getErr := service.Get(context.Background(), "order-1")
				require.NoError(t, getErr)
				assert.Equal(t, from, stored.Status)
			})
		}
	}
}

func TestService_Transition_ShippedToAdminConfirmed(t *testing.T) {
	service, eventStore := newTestOrderService()
	seedOrder(t, eventStore, "order-1", PaymentMethodCOD, StatusShipped)

	_, err := service.Transition(context.Background(), "order-1", StatusAdminConfirmed, admin)

	assert.ErrorIs(t, err, ErrInvalidTransition)
	order, _ := service.Get(context.Background(), "order-1")
	assert.Equal(t, StatusShipped, order.Status)
}

func TestService_Transition_OrderNotFound(t *testing.T) {
	service, _ := newTestOrderService()

	_, err := service.Transition(context.Background(), "missing", StatusCancelled, admin)

	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestService_Transition_CustomerPermissions(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		target  Status
		actor   Actor
		wantErr error
	}{
		{"owner cancels created", StatusCreated, StatusCancelled, customer, nil},
		{"owner cancels payment pending", StatusPaymentPending, StatusCancelled, customer, nil},
		{"owner cannot cancel paid", StatusPaid, StatusCancelled, customer, ErrInvalidTransition},
		{"owner cannot confirm", StatusCreated, StatusAdminConfirmed, customer, ErrForbidden},
		{"stranger cannot cancel", StatusCreated, StatusCancelled, Actor{ID: "user-999", Role: RoleCustomer}, ErrForbidden},
		{"system actor cannot use table", StatusCreated, StatusCancelled, SystemActor, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, eventStore := newTestOrderService()
			seedOrder(t, eventStore, "order-1", PaymentMethodOnline, tt.status)

			_, err := service.Transition(context.Background(), "order-1", tt.target, tt.actor)

			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestService_Transition_VersionConflict(t *testing.T) {
	service, eventStore := newTestOrderService()
	seedOrder(t, eventStore, "order-1", PaymentMethodCOD, StatusCreated)
	eventStore.AppendErr = store.ErrVersionConflict

	_, err := service.Transition(context.Background(), "order-1", StatusCancelled, admin)

	assert.ErrorIs(t, err, ErrConflictingTransition)
}

func TestService_Transition_ConcurrentConfirmAndCancel(t *testing.T) {
	es := store.NewEventStore(nil)
	service := NewService(es)
	ctx := context.Background()
	placed, err := service.Place(ctx, sampleCommand())
	require.NoError(t, err)
	_, err = service.Transition(ctx, placed.ID, StatusAdminConfirmed, admin)
	require.NoError(t, err)

	// SHIPPED and CANCELLED are both legal from ADMIN_CONFIRMED, but once
	// one lands the other is illegal from the new status.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, target := range []Status{StatusShipped, StatusCancelled} {
		wg.Add(1)
		go func(i int, target Status) {
			defer wg.Done()
			_, errs[i] = service.Transition(ctx, placed.ID, target, admin)
		}(i, target)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrConflictingTransition), err)
	}
	assert.Equal(t, 1, wins)

	events, err := es.GetEvents(ctx, placed.ID)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

// ============================================
// Fast-forward Tests
// ============================================

func TestService_FastForwardCOD_ReachesDelivered(t *testing.T) {
	service, eventStore := newTestOrderService()
	seedOrder(t, eventStore, "order-1", PaymentMethodCOD, StatusCreated)

	order, err := service.FastForwardCOD(context.Background(), "order-1", admin)

	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, order.Status)
	require.Len(t, eventStore.AppendCalls, 3)
	for i, want := range []Status{StatusAdminConfirmed, StatusShipped, StatusDelivered} {
		assert.Equal(t, want, eventStore.AppendCalls[i].Data.(OrderStatusChanged).To)
	}
}

func TestService_FastForwardCOD_SecondStepFailsKeepsProgress(t *testing.T) {
	service, eventStore := newTestOrderService()
	seedOrder(t, eventStore, "order-1", PaymentMethodCOD, StatusCreated)
	eventStore.BeforeAppend = func(callIndex int, _ mocks.AppendCall) error {
		if callIndex == 2 {
			return errors.New("storage unavailable")
		}
		return nil
	}

	order, err := service.FastForwardCOD(context.Background(), "order-1", admin)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage unavailable")
	require.NotNil(t, order)
	assert.Equal(t, StatusAdminConfirmed, order.Status)

	stored, getErr := service.Get(context.Background(), "order-1")
	require.NoError(t, getErr)
	assert.Equal(t, StatusAdminConfirmed, stored.Status)
	assert.Len(t, eventStore.AppendCalls, 2)
}

func TestService_FastForwardCOD_SkipsReachedSteps(t *testing.T) {
	service, eventStore := newTestOrderService()
	seedOrder(t, eventStore, "order-1", PaymentMethodCOD, StatusAdminConfirmed)

	order, err := service.FastForwardCOD(context.Background(), "order-1", admin)

	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, order.Status)
	assert.Len(t, eventStore.AppendCalls, 2)
}

func TestService_FastForwardCOD_Rejections(t *testing.T) {
	t.Run("online order", func(t *testing.T) {
		service, eventStore := newTestOrderService()
		seedOrder(t, eventStore, "order-1", PaymentMethodOnline, StatusCreated)
		_, err := service.FastForwardCOD(context.Background(), "order-1", admin)
		assert.ErrorIs(t, err, ErrNotCashOnDelivery)
	})
	t.Run("customer", func(t *testing.T) {
		service, eventStore := newTestOrderService()
		seedOrder(t, eventStore, "order-1", PaymentMethodCOD, StatusCreated)
		_, err := service.FastForwardCOD(context.Background(), "order-1", customer)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Empty(t, eventStore.AppendCalls)
	})
	t.Run("cancelled", func(t *testing.T) {
		service, eventStore := newTestOrderService()
		seedOrder(t, eventStore, "order-1", PaymentMethodCOD, StatusCancelled)
		order, err := service.FastForwardCOD(context.Background(), "order-1", admin)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, StatusCancelled, order.Status)
	})
}

// ============================================
// Payment overlay Tests
// ============================================

func TestService_OpenPaymentSession_RetryKeepsSameOrder(t *testing.T) {
	service, eventStore := newTestOrderService()
	seedOrder(t, eventStore, "order-1", PaymentMethodOnline, StatusCreated)
	ctx := context.Background()

	first, err := service.OpenPaymentSession(ctx, "order-1", PaymentSession{Reference: "rcpt_a", ProviderOrderID: "prov_a", Amount: 100, Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, StatusPaymentPending, first.Status)
	assert.Equal(t, 1, first.PaymentAttempts)

	_, err = service.AbandonPayment(ctx, "order-1", AbandonDismissed)
	require.NoError(t, err)

	second, err := service.OpenPaymentSession(ctx, "order-1", PaymentSession{Reference: "rcpt_b", ProviderOrderID: "prov_b", Amount: 100, Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, "order-1", second.ID)
	assert.Equal(t, 2, second.PaymentAttempts)
	assert.Equal(t, "prov_b", second.ProviderOrderID)
	assert.Equal(t, PaymentStatusUnpaid, second.PaymentStatus)
}

func TestService_OpenPaymentSession_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		method  PaymentMethod
		status  Status
		wantErr error
	}{
		{"cod order", PaymentMethodCOD, StatusCreated, ErrNotOnlinePayment},
		{"cancelled", PaymentMethodOnline, StatusCancelled, ErrOrderCancelled},
		{"already paid", PaymentMethodOnline, StatusPaid, ErrInvalidTransition},
		{"shipped", PaymentMethodOnline, StatusShipped, ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, eventStore := newTestOrderService()
			seedOrder(t, eventStore, "order-1", tt.method, tt.status)
			_, err := service.OpenPaymentSession(context.Background(), "order-1", PaymentSession{Reference: "r"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_ConfirmPayment_Idempotent(t *testing.T) {
	service, eventStore := newTestOrderService()
	seedOrder(t, eventStore, "order-1", PaymentMethodOnline, StatusPaymentPending)
	ctx := context.Background()

	first, err := service.ConfirmPayment(ctx, "order-1", "prov_1", "pay_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, first.Status)
	assert.Equal(t, PaymentStatusPaid, first.PaymentStatus)

	second, err := service.ConfirmPayment(ctx, "order-1", "prov_1", "pay_1")
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
	assert.Len(t, eventStore.AppendCalls, 1)
}

func TestService_ConfirmPayment_CancelledIsSticky(t *testing.T) {
	service, eventStore := newTestOrderService()
	seedOrder(t, eventStore, "order-1", PaymentMethodOnline, StatusCancelled)

	order, err := service.ConfirmPayment(context.Background(), "order-1", "prov_1", "pay_1")

	assert.ErrorIs(t, err, ErrOrderCancelled)
	assert.Equal(t, StatusCancelled, order.Status)
	assert.Empty(t, eventStore.AppendCalls)
}

func TestService_AbandonPayment_KeepsPaymentPending(t *testing.T) {
	service, eventStore := newTestOrderService()
	seedOrder(t, eventStore, "order-1", PaymentMethodOnline, StatusPaymentPending)

	order, err := service.AbandonPayment(context.Background(), "order-1", AbandonGatewayFailure)

	require.NoError(t, err)
	assert.Equal(t, StatusPaymentPending, order.Status)
	assert.Equal(t, PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, AbandonGatewayFailure, eventStore.AppendCalls[0].Data.(PaymentAbandoned).Reason)
}

// ============================================
// Hide Tests
// ============================================

func TestService_Hide(t *testing.T) {
	service, eventStore := newTestOrderService()
	seedOrder(t, eventStore, "order-1", PaymentMethodCOD, StatusDelivered)
	ctx := context.Background()

	_, err := service.Hide(ctx, "order-1", Actor{ID: "user-999", Role: RoleCustomer})
	assert.ErrorIs(t, err, ErrForbidden)

	order, err := service.Hide(ctx, "order-1", customer)
	require.NoError(t, err)
	assert.True(t, order.HiddenByCustomer)
	assert.Equal(t, StatusDelivered, order.Status)

	_, err = service.Hide(ctx, "order-1", customer)
	require.NoError(t, err)
	assert.Len(t, eventStore.AppendCalls, 1)
}

// ============================================
// Snapshot Tests
// ============================================

func TestService_SnapshotEveryTenEvents(t *testing.T) {
	service, eventStore := newTestOrderService()
	seedOrder(t, eventStore, "order-1", PaymentMethodOnline, StatusCreated)
	ctx := context.Background()

	// Each open/abandon pair adds two events.
	for i := 0; i < 5; i++ {
		_, err := service.OpenPaymentSession(ctx, "order-1", PaymentSession{Reference: fmt.Sprintf("r%d", i)})
		require.NoError(t, err)
		if i < 4 {
			_, err = service.AbandonPayment(ctx, "order-1", AbandonDismissed)
			require.NoError(t, err)
		}
	}

	require.Len(t, eventStore.SaveSnapshotCalls, 1)
	assert.Equal(t, 10, eventStore.SaveSnapshotCalls[0].Version)

	order, err := service.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 10, order.Version)
	assert.Equal(t, 5, order.PaymentAttempts)
	assert.Equal(t, StatusPaymentPending, order.Status)
}

func TestOrder_ApplyEvent_NormalizesLegacyStatus(t *testing.T) {
	eventStore := mocks.NewMockEventStore()
	require.NoError(t, eventStore.AddEvent("order-1", AggregateType, EventOrderPlaced, OrderPlaced{OrderID: "order-1"}))
	require.NoError(t, eventStore.AddEvent("order-1", AggregateType, EventOrderStatusChanged, map[string]string{
		"order_id": "order-1", "to": "processing",
	}))
	service := NewService(eventStore)

	order, err := service.Get(context.Background(), "order-1")

	require.NoError(t, err)
	assert.Equal(t, StatusAdminConfirmed, order.Status)
}
