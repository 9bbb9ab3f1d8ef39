package payment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/grocery-orders/internal/domain/order"
	"github.com/example/grocery-orders/internal/infrastructure/store/mocks"
)

var owner = order.Actor{ID: "user-1", Role: order.RoleCustomer}

type fakeGateway struct {
	mu         sync.Mutex
	createErr  error
	verifyOK   bool
	verifyErr  error
	sessions   int
	verifies   int
	cancelled  []string
	lastAmount float64
	onCreate   func()
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	if g.onCreate != nil {
		g.onCreate()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return Session{}, g.createErr
	}
	g.sessions++
	g.lastAmount = req.Amount
	return Session{Provider: "fake", ProviderOrderID: "prov_" + string(rune('0'+g.sessions))}, nil
}

func (g *fakeGateway) Verify(_ context.Context, _ Callback) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifies++
	return g.verifyOK, g.verifyErr
}

func (g *fakeGateway) NotifyCancelled(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, id)
	return nil
}

func setup(t *testing.T, method order.PaymentMethod) (*Coordinator, *order.Service, *fakeGateway, string) {
	t.Helper()
	orders := order.NewService(mocks.NewMockEventStore())
	placed, err := orders.Place(context.Background(), order.PlaceOrder{
		UserID:               "user-1",
		Items:                []order.LineItem{{ProductID: "p1", Name: "Milk", UnitPrice: 30, Quantity: 10, TaxInclusive: true}},
		PaymentMethod:        method,
		DeliveryChargeAmount: 60,
	})
	require.NoError(t, err)

	gw := &fakeGateway{verifyOK: true}
	return NewCoordinator(orders, gw, "INR", nil), orders, gw, placed.ID
}

func TestCoordinator_InitPayment(t *testing.T) {
	c, orders, gw, id := setup(t, order.PaymentMethodOnline)

	checkout, err := c.InitPayment(context.Background(), id, owner)

	require.NoError(t, err)
	assert.Regexp(t, `^rcpt_[0-9A-Z]{26}$`, checkout.Reference)
	assert.Equal(t, "prov_1", checkout.ProviderOrderID)
	assert.Equal(t, 360.0, checkout.Amount)
	assert.Equal(t, 360.0, gw.lastAmount)
	assert.Equal(t, 1, checkout.Attempt)

	o, err := orders.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaymentPending, o.Status)
	assert.Equal(t, checkout.Reference, o.PaymentReference)
}

func TestCoordinator_InitPayment_GatewayFailureLeavesOrderCancellable(t *testing.T) {
	c, orders, gw, id := setup(t, order.PaymentMethodOnline)
	gw.createErr = errors.New("503 from gateway")

	_, err := c.InitPayment(context.Background(), id, owner)

	assert.ErrorIs(t, err, ErrGatewayInit)
	o, _ := orders.Get(context.Background(), id)
	assert.Equal(t, order.StatusCreated, o.Status)

	cancelled, err := orders.Transition(context.Background(), id, order.StatusCancelled, owner)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
}

func TestCoordinator_InitPayment_Rejections(t *testing.T) {
	t.Run("cod", func(t *testing.T) {
		c, _, _, id := setup(t, order.PaymentMethodCOD)
		_, err := c.InitPayment(context.Background(), id, owner)
		assert.ErrorIs(t, err, order.ErrNotOnlinePayment)
	})
	t.Run("not owner", func(t *testing.T) {
		c, _, gw, id := setup(t, order.PaymentMethodOnline)
		_, err := c.InitPayment(context.Background(), id, order.Actor{ID: "user-2", Role: order.RoleCustomer})
		assert.ErrorIs(t, err, order.ErrForbidden)
		assert.Zero(t, gw.sessions)
	})
	t.Run("cancelled", func(t *testing.T) {
		c, orders, gw, id := setup(t, order.PaymentMethodOnline)
		_, err := orders.Transition(context.Background(), id, order.StatusCancelled, owner)
		require.NoError(t, err)
		_, err = c.InitPayment(context.Background(), id, owner)
		assert.ErrorIs(t, err, ErrPaymentConflict)
		assert.Zero(t, gw.sessions)
	})
}

func TestCoordinator_RetryOpensFreshSessionOnSameOrder(t *testing.T) {
	c, orders, gw, id := setup(t, order.PaymentMethodOnline)
	ctx := context.Background()

	first, err := c.InitPayment(ctx, id, owner)
	require.NoError(t, err)
	_, err = c.CancelPayment(ctx, id, owner)
	require.NoError(t, err)
	second, err := c.InitPayment(ctx, id, owner)
	require.NoError(t, err)

	assert.NotEqual(t, first.Reference, second.Reference)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 2, second.Attempt)
	assert.Equal(t, []string{"prov_1"}, gw.cancelled)

	o, _ := orders.Get(ctx, id)
	assert.Equal(t, "prov_2", o.ProviderOrderID)
}

func TestCoordinator_ConfirmPayment(t *testing.T) {
	c, _, gw, id := setup(t, order.PaymentMethodOnline)
	ctx := context.Background()
	checkout, err := c.InitPayment(ctx, id, owner)
	require.NoError(t, err)
	cb := Callback{ProviderOrderID: checkout.ProviderOrderID, PaymentID: "pay_1", Signature: "sig"}

	paid, err := c.ConfirmPayment(ctx, id, cb)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, paid.Status)
	assert.Equal(t, order.PaymentStatusPaid, paid.PaymentStatus)

	again, err := c.ConfirmPayment(ctx, id, cb)
	require.NoError(t, err)
	assert.Equal(t, paid.Version, again.Version)
	assert.Equal(t, paid.UpdatedAt, again.UpdatedAt)
	assert.Equal(t, 2, gw.verifies)
}

func TestCoordinator_ConfirmPayment_VerificationFailed(t *testing.T) {
	c, orders, gw, id := setup(t, order.PaymentMethodOnline)
	ctx := context.Background()
	checkout, err := c.InitPayment(ctx, id, owner)
	require.NoError(t, err)
	gw.verifyOK = false

	_, err = c.ConfirmPayment(ctx, id, Callback{ProviderOrderID: checkout.ProviderOrderID, PaymentID: "pay_1", Signature: "forged"})

	assert.ErrorIs(t, err, ErrVerificationFailed)
	o, _ := orders.Get(ctx, id)
	assert.Equal(t, order.StatusPaymentPending, o.Status)
	assert.Equal(t, order.PaymentStatusUnpaid, o.PaymentStatus)
}

func TestCoordinator_InitPayment_CancelledMeanwhileReleasesSession(t *testing.T) {
	c, orders, gw, id := setup(t, order.PaymentMethodOnline)
	ctx := context.Background()
	gw.onCreate = func() {
		_, err := orders.Transition(ctx, id, order.StatusCancelled, owner)
		require.NoError(t, err)
	}

	_, err := c.InitPayment(ctx, id, owner)

	assert.ErrorIs(t, err, ErrPaymentConflict)
	assert.Equal(t, []string{"prov_1"}, gw.cancelled)
}

func TestCoordinator_ConfirmPayment_EarlierSessionStillCredited(t *testing.T) {
	c, orders, gw, id := setup(t, order.PaymentMethodOnline)
	ctx := context.Background()
	first, err := c.InitPayment(ctx, id, owner)
	require.NoError(t, err)
	second, err := c.InitPayment(ctx, id, owner)
	require.NoError(t, err)
	require.NotEqual(t, first.ProviderOrderID, second.ProviderOrderID)

	paid, err := c.ConfirmPayment(ctx, id, Callback{ProviderOrderID: first.ProviderOrderID, PaymentID: "pay_1", Signature: "sig"})

	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, paid.Status)
	assert.Equal(t, 1, gw.verifies)

	o, err := orders.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.ProviderOrderID, o.ProviderOrderID)
	assert.Equal(t, "pay_1", o.PaymentID)
}

func TestCoordinator_ConfirmPayment_UnknownSessionRejectedWithoutGatewayCall(t *testing.T) {
	c, _, gw, id := setup(t, order.PaymentMethodOnline)
	ctx := context.Background()
	_, err := c.InitPayment(ctx, id, owner)
	require.NoError(t, err)

	_, err = c.ConfirmPayment(ctx, id, Callback{ProviderOrderID: "prov_other", PaymentID: "pay_1", Signature: "sig"})

	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Zero(t, gw.verifies)
}

func TestCoordinator_ConfirmPayment_GatewayDown(t *testing.T) {
	c, _, gw, id := setup(t, order.PaymentMethodOnline)
	ctx := context.Background()
	checkout, err := c.InitPayment(ctx, id, owner)
	require.NoError(t, err)
	gw.verifyErr = errors.New("timeout")

	_, err = c.ConfirmPayment(ctx, id, Callback{ProviderOrderID: checkout.ProviderOrderID, PaymentID: "p", Signature: "s"})

	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestCoordinator_LatePaymentAfterCancelIsConflict(t *testing.T) {
	c, orders, _, id := setup(t, order.PaymentMethodOnline)
	ctx := context.Background()
	checkout, err := c.InitPayment(ctx, id, owner)
	require.NoError(t, err)
	_, err = orders.Transition(ctx, id, order.StatusCancelled, owner)
	require.NoError(t, err)

	o, err := c.ConfirmPayment(ctx, id, Callback{ProviderOrderID: checkout.ProviderOrderID, PaymentID: "pay_1", Signature: "sig"})

	assert.ErrorIs(t, err, ErrPaymentConflict)
	require.NotNil(t, o)
	assert.Equal(t, order.StatusCancelled, o.Status)
}

func TestCoordinator_HandleFailure(t *testing.T) {
	c, _, gw, id := setup(t, order.PaymentMethodOnline)
	ctx := context.Background()
	checkout, err := c.InitPayment(ctx, id, owner)
	require.NoError(t, err)

	_, err = c.HandleFailure(ctx, id, order.Actor{ID: "user-2", Role: order.RoleCustomer}, FailureCallback{ProviderOrderID: checkout.ProviderOrderID, Code: "BAD_REQUEST_ERROR"})
	assert.ErrorIs(t, err, order.ErrForbidden)
	assert.Empty(t, gw.cancelled)

	o, err := c.HandleFailure(ctx, id, owner, FailureCallback{ProviderOrderID: checkout.ProviderOrderID, Code: "BAD_REQUEST_ERROR", Description: "card declined"})

	require.NoError(t, err)
	assert.Equal(t, order.StatusPaymentPending, o.Status)
	assert.Equal(t, order.PaymentStatusFailed, o.PaymentStatus)
	assert.Equal(t, []string{checkout.ProviderOrderID}, gw.cancelled)
}

func TestCoordinator_CancelAfterPaidIsNoop(t *testing.T) {
	c, _, gw, id := setup(t, order.PaymentMethodOnline)
	ctx := context.Background()
	checkout, err := c.InitPayment(ctx, id, owner)
	require.NoError(t, err)
	_, err = c.ConfirmPayment(ctx, id, Callback{ProviderOrderID: checkout.ProviderOrderID, PaymentID: "pay_1", Signature: "sig"})
	require.NoError(t, err)

	o, err := c.CancelPayment(ctx, id, owner)

	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatusPaid, o.PaymentStatus)
	assert.Empty(t, gw.cancelled)
}
