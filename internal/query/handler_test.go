package query

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/grocery-orders/internal/domain/order"
	"github.com/example/grocery-orders/internal/infrastructure/store"
	"github.com/example/grocery-orders/internal/infrastructure/store/mocks"
)

func newTestQueryHandler() (*Handler, *mocks.MockReadStore) {
	readStore := mocks.NewMockReadStore()
	handler := NewHandler(readStore, nil)
	return handler, readStore
}

func seedOrders(readStore *mocks.MockReadStore) {
	base := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)
	readStore.SetData(store.CollectionOrders, "o1", &OrderReadModel{ID: "o1", UserID: "user-1", Status: "pending", CreatedAt: base})
	readStore.SetData(store.CollectionOrders, "o2", &OrderReadModel{ID: "o2", UserID: "user-1", Status: "SHIPPED", CreatedAt: base.Add(2 * time.Hour)})
	readStore.SetData(store.CollectionOrders, "o3", &OrderReadModel{ID: "o3", UserID: "user-1", Status: "CANCELLED", HiddenByCustomer: true, CreatedAt: base.Add(time.Hour)})
	readStore.SetData(store.CollectionOrders, "o4", &OrderReadModel{ID: "o4", UserID: "user-2", Status: "processing", CreatedAt: base.Add(3 * time.Hour)})
}

func ids(orders []*OrderReadModel) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func TestHandler_GetOrder_NormalizesLegacyStatus(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedOrders(readStore)

	o, found := handler.GetOrder("o4")

	require.True(t, found)
	assert.Equal(t, string(order.StatusAdminConfirmed), o.Status)

	// the stored document is left untouched
	raw, _ := readStore.GetData(store.CollectionOrders, "o4")
	assert.Equal(t, "processing", raw.(*OrderReadModel).Status)
}

func TestHandler_GetOrder_NotFound(t *testing.T) {
	handler, _ := newTestQueryHandler()

	o, found := handler.GetOrder("missing")

	assert.False(t, found)
	assert.Nil(t, o)
}

func TestHandler_GetOrder_StoreError(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	readStore.Err = errors.New("db down")

	_, found := handler.GetOrder("o1")

	assert.False(t, found)
}

func TestHandler_ListOrdersByUser_ExcludesHidden(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedOrders(readStore)

	orders := handler.ListOrdersByUser("user-1")

	assert.Equal(t, []string{"o2", "o1"}, ids(orders))
	assert.Equal(t, string(order.StatusCreated), orders[1].Status)
}

func TestHandler_ListAllOrders(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedOrders(readStore)

	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{"no filter includes hidden", "", []string{"o4", "o2", "o3", "o1"}},
		{"canonical filter", "SHIPPED", []string{"o2"}},
		{"legacy filter", "confirmed", []string{"o4"}},
		{"legacy stored value matches canonical filter", "CREATED", []string{"o1"}},
		{"unknown filter", "LOST", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(handler.ListAllOrders(tt.filter)))
		})
	}
}

func TestHandler_CountByStatus(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedOrders(readStore)

	counts := handler.CountByStatus()

	assert.Len(t, counts, len(order.AllStatuses))
	assert.Equal(t, 1, counts[order.StatusCreated])
	assert.Equal(t, 1, counts[order.StatusAdminConfirmed])
	assert.Equal(t, 1, counts[order.StatusShipped])
	assert.Equal(t, 1, counts[order.StatusCancelled])
	assert.Equal(t, 0, counts[order.StatusPaid])
}
