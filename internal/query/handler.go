package query

import (
	"sort"

	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/domain/order"
	"github.com/example/grocery-orders/internal/infrastructure/store"
)

type Handler struct {
	readStore store.ReadStoreInterface
	logger    *zap.Logger
}

func NewHandler(readStore store.ReadStoreInterface, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{readStore: readStore, logger: logger}
}

// GetOrder returns the order with its status normalized to the canonical set.
func (h *Handler) GetOrder(id string) (*OrderReadModel, bool) {
	data, ok, err := h.readStore.Get(store.CollectionOrders, id)
	if err != nil {
		h.logger.Error("get order", zap.String("order_id", id), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return normalized(data.(*OrderReadModel)), true
}

// ListOrdersByUser returns the user's visible order history, newest first.
func (h *Handler) ListOrdersByUser(userID string) []*OrderReadModel {
	return h.list(func(o *OrderReadModel) bool {
		return o.UserID == userID && !o.HiddenByCustomer
	})
}

// ListAllOrders returns every order, newest first. A non-empty statusFilter
// accepts canonical or legacy names; an unknown name matches nothing.
func (h *Handler) ListAllOrders(statusFilter string) []*OrderReadModel {
	if statusFilter == "" {
		return h.list(func(*OrderReadModel) bool { return true })
	}
	want, err := order.ParseStatus(statusFilter)
	if err != nil {
		return []*OrderReadModel{}
	}
	return h.list(func(o *OrderReadModel) bool {
		return o.Status == string(want)
	})
}

// CountByStatus tallies all orders per canonical status.
func (h *Handler) CountByStatus() map[order.Status]int {
	counts := make(map[order.Status]int, len(order.AllStatuses))
	for _, s := range order.AllStatuses {
		counts[s] = 0
	}
	for _, o := range h.list(func(*OrderReadModel) bool { return true }) {
		counts[order.Status(o.Status)]++
	}
	return counts
}

func (h *Handler) list(keep func(*OrderReadModel) bool) []*OrderReadModel {
	items, err := h.readStore.GetAll(store.CollectionOrders)
	if err != nil {
		h.logger.Error("list orders", zap.Error(err))
		return nil
	}
	orders := make([]*OrderReadModel, 0, len(items))
	for _, item := range items {
		o := normalized(item.(*OrderReadModel))
		if keep(o) {
			orders = append(orders, o)
		}
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders
}

// normalized returns a copy whose status is canonical. Stored documents
// written before the status rename may still carry legacy names.
func normalized(o *OrderReadModel) *OrderReadModel {
	cp := *o
	cp.Status = string(order.NormalizeStatus(o.Status))
	return &cp
}
