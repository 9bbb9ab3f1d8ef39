package store

// CollectionOrders holds *readmodel.OrderReadModel values keyed by order id.
const CollectionOrders = "orders"

// ReadStoreInterface is the query side's key/value view of the projections.
//
// Update runs updateFn against the stored value under the store's lock. A nil
// result leaves the stored value untouched. The boolean reports whether the
// key existed.
type ReadStoreInterface interface {
	Set(collection, id string, data any) error
	Get(collection, id string) (any, bool, error)
	GetAll(collection string) ([]any, error)
	Delete(collection, id string) error
	Update(collection, id string, updateFn func(current any) any) (bool, error)
}
