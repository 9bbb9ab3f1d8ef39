package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/example/grocery-orders/internal/readmodel"
)

// ErrUnknownCollection is returned for collections the PostgreSQL read store does not persist
var ErrUnknownCollection = errors.New("store: unknown read collection")

// PostgresReadStore implements ReadStoreInterface using PostgreSQL.
// Orders are stored as a JSONB document plus the columns used for filtering.
type PostgresReadStore struct {
	db *sql.DB
	mu sync.Mutex // serializes read-modify-write in Update
}

// NewPostgresReadStore creates a new PostgreSQL-based read store
func NewPostgresReadStore(db *sql.DB) *PostgresReadStore {
	return &PostgresReadStore{db: db}
}

// Set stores a read model
func (rs *PostgresReadStore) Set(collection, id string, data any) error {
	if collection != CollectionOrders {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	order, ok := data.(*readmodel.OrderReadModel)
	if !ok {
		return fmt.Errorf("store: unexpected order read model type %T", data)
	}
	return rs.setOrder(id, order)
}

func (rs *PostgresReadStore) setOrder(id string, o *readmodel.OrderReadModel) error {
	doc, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = rs.db.Exec(
		`INSERT INTO read_orders (id, order_number, user_id, status, payment_status, payment_method,
		                          hidden_by_customer, document, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		     status = EXCLUDED.status,
		     payment_status = EXCLUDED.payment_status,
		     hidden_by_customer = EXCLUDED.hidden_by_customer,
		     document = EXCLUDED.document,
		     updated_at = EXCLUDED.updated_at`,
		id, o.OrderNumber, o.UserID, o.Status, o.PaymentStatus, o.PaymentMethod,
		o.HiddenByCustomer, doc, o.CreatedAt, o.UpdatedAt,
	)
	return err
}

// Get retrieves a read model by id
func (rs *PostgresReadStore) Get(collection, id string) (any, bool, error) {
	if collection != CollectionOrders {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return rs.getOrder(id)
}

func (rs *PostgresReadStore) getOrder(id string) (*readmodel.OrderReadModel, bool, error) {
	var doc []byte
	err := rs.db.QueryRow(`SELECT document FROM read_orders WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var o readmodel.OrderReadModel
	if err := json.Unmarshal(doc, &o); err != nil {
		return nil, false, fmt.Errorf("decode order %s: %w", id, err)
	}
	return &o, true, nil
}

// GetAll retrieves all items in a collection, newest first
func (rs *PostgresReadStore) GetAll(collection string) ([]any, error) {
	if collection != CollectionOrders {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	rows, err := rs.db.Query(`SELECT document FROM read_orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var o readmodel.OrderReadModel
		if err := json.Unmarshal(doc, &o); err != nil {
			return nil, err
		}
		items = append(items, &o)
	}
	return items, rows.Err()
}

// Delete removes a read model
func (rs *PostgresReadStore) Delete(collection, id string) error {
	if collection != CollectionOrders {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	_, err := rs.db.Exec(`DELETE FROM read_orders WHERE id = $1`, id)
	return err
}

// Update serialises read-modify-write cycles within this process. Writers in
// other processes are kept apart by the version gate in the projector.
func (rs *PostgresReadStore) Update(collection, id string, updateFn func(current any) any) (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	current, ok, err := rs.Get(collection, id)
	if err != nil || !ok {
		return false, err
	}
	next := updateFn(current)
	if next == nil {
		return true, nil
	}
	if err := rs.Set(collection, id, next); err != nil {
		return false, err
	}
	return true, nil
}
