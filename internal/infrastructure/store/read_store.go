package store

import "sync"

// ReadStore keeps projections in process memory. It backs the API when no
// Postgres read database is configured.
type ReadStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]any
}

func NewReadStore() *ReadStore {
	return &ReadStore{collections: make(map[string]map[string]any)}
}

func (rs *ReadStore) Set(collection, id string, data any) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.bucket(collection)[id] = data
	return nil
}

func (rs *ReadStore) Get(collection, id string) (any, bool, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	data, ok := rs.collections[collection][id]
	return data, ok, nil
}

func (rs *ReadStore) GetAll(collection string) ([]any, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	items := make([]any, 0, len(rs.collections[collection]))
	for _, item := range rs.collections[collection] {
		items = append(items, item)
	}
	return items, nil
}

func (rs *ReadStore) Delete(collection, id string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.collections[collection], id)
	return nil
}

func (rs *ReadStore) Update(collection, id string, updateFn func(current any) any) (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	current, ok := rs.collections[collection][id]
	if !ok {
		return false, nil
	}
	if next := updateFn(current); next != nil {
		rs.collections[collection][id] = next
	}
	return true, nil
}

// bucket returns the named collection, creating it. Callers hold mu.
func (rs *ReadStore) bucket(name string) map[string]any {
	b, ok := rs.collections[name]
	if !ok {
		b = make(map[string]any)
		rs.collections[name] = b
	}
	return b
}
