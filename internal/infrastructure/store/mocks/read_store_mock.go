package mocks

import (
	"sync"

	"github.com/example/grocery-orders/internal/infrastructure/store"
)

// Call is one recorded write against MockReadStore.
type Call struct {
	Collection string
	ID         string
	Data       any
}

// MockReadStore wraps the in-memory read store, records writes and can be
// told to fail every operation through Err.
type MockReadStore struct {
	inner *store.ReadStore

	mu          sync.Mutex
	SetCalls    []Call
	UpdateCalls []Call
	Err         error
}

func NewMockReadStore() *MockReadStore {
	return &MockReadStore{inner: store.NewReadStore()}
}

func (m *MockReadStore) record(calls *[]Call, c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*calls = append(*calls, c)
	return m.Err
}

func (m *MockReadStore) failure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

func (m *MockReadStore) Set(collection, id string, data any) error {
	if err := m.record(&m.SetCalls, Call{Collection: collection, ID: id, Data: data}); err != nil {
		return err
	}
	return m.inner.Set(collection, id, data)
}

func (m *MockReadStore) Get(collection, id string) (any, bool, error) {
	if err := m.failure(); err != nil {
		return nil, false, err
	}
	return m.inner.Get(collection, id)
}

func (m *MockReadStore) GetAll(collection string) ([]any, error) {
	if err := m.failure(); err != nil {
		return nil, err
	}
	return m.inner.GetAll(collection)
}

func (m *MockReadStore) Delete(collection, id string) error {
	if err := m.failure(); err != nil {
		return err
	}
	return m.inner.Delete(collection, id)
}

func (m *MockReadStore) Update(collection, id string, updateFn func(current any) any) (bool, error) {
	if err := m.record(&m.UpdateCalls, Call{Collection: collection, ID: id}); err != nil {
		return false, err
	}
	return m.inner.Update(collection, id, updateFn)
}

// SetData seeds a value without recording a call.
func (m *MockReadStore) SetData(collection, id string, data any) {
	_ = m.inner.Set(collection, id, data)
}

// GetData reads a value without recording a call or honouring Err.
func (m *MockReadStore) GetData(collection, id string) (any, bool) {
	data, ok, _ := m.inner.Get(collection, id)
	return data, ok
}
