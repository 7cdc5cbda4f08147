package mocks

import (
	"context"
	"sync"

	"github.com/example/poster-shop/internal/infrastructure/store"
)

// MockDocumentStore wraps a MemoryStore, recording writes and letting tests
// inject failures per operation.
type MockDocumentStore struct {
	*store.MemoryStore

	mu sync.Mutex

	// For tracking calls in tests
	SetCalls    []WriteCall
	UpdateCalls []WriteCall
	DeleteCalls []WriteCall
	AdjustCalls []AdjustCall

	GetErr    error
	SetErr    error
	UpdateErr error
	DeleteErr error
	AdjustErr error
	QueryErr  error

	// AdjustHook runs before every AtomicAdjust; a non-nil error is returned
	// without touching the store.
	AdjustHook func(collection, id, field string, delta int) error
}

// WriteCall records parameters passed to Set, Update and Delete
type WriteCall struct {
	Collection string
	ID         string
	Doc        store.Document
}

// AdjustCall records parameters passed to AtomicAdjust
type AdjustCall struct {
	Collection string
	ID         string
	Field      string
	Delta      int
}

// NewMockDocumentStore creates a new MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{MemoryStore: store.NewMemoryStore()}
}

// Seed writes a document bypassing call recording and injected errors
func (m *MockDocumentStore) Seed(collection, id string, doc store.Document) {
	_ = m.MemoryStore.Set(context.Background(), collection, id, doc)
}

// Reset clears recorded calls and injected errors
func (m *MockDocumentStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCalls, m.UpdateCalls, m.DeleteCalls, m.AdjustCalls = nil, nil, nil, nil
	m.GetErr, m.SetErr, m.UpdateErr, m.DeleteErr, m.AdjustErr, m.QueryErr = nil, nil, nil, nil, nil, nil
	m.AdjustHook = nil
}

func (m *MockDocumentStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	m.mu.Lock()
	err := m.GetErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.MemoryStore.Get(ctx, collection, id)
}

func (m *MockDocumentStore) Set(ctx context.Context, collection, id string, doc store.Document) error {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, WriteCall{Collection: collection, ID: id, Doc: doc})
	err := m.SetErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.MemoryStore.Set(ctx, collection, id, doc)
}

func (m *MockDocumentStore) Update(ctx context.Context, collection, id string, fields store.Document) error {
	m.mu.Lock()
	m.UpdateCalls = append(m.UpdateCalls, WriteCall{Collection: collection, ID: id, Doc: fields})
	err := m.UpdateErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.MemoryStore.Update(ctx, collection, id, fields)
}

func (m *MockDocumentStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, WriteCall{Collection: collection, ID: id})
	err := m.DeleteErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.MemoryStore.Delete(ctx, collection, id)
}

func (m *MockDocumentStore) Take(ctx context.Context, collection, id string) (store.Document, error) {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, WriteCall{Collection: collection, ID: id})
	err := m.DeleteErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.MemoryStore.Take(ctx, collection, id)
}

func (m *MockDocumentStore) AtomicAdjust(ctx context.Context, collection, id, field string, delta int) (int, error) {
	m.mu.Lock()
	m.AdjustCalls = append(m.AdjustCalls, AdjustCall{Collection: collection, ID: id, Field: field, Delta: delta})
	err := m.AdjustErr
	hook := m.AdjustHook
	m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if hook != nil {
		if err := hook(collection, id, field, delta); err != nil {
			return 0, err
		}
	}
	return m.MemoryStore.AtomicAdjust(ctx, collection, id, field, delta)
}

func (m *MockDocumentStore) Query(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	m.mu.Lock()
	err := m.QueryErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.MemoryStore.Query(ctx, collection, q)
}

// SetSetErr swaps the injected Set error while other goroutines may be writing
func (m *MockDocumentStore) SetSetErr(err error) {
	m.mu.Lock()
	m.SetErr = err
	m.mu.Unlock()
}

// SetUpdateErr swaps the injected Update error while other goroutines may be writing
func (m *MockDocumentStore) SetUpdateErr(err error) {
	m.mu.Lock()
	m.UpdateErr = err
	m.mu.Unlock()
}

// SetAdjustErr swaps the injected AtomicAdjust error
func (m *MockDocumentStore) SetAdjustErr(err error) {
	m.mu.Lock()
	m.AdjustErr = err
	m.mu.Unlock()
}

// Adjustments returns a copy of the recorded AtomicAdjust calls
func (m *MockDocumentStore) Adjustments() []AdjustCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AdjustCall(nil), m.AdjustCalls...)
}

// ReleasedUnits sums the positive deltas recorded for one product
func (m *MockDocumentStore) ReleasedUnits(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, c := range m.AdjustCalls {
		if c.ID == productID && c.Delta > 0 {
			total += c.Delta
		}
	}
	return total
}

var _ store.DocumentStore = (*MockDocumentStore)(nil)
