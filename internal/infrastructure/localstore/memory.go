package localstore

import (
	"sync"

	"github.com/example/poster-shop/internal/session"
)

// MemoryStorage keeps values in process memory
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ session.Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Len returns the number of stored keys
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// Unavailable is storage that refuses every call
type Unavailable struct{}

var _ session.Storage = Unavailable{}

func (Unavailable) Get(key string) (string, bool, error) { return "", false, session.ErrUnavailable }
func (Unavailable) Set(key, value string) error          { return session.ErrUnavailable }
func (Unavailable) Remove(key string) error              { return session.ErrUnavailable }
