package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process DocumentStore. It backs local development and
// tests; all adjustments are serialized by a single mutex.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Document // collection -> id -> document
	feed *Feed
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]Document),
		feed: NewFeed(),
	}
}

// Get returns a copy of the stored document
func (ms *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	doc, ok := ms.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return Clone(doc)
}

// Set replaces the document
func (ms *MemoryStore) Set(ctx context.Context, collection, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored, err := Clone(doc)
	if err != nil {
		return err
	}
	if stored == nil {
		stored = Document{}
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.data[collection] == nil {
		ms.data[collection] = make(map[string]Document)
	}
	ms.data[collection][id] = stored
	ms.feed.Publish(collection, id, stored)
	return nil
}

// Update merges fields into an existing document
func (ms *MemoryStore) Update(ctx context.Context, collection, id string, fields Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	patch, err := Clone(fields)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	current, ok := ms.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range patch {
		current[k] = v
	}
	ms.feed.Publish(collection, id, current)
	return nil
}

// AtomicAdjust adds delta to a numeric field under the store lock
func (ms *MemoryStore) AtomicAdjust(ctx context.Context, collection, id, field string, delta int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	current, ok := ms.data[collection][id]
	if !ok {
		return 0, ErrNotFound
	}
	value := current.Int(field)
	next := value + delta
	if delta < 0 && next < 0 {
		return value, ErrInsufficient
	}
	current[field] = float64(next)
	ms.feed.Publish(collection, id, current)
	return next, nil
}

// Delete removes the document; deleting a missing document is not an error
func (ms *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.data[collection][id]; !ok {
		return nil
	}
	delete(ms.data[collection], id)
	ms.feed.Publish(collection, id, nil)
	return nil
}

// Take removes the document under the store lock
func (ms *MemoryStore) Take(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	doc, ok := ms.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(ms.data[collection], id)
	ms.feed.Publish(collection, id, nil)
	return doc, nil
}

// Query scans the collection
func (ms *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	ms.mu.RLock()
	docs := make([]Document, 0, len(ms.data[collection]))
	for _, doc := range ms.data[collection] {
		cp, err := Clone(doc)
		if err != nil {
			ms.mu.RUnlock()
			return nil, err
		}
		docs = append(docs, cp)
	}
	ms.mu.RUnlock()

	return q.Apply(docs), nil
}

// Subscribe delivers the current document and then every change
func (ms *MemoryStore) Subscribe(ctx context.Context, collection, id string, fn SnapshotFunc) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var initial Document
	if doc, ok := ms.data[collection][id]; ok {
		cp, err := Clone(doc)
		if err != nil {
			return nil, err
		}
		initial = cp
	}
	return ms.feed.Subscribe(collection, id, initial, fn), nil
}

// Count returns the number of documents in a collection
func (ms *MemoryStore) Count(collection string) int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.data[collection])
}
