package store

import (
	"context"
	"time"
)

// timeoutStore bounds every remote call with a deadline.
type timeoutStore struct {
	next    DocumentStore
	timeout time.Duration
}

// WithTimeout wraps ds so each call carries a deadline of d. A zero or
// negative d returns ds unchanged.
func WithTimeout(ds DocumentStore, d time.Duration) DocumentStore {
	if d <= 0 {
		return ds
	}
	return &timeoutStore{next: ds, timeout: d}
}

func (s *timeoutStore) Get(ctx context.Context, collection, id string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Get(ctx, collection, id)
}

func (s *timeoutStore) Set(ctx context.Context, collection, id string, doc Document) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Set(ctx, collection, id, doc)
}

func (s *timeoutStore) Update(ctx context.Context, collection, id string, fields Document) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Update(ctx, collection, id, fields)
}

func (s *timeoutStore) AtomicAdjust(ctx context.Context, collection, id, field string, delta int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.AtomicAdjust(ctx, collection, id, field, delta)
}

func (s *timeoutStore) Delete(ctx context.Context, collection, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Delete(ctx, collection, id)
}

func (s *timeoutStore) Take(ctx context.Context, collection, id string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Take(ctx, collection, id)
}

func (s *timeoutStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Query(ctx, collection, q)
}

// Subscribe is long-lived and carries no deadline.
func (s *timeoutStore) Subscribe(ctx context.Context, collection, id string, fn SnapshotFunc) (func(), error) {
	return s.next.Subscribe(ctx, collection, id, fn)
}
