package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/poster-shop/internal/domain/cart"
	"github.com/example/poster-shop/internal/domain/inventory"
	"github.com/example/poster-shop/internal/domain/product"
	"github.com/example/poster-shop/internal/domain/saleslog"
	"github.com/example/poster-shop/internal/events"
	"github.com/example/poster-shop/internal/infrastructure/store"
	"github.com/example/poster-shop/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func newTestSweeper() (*Sweeper, *mocks.MockDocumentStore) {
	docs := mocks.NewMockDocumentStore()
	sales := saleslog.NewService(docs, events.Nop{})
	carts := cart.NewService(docs, inventory.NewService(docs, sales), events.Nop{}, time.Hour)
	s := New(carts, time.Minute)
	s.now = func() time.Time { return baseTime }
	return s, docs
}

func seedCart(docs *mocks.MockDocumentStore, sessionID string, expiresAt time.Time, items ...map[string]any) {
	lines := make([]any, 0, len(items))
	for _, item := range items {
		lines = append(lines, item)
	}
	docs.Seed(store.CollectionCarts, sessionID, store.Document{
		"sessionId": sessionID,
		"items":     lines,
		"expiresAt": store.Millis(expiresAt),
	})
}

func line(productID string, quantity int) map[string]any {
	return map[string]any{"productId": productID, "quantity": quantity, "price": 100}
}

func stockOf(t *testing.T, docs *mocks.MockDocumentStore, id string) int {
	t.Helper()
	doc, err := docs.MemoryStore.Get(context.Background(), store.CollectionProducts, id)
	require.NoError(t, err)
	return doc.Int("stock")
}

// ============================================
// SweepExpired Tests
// ============================================

func TestSweeper_SweepExpired_ReleasesAndDeletes(t *testing.T) {
	s, docs := newTestSweeper()
	docs.Seed(store.CollectionProducts, "p1", store.Document{"stock": 3})
	seedCart(docs, "s1", baseTime.Add(-time.Millisecond), line("p1", 2))

	swept, err := s.SweepExpired(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Equal(t, 5, stockOf(t, docs, "p1"))
	assert.Zero(t, docs.Count(store.CollectionCarts))
}

func TestSweeper_SweepExpired_LeavesLiveCarts(t *testing.T) {
	s, docs := newTestSweeper()
	docs.Seed(store.CollectionProducts, "p1", store.Document{"stock": 3})
	seedCart(docs, "expired", baseTime.Add(-time.Minute), line("p1", 1))
	seedCart(docs, "boundary", baseTime, line("p1", 1))
	seedCart(docs, "live", baseTime.Add(time.Second), line("p1", 4))

	swept, err := s.SweepExpired(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, swept)
	assert.Equal(t, 5, stockOf(t, docs, "p1"))
	assert.Equal(t, 1, docs.Count(store.CollectionCarts))
}

func TestSweeper_SweepExpired_ContinuesPastFailures(t *testing.T) {
	s, docs := newTestSweeper()
	docs.Seed(store.CollectionProducts, "p1", store.Document{"stock": 0})
	docs.Seed(store.CollectionProducts, "p2", store.Document{"stock": 0})
	seedCart(docs, "a", baseTime.Add(-time.Minute), line("p1", 1))
	seedCart(docs, "b", baseTime.Add(-time.Minute), line("p2", 1))
	docs.AdjustHook = func(collection, id, field string, delta int) error {
		if id == "p1" {
			return store.Remote("adjust", errors.New("timeout"))
		}
		return nil
	}

	swept, err := s.SweepExpired(context.Background())

	assert.ErrorIs(t, err, store.ErrRemote)
	assert.Equal(t, 1, swept)
	assert.Equal(t, 1, stockOf(t, docs, "p2"))
}

func TestSweeper_SweepExpired_QueryFailure(t *testing.T) {
	s, docs := newTestSweeper()
	docs.QueryErr = errors.New("index missing")

	_, err := s.SweepExpired(context.Background())

	assert.Error(t, err)
}

func TestSweeper_SweepExpired_ProductDeleted(t *testing.T) {
	s, docs := newTestSweeper()
	seedCart(docs, "s1", baseTime.Add(-time.Minute), line("gone", 2))

	swept, err := s.SweepExpired(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Zero(t, docs.Count(store.CollectionCarts))
}

// ============================================
// Concurrent Mutation Tests
// ============================================

func poster(id string) *product.Product {
	return &product.Product{ID: id, Name: "Poster " + id, Type: product.TypePoster, Price: decimal.NewFromInt(100)}
}

func cartLine(t *testing.T, docs *mocks.MockDocumentStore, sessionID, productID string) int {
	t.Helper()
	doc, err := docs.MemoryStore.Get(context.Background(), store.CollectionCarts, sessionID)
	require.NoError(t, err)
	item, ok := cart.FromDocument(doc).Item(productID)
	require.True(t, ok, "cart %s has no %s line", sessionID, productID)
	return item.Quantity
}

func TestSweeper_SweepExpired_AddDuringRelease(t *testing.T) {
	s, docs := newTestSweeper()
	carts := s.carts.(*cart.Service)
	docs.Seed(store.CollectionProducts, "p1", store.Document{"stock": 3})
	docs.Seed(store.CollectionProducts, "p2", store.Document{"stock": 5})
	seedCart(docs, "s1", baseTime.Add(-time.Minute), line("p1", 2))

	var (
		once   sync.Once
		addErr error
	)
	docs.AdjustHook = func(collection, id, field string, delta int) error {
		if id == "p1" && delta > 0 {
			once.Do(func() {
				_, addErr = carts.AddItem(context.Background(), "s1", poster("p2"))
			})
		}
		return nil
	}

	swept, err := s.SweepExpired(context.Background())

	require.NoError(t, err)
	require.NoError(t, addErr)
	assert.Equal(t, 1, swept)
	assert.Equal(t, 5, stockOf(t, docs, "p1"))
	assert.Equal(t, 5, stockOf(t, docs, "p2")+cartLine(t, docs, "s1", "p2"), "the added unit is held by the new cart")
}

// racingCarts runs a mutation between the listing and each expiry
type racingCarts struct {
	*cart.Service
	before func(sessionID string)
}

func (r *racingCarts) Expire(ctx context.Context, sessionID string) error {
	r.before(sessionID)
	return r.Service.Expire(ctx, sessionID)
}

func TestSweeper_SweepExpired_CartRenewedAfterListing(t *testing.T) {
	base, docs := newTestSweeper()
	carts := base.carts.(*cart.Service)
	docs.Seed(store.CollectionProducts, "p1", store.Document{"stock": 3})
	docs.Seed(store.CollectionProducts, "p2", store.Document{"stock": 5})
	seedCart(docs, "s1", baseTime.Add(-time.Minute), line("p1", 2))

	s := New(&racingCarts{Service: carts, before: func(sessionID string) {
		_, err := carts.AddItem(context.Background(), sessionID, poster("p2"))
		require.NoError(t, err)
	}}, time.Minute)
	s.now = base.now

	_, err := s.SweepExpired(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, docs, "p1"), "the stale line was released once")
	assert.Equal(t, 4, stockOf(t, docs, "p2"))
	assert.Equal(t, 1, cartLine(t, docs, "s1", "p2"), "the renewed cart survives the sweep")
}

// ============================================
// Run Tests
// ============================================

type countingCarts struct {
	mu    sync.Mutex
	lists int
}

func (c *countingCarts) ListExpired(ctx context.Context, now time.Time) ([]*cart.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists++
	return nil, nil
}

func (c *countingCarts) Expire(ctx context.Context, sessionID string) error { return nil }

func (c *countingCarts) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists
}

func TestSweeper_Run_SweepsAtStartAndOnInterval(t *testing.T) {
	carts := &countingCarts{}
	s := New(carts, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return carts.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	assert.Equal(t, DefaultInterval, New(&countingCarts{}, 0).interval)
}
