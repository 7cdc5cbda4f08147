package cartstate

import (
	"context"
	"testing"
	"time"

	"github.com/example/poster-shop/internal/domain/cart"
	"github.com/example/poster-shop/internal/domain/product"
	"github.com/example/poster-shop/internal/infrastructure/localstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCart(now time.Time) *cart.Cart {
	p := &product.Product{ID: "p1", Name: "Akira", Type: product.TypePoster, Price: decimal.NewFromInt(399)}
	return cart.WithItemAdded(nil, testSession, p, now, time.Hour)
}

// ============================================
// Cache Tests
// ============================================

func TestCache_StoreAndLoad(t *testing.T) {
	now := time.Now()
	cache := NewCache(localstore.NewMemoryStorage(), time.Minute)
	c := sampleCart(now)

	cache.Store(testSession, c)
	loaded, ok := cache.Load(testSession)

	require.True(t, ok)
	assert.Equal(t, c.Fingerprint(), loaded.Fingerprint())
}

func TestCache_Expires(t *testing.T) {
	now := time.Now()
	cache := NewCache(localstore.NewMemoryStorage(), 5*time.Minute)
	cache.now = func() time.Time { return now }
	cache.Store(testSession, sampleCart(now))

	cache.now = func() time.Time { return now.Add(5*time.Minute + time.Second) }
	_, ok := cache.Load(testSession)

	assert.False(t, ok)
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	storage := localstore.NewMemoryStorage()
	cache := NewCache(storage, time.Minute)
	cache.Store(testSession, sampleCart(time.Now()))
	require.NoError(t, storage.Set(cacheKeyPrefix+testSession, "{not json"))

	_, ok := cache.Load(testSession)

	assert.False(t, ok)
}

func TestCache_StoreNilRemoves(t *testing.T) {
	storage := localstore.NewMemoryStorage()
	cache := NewCache(storage, time.Minute)
	cache.Store(testSession, sampleCart(time.Now()))

	cache.Store(testSession, nil)

	assert.Zero(t, storage.Len())
}

func TestCache_UnavailableStorageDegrades(t *testing.T) {
	cache := NewCache(localstore.Unavailable{}, time.Minute)

	cache.Store(testSession, sampleCart(time.Now()))
	_, ok := cache.Load(testSession)

	assert.False(t, ok)
	var nilCache *Cache
	_, ok = nilCache.Load(testSession)
	assert.False(t, ok)
}

func TestReconciler_StartHydratesThenAdoptsRemote(t *testing.T) {
	env := newTestEnv(t, nil)
	env.reconciler.cache.Store(testSession, sampleCart(time.Now()))
	var first *cart.Cart
	seen := false
	env.reconciler.Observe(func(c *cart.Cart) {
		if !seen {
			first, seen = c, true
		}
	})

	require.NoError(t, env.reconciler.Start(context.Background()))

	require.True(t, seen)
	assert.Equal(t, 1, first.ItemCount(), "cached cart shown first")
	assert.Nil(t, env.reconciler.Snapshot(), "remote has no cart")
}
