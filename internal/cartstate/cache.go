package cartstate

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/example/poster-shop/internal/domain/cart"
	"github.com/example/poster-shop/internal/infrastructure/store"
	"github.com/example/poster-shop/internal/session"
)

const (
	DefaultCacheTTL = 5 * time.Minute

	cacheKeyPrefix   = "cart_cache:"
	cacheStampPrefix = "cart_cache_ts:"
)

// Cache keeps the last known cart of a session in local storage so a new
// reconciler can show it before the first remote snapshot arrives. Every
// failure degrades to a cache miss.
type Cache struct {
	storage session.Storage
	ttl     time.Duration
	now     func() time.Time
}

func NewCache(storage session.Storage, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{storage: storage, ttl: ttl, now: time.Now}
}

// Load returns the cached cart when it is younger than the TTL
func (c *Cache) Load(sessionID string) (*cart.Cart, bool) {
	if c == nil || c.storage == nil {
		return nil, false
	}
	stamp, ok, err := c.storage.Get(cacheStampPrefix + sessionID)
	if err != nil || !ok {
		return nil, false
	}
	ms, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil || c.now().Sub(time.UnixMilli(ms)) > c.ttl {
		return nil, false
	}

	raw, ok, err := c.storage.Get(cacheKeyPrefix + sessionID)
	if err != nil || !ok {
		return nil, false
	}
	var doc store.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		log.Printf("[Cart] Ignoring unreadable cache for %s: %v", sessionID, err)
		return nil, false
	}
	return cart.FromDocument(doc), true
}

// Store caches c; nil removes the entry
func (c *Cache) Store(sessionID string, ct *cart.Cart) {
	if c == nil || c.storage == nil {
		return
	}
	if ct == nil {
		c.Remove(sessionID)
		return
	}
	raw, err := json.Marshal(ct.ToDocument())
	if err != nil {
		return
	}
	if err := c.storage.Set(cacheKeyPrefix+sessionID, string(raw)); err != nil {
		return
	}
	_ = c.storage.Set(cacheStampPrefix+sessionID, strconv.FormatInt(store.Millis(c.now()), 10))
}

func (c *Cache) Remove(sessionID string) {
	if c == nil || c.storage == nil {
		return
	}
	_ = c.storage.Remove(cacheKeyPrefix + sessionID)
	_ = c.storage.Remove(cacheStampPrefix + sessionID)
}
