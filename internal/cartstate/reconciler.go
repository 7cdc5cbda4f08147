package cartstate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/poster-shop/internal/domain/cart"
	"github.com/example/poster-shop/internal/domain/inventory"
	"github.com/example/poster-shop/internal/domain/product"
	"github.com/shopspring/decimal"
)

// CartService is the remote side of a session's cart. cart.Service
// satisfies it.
type CartService interface {
	Get(ctx context.Context, sessionID string) (*cart.Cart, error)
	AddItem(ctx context.Context, sessionID string, p *product.Product) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, sessionID, productID string, quantity int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, sessionID, productID string) (*cart.Cart, error)
	Clear(ctx context.Context, sessionID string) error
	Subscribe(ctx context.Context, sessionID string, fn func(*cart.Cart)) (func(), error)
	Window() time.Duration
}

// ProductReader gives the reconciler fresh product reads for stock checks
type ProductReader interface {
	Get(ctx context.Context, productID string) (*product.Product, error)
}

// Options are the optional collaborators of a Reconciler
type Options struct {
	Cache    *Cache
	Notifier Notifier
	Policy   SyncFailurePolicy
}

// Reconciler holds the local cart of one session and keeps it in step with
// the remote document. Every operation applies its change locally and
// publishes it before any remote call; remote calls of one reconciler run in
// the order their local changes were applied.
type Reconciler struct {
	sessionID string
	carts     CartService
	products  ProductReader
	cache     *Cache
	notifier  Notifier
	policy    SyncFailurePolicy
	now       func() time.Time

	mu          sync.Mutex
	current     *cart.Cart
	fingerprint string
	failures    int
	lastUsed    time.Time
	observers   map[int]func(*cart.Cart)
	nextID      int
	unsubscribe func()

	version uint64

	// emitMu serializes observer deliveries; stale versions are dropped
	emitMu    sync.Mutex
	delivered uint64

	seq sequencer
}

func New(sessionID string, carts CartService, products ProductReader, opts Options) *Reconciler {
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	if opts.Policy == nil {
		opts.Policy = KeepLocal{}
	}
	r := &Reconciler{
		sessionID: sessionID,
		carts:     carts,
		products:  products,
		cache:     opts.Cache,
		notifier:  opts.Notifier,
		policy:    opts.Policy,
		now:       time.Now,
		observers: make(map[int]func(*cart.Cart)),
	}
	r.seq.init()
	r.lastUsed = r.now()
	return r
}

func (r *Reconciler) SessionID() string {
	return r.sessionID
}

// Start hydrates from the cache and subscribes to the remote cart. It
// returns once the subscription's first snapshot has replaced whatever the
// cache provided.
func (r *Reconciler) Start(ctx context.Context) error {
	if cached, ok := r.cache.Load(r.sessionID); ok {
		r.mu.Lock()
		if r.current == nil {
			r.commit(cached)
			r.emitLocked()
		} else {
			r.mu.Unlock()
		}
	}

	first := make(chan struct{})
	var once sync.Once
	unsubscribe, err := r.carts.Subscribe(ctx, r.sessionID, func(c *cart.Cart) {
		r.adopt(c)
		once.Do(func() { close(first) })
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to cart %s: %w", r.sessionID, err)
	}
	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()

	select {
	case <-first:
		return nil
	case <-ctx.Done():
		r.Close()
		return ctx.Err()
	}
}

// Close stops the remote subscription
func (r *Reconciler) Close() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Observe registers fn for every local state change. fn must not call
// mutating methods of the reconciler.
func (r *Reconciler) Observe(fn func(*cart.Cart)) (cancel func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.observers[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.observers, id)
			r.mu.Unlock()
		})
	}
}

func (r *Reconciler) observerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observers)
}

func (r *Reconciler) idleSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUsed
}

// commit replaces the local cart. Caller holds r.mu.
func (r *Reconciler) commit(c *cart.Cart) {
	r.current = c
	r.fingerprint = c.Fingerprint()
	r.lastUsed = r.now()
}

// emitLocked publishes the current state to the cache and observers and
// releases r.mu.
func (r *Reconciler) emitLocked() {
	r.version++
	version := r.version
	snapshot := r.current.Clone()
	observers := make([]func(*cart.Cart), 0, len(r.observers))
	for _, fn := range r.observers {
		observers = append(observers, fn)
	}
	r.mu.Unlock()

	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if version <= r.delivered {
		return
	}
	r.delivered = version

	r.cache.Store(r.sessionID, snapshot)
	for _, fn := range observers {
		fn(snapshot.Clone())
	}
}

// adopt takes an authoritative snapshot from the subscription
func (r *Reconciler) adopt(c *cart.Cart) {
	r.mu.Lock()
	if c.Fingerprint() == r.fingerprint {
		// same content; only the remote timestamps are new
		r.current = c
		r.mu.Unlock()
		return
	}
	r.commit(c)
	r.emitLocked()
}

// apply computes the next local state from the current one, publishes it
// and reserves the next remote slot. ok is false when transform declined.
func (r *Reconciler) apply(transform func(current *cart.Cart) (*cart.Cart, bool)) (ticket uint64, ok bool) {
	r.mu.Lock()
	next, ok := transform(r.current)
	if !ok {
		r.mu.Unlock()
		return 0, false
	}
	r.commit(next)
	ticket = r.seq.take()
	r.emitLocked()
	return ticket, true
}

func (r *Reconciler) notify(kind NoticeKind, productID, message string, err error) {
	r.notifier.Notify(Notice{Kind: kind, SessionID: r.sessionID, ProductID: productID, Message: message, Err: err})
}

// remote runs op in ticket order and classifies its error. Stock and
// integrity errors are returned as they are; anything else becomes a
// SyncError with the local state kept.
func (r *Reconciler) remote(ctx context.Context, ticket uint64, opName, productID string, op func() error) error {
	r.seq.wait(ticket)
	err := op()
	r.seq.done()

	if err == nil || isDomainError(err) {
		r.mu.Lock()
		r.failures = 0
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.failures++
	consecutive := r.failures
	r.mu.Unlock()

	syncErr := &SyncError{Op: opName, ProductID: productID, Err: err}
	log.Printf("[Cart] %v", syncErr)
	r.notify(NoticeSyncPending, productID, "Your cart will sync when the connection recovers", err)
	r.policy.OnSyncFailure(ctx, r, consecutive)
	return syncErr
}

func isDomainError(err error) bool {
	return errors.Is(err, inventory.ErrOutOfStock) ||
		errors.Is(err, inventory.ErrNotEnoughStock) ||
		errors.Is(err, cart.ErrCartNotFound) ||
		errors.Is(err, cart.ErrItemNotFound) ||
		errors.Is(err, product.ErrProductNotFound)
}

// AddToCart adds one unit of a product. Stock is read fresh first; an item
// with nothing left is refused before any local change.
func (r *Reconciler) AddToCart(ctx context.Context, productID string) error {
	p, err := r.products.Get(ctx, productID)
	if err != nil {
		return err
	}
	if p.Stock <= 0 {
		r.notify(NoticeOutOfStock, productID, p.Name+" is out of stock", nil)
		return inventory.ErrOutOfStock
	}

	ticket, _ := r.apply(func(current *cart.Cart) (*cart.Cart, bool) {
		return cart.WithItemAdded(current, r.sessionID, p, r.now(), r.carts.Window()), true
	})
	err = r.remote(ctx, ticket, "add", productID, func() error {
		_, err := r.carts.AddItem(ctx, r.sessionID, p)
		return err
	})
	if errors.Is(err, inventory.ErrOutOfStock) {
		// another session took the last unit; nothing was reserved for us
		r.undoAdd(productID)
		r.notify(NoticeOutOfStock, productID, p.Name+" is out of stock", err)
		return err
	}
	if err != nil {
		return err
	}
	r.notify(NoticeAdded, productID, p.Name+" added to cart", nil)
	return nil
}

func (r *Reconciler) undoAdd(productID string) {
	r.mu.Lock()
	item, ok := r.current.Item(productID)
	if !ok {
		r.mu.Unlock()
		return
	}
	r.commit(cart.WithQuantity(r.current, productID, item.Quantity-1, r.now()))
	r.emitLocked()
}

// UpdateQuantity sets a line's quantity; zero or below removes the line.
// An increase is checked against fresh stock before any local change.
func (r *Reconciler) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return r.RemoveFromCart(ctx, productID)
	}

	r.mu.Lock()
	current := r.current
	item, ok := current.Item(productID)
	r.mu.Unlock()
	if current == nil {
		return cart.ErrCartNotFound
	}
	if !ok {
		return cart.ErrItemNotFound
	}
	if quantity == item.Quantity {
		return nil
	}

	if diff := quantity - item.Quantity; diff > 0 {
		p, err := r.products.Get(ctx, productID)
		if err != nil {
			return err
		}
		if p.Stock < diff {
			r.notify(NoticeNotEnoughStock, productID, fmt.Sprintf("Only %d more of %s available", p.Stock, p.Name), nil)
			return inventory.ErrNotEnoughStock
		}
	}

	ticket, ok := r.apply(func(current *cart.Cart) (*cart.Cart, bool) {
		if _, exists := current.Item(productID); !exists {
			return nil, false
		}
		return cart.WithQuantity(current, productID, quantity, r.now()), true
	})
	if !ok {
		return cart.ErrItemNotFound
	}

	err := r.remote(ctx, ticket, "update", productID, func() error {
		_, err := r.carts.UpdateQuantity(ctx, r.sessionID, productID, quantity)
		return err
	})
	switch {
	case errors.Is(err, inventory.ErrNotEnoughStock):
		r.restoreQuantity(productID, quantity, item.Quantity)
		r.notify(NoticeNotEnoughStock, productID, "Not enough stock available", err)
		return err
	case errors.Is(err, cart.ErrCartNotFound), errors.Is(err, cart.ErrItemNotFound):
		// the remote cart moved on (expired or cleared elsewhere)
		if refreshErr := r.Refresh(ctx); refreshErr != nil {
			log.Printf("[Cart] Refresh of %s failed: %v", r.sessionID, refreshErr)
		}
		return err
	case err != nil:
		return err
	}
	r.notify(NoticeUpdated, productID, fmt.Sprintf("Quantity updated to %d", quantity), nil)
	return nil
}

// restoreQuantity undoes an optimistic quantity change that is still current
func (r *Reconciler) restoreQuantity(productID string, applied, previous int) {
	r.mu.Lock()
	item, ok := r.current.Item(productID)
	if !ok || item.Quantity != applied {
		r.mu.Unlock()
		return
	}
	r.commit(cart.WithQuantity(r.current, productID, previous, r.now()))
	r.emitLocked()
}

// RemoveFromCart drops a line. A line that is not in the local cart is left
// alone, so one logical removal releases stock at most once.
func (r *Reconciler) RemoveFromCart(ctx context.Context, productID string) error {
	ticket, ok := r.apply(func(current *cart.Cart) (*cart.Cart, bool) {
		if _, exists := current.Item(productID); !exists {
			return nil, false
		}
		return cart.WithoutItem(current, productID, r.now()), true
	})
	if !ok {
		return nil
	}

	err := r.remote(ctx, ticket, "remove", productID, func() error {
		_, err := r.carts.RemoveItem(ctx, r.sessionID, productID)
		return err
	})
	if err != nil {
		return err
	}
	r.notify(NoticeRemoved, productID, "Item removed from cart", nil)
	return nil
}

// Clear empties the cart and releases all of its stock
func (r *Reconciler) Clear(ctx context.Context) error {
	ticket, _ := r.apply(func(current *cart.Cart) (*cart.Cart, bool) {
		return nil, true
	})
	err := r.remote(ctx, ticket, "clear", "", func() error {
		return r.carts.Clear(ctx, r.sessionID)
	})
	if err != nil {
		return err
	}
	r.notify(NoticeCleared, "", "Cart cleared", nil)
	return nil
}

// Forget drops the local cart without touching stock. Used after checkout
// consumed the remote cart.
func (r *Reconciler) Forget() {
	r.mu.Lock()
	r.commit(nil)
	r.emitLocked()
}

// Refresh replaces the local state with a fresh remote read
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	ticket := r.seq.take()
	r.mu.Unlock()

	r.seq.wait(ticket)
	c, err := r.carts.Get(ctx, r.sessionID)
	r.seq.done()
	if err != nil {
		return fmt.Errorf("failed to refresh cart %s: %w", r.sessionID, err)
	}

	r.mu.Lock()
	r.failures = 0
	r.commit(c)
	r.emitLocked()
	return nil
}

// Snapshot returns a copy of the local cart; nil when there is none
func (r *Reconciler) Snapshot() *cart.Cart {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUsed = r.now()
	return r.current.Clone()
}

func (r *Reconciler) ItemCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.ItemCount()
}

func (r *Reconciler) TotalPrice() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.TotalPrice()
}

// TimeRemaining is the reservation countdown, "" when there is no cart
func (r *Reconciler) TimeRemaining(now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ""
	}
	return cart.TimeRemaining(r.current.ExpiresAt, now)
}

// sequencer hands out tickets and lets their holders run one at a time in
// ticket order.
type sequencer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64
	serving uint64
}

func (s *sequencer) init() {
	s.cond = sync.NewCond(&s.mu)
}

func (s *sequencer) take() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.next
	s.next++
	return t
}

func (s *sequencer) wait(ticket uint64) {
	s.mu.Lock()
	for s.serving != ticket {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

func (s *sequencer) done() {
	s.mu.Lock()
	s.serving++
	s.mu.Unlock()
	s.cond.Broadcast()
}
