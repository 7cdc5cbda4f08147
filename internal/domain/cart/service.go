package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/poster-shop/internal/domain/inventory"
	"github.com/example/poster-shop/internal/domain/product"
	"github.com/example/poster-shop/internal/events"
	"github.com/example/poster-shop/internal/infrastructure/store"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

// Stock is the reservation protocol the cart service drives
type Stock interface {
	Reserve(ctx context.Context, r inventory.Reservation) (int, error)
	Release(ctx context.Context, productID string, amount int) error
}

// Service owns the remote cart documents. Every method reads the current
// document, reserves or releases stock, and writes the result.
type Service struct {
	docs      store.DocumentStore
	stock     Stock
	publisher events.Publisher
	window    time.Duration
	now       func() time.Time
}

func NewService(docs store.DocumentStore, stock Stock, publisher events.Publisher, window time.Duration) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if window <= 0 {
		window = DefaultReservationWindow
	}
	return &Service{
		docs:      docs,
		stock:     stock,
		publisher: publisher,
		window:    window,
		now:       time.Now,
	}
}

// Window is the reservation window applied to new carts
func (s *Service) Window() time.Duration {
	return s.window
}

// Get returns the cart of a session, or nil when there is none
func (s *Service) Get(ctx context.Context, sessionID string) (*Cart, error) {
	doc, err := s.docs.Get(ctx, store.CollectionCarts, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart %s: %w", sessionID, err)
	}
	return FromDocument(doc), nil
}

func (s *Service) write(ctx context.Context, current, next *Cart) error {
	if current == nil {
		return s.docs.Set(ctx, store.CollectionCarts, next.SessionID, next.ToDocument())
	}
	return s.docs.Update(ctx, store.CollectionCarts, next.SessionID, store.Document{
		"items":       itemsDocument(next.Items),
		"lastUpdated": store.Millis(next.LastUpdated),
	})
}

// compensate gives back units reserved for a cart write that failed
func (s *Service) compensate(ctx context.Context, productID string, amount int) {
	if err := s.stock.Release(ctx, productID, amount); err != nil {
		log.Printf("[Cart] Failed to release %d of %s after failed cart write: %v", amount, productID, err)
	}
}

// AddItem reserves one unit of p and adds it to the session's cart, creating
// the cart (and starting its reservation window) when needed.
func (s *Service) AddItem(ctx context.Context, sessionID string, p *product.Product) (*Cart, error) {
	if p == nil || p.ID == "" {
		return nil, product.ErrProductNotFound
	}

	current, err := s.live(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	_, exists := current.Item(p.ID)

	stockAfter, err := s.stock.Reserve(ctx, inventory.Reservation{
		ProductID: p.ID,
		Amount:    1,
		Mode:      inventory.ModeAdd,
		NewLine:   !exists,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	next := WithItemAdded(current, sessionID, p, now, s.window)
	err = s.write(ctx, current, next)
	if current != nil && errors.Is(err, store.ErrNotFound) {
		// expired or cleared since it was read; the unit opens a new cart
		next = WithItemAdded(nil, sessionID, p, now, s.window)
		err = s.write(ctx, nil, next)
	}
	if err != nil {
		s.compensate(ctx, p.ID, 1)
		return nil, fmt.Errorf("failed to write cart %s: %w", sessionID, err)
	}

	item, _ := next.Item(p.ID)
	log.Printf("[Cart] Added %s to %s (qty %d, stock left %d)", p.ID, sessionID, item.Quantity, stockAfter)
	events.Emit(ctx, s.publisher, AggregateType, sessionID, EventItemAdded, ItemAddedEvent{
		SessionID:  sessionID,
		ProductID:  p.ID,
		Quantity:   item.Quantity,
		StockAfter: stockAfter,
	})
	return next, nil
}

// UpdateQuantity sets a line's quantity, reserving or releasing the
// difference. A quantity of zero or below removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, sessionID, productID string, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, sessionID, productID)
	}

	current, err := s.live(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrCartNotFound
	}
	item, ok := current.Item(productID)
	if !ok {
		return nil, ErrItemNotFound
	}

	diff := quantity - item.Quantity
	if diff == 0 {
		return current, nil
	}

	next := WithQuantity(current, productID, quantity, s.now())
	if diff > 0 {
		if _, err := s.stock.Reserve(ctx, inventory.Reservation{
			ProductID: productID,
			Amount:    diff,
			Mode:      inventory.ModeIncrease,
		}); err != nil {
			return nil, err
		}
		if err := s.write(ctx, current, next); err != nil {
			s.compensate(ctx, productID, diff)
			return nil, s.writeFailed(sessionID, err)
		}
	} else {
		// cart first: a lost write must not leave units both in the cart and in stock
		if err := s.write(ctx, current, next); err != nil {
			return nil, s.writeFailed(sessionID, err)
		}
		if err := s.stock.Release(ctx, productID, -diff); err != nil {
			return next, err
		}
	}

	events.Emit(ctx, s.publisher, AggregateType, sessionID, EventQuantityChanged, QuantityChangedEvent{
		SessionID:   sessionID,
		ProductID:   productID,
		OldQuantity: item.Quantity,
		NewQuantity: quantity,
	})
	return next, nil
}

// RemoveItem drops a line and releases its quantity. Removing from a missing
// cart or a line that is not there does nothing.
func (s *Service) RemoveItem(ctx context.Context, sessionID, productID string) (*Cart, error) {
	current, err := s.live(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	item, ok := current.Item(productID)
	if !ok {
		return current, nil
	}

	next := WithoutItem(current, productID, s.now())
	if err := s.write(ctx, current, next); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// whoever deleted the cart released the line with it
			return nil, nil
		}
		return nil, fmt.Errorf("failed to write cart %s: %w", sessionID, err)
	}
	if err := s.stock.Release(ctx, productID, item.Quantity); err != nil {
		return next, err
	}

	events.Emit(ctx, s.publisher, AggregateType, sessionID, EventItemRemoved, ItemRemovedEvent{
		SessionID: sessionID,
		ProductID: productID,
		Released:  item.Quantity,
	})
	return next, nil
}

// releaseAll deletes the cart and returns the lines of the document it
// deleted to stock. A writer that read the cart earlier finds it gone and
// backs out its own reservation. Lines whose release failed are reported in
// the joined error and never retried.
func (s *Service) releaseAll(ctx context.Context, sessionID string) (map[string]int, error) {
	doc, err := s.docs.Take(ctx, store.CollectionCarts, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete cart %s: %w", sessionID, err)
	}
	taken := FromDocument(doc)

	released := make(map[string]int, len(taken.Items))
	var errs []error
	for _, item := range taken.Items {
		if err := s.stock.Release(ctx, item.ProductID, item.Quantity); err != nil {
			log.Printf("[Cart] Failed to release %d of %s from %s: %v", item.Quantity, item.ProductID, sessionID, err)
			errs = append(errs, err)
			continue
		}
		released[item.ProductID] = item.Quantity
	}
	return released, errors.Join(errs...)
}

// live returns the session's cart, expiring it first when its reservation
// window has closed so a stale cart is never extended.
func (s *Service) live(ctx context.Context, sessionID string) (*Cart, error) {
	current, err := s.Get(ctx, sessionID)
	if err != nil || !current.Expired(s.now()) {
		return current, err
	}
	if err := s.expire(ctx, sessionID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Service) writeFailed(sessionID string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrCartNotFound
	}
	return fmt.Errorf("failed to write cart %s: %w", sessionID, err)
}

// Clear releases every line and deletes the cart
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	released, err := s.releaseAll(ctx, sessionID)
	if released != nil {
		events.Emit(ctx, s.publisher, AggregateType, sessionID, EventCleared, ReleasedEvent{SessionID: sessionID, Released: released})
	}
	return err
}

// Expire is Clear for a cart whose reservation window has closed. A cart
// that is missing or was renewed since it was listed is left alone.
func (s *Service) Expire(ctx context.Context, sessionID string) error {
	current, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !current.Expired(s.now()) {
		return nil
	}
	return s.expire(ctx, sessionID)
}

func (s *Service) expire(ctx context.Context, sessionID string) error {
	released, err := s.releaseAll(ctx, sessionID)
	if released != nil {
		log.Printf("[Cart] Expired %s, released %d line(s)", sessionID, len(released))
		events.Emit(ctx, s.publisher, AggregateType, sessionID, EventExpired, ReleasedEvent{SessionID: sessionID, Released: released})
	}
	return err
}

// Consume deletes the cart without releasing stock; checkout turned the
// reservation into a sale.
func (s *Service) Consume(ctx context.Context, sessionID string) error {
	current, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, store.CollectionCarts, sessionID); err != nil {
		return fmt.Errorf("failed to delete cart %s: %w", sessionID, err)
	}
	events.Emit(ctx, s.publisher, AggregateType, sessionID, EventConsumed, ConsumedEvent{
		SessionID: sessionID,
		Items:     current.ItemCount(),
	})
	return nil
}

// Subscribe streams the session's cart. fn receives nil when the document
// does not exist; repeated identical snapshots are dropped.
func (s *Service) Subscribe(ctx context.Context, sessionID string, fn func(*Cart)) (func(), error) {
	var (
		mu   sync.Mutex
		last string
		seen bool
	)
	return s.docs.Subscribe(ctx, store.CollectionCarts, sessionID, func(doc store.Document) {
		serialized, err := json.Marshal(doc)
		if err != nil {
			log.Printf("[Cart] Dropping unreadable snapshot of %s: %v", sessionID, err)
			return
		}
		mu.Lock()
		if seen && string(serialized) == last {
			mu.Unlock()
			return
		}
		seen, last = true, string(serialized)
		mu.Unlock()

		fn(FromDocument(doc))
	})
}

func (s *Service) list(ctx context.Context, q store.Query) ([]*Cart, error) {
	docs, err := s.docs.Query(ctx, store.CollectionCarts, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query carts: %w", err)
	}
	carts := make([]*Cart, 0, len(docs))
	for _, doc := range docs {
		carts = append(carts, FromDocument(doc))
	}
	return carts, nil
}

// ListExpired returns carts with expiresAt <= now
func (s *Service) ListExpired(ctx context.Context, now time.Time) ([]*Cart, error) {
	return s.list(ctx, store.Where("expiresAt", store.OpLessEqual, store.Millis(now)))
}

// ListActive returns non-empty carts still inside their window, most
// recently updated first.
func (s *Service) ListActive(ctx context.Context, now time.Time) ([]*Cart, error) {
	q := store.Where("expiresAt", store.OpGreater, store.Millis(now))
	q.OrderBy = []store.OrderBy{{Field: "lastUpdated", Desc: true}}
	carts, err := s.list(ctx, q)
	if err != nil {
		return nil, err
	}
	active := carts[:0]
	for _, c := range carts {
		if !c.IsEmpty() {
			active = append(active, c)
		}
	}
	return active, nil
}
