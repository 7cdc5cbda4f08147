package inventory

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/example/poster-shop/internal/domain/product"
	"github.com/example/poster-shop/internal/domain/saleslog"
	"github.com/example/poster-shop/internal/infrastructure/store"
)

var (
	ErrOutOfStock      = errors.New("out of stock")
	ErrNotEnoughStock  = errors.New("not enough stock available")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

const stockField = "stock"

// Mode selects which availability rule a reservation is checked against
type Mode int

const (
	// ModeAdd is a unit entering a cart: fails with ErrOutOfStock when
	// nothing is left.
	ModeAdd Mode = iota
	// ModeIncrease raises an existing line: fails with ErrNotEnoughStock
	// when stock cannot cover the whole difference.
	ModeIncrease
)

func (m Mode) stockErr() error {
	if m == ModeIncrease {
		return ErrNotEnoughStock
	}
	return ErrOutOfStock
}

// Reservation takes Amount units of a product out of stock
type Reservation struct {
	ProductID string
	Amount    int
	Mode      Mode
	// NewLine marks the first unit of a product in a cart; it is logged as a sale.
	NewLine bool
}

// SaleRecorder appends sale log entries
type SaleRecorder interface {
	Record(ctx context.Context, entry saleslog.Entry) (*saleslog.Entry, error)
}

// Service moves units between product stock and carts. Every change is a
// single atomic adjustment on the product document; nothing is retried.
type Service struct {
	docs  store.DocumentStore
	sales SaleRecorder
}

func NewService(docs store.DocumentStore, sales SaleRecorder) *Service {
	return &Service{docs: docs, sales: sales}
}

// Reserve decrements stock by r.Amount and returns the stock left. The
// decrement is guarded by the store, so of two sessions racing for the last
// unit exactly one succeeds.
func (s *Service) Reserve(ctx context.Context, r Reservation) (int, error) {
	if r.Amount <= 0 {
		return 0, ErrInvalidQuantity
	}

	doc, err := s.docs.Get(ctx, store.CollectionProducts, r.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, r.Mode.stockErr()
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stock of %s: %w", r.ProductID, err)
	}
	p := product.FromDocument(r.ProductID, doc)

	switch r.Mode {
	case ModeIncrease:
		if p.Stock < r.Amount {
			return 0, ErrNotEnoughStock
		}
	default:
		if p.Stock <= 0 || p.Stock < r.Amount {
			return 0, ErrOutOfStock
		}
	}

	after, err := s.docs.AtomicAdjust(ctx, store.CollectionProducts, r.ProductID, stockField, -r.Amount)
	switch {
	case errors.Is(err, store.ErrInsufficient), errors.Is(err, store.ErrNotFound):
		log.Printf("[Inventory] Lost race for %s (wanted %d)", r.ProductID, r.Amount)
		return 0, r.Mode.stockErr()
	case err != nil:
		return 0, fmt.Errorf("failed to reserve %d of %s: %w", r.Amount, r.ProductID, err)
	}

	if r.NewLine {
		s.logSale(ctx, p, after+r.Amount, after)
	}
	return after, nil
}

func (s *Service) logSale(ctx context.Context, p *product.Product, before, after int) {
	if s.sales == nil {
		return
	}
	_, err := s.sales.Record(ctx, saleslog.Entry{
		ProductID:   p.ID,
		ProductName: p.Name,
		Category:    p.Category,
		Tags:        p.Tags,
		StockBefore: before,
		StockAfter:  after,
	})
	if err != nil {
		log.Printf("[Inventory] Failed to log sale of %s: %v", p.ID, err)
	}
}

// Release returns amount units to stock. Zero is a no-op. Releasing units
// of a product that was deleted meanwhile is logged and ignored.
func (s *Service) Release(ctx context.Context, productID string, amount int) error {
	if amount == 0 {
		return nil
	}

	_, err := s.docs.AtomicAdjust(ctx, store.CollectionProducts, productID, stockField, amount)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[Inventory] Dropping release of %d for deleted product %s", amount, productID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to release %d of %s: %w", amount, productID, err)
	}
	return nil
}
