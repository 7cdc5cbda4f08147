package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/poster-shop/internal/domain/cart"
)

const DefaultInterval = 30 * time.Minute

// Carts is the part of cart.Service the sweeper drives
type Carts interface {
	ListExpired(ctx context.Context, now time.Time) ([]*cart.Cart, error)
	Expire(ctx context.Context, sessionID string) error
}

// Sweeper returns the stock of expired carts and deletes them. A cart that
// is touched after its window closed is expired by the cart service itself;
// the sweeper covers the ones nobody comes back to.
type Sweeper struct {
	carts    Carts
	interval time.Duration
	now      func() time.Time
}

func New(carts Carts, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{carts: carts, interval: interval, now: time.Now}
}

// SweepExpired expires every cart whose window has closed and returns how
// many were expired. A failing cart is logged and skipped; the failures are
// joined into the returned error.
func (s *Sweeper) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.carts.ListExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired carts: %w", err)
	}

	swept := 0
	var errs []error
	for _, c := range expired {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.carts.Expire(ctx, c.SessionID); err != nil {
			log.Printf("[Sweeper] Failed to expire cart %s: %v", c.SessionID, err)
			errs = append(errs, fmt.Errorf("cart %s: %w", c.SessionID, err))
			continue
		}
		swept++
	}

	if len(expired) > 0 {
		log.Printf("[Sweeper] Expired %d of %d cart(s)", swept, len(expired))
	}
	return swept, errors.Join(errs...)
}

// Run sweeps once immediately and then every interval until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("[Sweeper] Running every %s", s.interval)
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("[Sweeper] Stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.SweepExpired(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[Sweeper] Sweep finished with errors: %v", err)
	}
}
