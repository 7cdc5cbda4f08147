package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/poster-shop/internal/domain/cart"
	"github.com/example/poster-shop/internal/domain/invoice"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidCustomer = errors.New("customer name and email are required")
)

// Invoices persists invoices and their delivery status
type Invoices interface {
	Create(ctx context.Context, inv *invoice.Invoice) (*invoice.Invoice, error)
	Get(ctx context.Context, invoiceID string) (*invoice.Invoice, error)
	MarkEmailed(ctx context.Context, invoiceID string) (time.Time, error)
	MarkPendingEmail(ctx context.Context, invoiceID string) error
	Announce(ctx context.Context, inv *invoice.Invoice)
}

// Carts deletes a checked-out cart while keeping its units sold
type Carts interface {
	Consume(ctx context.Context, sessionID string) error
}

type Mailer interface {
	SendInvoice(ctx context.Context, inv *invoice.Invoice) error
}

// Result describes a finished checkout. EmailErr is set when the first
// delivery failed; the invoice is then pending-email.
type Result struct {
	Invoice     *invoice.Invoice
	Emailed     bool
	EmailErr    error
	CartCleared bool
}

// Finalizer turns a cart into an invoice
type Finalizer struct {
	invoices Invoices
	carts    Carts
	mailer   Mailer
	shipping decimal.Decimal
}

func NewFinalizer(invoices Invoices, carts Carts, mailer Mailer, shipping decimal.Decimal) *Finalizer {
	if shipping.IsNegative() {
		shipping = decimal.Zero
	}
	return &Finalizer{
		invoices: invoices,
		carts:    carts,
		mailer:   mailer,
		shipping: shipping,
	}
}

// Shipping is the flat fee added to every invoice
func (f *Finalizer) Shipping() decimal.Decimal {
	return f.shipping
}

// Checkout freezes c into an invoice, consumes the cart without releasing
// its stock and emails the receipt. A failed email does not fail checkout.
func (f *Finalizer) Checkout(ctx context.Context, c *cart.Cart, details invoice.CustomerDetails) (*Result, error) {
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	details = details.Normalize()
	if details.Name == "" || details.Email == "" {
		return nil, ErrInvalidCustomer
	}

	items := c.Clone().Items
	totals := invoice.CalculateTotals(items, f.shipping)
	inv, err := f.invoices.Create(ctx, &invoice.Invoice{
		SessionID:       c.SessionID,
		CustomerDetails: details,
		Items:           items,
		Subtotal:        totals.Subtotal,
		Shipping:        totals.Shipping,
		Total:           totals.Total,
	})
	if err != nil {
		log.Printf("[Checkout] Failed to create invoice for %s: %v", c.SessionID, err)
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}
	log.Printf("[Checkout] Invoice %s (%s) created for %s, total %s", inv.ID, inv.OrderNumber, c.SessionID, inv.Total)

	result := &Result{Invoice: inv}
	if err := f.carts.Consume(ctx, c.SessionID); err != nil {
		log.Printf("[Checkout] Failed to clear cart %s after invoice %s: %v", c.SessionID, inv.OrderNumber, err)
	} else {
		result.CartCleared = true
	}

	if err := f.deliver(ctx, inv); err != nil {
		result.EmailErr = err
	} else {
		result.Emailed = true
	}

	f.invoices.Announce(ctx, inv)
	return result, nil
}

// Resend retries delivery of a stored invoice and returns it with the
// updated status.
func (f *Finalizer) Resend(ctx context.Context, invoiceID string) (*invoice.Invoice, error) {
	inv, err := f.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return inv, f.deliver(ctx, inv)
}

// deliver sends inv and records the outcome on it and in the store
func (f *Finalizer) deliver(ctx context.Context, inv *invoice.Invoice) error {
	sendErr := f.mailer.SendInvoice(ctx, inv)
	if sendErr != nil {
		log.Printf("[Checkout] Email for %s not delivered: %v", inv.OrderNumber, sendErr)
		if err := f.invoices.MarkPendingEmail(ctx, inv.ID); err != nil {
			log.Printf("[Checkout] Failed to mark %s pending email: %v", inv.OrderNumber, err)
		}
		inv.Status = invoice.StatusPendingEmail
		return sendErr
	}

	inv.Status = invoice.StatusEmailed
	at, err := f.invoices.MarkEmailed(ctx, inv.ID)
	if err != nil {
		log.Printf("[Checkout] Email for %s sent but status not saved: %v", inv.OrderNumber, err)
		return nil
	}
	inv.EmailedAt = &at
	log.Printf("[Checkout] Receipt %s emailed to %s", inv.OrderNumber, inv.Email)
	return nil
}
