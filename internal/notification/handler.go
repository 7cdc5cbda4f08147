package notification

import (
	"context"
	"log"

	"github.com/example/poster-shop/internal/domain/invoice"
	"github.com/example/poster-shop/internal/events"
)

// Resender retries delivery of a stored invoice
type Resender interface {
	Resend(ctx context.Context, invoiceID string) (*invoice.Invoice, error)
}

// Handler retries invoice emails whose first delivery failed during checkout
type Handler struct {
	resender Resender
}

// NewHandler creates a new notification handler
func NewHandler(resender Resender) *Handler {
	return &Handler{resender: resender}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, event events.Event) error {
	if event.EventType != invoice.EventInvoiceCreated {
		return nil
	}

	var e invoice.CreatedEvent
	if err := event.Decode(&e); err != nil {
		log.Printf("[Notifier] %v", err)
		return err
	}

	// Only invoices still waiting for their receipt
	if e.Status != invoice.StatusPendingEmail {
		return nil
	}

	log.Printf("[Notifier] Retrying receipt for order %s (invoice %s)", e.OrderNumber, e.InvoiceID)

	inv, err := h.resender.Resend(ctx, e.InvoiceID)
	if err != nil {
		log.Printf("[Notifier] Receipt for order %s still pending: %v", e.OrderNumber, err)
		return err
	}

	log.Printf("[Notifier] Receipt for order %s sent to %s", inv.OrderNumber, inv.Email)
	return nil
}
