package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/poster-shop/internal/events"
	"github.com/example/poster-shop/internal/infrastructure/store"
	"github.com/google/uuid"
)

const (
	AggregateType = "Invoice"

	EventInvoiceCreated = "InvoiceCreated"
	EventInvoiceEmailed = "InvoiceEmailed"

	DefaultRecentLimit = 25
)

// CreatedEvent is published once checkout has finished with an invoice,
// carrying the status after the first delivery attempt.
type CreatedEvent struct {
	InvoiceID   string `json:"invoiceId"`
	OrderNumber string `json:"orderNumber"`
	SessionID   string `json:"sessionId"`
	Status      Status `json:"status"`
	Total       string `json:"total"`
}

type EmailedEvent struct {
	InvoiceID string    `json:"invoiceId"`
	EmailedAt time.Time `json:"emailedAt"`
}

type Service struct {
	docs      store.DocumentStore
	publisher events.Publisher
	now       func() time.Time
}

func NewService(docs store.DocumentStore, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{docs: docs, publisher: publisher, now: time.Now}
}

// Create persists a new invoice with status pending. ID, order number and
// creation time are assigned here.
func (s *Service) Create(ctx context.Context, inv *Invoice) (*Invoice, error) {
	if len(inv.Items) == 0 {
		return nil, ErrNoItems
	}
	created := *inv
	created.ID = uuid.New().String()
	created.CreatedAt = s.now()
	if created.OrderNumber == "" {
		created.OrderNumber = NewOrderNumber(created.CreatedAt)
	}
	created.Status = StatusPending
	created.EmailedAt = nil

	if err := s.docs.Set(ctx, store.CollectionInvoices, created.ID, created.toDocument()); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}
	return &created, nil
}

func (s *Service) Get(ctx context.Context, invoiceID string) (*Invoice, error) {
	doc, err := s.docs.Get(ctx, store.CollectionInvoices, invoiceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return fromDocument(doc), nil
}

// Recent returns the newest invoices; a non-positive limit means 25
func (s *Service) Recent(ctx context.Context, limit int) ([]*Invoice, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	docs, err := s.docs.Query(ctx, store.CollectionInvoices, store.Query{
		OrderBy: []store.OrderBy{{Field: "createdAt", Desc: true}},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	invoices := make([]*Invoice, 0, len(docs))
	for _, doc := range docs {
		invoices = append(invoices, fromDocument(doc))
	}
	return invoices, nil
}

// MarkEmailed records a successful delivery
func (s *Service) MarkEmailed(ctx context.Context, invoiceID string) (time.Time, error) {
	at := s.now()
	err := s.docs.Update(ctx, store.CollectionInvoices, invoiceID, store.Document{
		"status":    string(StatusEmailed),
		"emailedAt": store.Millis(at),
	})
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, ErrInvoiceNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to mark invoice emailed: %w", err)
	}
	events.Emit(ctx, s.publisher, AggregateType, invoiceID, EventInvoiceEmailed, EmailedEvent{InvoiceID: invoiceID, EmailedAt: at})
	return at, nil
}

// MarkPendingEmail records a failed delivery
func (s *Service) MarkPendingEmail(ctx context.Context, invoiceID string) error {
	err := s.docs.Update(ctx, store.CollectionInvoices, invoiceID, store.Document{
		"status": string(StatusPendingEmail),
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvoiceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to mark invoice pending email: %w", err)
	}
	return nil
}

// Announce publishes InvoiceCreated for a finished checkout
func (s *Service) Announce(ctx context.Context, inv *Invoice) {
	events.Emit(ctx, s.publisher, AggregateType, inv.ID, EventInvoiceCreated, CreatedEvent{
		InvoiceID:   inv.ID,
		OrderNumber: inv.OrderNumber,
		SessionID:   inv.SessionID,
		Status:      inv.Status,
		Total:       inv.Total.String(),
	})
}
