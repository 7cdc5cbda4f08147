package invoice

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/example/poster-shop/internal/domain/cart"
	"github.com/example/poster-shop/internal/infrastructure/store"
	"github.com/example/poster-shop/internal/money"
	"github.com/shopspring/decimal"
)

var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrNoItems         = errors.New("invoice has no items")
)

const orderPrefix = "POSTRO"

type Status string

const (
	StatusPending      Status = "pending"
	StatusEmailed      Status = "emailed"
	StatusPendingEmail Status = "pending-email"
)

// CustomerDetails is the contact information collected at checkout
type CustomerDetails struct {
	Name       string `json:"customerName"`
	Email      string `json:"customerEmail"`
	Phone      string `json:"customerPhone"`
	Address    string `json:"customerAddress"`
	City       string `json:"customerCity"`
	PostalCode string `json:"customerPostalCode"`
	Notes      string `json:"notes,omitempty"`
}

// Normalize trims every field
func (c CustomerDetails) Normalize() CustomerDetails {
	return CustomerDetails{
		Name:       strings.TrimSpace(c.Name),
		Email:      strings.TrimSpace(c.Email),
		Phone:      strings.TrimSpace(c.Phone),
		Address:    strings.TrimSpace(c.Address),
		City:       strings.TrimSpace(c.City),
		PostalCode: strings.TrimSpace(c.PostalCode),
		Notes:      strings.TrimSpace(c.Notes),
	}
}

// Invoice is the immutable record of a checkout. Only Status and EmailedAt
// change after creation.
type Invoice struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	SessionID   string `json:"sessionId"`
	CustomerDetails
	Items     []cart.Item     `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	EmailedAt *time.Time      `json:"emailedAt,omitempty"`
}

// Totals is the money summary of an invoice
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// CalculateTotals sums the frozen line prices and adds shipping. A negative
// shipping fee counts as zero.
func CalculateTotals(items []cart.Item, shipping decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	shipping = money.Sanitize(shipping)
	return Totals{Subtotal: subtotal, Shipping: shipping, Total: subtotal.Add(shipping)}
}

// NewOrderNumber builds POSTRO-<base36 unix millis>-<1000..9999>
func NewOrderNumber(now time.Time) string {
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return fmt.Sprintf("%s-%s-%d", orderPrefix, stamp, 1000+rand.Intn(9000))
}

func (inv *Invoice) toDocument() store.Document {
	items := make([]any, 0, len(inv.Items))
	for _, item := range inv.Items {
		items = append(items, map[string]any{
			"productId":   item.ProductID,
			"productName": item.ProductName,
			"productType": string(item.ProductType),
			"imageUrl":    item.ImageURL,
			"quantity":    item.Quantity,
			"price":       money.Float(item.Price),
		})
	}
	doc := store.Document{
		"id":                 inv.ID,
		"orderNumber":        inv.OrderNumber,
		"sessionId":          inv.SessionID,
		"customerName":       inv.Name,
		"customerEmail":      inv.Email,
		"customerPhone":      inv.Phone,
		"customerAddress":    inv.Address,
		"customerCity":       inv.City,
		"customerPostalCode": inv.PostalCode,
		"notes":              inv.Notes,
		"items":              items,
		"subtotal":           money.Float(inv.Subtotal),
		"shipping":           money.Float(inv.Shipping),
		"total":              money.Float(inv.Total),
		"status":             string(inv.Status),
		"createdAt":          store.Millis(inv.CreatedAt),
	}
	if inv.EmailedAt != nil {
		doc["emailedAt"] = store.Millis(*inv.EmailedAt)
	}
	return doc
}

func fromDocument(doc store.Document) *Invoice {
	inv := &Invoice{
		ID:          doc.String("id"),
		OrderNumber: doc.String("orderNumber"),
		SessionID:   doc.String("sessionId"),
		CustomerDetails: CustomerDetails{
			Name:       doc.String("customerName"),
			Email:      doc.String("customerEmail"),
			Phone:      doc.String("customerPhone"),
			Address:    doc.String("customerAddress"),
			City:       doc.String("customerCity"),
			PostalCode: doc.String("customerPostalCode"),
			Notes:      doc.String("notes"),
		},
		Items:     []cart.Item{},
		Subtotal:  money.Sanitize(doc["subtotal"]),
		Shipping:  money.Sanitize(doc["shipping"]),
		Total:     money.Sanitize(doc["total"]),
		Status:    Status(doc.String("status")),
		CreatedAt: doc.Time("createdAt"),
	}
	if raw, ok := doc["items"].([]any); ok {
		for _, r := range raw {
			if m, ok := r.(map[string]any); ok {
				inv.Items = append(inv.Items, cart.SanitizeItem(m))
			}
		}
	}
	if emailed := doc.Time("emailedAt"); !emailed.IsZero() {
		inv.EmailedAt = &emailed
	}
	return inv
}
