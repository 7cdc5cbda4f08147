package cart

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/poster-shop/internal/domain/product"
	"github.com/example/poster-shop/internal/infrastructure/store"
	"github.com/example/poster-shop/internal/money"
	"github.com/shopspring/decimal"
)

// DefaultReservationWindow is how long a cart holds its stock
const DefaultReservationWindow = 60 * time.Minute

const expiredLabel = "EXPIRED"

// Item is a cart line. Name, type, image and price are frozen when the
// product is first added.
type Item struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	ProductType product.Type    `json:"productType"`
	ImageURL    string          `json:"imageUrl"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// LineTotal is quantity × frozen price
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the per-session reservation holder. Items are unique by product
// and keep insertion order.
type Cart struct {
	SessionID   string    `json:"sessionId"`
	Items       []Item    `json:"items"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// SanitizeItem is the single normalization point for stored cart lines.
// Prices that are missing, non-numeric, non-finite or negative become zero;
// negative quantities become zero.
func SanitizeItem(raw map[string]any) Item {
	doc := store.Document(raw)
	qty := doc.Int("quantity")
	if qty < 0 {
		qty = 0
	}
	return Item{
		ProductID:   doc.String("productId"),
		ProductName: doc.String("productName"),
		ProductType: product.Type(doc.String("productType")),
		ImageURL:    doc.String("imageUrl"),
		Quantity:    qty,
		Price:       money.Sanitize(raw["price"]),
	}
}

// FromDocument maps a stored cart; nil doc means no cart
func FromDocument(doc store.Document) *Cart {
	if doc == nil {
		return nil
	}
	c := &Cart{
		SessionID:   doc.String("sessionId"),
		CreatedAt:   doc.Time("createdAt"),
		LastUpdated: doc.Time("lastUpdated"),
		ExpiresAt:   doc.Time("expiresAt"),
		Items:       []Item{},
	}
	if rawItems, ok := doc["items"].([]any); ok {
		for _, raw := range rawItems {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			item := SanitizeItem(m)
			if item.ProductID == "" {
				continue
			}
			c.Items = append(c.Items, item)
		}
	}
	return c
}

func itemsDocument(items []Item) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"productId":   item.ProductID,
			"productName": item.ProductName,
			"productType": string(item.ProductType),
			"imageUrl":    item.ImageURL,
			"quantity":    item.Quantity,
			"price":       money.Float(item.Price),
		})
	}
	return out
}

// ToDocument is the stored form of c
func (c *Cart) ToDocument() store.Document {
	return store.Document{
		"sessionId":   c.SessionID,
		"items":       itemsDocument(c.Items),
		"createdAt":   store.Millis(c.CreatedAt),
		"lastUpdated": store.Millis(c.LastUpdated),
		"expiresAt":   store.Millis(c.ExpiresAt),
	}
}

// New starts an empty cart whose reservation window begins now
func New(sessionID string, now time.Time, window time.Duration) *Cart {
	if window <= 0 {
		window = DefaultReservationWindow
	}
	return &Cart{
		SessionID:   sessionID,
		Items:       []Item{},
		CreatedAt:   now,
		LastUpdated: now,
		ExpiresAt:   now.Add(window),
	}
}

// Clone deep-copies c; nil stays nil
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = append([]Item{}, c.Items...)
	return &cp
}

// Item finds the line for productID
func (c *Cart) Item(productID string) (Item, bool) {
	if c == nil {
		return Item{}, false
	}
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return Item{}, false
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Expired reports whether the reservation window has closed
func (c *Cart) Expired(now time.Time) bool {
	return c != nil && !c.ExpiresAt.After(now)
}

// ItemCount is the sum of quantities
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// TotalPrice is the sum of line totals
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	if c == nil {
		return total
	}
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Fingerprint hashes the session and lines. Timestamps are excluded so an
// authoritative snapshot matches the optimistic one it confirms.
func (c *Cart) Fingerprint() string {
	if c == nil {
		return ""
	}
	payload, err := json.Marshal(struct {
		SessionID string `json:"s"`
		Items     []any  `json:"i"`
	}{c.SessionID, itemsDocument(c.Items)})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// WithItemAdded adds one unit of p, creating the cart when c is nil
func WithItemAdded(c *Cart, sessionID string, p *product.Product, now time.Time, window time.Duration) *Cart {
	next := c.Clone()
	if next == nil {
		next = New(sessionID, now, window)
	}
	next.LastUpdated = now

	for i := range next.Items {
		if next.Items[i].ProductID == p.ID {
			next.Items[i].Quantity++
			return next
		}
	}
	next.Items = append(next.Items, Item{
		ProductID:   p.ID,
		ProductName: p.Name,
		ProductType: p.Type,
		ImageURL:    p.ImageURL,
		Quantity:    1,
		Price:       money.Sanitize(p.Price),
	})
	return next
}

// WithQuantity sets a line's quantity; zero or below removes the line
func WithQuantity(c *Cart, productID string, quantity int, now time.Time) *Cart {
	if quantity <= 0 {
		return WithoutItem(c, productID, now)
	}
	next := c.Clone()
	if next == nil {
		return nil
	}
	for i := range next.Items {
		if next.Items[i].ProductID == productID {
			next.Items[i].Quantity = quantity
			next.LastUpdated = now
		}
	}
	return next
}

// WithoutItem drops a line
func WithoutItem(c *Cart, productID string, now time.Time) *Cart {
	next := c.Clone()
	if next == nil {
		return nil
	}
	kept := next.Items[:0]
	for _, item := range next.Items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	if len(kept) != len(next.Items) {
		next.LastUpdated = now
	}
	next.Items = kept
	return next
}

// TimeRemaining formats the countdown to expiresAt as MM:SS, or EXPIRED.
// Display only; releasing stock is the sweeper's job.
func TimeRemaining(expiresAt, now time.Time) string {
	diff := expiresAt.Sub(now)
	if diff <= 0 {
		return expiredLabel
	}
	minutes := int(diff / time.Minute)
	seconds := int((diff % time.Minute) / time.Second)
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
