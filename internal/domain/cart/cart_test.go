package cart

import (
	"math"
	"testing"
	"time"

	"github.com/example/poster-shop/internal/domain/product"
	"github.com/example/poster-shop/internal/infrastructure/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 5, 10, 18, 30, 0, 0, time.UTC)

func testProduct(id string, price int64) *product.Product {
	return &product.Product{
		ID:       id,
		Name:     "Poster " + id,
		Type:     product.TypePoster,
		ImageURL: "https://img.example/" + id + ".jpg",
		Stock:    10,
		Price:    decimal.NewFromInt(price),
	}
}

// ============================================
// Sanitize Tests
// ============================================

func TestSanitizeItem_Price(t *testing.T) {
	tests := []struct {
		name  string
		price any
		want  string
	}{
		{"number", 249.5, "249.5"},
		{"numeric string", "120", "120"},
		{"missing", nil, "0"},
		{"garbage string", "twelve", "0"},
		{"negative", -40.0, "0"},
		{"nan", math.NaN(), "0"},
		{"infinity", math.Inf(1), "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := SanitizeItem(map[string]any{"productId": "p1", "quantity": 1.0, "price": tt.price})
			assert.Equal(t, tt.want, item.Price.String())
		})
	}
}

func TestSanitizeItem_Quantity(t *testing.T) {
	assert.Equal(t, 0, SanitizeItem(map[string]any{"productId": "p1"}).Quantity)
	assert.Equal(t, 0, SanitizeItem(map[string]any{"productId": "p1", "quantity": -3.0}).Quantity)
	assert.Equal(t, 2, SanitizeItem(map[string]any{"productId": "p1", "quantity": 2.0}).Quantity)
}

func TestFromDocument_SkipsMalformedLines(t *testing.T) {
	doc := store.Document{
		"sessionId": "s1",
		"items": []any{
			map[string]any{"productId": "p1", "quantity": 2.0, "price": 100.0},
			"not a line",
			map[string]any{"quantity": 1.0},
		},
		"expiresAt": float64(store.Millis(baseTime)),
	}

	c := FromDocument(doc)

	require.Len(t, c.Items, 1)
	assert.Equal(t, "p1", c.Items[0].ProductID)
	assert.True(t, c.ExpiresAt.Equal(baseTime))
	assert.Nil(t, FromDocument(nil))
}

func TestCart_DocumentRoundTrip(t *testing.T) {
	c := WithItemAdded(nil, "s1", testProduct("p1", 299), baseTime, time.Hour)

	back := FromDocument(c.ToDocument())

	assert.Equal(t, c.SessionID, back.SessionID)
	assert.Equal(t, c.Fingerprint(), back.Fingerprint())
	assert.True(t, back.ExpiresAt.Equal(baseTime.Add(time.Hour)))
}

// ============================================
// Transform Tests
// ============================================

func TestWithItemAdded(t *testing.T) {
	p1, p2 := testProduct("p1", 299), testProduct("p2", 99)

	c := WithItemAdded(nil, "s1", p1, baseTime, 30*time.Minute)
	c2 := WithItemAdded(c, "s1", p2, baseTime.Add(time.Minute), 30*time.Minute)
	c3 := WithItemAdded(c2, "s1", p1, baseTime.Add(2*time.Minute), 30*time.Minute)

	assert.Len(t, c.Items, 1)
	assert.Equal(t, baseTime.Add(30*time.Minute), c.ExpiresAt)
	require.Len(t, c3.Items, 2)
	assert.Equal(t, "p1", c3.Items[0].ProductID)
	assert.Equal(t, 2, c3.Items[0].Quantity)
	assert.Equal(t, c.ExpiresAt, c3.ExpiresAt, "adding to an existing cart keeps its window")
	assert.Equal(t, baseTime.Add(2*time.Minute), c3.LastUpdated)
	assert.Equal(t, 1, c2.Items[0].Quantity, "earlier values are not mutated")
}

func TestWithItemAdded_FreezesPrice(t *testing.T) {
	p := testProduct("p1", 299)
	c := WithItemAdded(nil, "s1", p, baseTime, time.Hour)

	p.Price = decimal.NewFromInt(999)
	c = WithItemAdded(c, "s1", p, baseTime, time.Hour)

	item, ok := c.Item("p1")
	require.True(t, ok)
	assert.True(t, item.Price.Equal(decimal.NewFromInt(299)))
}

func TestWithQuantity(t *testing.T) {
	c := WithItemAdded(nil, "s1", testProduct("p1", 100), baseTime, time.Hour)

	tests := []struct {
		name     string
		quantity int
		wantLen  int
		wantQty  int
	}{
		{"increase", 3, 1, 3},
		{"zero removes", 0, 0, 0},
		{"negative removes", -1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := WithQuantity(c, "p1", tt.quantity, baseTime)
			assert.Len(t, next.Items, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantQty, next.Items[0].Quantity)
			}
		})
	}
	assert.Nil(t, WithQuantity(nil, "p1", 2, baseTime))
}

func TestWithoutItem(t *testing.T) {
	c := WithItemAdded(nil, "s1", testProduct("p1", 100), baseTime, time.Hour)
	c = WithItemAdded(c, "s1", testProduct("p2", 100), baseTime, time.Hour)

	next := WithoutItem(c, "p1", baseTime.Add(time.Minute))
	unchanged := WithoutItem(c, "missing", baseTime.Add(time.Minute))

	require.Len(t, next.Items, 1)
	assert.Equal(t, "p2", next.Items[0].ProductID)
	assert.Len(t, c.Items, 2)
	assert.Equal(t, c.LastUpdated, unchanged.LastUpdated)
}

// ============================================
// Derived Value Tests
// ============================================

func TestCart_Totals(t *testing.T) {
	c := WithItemAdded(nil, "s1", testProduct("p1", 250), baseTime, time.Hour)
	c = WithItemAdded(c, "s1", testProduct("p1", 250), baseTime, time.Hour)
	c = WithItemAdded(c, "s1", testProduct("p2", 50), baseTime, time.Hour)

	assert.Equal(t, 3, c.ItemCount())
	assert.True(t, c.TotalPrice().Equal(decimal.NewFromInt(550)))

	var empty *Cart
	assert.Zero(t, empty.ItemCount())
	assert.True(t, empty.TotalPrice().IsZero())
	assert.True(t, empty.IsEmpty())
}

func TestCart_Fingerprint(t *testing.T) {
	c := WithItemAdded(nil, "s1", testProduct("p1", 250), baseTime, time.Hour)
	later := c.Clone()
	later.LastUpdated = baseTime.Add(time.Minute)
	changed := WithQuantity(c, "p1", 2, baseTime)

	assert.Equal(t, c.Fingerprint(), later.Fingerprint())
	assert.NotEqual(t, c.Fingerprint(), changed.Fingerprint())
	assert.Empty(t, (*Cart)(nil).Fingerprint())
}

func TestCart_Expired(t *testing.T) {
	c := New("s1", baseTime, time.Hour)

	assert.False(t, c.Expired(baseTime.Add(59*time.Minute)))
	assert.True(t, c.Expired(baseTime.Add(time.Hour)))
}

func TestTimeRemaining(t *testing.T) {
	expiresAt := baseTime.Add(time.Hour)

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"full window", baseTime, "60:00"},
		{"minutes and seconds", expiresAt.Add(-(4*time.Minute + 5*time.Second)), "04:05"},
		{"sub-second rounds down", expiresAt.Add(-1500 * time.Millisecond), "00:01"},
		{"exactly now", expiresAt, "EXPIRED"},
		{"past", expiresAt.Add(time.Second), "EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeRemaining(expiresAt, tt.now))
		})
	}
}
