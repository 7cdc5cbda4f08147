package product

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/example/poster-shop/internal/infrastructure/store"
	"github.com/example/poster-shop/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"
)

func newTestProductService() (*Service, *mocks.MockDocumentStore) {
	docs := mocks.NewMockDocumentStore()
	service := NewService(docs)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	service.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return service, docs
}

func validProduct(name string) NewProduct {
	return NewProduct{
		Name:     name,
		Type:     TypePoster,
		Category: "anime",
		Tags:     []string{"retro", "a3"},
		Stock:    5,
		Price:    decimal.NewFromInt(299),
	}
}

// ============================================
// Create Tests
// ============================================

func TestService_Create_Success(t *testing.T) {
	service, docs := newTestProductService()
	ctx := context.Background()

	p, err := service.Create(ctx, validProduct("Akira"))

	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	require.Len(t, docs.SetCalls, 1)
	assert.Equal(t, store.CollectionProducts, docs.SetCalls[0].Collection)

	stored, err := service.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Akira", stored.Name)
	assert.Equal(t, 5, stored.Stock)
	assert.True(t, decimal.NewFromInt(299).Equal(stored.Price))
	assert.Equal(t, []string{"retro", "a3"}, stored.Tags)
}

func TestService_Create_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*NewProduct)
		wantErr error
	}{
		{"empty name", func(n *NewProduct) { n.Name = "  " }, ErrInvalidName},
		{"unknown type", func(n *NewProduct) { n.Type = "mug" }, ErrInvalidType},
		{"negative price", func(n *NewProduct) { n.Price = decimal.NewFromInt(-1) }, ErrInvalidPrice},
		{"negative stock", func(n *NewProduct) { n.Stock = -2 }, ErrInvalidStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, docs := newTestProductService()
			input := validProduct("Akira")
			tt.mutate(&input)

			_, err := service.Create(context.Background(), input)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, docs.SetCalls)
		})
	}
}

// ============================================
// Read Tests
// ============================================

func TestService_Get_NotFound(t *testing.T) {
	service, _ := newTestProductService()

	_, err := service.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestFromDocument_SanitizesLegacyValues(t *testing.T) {
	p := FromDocument("p1", store.Document{
		"name":  "Old Poster",
		"price": "not a price",
		"stock": float64(-3),
	})

	assert.True(t, p.Price.IsZero())
	assert.Equal(t, 0, p.Stock)
}

func TestService_List_NewestFirst(t *testing.T) {
	service, _ := newTestProductService()
	ctx := context.Background()
	first, err := service.Create(ctx, validProduct("First"))
	require.NoError(t, err)
	second, err := service.Create(ctx, validProduct("Second"))
	require.NoError(t, err)

	products, err := service.List(ctx)

	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, second.ID, products[0].ID)
	assert.Equal(t, first.ID, products[1].ID)
}

func TestService_ListByCategory(t *testing.T) {
	service, _ := newTestProductService()
	ctx := context.Background()

	anime := validProduct("Totoro")
	anime.Subcategory = "ghibli"
	_, err := service.Create(ctx, anime)
	require.NoError(t, err)
	movie := validProduct("Heat")
	movie.Category = "movies"
	_, err = service.Create(ctx, movie)
	require.NoError(t, err)
	_, err = service.Create(ctx, validProduct("Akira"))
	require.NoError(t, err)

	all, err := service.ListByCategory(ctx, "anime", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ghibli, err := service.ListByCategory(ctx, "anime", "ghibli")
	require.NoError(t, err)
	require.Len(t, ghibli, 1)
	assert.Equal(t, "Totoro", ghibli[0].Name)
}

func TestService_Search(t *testing.T) {
	service, _ := newTestProductService()
	ctx := context.Background()
	_, err := service.Create(ctx, validProduct("Neon Tokyo"))
	require.NoError(t, err)
	other := validProduct("Desert")
	other.Tags = []string{"Minimal"}
	_, err = service.Create(ctx, other)
	require.NoError(t, err)

	tests := []struct {
		term string
		want int
	}{
		{"tokyo", 1},
		{"MINIMAL", 1},
		{"retro", 1},
		{"", 2},
		{"nothing", 0},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got, err := service.Search(ctx, tt.term)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

// ============================================
// Update / Delete / Restock Tests
// ============================================

func TestService_UpdatePrice(t *testing.T) {
	service, _ := newTestProductService()
	ctx := context.Background()
	p, err := service.Create(ctx, validProduct("Akira"))
	require.NoError(t, err)

	require.NoError(t, service.UpdatePrice(ctx, p.ID, decimal.RequireFromString("349.5")))

	updated, err := service.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "349.5", updated.Price.String())
	assert.ErrorIs(t, service.UpdatePrice(ctx, p.ID, decimal.NewFromInt(-1)), ErrInvalidPrice)
	assert.ErrorIs(t, service.UpdatePrice(ctx, "missing", decimal.NewFromInt(1)), ErrProductNotFound)
}

func TestService_Delete(t *testing.T) {
	service, _ := newTestProductService()
	ctx := context.Background()
	p, err := service.Create(ctx, validProduct("Akira"))
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, p.ID))

	_, err = service.Get(ctx, p.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, service.Delete(ctx, p.ID), ErrProductNotFound)
}

func TestService_AddStock(t *testing.T) {
	service, docs := newTestProductService()
	ctx := context.Background()
	p, err := service.Create(ctx, validProduct("Akira"))
	require.NoError(t, err)

	stock, err := service.AddStock(ctx, p.ID, 10)

	require.NoError(t, err)
	assert.Equal(t, 15, stock)
	require.Len(t, docs.AdjustCalls, 1)
	assert.Equal(t, 10, docs.AdjustCalls[0].Delta)

	_, err = service.AddStock(ctx, p.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = service.AddStock(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

// ============================================
// Export Tests
// ============================================

func TestWriteSpreadsheet(t *testing.T) {
	products := []*Product{
		{ID: "p1", Name: "Akira", Type: TypePoster, Category: "anime", Tags: []string{"retro"}, Stock: 3, Price: decimal.NewFromInt(299)},
		{ID: "p2", Name: "Cat", Type: TypeSticker, Category: "cute", Stock: 0, Price: decimal.NewFromInt(49)},
	}
	var buf bytes.Buffer

	require.NoError(t, WriteSpreadsheet(&buf, products))

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)
	rows := file.Sheets[0].Rows
	require.Len(t, rows, 3)
	assert.Equal(t, "Name", rows[0].Cells[1].String())
	assert.Equal(t, "Akira", rows[1].Cells[1].String())
	assert.Equal(t, "sticker", rows[2].Cells[2].String())
}
