package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/poster-shop/internal/infrastructure/store"
	"github.com/example/poster-shop/internal/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrInvalidName     = errors.New("name is required")
	ErrInvalidType     = errors.New("type must be poster or sticker")
	ErrInvalidStock    = errors.New("stock must not be negative")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Type distinguishes the two kinds of items the shop sells
type Type string

const (
	TypePoster  Type = "poster"
	TypeSticker Type = "sticker"
)

func (t Type) Valid() bool {
	return t == TypePoster || t == TypeSticker
}

// Product is a catalog entry. Stock is the live count of units available
// to reserve.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        Type            `json:"type"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory,omitempty"`
	Tags        []string        `json:"tags"`
	ImageURL    string          `json:"imageUrl"`
	Description string          `json:"description,omitempty"`
	Stock       int             `json:"stock"`
	Price       decimal.Decimal `json:"price"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// FromDocument maps a stored product, sanitizing price and stock
func FromDocument(id string, doc store.Document) *Product {
	stock := doc.Int("stock")
	if stock < 0 {
		stock = 0
	}
	return &Product{
		ID:          id,
		Name:        doc.String("name"),
		Type:        Type(doc.String("type")),
		Category:    doc.String("category"),
		Subcategory: doc.String("subcategory"),
		Tags:        doc.Strings("tags"),
		ImageURL:    doc.String("imageUrl"),
		Description: doc.String("description"),
		Stock:       stock,
		Price:       money.Sanitize(doc["price"]),
		CreatedAt:   doc.Time("createdAt"),
	}
}

// ToDocument is the stored form of p
func (p *Product) ToDocument() store.Document {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	doc := store.Document{
		"id":          p.ID,
		"name":        p.Name,
		"type":        string(p.Type),
		"category":    p.Category,
		"tags":        tags,
		"imageUrl":    p.ImageURL,
		"description": p.Description,
		"stock":       p.Stock,
		"price":       money.Float(p.Price),
		"createdAt":   store.Millis(p.CreatedAt),
	}
	if p.Subcategory != "" {
		doc["subcategory"] = p.Subcategory
	}
	return doc
}

// NewProduct holds the fields an admin supplies when creating a product
type NewProduct struct {
	Name        string          `json:"name"`
	Type        Type            `json:"type"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Tags        []string        `json:"tags"`
	ImageURL    string          `json:"imageUrl"`
	Description string          `json:"description"`
	Stock       int             `json:"stock"`
	Price       decimal.Decimal `json:"price"`
}

func (n NewProduct) validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return ErrInvalidName
	}
	if !n.Type.Valid() {
		return ErrInvalidType
	}
	if n.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if n.Stock < 0 {
		return ErrInvalidStock
	}
	return nil
}

type Service struct {
	docs store.DocumentStore
	now  func() time.Time
}

func NewService(docs store.DocumentStore) *Service {
	return &Service{docs: docs, now: time.Now}
}

// Get reads the current product including its live stock
func (s *Service) Get(ctx context.Context, productID string) (*Product, error) {
	doc, err := s.docs.Get(ctx, store.CollectionProducts, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", productID, err)
	}
	return FromDocument(productID, doc), nil
}

func (s *Service) query(ctx context.Context, q store.Query) ([]*Product, error) {
	q.OrderBy = []store.OrderBy{{Field: "createdAt", Desc: true}}
	docs, err := s.docs.Query(ctx, store.CollectionProducts, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	products := make([]*Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, FromDocument(doc.String("id"), doc))
	}
	return products, nil
}

// List returns every product, newest first
func (s *Service) List(ctx context.Context) ([]*Product, error) {
	return s.query(ctx, store.Query{})
}

// ListByCategory narrows the catalog to a category and, when given, a subcategory
func (s *Service) ListByCategory(ctx context.Context, category, subcategory string) ([]*Product, error) {
	q := store.Where("category", store.OpEqual, category)
	if subcategory != "" {
		q.Filters = append(q.Filters, store.Filter{Field: "subcategory", Op: store.OpEqual, Value: subcategory})
	}
	return s.query(ctx, q)
}

// Search matches the term against names and tags, ignoring case
func (s *Service) Search(ctx context.Context, term string) ([]*Product, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return all, nil
	}

	var matches []*Product
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			matches = append(matches, p)
			continue
		}
		for _, tag := range p.Tags {
			if strings.Contains(strings.ToLower(tag), needle) {
				matches = append(matches, p)
				break
			}
		}
	}
	return matches, nil
}

func (s *Service) Create(ctx context.Context, input NewProduct) (*Product, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	p := &Product{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(input.Name),
		Type:        input.Type,
		Category:    input.Category,
		Subcategory: input.Subcategory,
		Tags:        input.Tags,
		ImageURL:    input.ImageURL,
		Description: input.Description,
		Stock:       input.Stock,
		Price:       input.Price,
		CreatedAt:   s.now(),
	}
	if err := s.docs.Set(ctx, store.CollectionProducts, p.ID, p.ToDocument()); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return p, nil
}

// UpdatePrice changes the catalog price. Items already in carts keep the
// price they were added at.
func (s *Service) UpdatePrice(ctx context.Context, productID string, price decimal.Decimal) error {
	if price.IsNegative() {
		return ErrInvalidPrice
	}
	err := s.docs.Update(ctx, store.CollectionProducts, productID, store.Document{"price": money.Float(price)})
	if errors.Is(err, store.ErrNotFound) {
		return ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update price of %s: %w", productID, err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, productID string) error {
	if _, err := s.Get(ctx, productID); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, store.CollectionProducts, productID); err != nil {
		return fmt.Errorf("failed to delete product %s: %w", productID, err)
	}
	return nil
}

// AddStock restocks a product atomically and returns the new stock
func (s *Service) AddStock(ctx context.Context, productID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	stock, err := s.docs.AtomicAdjust(ctx, store.CollectionProducts, productID, "stock", quantity)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to restock %s: %w", productID, err)
	}
	return stock, nil
}
