package saleslog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/example/poster-shop/internal/events"
	"github.com/example/poster-shop/internal/infrastructure/store"
	"github.com/google/uuid"
)

const (
	AggregateType   = "SaleLog"
	EventSaleLogged = "SaleLogged"

	recentLimit   = 50
	topSellerSize = 10
)

// Entry is one append-only record of a product entering a cart
type Entry struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	Timestamp   time.Time `json:"timestamp"`
	StockBefore int       `json:"stockBefore"`
	StockAfter  int       `json:"stockAfter"`
}

func (e *Entry) toDocument() store.Document {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return store.Document{
		"id":          e.ID,
		"productId":   e.ProductID,
		"productName": e.ProductName,
		"category":    e.Category,
		"tags":        tags,
		"timestamp":   store.Millis(e.Timestamp),
		"stockBefore": e.StockBefore,
		"stockAfter":  e.StockAfter,
	}
}

func fromDocument(doc store.Document) Entry {
	return Entry{
		ID:          doc.String("id"),
		ProductID:   doc.String("productId"),
		ProductName: doc.String("productName"),
		Category:    doc.String("category"),
		Tags:        doc.Strings("tags"),
		Timestamp:   doc.Time("timestamp"),
		StockBefore: doc.Int("stockBefore"),
		StockAfter:  doc.Int("stockAfter"),
	}
}

// TopSeller counts how often a product name was logged
type TopSeller struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
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

// Record appends an entry; ID and Timestamp are filled in when empty
func (s *Service) Record(ctx context.Context, entry Entry) (*Entry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	if err := s.docs.Set(ctx, store.CollectionSalesLog, entry.ID, entry.toDocument()); err != nil {
		return nil, fmt.Errorf("failed to record sale of %s: %w", entry.ProductID, err)
	}
	events.Emit(ctx, s.publisher, AggregateType, entry.ProductID, EventSaleLogged, entry)
	return &entry, nil
}

func (s *Service) query(ctx context.Context, q store.Query) ([]Entry, error) {
	q.OrderBy = []store.OrderBy{{Field: "timestamp", Desc: true}}
	docs, err := s.docs.Query(ctx, store.CollectionSalesLog, q)
	if err != nil {
		return nil, fmt.Errorf("failed to read sales log: %w", err)
	}
	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, fromDocument(doc))
	}
	return entries, nil
}

// All returns every entry, newest first
func (s *Service) All(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, store.Query{})
}

// Recent returns the newest entries; a non-positive limit means 50
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = recentLimit
	}
	return s.query(ctx, store.Query{Limit: limit})
}

func (s *Service) ByProduct(ctx context.Context, productID string) ([]Entry, error) {
	return s.query(ctx, store.Where("productId", store.OpEqual, productID))
}

func (s *Service) ByCategory(ctx context.Context, category string) ([]Entry, error) {
	return s.query(ctx, store.Where("category", store.OpEqual, category))
}

// Between returns entries with from <= timestamp <= to
func (s *Service) Between(ctx context.Context, from, to time.Time) ([]Entry, error) {
	return s.query(ctx, store.Query{Filters: []store.Filter{
		{Field: "timestamp", Op: store.OpGreaterEqual, Value: store.Millis(from)},
		{Field: "timestamp", Op: store.OpLessEqual, Value: store.Millis(to)},
	}})
}

func (s *Service) Count(ctx context.Context) (int, error) {
	entries, err := s.query(ctx, store.Query{})
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// TopSellers ranks product names by number of entries
func (s *Service) TopSellers(ctx context.Context) ([]TopSeller, error) {
	entries, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.ProductName]++
	}
	ranked := make([]TopSeller, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, TopSeller{Name: name, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > topSellerSize {
		ranked = ranked[:topSellerSize]
	}
	return ranked, nil
}

// Clear deletes every entry and returns how many were removed
func (s *Service) Clear(ctx context.Context) (int, error) {
	entries, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := s.docs.Delete(ctx, store.CollectionSalesLog, e.ID); err != nil {
			return i, fmt.Errorf("failed to clear sales log: %w", err)
		}
	}
	return len(entries), nil
}
