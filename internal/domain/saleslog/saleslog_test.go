package saleslog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/poster-shop/internal/events"
	"github.com/example/poster-shop/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSalesLog() (*Service, *mocks.MockDocumentStore, *events.Recorder) {
	docs := mocks.NewMockDocumentStore()
	rec := events.NewRecorder()
	return NewService(docs, rec), docs, rec
}

func record(t *testing.T, s *Service, name, category string, at time.Time) {
	t.Helper()
	_, err := s.Record(context.Background(), Entry{
		ProductID:   "id-" + name,
		ProductName: name,
		Category:    category,
		Timestamp:   at,
		StockBefore: 5,
		StockAfter:  4,
	})
	require.NoError(t, err)
}

// ============================================
// Record Tests
// ============================================

func TestService_Record(t *testing.T) {
	s, docs, rec := newTestSalesLog()

	entry, err := s.Record(context.Background(), Entry{ProductID: "p1", ProductName: "Akira", StockBefore: 2, StockAfter: 1})

	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
	assert.Len(t, docs.SetCalls, 1)
	require.Len(t, rec.Events(EventSaleLogged), 1)
	assert.Equal(t, "p1", rec.Events(EventSaleLogged)[0].AggregateID)
}

func TestService_Record_StoreFailure(t *testing.T) {
	s, docs, rec := newTestSalesLog()
	docs.SetErr = errors.New("write failed")

	_, err := s.Record(context.Background(), Entry{ProductID: "p1"})

	assert.Error(t, err)
	assert.Empty(t, rec.Events(""))
}

// ============================================
// Analytics Tests
// ============================================

func TestService_Queries(t *testing.T) {
	s, _, _ := newTestSalesLog()
	ctx := context.Background()
	record(t, s, "Akira", "anime", baseTime)
	record(t, s, "Akira", "anime", baseTime.Add(time.Hour))
	record(t, s, "Heat", "movies", baseTime.Add(2*time.Hour))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Heat", all[0].ProductName)

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	byProduct, err := s.ByProduct(ctx, "id-Akira")
	require.NoError(t, err)
	assert.Len(t, byProduct, 2)

	byCategory, err := s.ByCategory(ctx, "movies")
	require.NoError(t, err)
	assert.Len(t, byCategory, 1)

	between, err := s.Between(ctx, baseTime.Add(30*time.Minute), baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, between, 2)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestService_TopSellers(t *testing.T) {
	s, _, _ := newTestSalesLog()
	for i := 0; i < 12; i++ {
		record(t, s, string(rune('A'+i)), "misc", baseTime.Add(time.Duration(i)*time.Minute))
	}
	record(t, s, "C", "misc", baseTime.Add(time.Hour))

	top, err := s.TopSellers(context.Background())

	require.NoError(t, err)
	require.Len(t, top, 10)
	assert.Equal(t, TopSeller{Name: "C", Count: 2}, top[0])
	assert.Equal(t, "A", top[1].Name)
}

func TestService_Clear(t *testing.T) {
	s, _, _ := newTestSalesLog()
	ctx := context.Background()
	record(t, s, "Akira", "anime", baseTime)
	record(t, s, "Heat", "movies", baseTime)

	removed, err := s.Clear(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
