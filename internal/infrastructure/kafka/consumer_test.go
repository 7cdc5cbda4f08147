package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/example/poster-shop/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoded_PassesEnvelope(t *testing.T) {
	event, err := events.New("Invoice", "inv-1", "InvoiceCreated", map[string]string{"status": "pending-email"})
	require.NoError(t, err)
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var got events.Event
	handler := Decoded(func(ctx context.Context, e events.Event) error {
		got = e
		return nil
	})

	require.NoError(t, handler(context.Background(), []byte("inv-1"), raw))
	assert.Equal(t, "InvoiceCreated", got.EventType)
	assert.Equal(t, "inv-1", got.AggregateID)
}

func TestDecoded_SkipsGarbage(t *testing.T) {
	called := false
	handler := Decoded(func(ctx context.Context, e events.Event) error {
		called = true
		return nil
	})

	err := handler(context.Background(), []byte("k"), []byte("not json"))

	assert.NoError(t, err)
	assert.False(t, called)
}
