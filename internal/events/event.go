package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope published to the event stream
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Decode unmarshals the event payload into v
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// Publisher sends events keyed by aggregate id. kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// New builds an envelope around data
func New(aggregateType, aggregateID, eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          raw,
		Timestamp:     time.Now(),
	}, nil
}

// Emit publishes an event and logs failures. Event delivery never fails the
// operation that produced it.
func Emit(ctx context.Context, pub Publisher, aggregateType, aggregateID, eventType string, data any) {
	if pub == nil {
		return
	}
	event, err := New(aggregateType, aggregateID, eventType, data)
	if err != nil {
		log.Printf("[Events] %v", err)
		return
	}
	if err := pub.Publish(ctx, aggregateID, event); err != nil {
		log.Printf("[Events] Failed to publish %s for %s: %v", eventType, aggregateID, err)
	}
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(ctx context.Context, key string, event any) error { return nil }

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(ctx context.Context, key string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if e, ok := event.(Event); ok {
		r.events = append(r.events, e)
	}
	return nil
}

// Events returns recorded events, optionally filtered by type
func (r *Recorder) Events(eventType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if eventType == "" || e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
