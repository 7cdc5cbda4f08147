package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/poster-shop/internal/events"
	"github.com/segmentio/kafka-go"
)

const headerEventType = "event_type"

// Producer publishes shop events (sales, cart expiry, invoices) to one topic
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{writer: writer}
}

// Publish writes event as JSON. Messages are keyed by aggregate id so one
// cart or invoice always lands on the same partition.
func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if e, ok := event.(events.Event); ok {
		msg.Headers = append(msg.Headers, kafka.Header{Key: headerEventType, Value: []byte(e.EventType)})
	}

	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

var _ events.Publisher = (*Producer)(nil)
