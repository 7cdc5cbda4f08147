package kafka

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/poster-shop/internal/events"
	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

// EventHandler receives decoded envelopes
type EventHandler func(ctx context.Context, event events.Event) error

// Decoded adapts an EventHandler to raw messages. Undecodable messages are
// logged and skipped.
func Decoded(handler EventHandler) MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		var event events.Event
		if err := json.Unmarshal(value, &event); err != nil {
			log.Printf("[Kafka] Skipping undecodable message %s: %v", key, err)
			return nil
		}
		return handler(ctx, event)
	}
}

type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Consume blocks until ctx is done. Handler errors are logged; the offset is
// committed either way so one bad invoice cannot stall the group.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[Kafka] Error reading message: %v", err)
				continue
			}

			if err := handler(ctx, msg.Key, msg.Value); err != nil {
				log.Printf("[Kafka] Error handling message %s: %v", msg.Key, err)
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
