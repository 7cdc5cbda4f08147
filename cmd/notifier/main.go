package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/poster-shop/internal/bootstrap"
	"github.com/example/poster-shop/internal/config"
	"github.com/example/poster-shop/internal/events"
	"github.com/example/poster-shop/internal/infrastructure/kafka"
	"github.com/example/poster-shop/internal/notification"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Notifier] Invalid configuration: %v", err)
	}
	if !cfg.KafkaEnabled() {
		log.Fatal("[Notifier] KAFKA_BROKERS is required")
	}

	log.Println("[Notifier] ========================================")
	log.Println("[Notifier] Postro - Invoice Email Retry Service")
	log.Println("[Notifier] ========================================")
	log.Printf("[Notifier] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[Notifier] Topic: %s", cfg.KafkaTopic)
	log.Printf("[Notifier] Group: %s", cfg.KafkaGroup)
	log.Printf("[Notifier] Store: %s", cfg.StoreBackend)

	docs, closeDocs, err := bootstrap.OpenDocuments(ctx, cfg)
	if err != nil {
		log.Fatalf("[Notifier] Failed to open document store: %v", err)
	}
	defer closeDocs()

	// Retries must not announce again or the notifier would consume its own events
	services := bootstrap.NewServices(cfg, docs, events.Nop{})
	handler := notification.NewHandler(services.Finalizer)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup)
	defer consumer.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Println("[Notifier] Starting event consumer...")
		if err := consumer.Consume(ctx, kafka.Decoded(handler.HandleEvent)); err != nil && ctx.Err() == nil {
			log.Printf("[Notifier] Consumer error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-done:
	}

	log.Println("[Notifier] Shutting down...")
	cancel()
	<-done
}
