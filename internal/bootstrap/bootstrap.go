// Package bootstrap wires the shop's infrastructure and services from
// configuration. Every binary under cmd/ starts here.
package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/poster-shop/internal/cartstate"
	"github.com/example/poster-shop/internal/checkout"
	"github.com/example/poster-shop/internal/config"
	"github.com/example/poster-shop/internal/domain/cart"
	"github.com/example/poster-shop/internal/domain/inventory"
	"github.com/example/poster-shop/internal/domain/invoice"
	"github.com/example/poster-shop/internal/domain/product"
	"github.com/example/poster-shop/internal/domain/saleslog"
	"github.com/example/poster-shop/internal/email"
	"github.com/example/poster-shop/internal/events"
	"github.com/example/poster-shop/internal/infrastructure/kafka"
	"github.com/example/poster-shop/internal/infrastructure/localstore"
	"github.com/example/poster-shop/internal/infrastructure/store"
)

const cacheKeyPrefix = "postro:"

// OpenDocuments connects the configured document backend. The returned
// close func releases its connections.
func OpenDocuments(ctx context.Context, cfg *config.Config) (store.DocumentStore, func(), error) {
	var (
		docs    store.DocumentStore
		closeFn = func() {}
	)

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		ps := store.NewPostgresStore(db)
		if err := ps.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := ps.Listen(ctx, cfg.DatabaseURL); err != nil {
			log.Printf("[Bootstrap] Change notifications unavailable, subscribers only see local writes: %v", err)
		}
		log.Println("[Bootstrap] Connected to PostgreSQL")
		docs = ps
		closeFn = func() { db.Close() }

	case config.BackendDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
			}
		})
		log.Printf("[Bootstrap] Using DynamoDB table %s", cfg.DynamoTable)
		docs = store.NewDynamoStore(client, cfg.DynamoTable)

	default:
		log.Println("[Bootstrap] Using in-memory documents (data is lost on exit)")
		docs = store.NewMemoryStore()
	}

	return store.WithTimeout(docs, cfg.RemoteTimeout), closeFn, nil
}

// OpenPublisher returns a Kafka producer when brokers are configured and a
// no-op publisher otherwise.
func OpenPublisher(cfg *config.Config) (events.Publisher, func()) {
	if !cfg.KafkaEnabled() {
		log.Println("[Bootstrap] Kafka disabled, events are not published")
		return events.Nop{}, func() {}
	}
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	log.Printf("[Bootstrap] Publishing events to %s on %v", cfg.KafkaTopic, cfg.KafkaBrokers)
	return producer, func() {
		if err := producer.Close(); err != nil {
			log.Printf("[Bootstrap] Failed to close producer: %v", err)
		}
	}
}

// OpenCartCache keeps cached carts in Redis when REDIS_URL is set, in
// process memory otherwise.
func OpenCartCache(cfg *config.Config) (*cartstate.Cache, func()) {
	if cfg.RedisURL == "" {
		return cartstate.NewCache(localstore.NewMemoryStorage(), cfg.CartCacheTTL), func() {}
	}
	client, err := localstore.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Printf("[Bootstrap] Redis unavailable, caching carts in memory: %v", err)
		return cartstate.NewCache(localstore.NewMemoryStorage(), cfg.CartCacheTTL), func() {}
	}
	storage := localstore.NewRedisStorage(client, cacheKeyPrefix, cfg.CartCacheTTL)
	return cartstate.NewCache(storage, cfg.CartCacheTTL), func() { client.Close() }
}

// Services are the domain services shared by the binaries
type Services struct {
	Products  *product.Service
	Sales     *saleslog.Service
	Inventory *inventory.Service
	Carts     *cart.Service
	Invoices  *invoice.Service
	Mailer    *email.Service
	Finalizer *checkout.Finalizer
}

func NewServices(cfg *config.Config, docs store.DocumentStore, publisher events.Publisher) *Services {
	sales := saleslog.NewService(docs, publisher)
	stock := inventory.NewService(docs, sales)
	carts := cart.NewService(docs, stock, publisher, cfg.ReservationWindow)
	invoices := invoice.NewService(docs, publisher)

	mailer := email.NewService(email.Config{
		APIURL:      cfg.EmailAPIURL,
		ServiceID:   cfg.EmailServiceID,
		TemplateID:  cfg.EmailTemplateID,
		PublicKey:   cfg.EmailPublicKey,
		AccessToken: cfg.EmailAccessToken,
	})
	if !mailer.Configured() {
		log.Println("[Bootstrap] Email delivery is not configured, invoices stay pending-email")
	}

	return &Services{
		Products:  product.NewService(docs),
		Sales:     sales,
		Inventory: stock,
		Carts:     carts,
		Invoices:  invoices,
		Mailer:    mailer,
		Finalizer: checkout.NewFinalizer(invoices, carts, mailer, cfg.ShippingFee),
	}
}

// SyncPolicy maps SYNC_REFETCH_AFTER onto a reconciler policy
func SyncPolicy(cfg *config.Config) cartstate.SyncFailurePolicy {
	if cfg.SyncRefetchAfter > 0 {
		return cartstate.RefetchAfter(cfg.SyncRefetchAfter)
	}
	return cartstate.KeepLocal{}
}
