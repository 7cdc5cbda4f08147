package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/example/poster-shop/internal/api"
	"github.com/example/poster-shop/internal/auth"
	"github.com/example/poster-shop/internal/bootstrap"
	"github.com/example/poster-shop/internal/cartstate"
	"github.com/example/poster-shop/internal/config"
	"github.com/example/poster-shop/internal/sweeper"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] Invalid configuration: %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] Postro - Cart & Reservation API")
	log.Println("[API] ========================================")
	log.Printf("[API] Store: %s", cfg.StoreBackend)
	log.Printf("[API] Reservation window: %s", cfg.ReservationWindow)
	log.Printf("[API] Sweep interval: %s", cfg.SweepInterval)

	docs, closeDocs, err := bootstrap.OpenDocuments(ctx, cfg)
	if err != nil {
		log.Fatalf("[API] Failed to open document store: %v", err)
	}
	defer closeDocs()

	publisher, closePublisher := bootstrap.OpenPublisher(cfg)
	defer closePublisher()

	cache, closeCache := bootstrap.OpenCartCache(cfg)
	defer closeCache()

	services := bootstrap.NewServices(cfg, docs, publisher)

	// Admin console
	jwtService := auth.NewJWTService(cfg.JWTSecret, 15*time.Minute, 7*24*time.Hour)
	if cfg.AdminEnabled() {
		if err := cfg.CheckJWTSecret(); err != nil {
			log.Fatalf("[API] %v", err)
		}
		if err := auth.CheckHash(cfg.AdminPasswordHash); err != nil {
			log.Fatalf("[API] ADMIN_PASSWORD_HASH: %v", err)
		}
		log.Printf("[API] Admin console enabled for %s", cfg.AdminUsername)
	} else {
		log.Println("[API] Admin console disabled (ADMIN_USERNAME / ADMIN_PASSWORD_HASH not set)")
	}
	admin := auth.NewAdmin(cfg.AdminUsername, cfg.AdminPasswordHash, jwtService)

	// One reconciler per live session
	notices := api.NewNoticeHub(cartstate.LogNotifier{})
	policy := bootstrap.SyncPolicy(cfg)
	registry := cartstate.NewRegistry(func(sessionID string) *cartstate.Reconciler {
		return cartstate.New(sessionID, services.Carts, services.Products, cartstate.Options{
			Cache:    cache,
			Notifier: notices,
			Policy:   policy,
		})
	}, cartstate.DefaultIdleTimeout)
	defer registry.Close()

	sweep := sweeper.New(services.Carts, cfg.SweepInterval)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sweep.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		registry.Run(ctx, time.Minute)
	}()

	router := api.NewRouter(api.RouterConfig{
		Catalog:  api.NewCatalogHandlers(services.Products),
		Cart:     api.NewCartHandlers(registry, notices, cfg.CORSOrigins),
		Checkout: api.NewCheckoutHandlers(registry, services.Finalizer, services.Invoices),
		Admin: api.NewAdminHandlers(api.AdminDeps{
			Admin:        admin,
			Carts:        services.Carts,
			Sweeper:      sweep,
			Invoices:     services.Invoices,
			Finalizer:    services.Finalizer,
			Sales:        services.Sales,
			CookieSecure: cfg.CookieSecure,
		}),
		JWTService:     jwtService,
		AllowedOrigins: cfg.CORSOrigins,
		CookieSecure:   cfg.CookieSecure,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Println("[API] ========================================")
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		log.Println("[API] ========================================")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API] Shutdown error: %v", err)
	}

	wg.Wait()
}
