package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/anbibu/bookstore/internal/api"
	"github.com/anbibu/bookstore/internal/config"
	"github.com/anbibu/bookstore/internal/database"
	"github.com/anbibu/bookstore/internal/email"
	"github.com/anbibu/bookstore/internal/outbox"
	"github.com/anbibu/bookstore/internal/payment"
	"github.com/anbibu/bookstore/internal/settlement"
	"github.com/anbibu/bookstore/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	gateway := payment.NewChapaClient(&cfg.Gateway)
	remover := storage.NewHTTPRemover(&cfg.Storage)
	mailer := email.NewSMTPMailer(&cfg.SMTP)

	coordinator := settlement.NewCoordinator(db, gateway, remover, settlement.Options{
		Currency:         cfg.Gateway.Currency,
		FeeRate:          cfg.Gateway.FeeRate,
		CallbackBaseURL:  cfg.Server.BaseURL,
		FallbackBankCode: cfg.Gateway.PayoutBank,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := outbox.NewDispatcher(db, gateway, mailer, cfg.Outbox.PollInterval, cfg.Outbox.MaxAttempts)
	go dispatcher.Run(ctx)

	reconciler := settlement.NewReconciler(db, coordinator, cfg.Reconciler.Interval, cfg.Reconciler.MinAge)
	go reconciler.Run(ctx)

	router := api.NewRouter(db, coordinator)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		log.Printf("Shutting down")
		server.Shutdown(context.Background())
	}()

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
