package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/anbibu/bookstore/internal/settlement"
)

// NewRouter mounts the marketplace routes on a chi router.
func NewRouter(db *sql.DB, coordinator *settlement.Coordinator) http.Handler {
	h := &Handlers{
		db:          db,
		coordinator: coordinator,
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/order", func(r chi.Router) {
		r.Post("/BuyBook", h.BuyBook)
		// Called by the gateway, unauthenticated and at-least-once.
		r.Get("/verify-payment/{txRef}", h.VerifyPayment)
		r.Patch("/finish/{id}", h.FinishOrder)
		r.Patch("/cancel/{id}", h.CancelOrder)
		r.Get("/history", h.OrderHistory)
	})

	r.Route("/books", func(r chi.Router) {
		r.Post("/", h.CreateBook)
		r.Get("/", h.ListBooks)
		r.Get("/{id}", h.GetBook)
	})

	r.Route("/sellers", func(r chi.Router) {
		r.Post("/", h.CreateSeller)
		r.Get("/{id}", h.GetSeller)
	})

	return r
}
