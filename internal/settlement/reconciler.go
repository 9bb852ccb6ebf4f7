package settlement

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/anbibu/bookstore/internal/store"
)

const reconcileBatchSize = 100

// Reconciler periodically re-queries the gateway for pending orders whose
// confirmation callback never arrived, either because it was lost or because
// a gateway call timed out with an unknown outcome.
type Reconciler struct {
	db          *sql.DB
	coordinator *Coordinator
	interval    time.Duration
	minAge      time.Duration
}

func NewReconciler(db *sql.DB, coordinator *Coordinator, interval, minAge time.Duration) *Reconciler {
	return &Reconciler{
		db:          db,
		coordinator: coordinator,
		interval:    interval,
		minAge:      minAge,
	}
}

// Run sweeps until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one reconciliation pass. ConfirmPayment re-verifies with the
// gateway, so an order whose payment never settled is simply skipped until
// the next pass.
func (r *Reconciler) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.minAge)

	orders, err := store.ListPendingUnverified(ctx, r.db, cutoff, reconcileBatchSize)
	if err != nil {
		log.Printf("[reconciler] list pending orders: %v", err)
		return
	}

	if len(orders) == 0 {
		return
	}

	log.Printf("[reconciler] checking %d pending order(s) older than %s", len(orders), r.minAge)

	for _, order := range orders {
		status, err := r.coordinator.ConfirmPayment(ctx, order.TxRef)
		if err != nil {
			log.Printf("[reconciler] tx_ref=%s: %v", order.TxRef, err)
			continue
		}
		log.Printf("[reconciler] tx_ref=%s: %s", order.TxRef, status)
	}
}
