// Package outbox drains the durable side-effect queue. Payouts and buyer
// emails are committed as outbox rows alongside the settlement transaction and
// delivered from here, so transient failures retry across process restarts.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/anbibu/bookstore/internal/database"
	"github.com/anbibu/bookstore/internal/email"
	"github.com/anbibu/bookstore/internal/models"
	"github.com/anbibu/bookstore/internal/payment"
	"github.com/anbibu/bookstore/internal/store"
)

const baseRetryDelay = 30 * time.Second

type Dispatcher struct {
	db           *sql.DB
	gateway      payment.Gateway
	mailer       email.Mailer
	pollInterval time.Duration
	maxAttempts  int
}

func NewDispatcher(db *sql.DB, gateway payment.Gateway, mailer email.Mailer, pollInterval time.Duration, maxAttempts int) *Dispatcher {
	return &Dispatcher{
		db:           db,
		gateway:      gateway,
		mailer:       mailer,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

// Run polls for due jobs until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain processes due jobs until the queue is empty. Each job is claimed,
// executed and resolved inside one transaction; SKIP LOCKED keeps concurrent
// dispatchers off each other's rows.
func (d *Dispatcher) Drain(ctx context.Context) {
	for {
		processed, err := d.processOne(ctx)
		if err != nil {
			log.Printf("[outbox] process job: %v", err)
			return
		}
		if !processed {
			return
		}
	}
}

func (d *Dispatcher) processOne(ctx context.Context) (bool, error) {
	var processed bool

	err := database.WithTransaction(ctx, d.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		job, err := store.ClaimNextJob(ctx, tx)
		if err != nil {
			if err == database.ErrJobNotFound {
				return nil
			}
			return err
		}
		processed = true

		if execErr := d.execute(ctx, job); execErr != nil {
			delay := retryDelay(job.Attempts)
			log.Printf("[outbox] %s job %d attempt %d failed (retry in %s): %v",
				job.Kind, job.ID, job.Attempts+1, delay, execErr)
			if job.Attempts+1 >= d.maxAttempts {
				log.Printf("ALERT [outbox] %s job %d exhausted %d attempts, parked for manual reconciliation",
					job.Kind, job.ID, d.maxAttempts)
			}
			return store.MarkJobFailed(ctx, tx, job.ID, execErr, delay, d.maxAttempts)
		}

		return store.MarkJobDone(ctx, tx, job.ID)
	})

	return processed, err
}

func (d *Dispatcher) execute(ctx context.Context, job *models.OutboxJob) error {
	switch job.Kind {
	case models.JobKindPayout:
		var p PayoutPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal payout payload: %w", err)
		}
		return d.gateway.Transfer(ctx, payment.TransferRequest{
			AccountName:   p.AccountName,
			AccountNumber: p.AccountNumber,
			BankCode:      p.BankCode,
			Amount:        p.Amount,
			Currency:      p.Currency,
			Reference:     p.Reference,
		})

	case models.JobKindEmail:
		var p EmailPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal email payload: %w", err)
		}
		return d.mailer.Send(p.To, p.Subject, p.Body)

	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func retryDelay(attempts int) time.Duration {
	delay := baseRetryDelay
	for i := 0; i < attempts && delay < 30*time.Minute; i++ {
		delay *= 2
	}
	return delay
}
