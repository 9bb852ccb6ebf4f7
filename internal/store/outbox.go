package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anbibu/bookstore/internal/database"
	"github.com/anbibu/bookstore/internal/models"
)

// EnqueueJob inserts a pending outbox job inside the caller's transaction,
// so the job commits atomically with the state change that caused it.
func EnqueueJob(ctx context.Context, tx *sql.Tx, kind string, payload []byte) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO outbox_jobs (kind, payload, status, attempts, next_attempt_at, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, NOW(), NOW(), NOW())
		 RETURNING id`,
		kind, payload, models.JobStatusPending).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s job: %w", kind, err)
	}

	return id, nil
}

// ClaimNextJob locks the oldest due pending job. SKIP LOCKED lets concurrent
// dispatchers drain the queue without contending on the same row.
func ClaimNextJob(ctx context.Context, tx *sql.Tx) (*models.OutboxJob, error) {
	job := &models.OutboxJob{}

	query := `
		SELECT id, kind, payload, status, attempts, next_attempt_at, last_error, created_at, updated_at
		FROM outbox_jobs
		WHERE status = $1
		  AND next_attempt_at <= NOW()
		ORDER BY next_attempt_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1`

	err := tx.QueryRowContext(ctx, query, models.JobStatusPending).Scan(
		&job.ID,
		&job.Kind,
		&job.Payload,
		&job.Status,
		&job.Attempts,
		&job.NextAttemptAt,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrJobNotFound
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}

	return job, nil
}

func MarkJobDone(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE outbox_jobs
		 SET status = $1, updated_at = NOW()
		 WHERE id = $2`,
		models.JobStatusDone, id)
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}

// MarkJobFailed records a failed attempt. Below maxAttempts the job stays
// pending with its next attempt pushed out by backoff; at maxAttempts it is
// parked as failed for manual reconciliation.
func MarkJobFailed(ctx context.Context, tx *sql.Tx, id int64, attemptErr error, backoff time.Duration, maxAttempts int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE outbox_jobs
		 SET attempts = attempts + 1,
		     last_error = $1,
		     status = CASE WHEN attempts + 1 >= $2 THEN '`+models.JobStatusFailed+`' ELSE '`+models.JobStatusPending+`' END,
		     next_attempt_at = NOW() + $3 * INTERVAL '1 millisecond',
		     updated_at = NOW()
		 WHERE id = $4`,
		attemptErr.Error(), maxAttempts, backoff.Milliseconds(), id)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

// CountJobs returns the number of jobs of a kind in the given status. It is
// meant for operator tooling and queue-depth checks; nothing on the dispatch
// path depends on it.
func CountJobs(ctx context.Context, db *sql.DB, kind, status string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox_jobs WHERE kind = $1 AND status = $2`,
		kind, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}
