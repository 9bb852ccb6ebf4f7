package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/anbibu/bookstore/internal/database"
	"github.com/anbibu/bookstore/internal/models"
	"github.com/anbibu/bookstore/internal/store"
	"github.com/anbibu/bookstore/internal/testutil"
)

func TestOutboxClaimAndResolve(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		_, err := store.EnqueueJob(ctx, tx, models.JobKindEmail, []byte(`{"to":"a@b.c"}`))
		return err
	})
	if err != nil {
		t.Fatalf("Enqueue job: %v", err)
	}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		job, err := store.ClaimNextJob(ctx, tx)
		if err != nil {
			return err
		}
		if job.Kind != models.JobKindEmail {
			t.Errorf("Expected email job, got %s", job.Kind)
		}
		return store.MarkJobDone(ctx, tx, job.ID)
	})
	if err != nil {
		t.Fatalf("Claim and resolve: %v", err)
	}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		_, err := store.ClaimNextJob(ctx, tx)
		return err
	})
	if err != database.ErrJobNotFound {
		t.Errorf("Queue should be empty, got: %v", err)
	}
}

func TestOutboxRetryThenPark(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	var jobID int64
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		jobID, err = store.EnqueueJob(ctx, tx, models.JobKindPayout, []byte(`{}`))
		return err
	})
	if err != nil {
		t.Fatalf("Enqueue job: %v", err)
	}

	// First failure: stays pending with a future next_attempt_at.
	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return store.MarkJobFailed(ctx, tx, jobID, errors.New("gateway down"), time.Minute, 2)
	})
	if err != nil {
		t.Fatalf("Mark job failed: %v", err)
	}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		_, err := store.ClaimNextJob(ctx, tx)
		return err
	})
	if err != database.ErrJobNotFound {
		t.Errorf("Backed-off job must not be claimable yet, got: %v", err)
	}

	// Second failure hits maxAttempts: parked as failed.
	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return store.MarkJobFailed(ctx, tx, jobID, errors.New("gateway still down"), time.Minute, 2)
	})
	if err != nil {
		t.Fatalf("Mark job failed: %v", err)
	}

	n, err := store.CountJobs(ctx, db, models.JobKindPayout, models.JobStatusFailed)
	if err != nil {
		t.Fatalf("Count jobs: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 parked job, got %d", n)
	}
}
