package capture

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fareflow/payment"
)

// TestCaptureRepository_Integration connects to a real PostgreSQL via
// DATABASE_URL and verifies the claim compare-and-swap, the upsert reset,
// and the requeue guard against live schema.
func TestCaptureRepository_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "capture_tasks") || !tableExists(ctx, t, pool, "payment_intents") {
		t.Skip("database schema missing; run: fareflow migrate")
	}

	var rideID string
	if err := pool.QueryRow(ctx, `
        INSERT INTO rides (rider_id, status, fare_amount, completed_at)
        VALUES (gen_random_uuid(), 'completed', 5000, now()) RETURNING id
    `).Scan(&rideID); err != nil {
		t.Fatalf("seed ride: %v", err)
	}

	var intentID string
	externalRef := fmt.Sprintf("hold-%d", time.Now().UnixNano())
	if err := pool.QueryRow(ctx, `
        INSERT INTO payment_intents (ride_id, external_ref, amount)
        VALUES ($1, $2, 5000) RETURNING id
    `, rideID, externalRef).Scan(&intentID); err != nil {
		t.Fatalf("seed intent: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM capture_tasks WHERE payment_intent_id = $1`, intentID)
		pool.Exec(ctx2, `DELETE FROM payment_intents WHERE id = $1`, intentID)
		pool.Exec(ctx2, `DELETE FROM rides WHERE id = $1`, rideID)
	})

	repo := NewRepository(pool)
	intents := payment.NewRepository()

	// Stage the task through the same path the worker uses.
	worker := NewWorker(pool, repo, intents, nil)
	staged, err := worker.OnRideCompleted(ctx, rideID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if staged != 1 {
		t.Fatalf("expected 1 staged task, got %d", staged)
	}

	// Replaying the completion must reset, not duplicate.
	if _, err := worker.OnRideCompleted(ctx, rideID); err != nil {
		t.Fatalf("enqueue replay: %v", err)
	}
	var taskCount int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM capture_tasks WHERE payment_intent_id = $1`, intentID).Scan(&taskCount); err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if taskCount != 1 {
		t.Fatalf("expected 1 task after replay, got %d", taskCount)
	}

	batch, err := repo.PendingBatch(ctx, 10)
	if err != nil {
		t.Fatalf("pending batch: %v", err)
	}
	task := findTask(t, batch, intentID)

	// First claim wins, second loses.
	claimed, err := repo.Claim(ctx, task.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Fatalf("expected first claim to succeed")
	}
	claimed, err = repo.Claim(ctx, task.ID)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatalf("expected second claim to lose the compare-and-swap")
	}

	// A processing task is invisible to the next drain pass.
	batch, err = repo.PendingBatch(ctx, 10)
	if err != nil {
		t.Fatalf("pending batch after claim: %v", err)
	}
	for _, b := range batch {
		if b.PaymentIntentID == intentID {
			t.Fatalf("claimed task must not reappear in pending batch")
		}
	}

	// Requeue refuses anything not failed.
	if err := repo.Requeue(ctx, task.ID); err != ErrTaskNotRequeueable {
		t.Fatalf("expected ErrTaskNotRequeueable for processing task, got %v", err)
	}

	if err := repo.MarkFailed(ctx, task.ID, "card declined", time.Now()); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, err := repo.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("fetch task: %v", err)
	}
	if got.Status != TaskStatusFailed || got.Attempts != 1 || got.ErrorMessage == nil {
		t.Fatalf("unexpected failed task state: %+v", got)
	}

	if err := repo.Requeue(ctx, task.ID); err != nil {
		t.Fatalf("requeue failed task: %v", err)
	}
	got, err = repo.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("fetch requeued task: %v", err)
	}
	if got.Status != TaskStatusPending || got.ErrorMessage != nil {
		t.Fatalf("unexpected requeued task state: %+v", got)
	}

	// Complete applies the paired task/intent update atomically.
	claimed, err = repo.Claim(ctx, task.ID)
	if err != nil || !claimed {
		t.Fatalf("reclaim: claimed=%v err=%v", claimed, err)
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin completion tx: %v", err)
	}
	capturedAt := time.Now().UTC()
	if err := repo.Complete(ctx, tx, task.ID, "cap-ref-1", capturedAt); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := intents.MarkSucceeded(ctx, tx, intentID, capturedAt); err != nil {
		t.Fatalf("mark intent succeeded: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit completion: %v", err)
	}

	var intentStatus string
	var intentCapturedAt *time.Time
	if err := pool.QueryRow(ctx, `SELECT status::text, captured_at FROM payment_intents WHERE id = $1`, intentID).
		Scan(&intentStatus, &intentCapturedAt); err != nil {
		t.Fatalf("verify intent: %v", err)
	}
	if intentStatus != "succeeded" || intentCapturedAt == nil {
		t.Fatalf("expected succeeded intent with captured_at, got %s %v", intentStatus, intentCapturedAt)
	}

	// The completed task keeps the unique slot: a late replay of the ride
	// completion finds no authorized intent and stages nothing.
	if staged, err := worker.OnRideCompleted(ctx, rideID); err != nil || staged != 0 {
		t.Fatalf("expected no staging after capture, staged=%d err=%v", staged, err)
	}
}

func findTask(t *testing.T, tasks []Task, intentID string) Task {
	t.Helper()
	for _, task := range tasks {
		if task.PaymentIntentID == intentID {
			return task
		}
	}
	t.Fatalf("task for intent %s not found", intentID)
	return Task{}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, name).Scan(&exists); err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
