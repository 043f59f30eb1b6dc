package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"fareflow/payment"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TaskRepository defines the capture-task access the worker needs.
type TaskRepository interface {
	UpsertPending(ctx context.Context, tx pgx.Tx, params UpsertParams) error
	PendingBatch(ctx context.Context, limit int) ([]Task, error)
	Claim(ctx context.Context, taskID string) (bool, error)
	Complete(ctx context.Context, tx pgx.Tx, taskID, captureRef string, attemptAt time.Time) error
	MarkFailed(ctx context.Context, taskID, reason string, attemptAt time.Time) error
	Requeue(ctx context.Context, taskID string) error
	ListStuck(ctx context.Context, olderThan time.Duration) ([]Task, error)
}

// IntentRepository defines the payment-intent access the worker needs.
type IntentRepository interface {
	ListAuthorizedForRide(ctx context.Context, tx pgx.Tx, rideID string) ([]payment.Intent, error)
	MarkSucceeded(ctx context.Context, tx pgx.Tx, intentID string, capturedAt time.Time) error
}

// Worker stages capture tasks when rides complete and drains them against
// the gateway. Enqueue and drain run on independent schedules.
type Worker struct {
	pool    TxBeginner
	tasks   TaskRepository
	intents IntentRepository
	gateway Gateway
	now     func() time.Time
}

func NewWorker(pool TxBeginner, tasks TaskRepository, intents IntentRepository, gateway Gateway) *Worker {
	if intents == nil {
		intents = payment.NewRepository()
	}
	return &Worker{
		pool:    pool,
		tasks:   tasks,
		intents: intents,
		gateway: gateway,
		now:     time.Now,
	}
}

// OnRideCompleted stages one pending task per authorized, uncaptured intent
// of the ride. It never touches the gateway, and re-delivering the same
// completion produces the same queued state, so it is safe to wire straight
// into the ride transition detector.
func (w *Worker) OnRideCompleted(ctx context.Context, rideID string) (int, error) {
	if rideID == "" {
		return 0, fmt.Errorf("capture: missing ride id")
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("capture: begin enqueue tx: %w", err)
	}
	defer tx.Rollback(ctx)

	intents, err := w.intents.ListAuthorizedForRide(ctx, tx, rideID)
	if err != nil {
		return 0, err
	}

	for _, in := range intents {
		params := UpsertParams{
			ID:              uuid.NewString(),
			PaymentIntentID: in.ID,
			RideID:          in.RideID,
			ExternalRef:     in.ExternalRef,
			Amount:          in.Amount,
		}
		if err := w.tasks.UpsertPending(ctx, tx, params); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("capture: commit enqueue tx: %w", err)
	}

	return len(intents), nil
}

// ProcessPending drains up to batchSize pending tasks, oldest first. Each
// task is claimed with a pending->processing compare-and-swap before the
// gateway call, so overlapping drain passes attempt every task at most once.
//
// Outcomes per task:
//   - gateway success: task completed and intent succeeded in one transaction
//   - gateway rejection or transport error: task failed with the reason
//   - gateway timeout: task left in processing for operator inspection
//
// A store error aborts the pass; already-claimed tasks keep their state and
// the rest of the batch is picked up by the next run.
func (w *Worker) ProcessPending(ctx context.Context, batchSize int) (DrainResult, error) {
	if batchSize <= 0 {
		return DrainResult{}, fmt.Errorf("capture: batch size must be positive")
	}

	var result DrainResult

	batch, err := w.tasks.PendingBatch(ctx, batchSize)
	if err != nil {
		return result, err
	}

	for _, task := range batch {
		claimed, err := w.tasks.Claim(ctx, task.ID)
		if err != nil {
			return result, err
		}
		if !claimed {
			// Lost the race to a concurrent pass.
			continue
		}

		res, captureErr := w.gateway.Capture(ctx, task.ExternalRef, task.Amount)
		attemptAt := w.now()

		switch {
		case captureErr == nil:
			if err := w.completeTask(ctx, task, res.CaptureRef, attemptAt); err != nil {
				return result, err
			}
			result.Completed++
		case isTimeout(captureErr):
			// The call may still land; keep the reservation.
		default:
			if err := w.tasks.MarkFailed(ctx, task.ID, captureErr.Error(), attemptAt); err != nil {
				return result, err
			}
			result.Failed++
		}
	}

	return result, nil
}

// completeTask applies the paired task/intent update atomically.
func (w *Worker) completeTask(ctx context.Context, task Task, captureRef string, attemptAt time.Time) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("capture: begin completion tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := w.tasks.Complete(ctx, tx, task.ID, captureRef, attemptAt); err != nil {
		return err
	}
	if err := w.intents.MarkSucceeded(ctx, tx, task.PaymentIntentID, attemptAt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("capture: commit completion tx: %w", err)
	}

	return nil
}

// Requeue moves a failed task back to pending.
func (w *Worker) Requeue(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("capture: missing task id")
	}
	return w.tasks.Requeue(ctx, taskID)
}

// ListStuck surfaces tasks claimed longer ago than olderThan.
func (w *Worker) ListStuck(ctx context.Context, olderThan time.Duration) ([]Task, error) {
	return w.tasks.ListStuck(ctx, olderThan)
}
