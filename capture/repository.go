package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrTaskNotFound is returned when no capture task exists for the id.
	ErrTaskNotFound = errors.New("capture: task not found")
	// ErrTaskNotRequeueable signals a requeue attempt on a task that is not failed.
	ErrTaskNotRequeueable = errors.New("capture: task not in failed state")
)

const taskColumns = `id, payment_intent_id, ride_id, external_ref, amount, status::text, attempts, last_attempt_at, capture_ref, error_message, created_at, updated_at`

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// UpsertParams stages one capture task for an authorized intent.
type UpsertParams struct {
	ID              string
	PaymentIntentID string
	RideID          string
	ExternalRef     string
	Amount          int64
}

// UpsertPending inserts a pending task, or resets an existing row for the
// same intent back to pending. A row currently claimed as processing is left
// untouched so an in-flight gateway call keeps its reservation.
func (r *PGRepository) UpsertPending(ctx context.Context, tx pgx.Tx, params UpsertParams) error {
	if params.PaymentIntentID == "" {
		return fmt.Errorf("capture: missing payment intent id")
	}

	const upsertSQL = `
INSERT INTO capture_tasks (id, payment_intent_id, ride_id, external_ref, amount)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (payment_intent_id) DO UPDATE
SET status = 'pending',
    error_message = NULL,
    updated_at = now()
WHERE capture_tasks.status <> 'processing'
`

	if _, err := tx.Exec(ctx, upsertSQL,
		params.ID, params.PaymentIntentID, params.RideID, params.ExternalRef, params.Amount); err != nil {
		return fmt.Errorf("capture: upsert task: %w", err)
	}

	return nil
}

// PendingBatch returns up to limit pending tasks, oldest first.
func (r *PGRepository) PendingBatch(ctx context.Context, limit int) ([]Task, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM capture_tasks
WHERE status = 'pending'
ORDER BY created_at ASC
LIMIT $1
`, taskColumns)

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("capture: select pending batch: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// Claim reserves a pending task for this drain pass. The status predicate
// makes the reservation a single compare-and-swap: of two concurrent passes
// holding the same batch, only one sees RowsAffected = 1.
func (r *PGRepository) Claim(ctx context.Context, taskID string) (bool, error) {
	const claimSQL = `
UPDATE capture_tasks
SET status = 'processing',
    updated_at = now()
WHERE id = $1
  AND status = 'pending'
`

	tag, err := r.pool.Exec(ctx, claimSQL, taskID)
	if err != nil {
		return false, fmt.Errorf("capture: claim task: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Complete marks a claimed task completed. It runs in the caller's
// transaction together with the payment-intent update so a successful
// gateway capture is never left unreflected in the intent record.
func (r *PGRepository) Complete(ctx context.Context, tx pgx.Tx, taskID, captureRef string, attemptAt time.Time) error {
	const completeSQL = `
UPDATE capture_tasks
SET status = 'completed',
    attempts = attempts + 1,
    last_attempt_at = $2,
    capture_ref = $3,
    updated_at = now()
WHERE id = $1
  AND status = 'processing'
`

	tag, err := tx.Exec(ctx, completeSQL, taskID, attemptAt, captureRef)
	if err != nil {
		return fmt.Errorf("capture: complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// MarkFailed records a gateway rejection or transport error on the task.
func (r *PGRepository) MarkFailed(ctx context.Context, taskID, reason string, attemptAt time.Time) error {
	const failSQL = `
UPDATE capture_tasks
SET status = 'failed',
    attempts = attempts + 1,
    last_attempt_at = $2,
    error_message = $3,
    updated_at = now()
WHERE id = $1
  AND status = 'processing'
`

	tag, err := r.pool.Exec(ctx, failSQL, taskID, attemptAt, reason)
	if err != nil {
		return fmt.Errorf("capture: mark task failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// Requeue moves a failed task back to pending. Operator action only; tasks
// in any other state are refused.
func (r *PGRepository) Requeue(ctx context.Context, taskID string) error {
	const requeueSQL = `
UPDATE capture_tasks
SET status = 'pending',
    error_message = NULL,
    updated_at = now()
WHERE id = $1
  AND status = 'failed'
`

	tag, err := r.pool.Exec(ctx, requeueSQL, taskID)
	if err != nil {
		return fmt.Errorf("capture: requeue task: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM capture_tasks WHERE id = $1)`, taskID).Scan(&exists); err != nil {
		return fmt.Errorf("capture: verify task: %w", err)
	}
	if !exists {
		return ErrTaskNotFound
	}

	return ErrTaskNotRequeueable
}

// ListStuck returns tasks sitting in processing since before the cutoff,
// oldest claim first. Lets an operator tell a stuck capture from one that
// was never attempted.
func (r *PGRepository) ListStuck(ctx context.Context, olderThan time.Duration) ([]Task, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM capture_tasks
WHERE status = 'processing'
  AND updated_at < now() - $1::interval
ORDER BY updated_at ASC
`, taskColumns)

	rows, err := r.pool.Query(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("capture: list stuck tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// Get returns a single task by id.
func (r *PGRepository) Get(ctx context.Context, taskID string) (Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM capture_tasks WHERE id = $1`, taskColumns)

	var t Task
	err := r.pool.QueryRow(ctx, query, taskID).
		Scan(&t.ID, &t.PaymentIntentID, &t.RideID, &t.ExternalRef, &t.Amount, &t.Status,
			&t.Attempts, &t.LastAttemptAt, &t.CaptureRef, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, fmt.Errorf("capture: fetch task: %w", err)
	}

	return t, nil
}

func scanTasks(rows pgx.Rows) ([]Task, error) {
	tasks := make([]Task, 0, 8)
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.PaymentIntentID, &t.RideID, &t.ExternalRef, &t.Amount, &t.Status,
			&t.Attempts, &t.LastAttemptAt, &t.CaptureRef, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("capture: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("capture: iterate tasks: %w", err)
	}

	return tasks, nil
}
