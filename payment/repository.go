package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrIntentNotFound is returned when no intent row matches the identifier.
var ErrIntentNotFound = errors.New("payment: intent not found")

// Repository is stateless; every method runs inside the caller's transaction
// so intent writes commit atomically with the capture-task writes that
// justify them.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// ListAuthorizedForRide returns the ride's intents that are authorized and
// not yet captured, oldest first.
func (r *Repository) ListAuthorizedForRide(ctx context.Context, tx pgx.Tx, rideID string) ([]Intent, error) {
	const query = `
SELECT id, ride_id, external_ref, amount, status::text, captured_at, created_at, updated_at
FROM payment_intents
WHERE ride_id = $1
  AND status = 'authorized'
  AND captured_at IS NULL
ORDER BY created_at ASC
`

	rows, err := tx.Query(ctx, query, rideID)
	if err != nil {
		return nil, fmt.Errorf("payment: list authorized intents: %w", err)
	}
	defer rows.Close()

	intents := make([]Intent, 0, 2)
	for rows.Next() {
		var in Intent
		if err := rows.Scan(&in.ID, &in.RideID, &in.ExternalRef, &in.Amount, &in.Status, &in.CapturedAt, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, fmt.Errorf("payment: scan intent: %w", err)
		}
		intents = append(intents, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payment: iterate intents: %w", err)
	}

	return intents, nil
}

// MarkSucceeded finalizes the intent after a successful gateway capture.
func (r *Repository) MarkSucceeded(ctx context.Context, tx pgx.Tx, intentID string, capturedAt time.Time) error {
	const updateSQL = `
UPDATE payment_intents
SET status = 'succeeded',
    captured_at = $2,
    updated_at = now()
WHERE id = $1
`

	tag, err := tx.Exec(ctx, updateSQL, intentID, capturedAt)
	if err != nil {
		return fmt.Errorf("payment: mark succeeded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIntentNotFound
	}

	return nil
}
