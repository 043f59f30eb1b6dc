package ride

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrRideNotFound is returned when no ride row exists for the identifier.
	ErrRideNotFound = errors.New("ride: not found")
	// ErrTerminalStatus signals an attempt to move a ride out of a terminal state.
	ErrTerminalStatus = errors.New("ride: status is terminal")
	// ErrInvalidStatus signals an unknown target status.
	ErrInvalidStatus = errors.New("ride: invalid status")
)

// Service owns ride status writes. Every write goes through UpdateStatus so
// the detector sees each transition exactly once.
type Service struct {
	pool     *pgxpool.Pool
	detector *Detector
}

func NewService(pool *pgxpool.Pool, detector *Detector) *Service {
	if detector == nil {
		detector = NewDetector()
	}
	return &Service{pool: pool, detector: detector}
}

// Detector exposes the service's detector for hook registration.
func (s *Service) Detector() *Detector {
	return s.detector
}

type CreateParams struct {
	RiderID    string
	FareAmount int64
}

// Create inserts a new ride in the requested state.
func (s *Service) Create(ctx context.Context, params CreateParams) (Ride, error) {
	if params.RiderID == "" {
		return Ride{}, fmt.Errorf("ride: rider id required")
	}

	const insertSQL = `
INSERT INTO rides (rider_id, fare_amount)
VALUES ($1, $2)
RETURNING id, rider_id, driver_id::text, status::text, fare_amount, completed_at, created_at, updated_at
`

	var r Ride
	if err := s.pool.QueryRow(ctx, insertSQL, params.RiderID, params.FareAmount).
		Scan(&r.ID, &r.RiderID, &r.DriverID, &r.Status, &r.FareAmount, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Ride{}, fmt.Errorf("ride: insert: %w", err)
	}

	return r, nil
}

// UpdateStatus transitions a ride to the next status. The previous status is
// read under FOR UPDATE so concurrent writers serialize and the completion
// edge fires at most once. Terminal statuses never revert.
func (s *Service) UpdateStatus(ctx context.Context, rideID string, next Status) error {
	if !next.Valid() {
		return ErrInvalidStatus
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ride: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current Status
	if err := tx.QueryRow(ctx, `SELECT status::text FROM rides WHERE id = $1 FOR UPDATE`, rideID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRideNotFound
		}
		return fmt.Errorf("ride: fetch current status: %w", err)
	}

	if current.Terminal() && current != next {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalStatus, current, next)
	}

	const updateSQL = `
UPDATE rides
SET status = $1::ride_status,
    completed_at = CASE WHEN $1::ride_status = 'completed' THEN COALESCE(completed_at, now()) ELSE completed_at END,
    updated_at = now()
WHERE id = $2
`
	if _, err := tx.Exec(ctx, updateSQL, string(next), rideID); err != nil {
		return fmt.Errorf("ride: update status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ride: commit status update: %w", err)
	}

	// Hooks run after commit so they observe the persisted transition. They
	// stage work in their own transactions and are idempotent under replay.
	return s.detector.Observe(ctx, rideID, &current, next)
}

// Get returns a single ride by id.
func (s *Service) Get(ctx context.Context, rideID string) (Ride, error) {
	const query = `
SELECT id, rider_id, driver_id::text, status::text, fare_amount, completed_at, created_at, updated_at
FROM rides
WHERE id = $1
`

	var r Ride
	if err := s.pool.QueryRow(ctx, query, rideID).
		Scan(&r.ID, &r.RiderID, &r.DriverID, &r.Status, &r.FareAmount, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ride{}, ErrRideNotFound
		}
		return Ride{}, fmt.Errorf("ride: fetch: %w", err)
	}

	return r, nil
}
