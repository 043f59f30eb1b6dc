// Package retention removes conversation data once its ride has been
// terminal for longer than the configured window. Messages go with their
// conversation through the schema's cascade; nothing here touches payment
// records.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultWindow is how long conversations survive after their ride reaches
// a terminal state.
const DefaultWindow = 8 * time.Hour

// Store is the single-statement write surface the sweeper needs;
// *pgxpool.Pool satisfies it.
type Store interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Sweeper struct {
	store  Store
	window time.Duration
	now    func() time.Time
}

// NewSweeper builds a sweeper with the given retention window; a
// non-positive window falls back to DefaultWindow.
func NewSweeper(store Store, window time.Duration) *Sweeper {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Sweeper{store: store, window: window, now: time.Now}
}

// The eligibility predicate keys off completed_at, falling back to
// updated_at for rides that reached a terminal state without a completion
// timestamp (cancellations). The fallback is an approximation: updated_at
// moves on any write, so such rides are kept at least window past their
// last touch.
const sweepSQL = `
DELETE FROM conversations c
USING rides r
WHERE c.ride_id = r.id
  AND r.status IN ('completed', 'cancelled')
  AND COALESCE(r.completed_at, r.updated_at) <= $1
`

// Sweep deletes every eligible conversation in one statement and returns
// the count. Messages are removed by the cascade. The statement is atomic:
// a failed sweep deletes nothing and the next scheduled run retries the
// same naturally idempotent predicate.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.window)

	tag, err := s.store.Exec(ctx, sweepSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention: sweep conversations: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Window returns the configured retention window.
func (s *Sweeper) Window() time.Duration {
	return s.window
}
