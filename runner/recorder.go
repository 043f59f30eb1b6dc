package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Run is the recorded outcome of one job invocation.
type Run struct {
	JobName    string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    string
	Detail     map[string]any
	Error      string
}

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// RunRecorder persists job run outcomes.
type RunRecorder interface {
	Record(ctx context.Context, run Run) error
}

// PGRunRecorder appends runs to the job_runs table.
type PGRunRecorder struct {
	pool *pgxpool.Pool
}

func NewPGRunRecorder(pool *pgxpool.Pool) *PGRunRecorder {
	return &PGRunRecorder{pool: pool}
}

func (r *PGRunRecorder) Record(ctx context.Context, run Run) error {
	var detail []byte
	if run.Detail != nil {
		b, err := json.Marshal(run.Detail)
		if err != nil {
			return fmt.Errorf("runner: marshal run detail: %w", err)
		}
		detail = b
	}

	var runErr any
	if run.Error != "" {
		runErr = run.Error
	}

	const insertSQL = `
INSERT INTO job_runs (job_name, started_at, finished_at, outcome, detail, error)
VALUES ($1, $2, $3, $4, $5, $6)
`

	if _, err := r.pool.Exec(ctx, insertSQL,
		run.JobName, run.StartedAt, run.FinishedAt, run.Outcome, detail, runErr); err != nil {
		return fmt.Errorf("runner: insert job run: %w", err)
	}

	return nil
}

// NopRecorder discards runs; used when no store is wired.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Run) error { return nil }
