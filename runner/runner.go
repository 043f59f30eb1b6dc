// Package runner schedules the background jobs on cron expressions and
// records each invocation's outcome. Jobs stay observability-neutral: they
// return counts, the runner logs and persists them.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultJobTimeout = 5 * time.Minute

// Outcome is what a job reports back on success.
type Outcome struct {
	Detail map[string]any
}

// Job is a bounded, single-pass unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context) (Outcome, error)
}

type Runner struct {
	cron     *cron.Cron
	recorder RunRecorder
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

// New builds a runner. recorder and logger may be nil; jobTimeout bounds
// each invocation and defaults to five minutes.
func New(recorder RunRecorder, logger *slog.Logger, jobTimeout time.Duration) *Runner {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	return &Runner{
		cron:     cron.New(),
		recorder: recorder,
		logger:   logger,
		timeout:  jobTimeout,
		now:      time.Now,
	}
}

// Schedule registers a job on a cron expression.
func (r *Runner) Schedule(spec string, job Job) error {
	if job == nil {
		return fmt.Errorf("runner: nil job")
	}

	_, err := r.cron.AddFunc(spec, func() {
		r.Invoke(context.Background(), job)
	})
	if err != nil {
		return fmt.Errorf("runner: schedule %s on %q: %w", job.Name(), spec, err)
	}

	return nil
}

// Invoke runs a job once, bounded by the runner's timeout, and records the
// outcome. Recording failures are logged, never propagated: a sweep that
// deleted rows has still succeeded when the bookkeeping insert fails.
func (r *Runner) Invoke(ctx context.Context, job Job) Run {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := r.now()
	outcome, err := job.Run(runCtx)
	finished := r.now()

	run := Run{
		JobName:    job.Name(),
		StartedAt:  started,
		FinishedAt: finished,
		Detail:     outcome.Detail,
	}

	if err != nil {
		run.Outcome = OutcomeError
		run.Error = err.Error()
		r.logger.Error("job run failed",
			slog.String("job", job.Name()),
			slog.Duration("elapsed", finished.Sub(started)),
			slog.Any("error", err))
	} else {
		run.Outcome = OutcomeOK
		r.logger.Info("job run finished",
			slog.String("job", job.Name()),
			slog.Duration("elapsed", finished.Sub(started)),
			slog.Any("detail", outcome.Detail))
	}

	if recErr := r.recorder.Record(ctx, run); recErr != nil {
		r.logger.Error("record job run", slog.String("job", job.Name()), slog.Any("error", recErr))
	}

	return run
}

// Start begins the cron loop in its own goroutine.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs, bounded by ctx.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("runner: stop: %w", ctx.Err())
	}
}
