package runner

import (
	"context"

	"fareflow/capture"
	"fareflow/retention"
)

// SweepJob wraps the retention sweeper for scheduling.
type SweepJob struct {
	Sweeper *retention.Sweeper
}

func (j SweepJob) Name() string { return "retention.sweep" }

func (j SweepJob) Run(ctx context.Context) (Outcome, error) {
	deleted, err := j.Sweeper.Sweep(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Detail: map[string]any{"deleted": deleted}}, nil
}

// DrainJob wraps one capture drain pass for scheduling.
type DrainJob struct {
	Worker    *capture.Worker
	BatchSize int
}

func (j DrainJob) Name() string { return "capture.drain" }

func (j DrainJob) Run(ctx context.Context) (Outcome, error) {
	// A partial pass still reports what it finished before the error.
	result, err := j.Worker.ProcessPending(ctx, j.BatchSize)
	detail := map[string]any{
		"completed": result.Completed,
		"failed":    result.Failed,
	}
	return Outcome{Detail: detail}, err
}
