package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name    string
	outcome Outcome
	err     error
	runs    int
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run(ctx context.Context) (Outcome, error) {
	j.runs++
	return j.outcome, j.err
}

type memRecorder struct {
	runs []Run
	err  error
}

func (r *memRecorder) Record(ctx context.Context, run Run) error {
	r.runs = append(r.runs, run)
	return r.err
}

func TestInvoke_RecordsSuccessfulRun(t *testing.T) {
	rec := &memRecorder{}
	r := New(rec, nil, time.Minute)
	job := &stubJob{name: "retention.sweep", outcome: Outcome{Detail: map[string]any{"deleted": int64(4)}}}

	run := r.Invoke(context.Background(), job)

	assert.Equal(t, 1, job.runs)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, "retention.sweep", rec.runs[0].JobName)
	assert.Equal(t, OutcomeOK, rec.runs[0].Outcome)
	assert.Equal(t, int64(4), rec.runs[0].Detail["deleted"])
	assert.Empty(t, run.Error)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestInvoke_RecordsFailedRun(t *testing.T) {
	rec := &memRecorder{}
	r := New(rec, nil, time.Minute)
	job := &stubJob{name: "capture.drain", err: errors.New("store unreachable")}

	run := r.Invoke(context.Background(), job)

	require.Len(t, rec.runs, 1)
	assert.Equal(t, OutcomeError, rec.runs[0].Outcome)
	assert.Equal(t, "store unreachable", rec.runs[0].Error)
	assert.Equal(t, OutcomeError, run.Outcome)
}

func TestInvoke_RecorderFailureDoesNotFailJob(t *testing.T) {
	rec := &memRecorder{err: errors.New("job_runs insert failed")}
	r := New(rec, nil, time.Minute)
	job := &stubJob{name: "retention.sweep"}

	run := r.Invoke(context.Background(), job)
	assert.Equal(t, OutcomeOK, run.Outcome)
}

func TestInvoke_BoundsJobWithTimeout(t *testing.T) {
	r := New(nil, nil, 10*time.Millisecond)

	var sawDeadline bool
	job := newJobFunc("slow", func(ctx context.Context) (Outcome, error) {
		_, sawDeadline = ctx.Deadline()
		return Outcome{}, nil
	})

	r.Invoke(context.Background(), job)
	assert.True(t, sawDeadline, "job context must carry the runner deadline")
}

func TestSchedule_RejectsBadSpec(t *testing.T) {
	r := New(nil, nil, 0)
	err := r.Schedule("not a cron spec", &stubJob{name: "x"})
	require.Error(t, err)
}

func TestSchedule_RunsJobOnSchedule(t *testing.T) {
	r := New(nil, nil, time.Minute)

	var ticks atomic.Int64
	job := newJobFunc("tick", func(ctx context.Context) (Outcome, error) {
		ticks.Add(1)
		return Outcome{}, nil
	})

	// @every accepts sub-second intervals, keeping the test fast.
	require.NoError(t, r.Schedule("@every 100ms", job))
	r.Start()
	defer r.Stop(context.Background())

	require.Eventually(t, func() bool { return ticks.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
}

type jobFunc struct {
	name string
	fn   func(ctx context.Context) (Outcome, error)
}

func newJobFunc(name string, fn func(ctx context.Context) (Outcome, error)) jobFunc {
	return jobFunc{name: name, fn: fn}
}

func (j jobFunc) Name() string { return j.name }

func (j jobFunc) Run(ctx context.Context) (Outcome, error) { return j.fn(ctx) }
