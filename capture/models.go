package capture

import "time"

// TaskStatus enumerates the capture task state machine:
// pending -> processing -> {completed | failed}. A failed task returns to
// pending only through an explicit Requeue; completed is terminal. There is
// no pending -> completed shortcut: the processing claim is what keeps two
// drain passes from submitting the same capture twice.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is one pending capture against an authorized payment intent. The
// payment_intent_id column is unique, so a ride completion delivered twice
// resets the existing row instead of inserting a duplicate. Tasks are never
// deleted; they stay as the capture audit trail.
type Task struct {
	ID              string
	PaymentIntentID string
	RideID          string
	ExternalRef     string
	Amount          int64
	Status          TaskStatus
	Attempts        int
	LastAttemptAt   *time.Time
	CaptureRef      *string
	ErrorMessage    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DrainResult reports one drain pass. Tasks whose gateway call timed out are
// counted in neither field; they stay in processing for an operator to
// inspect.
type DrainResult struct {
	Completed int
	Failed    int
}
