package ride

import "time"

// Status enumerates the ride lifecycle states.
type Status string

const (
	StatusRequested   Status = "requested"
	StatusMatched     Status = "matched"
	StatusNegotiating Status = "negotiating"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether the status is one a ride never leaves.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusMatched, StatusNegotiating, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Ride mirrors the rides table columns touched by this service.
type Ride struct {
	ID          string
	RiderID     string
	DriverID    *string
	Status      Status
	FareAmount  int64
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
