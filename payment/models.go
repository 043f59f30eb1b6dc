package payment

import "time"

// IntentStatus enumerates the payment intent lifecycle states.
type IntentStatus string

const (
	IntentStatusAuthorized IntentStatus = "authorized"
	IntentStatusProcessing IntentStatus = "processing"
	IntentStatusSucceeded  IntentStatus = "succeeded"
	IntentStatusFailed     IntentStatus = "failed"
)

// Intent mirrors the payment_intents table columns touched by the capture
// worker. ExternalRef is the gateway-assigned identifier of the authorized
// hold; the worker captures against it and never constructs gateway requests
// itself.
type Intent struct {
	ID          string
	RideID      string
	ExternalRef string
	Amount      int64
	Status      IntentStatus
	CapturedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
