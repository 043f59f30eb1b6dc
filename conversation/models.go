package conversation

import "time"

// Conversation is the rider/driver negotiation thread attached to a ride.
// It is removed wholesale by the retention sweeper once the ride has been
// terminal for longer than the retention window.
type Conversation struct {
	ID        string
	RideID    string
	CreatedAt time.Time
}

// Message belongs to exactly one conversation and never outlives it; the
// schema enforces the ownership with ON DELETE CASCADE.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	CreatedAt      time.Time
}
