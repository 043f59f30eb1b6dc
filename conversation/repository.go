package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrConversationNotFound is returned when no conversation exists for the id.
	ErrConversationNotFound = errors.New("conversation: not found")
	// ErrRideNotFound signals the referenced ride row is missing.
	ErrRideNotFound = errors.New("conversation: ride not found")
)

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Open creates the conversation for a ride, or returns the existing one when
// the ride already has a thread (one conversation per ride).
func (r *PGRepository) Open(ctx context.Context, rideID string) (Conversation, error) {
	const insertSQL = `
INSERT INTO conversations (ride_id)
VALUES ($1)
RETURNING id, ride_id, created_at
`

	var c Conversation
	err := r.pool.QueryRow(ctx, insertSQL, rideID).Scan(&c.ID, &c.RideID, &c.CreatedAt)
	if err == nil {
		return c, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return r.GetByRide(ctx, rideID)
		case "23503":
			return Conversation{}, ErrRideNotFound
		}
	}

	return Conversation{}, fmt.Errorf("conversation: open: %w", err)
}

// GetByRide returns the conversation attached to a ride.
func (r *PGRepository) GetByRide(ctx context.Context, rideID string) (Conversation, error) {
	const query = `SELECT id, ride_id, created_at FROM conversations WHERE ride_id = $1`

	var c Conversation
	if err := r.pool.QueryRow(ctx, query, rideID).Scan(&c.ID, &c.RideID, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, fmt.Errorf("conversation: fetch by ride: %w", err)
	}

	return c, nil
}

// Post appends a message to a conversation.
func (r *PGRepository) Post(ctx context.Context, conversationID, senderID, body string) (Message, error) {
	if body == "" {
		return Message{}, fmt.Errorf("conversation: empty message body")
	}

	const insertSQL = `
INSERT INTO messages (conversation_id, sender_id, body)
VALUES ($1, $2, $3)
RETURNING id, conversation_id, sender_id, body, created_at
`

	var m Message
	err := r.pool.QueryRow(ctx, insertSQL, conversationID, senderID, body).
		Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Message{}, ErrConversationNotFound
		}
		return Message{}, fmt.Errorf("conversation: post message: %w", err)
	}

	return m, nil
}

// Messages lists a conversation's messages oldest first.
func (r *PGRepository) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	const query = `
SELECT id, conversation_id, sender_id, body, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY created_at ASC
`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0, 16)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate messages: %w", err)
	}

	return messages, nil
}
