package models

import "time"

// OutboxEvent is one staged room delivery. Rows are written inside the same
// transaction as the state change they describe and picked up by the
// dispatcher only after that transaction commits.
type OutboxEvent struct {
	ID            int64      `json:"id"`
	Kind          string     `json:"kind"`
	Room          string     `json:"room"`
	Payload       []byte     `json:"payload"`
	Status        string     `json:"status"` // pending, delivered, dead
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

const (
	OutboxStatusPending   = "pending"
	OutboxStatusDelivered = "delivered"
	OutboxStatusDead      = "dead"
)
