package models

import "time"

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// IdempotencyKey records that a handler already ran for an event id.
// Keyed by IdempotencyKeyId(handler, eventId).
type IdempotencyKey struct {
	Id          string            `json:"id"`
	HandlerName string            `json:"handler_name"`
	EventId     string            `json:"event_id"`
	Status      IdempotencyStatus `json:"status"`
	LastError   *string           `json:"last_error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func IdempotencyKeyId(handler, eventId string) string {
	return handler + ":" + eventId
}

// OutboxMessage is a notification queued inside a cascade transaction and
// delivered after commit by the outbox dispatcher.
type OutboxMessage struct {
	Id            string         `json:"id"`
	Channel       string         `json:"channel"`
	Payload       map[string]any `json:"payload"`
	EventId       string         `json:"event_id,omitempty"`
	Status        OutboxStatus   `json:"status"`
	Attempts      int            `json:"attempts"`
	NextAttemptAt time.Time      `json:"next_attempt_at"`
	LastError     *string        `json:"last_error,omitempty"`
	LockedBy      *string        `json:"locked_by,omitempty"`
	LockedAt      *time.Time     `json:"locked_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
}
