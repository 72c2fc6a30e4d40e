package models

import "time"

// ActionLog is the append-only audit trail. The cascade layer only ever adds rows.
type ActionLog struct {
	Id           string      `json:"id"`
	Action       string      `json:"action"`
	EntityType   string      `json:"entity_type"`
	EntityId     string      `json:"entity_id"`
	EventId      string      `json:"event_id,omitempty"`
	Details      string      `json:"details,omitempty"`
	UserId       string      `json:"user_id"`
	Status       AuditStatus `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}
