package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertEvent is one fault notification. Key identifies the fault (e.g.
// "adapter:fonbet:crash-loop") so repeats inside the cooldown window can be
// suppressed instead of delivered again.
type AlertEvent struct {
	ID              uuid.UUID `json:"id"`
	Key             string    `json:"key"`
	Message         string    `json:"message"`
	RaisedAt        time.Time `json:"raised_at"`
	SuppressedUntil time.Time `json:"suppressed_until,omitempty"`
}

// NewAlertEvent stamps a fresh alert with an ID and raise time.
func NewAlertEvent(key, message string) AlertEvent {
	return AlertEvent{
		ID:       uuid.New(),
		Key:      key,
		Message:  message,
		RaisedAt: time.Now().UTC(),
	}
}
