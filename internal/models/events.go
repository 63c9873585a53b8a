package models

import "time"

// Event types
const (
	EventTypeOrderPlaced = "ORDER_PLACED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type tag
func (e BaseEvent) Type() string {
	return e.EventType
}

// OrderPlacedEvent published after the order service accepted an order
type OrderPlacedEvent struct {
	BaseEvent
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id,omitempty"`
	Order     OrderRecord `json:"order"`
}
