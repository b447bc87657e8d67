// internal/events/types.go
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/vanlt3/LifeTime-Swing/internal/detector"
	"github.com/vanlt3/LifeTime-Swing/internal/position"
)

// EventType represents the type of event.
type EventType string

const (
	// All subscribes to every event type.
	All EventType = "*"

	// Monitor lifecycle
	MonitoringStarted EventType = "monitoring.started"
	MonitoringStopped EventType = "monitoring.stopped"

	// Position events
	HitDetected    EventType = "position.hit_detected"
	PositionClosed EventType = "position.closed"
	CloseFailed    EventType = "position.close_failed"
	CloseExhausted EventType = "position.close_exhausted"
	CloseSkipped   EventType = "position.close_skipped"

	// Data health
	HealthDegraded  EventType = "health.degraded"
	HealthRecovered EventType = "health.recovered"
)

// Event is the base interface for all events.
type Event interface {
	ID() string
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventID   string    `json:"id"`
	EventType EventType `json:"type"`
	EventTime time.Time `json:"time"`
}

// NewBaseEvent stamps a new event with a random ID.
func NewBaseEvent(t EventType, at time.Time) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: t,
		EventTime: at,
	}
}

// ID returns the unique event ID.
func (e BaseEvent) ID() string {
	return e.EventID
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// HitEvent is emitted when a stop or target crossing is detected.
type HitEvent struct {
	BaseEvent
	Position position.Position `json:"position"`
	Result   detector.Result   `json:"result"`
}

// CloseEvent reports the outcome of a close attempt or of the whole close.
// Attempt is the attempt number for CloseFailed and the total for the others.
type CloseEvent struct {
	BaseEvent
	Symbol  string          `json:"symbol"`
	Result  detector.Result `json:"result"`
	Attempt int             `json:"attempt"`
	Error   string          `json:"error,omitempty"`
}

// HealthEvent reports a data health transition for a symbol.
type HealthEvent struct {
	BaseEvent
	Symbol              string `json:"symbol"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
}

// MonitoringEvent reports monitor start and stop.
type MonitoringEvent struct {
	BaseEvent
	Symbols []string `json:"symbols"`
}

// SymbolOf returns the symbol an event refers to, or "" for global events.
func SymbolOf(e Event) string {
	switch ev := e.(type) {
	case HitEvent:
		return ev.Result.Symbol
	case CloseEvent:
		return ev.Symbol
	case HealthEvent:
		return ev.Symbol
	default:
		return ""
	}
}
