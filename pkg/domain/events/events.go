// Package events defines the domain events emitted when jobs are evaluated.
package events

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the base interface for all domain events.
type DomainEvent interface {
	EventType() string
	AggregateID() string
	AggregateType() string
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	AggregateID_   string                 `json:"aggregate_id"`
	AggregateType_ string                 `json:"aggregate_type"`
	Timestamp      time.Time              `json:"timestamp"`
	Actor          string                 `json:"actor"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) AggregateID() string   { return e.AggregateID_ }
func (e BaseEvent) AggregateType() string { return e.AggregateType_ }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewEvent stamps a new event with a fresh ID and the current time.
func NewEvent(eventType, aggregateType, aggregateID string, metadata map[string]interface{}) *BaseEvent {
	return &BaseEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		AggregateID_:   aggregateID,
		AggregateType_: aggregateType,
		Timestamp:      time.Now().UTC(),
		Actor:          DefaultActor,
		Metadata:       metadata,
	}
}

// DefaultActor is recorded on events raised by the service itself.
const DefaultActor = "sitepulse"

// =============================================================================
// Event Type Constants
// =============================================================================

const (
	EventTypeHealthEvaluated    = "health.evaluated"
	EventTypeHealthChanged      = "health.changed"
	EventTypeFeedDegraded       = "feed.degraded"
	EventTypePortfolioRefreshed = "portfolio.refreshed"
)

// AggregateTypes
const (
	AggregateTypeJob       = "job"
	AggregateTypePortfolio = "portfolio"
)

// EventPublisher broadcasts events to subscribers.
type EventPublisher interface {
	// Publish sends an event to all registered subscribers.
	Publish(event *BaseEvent) error

	// Subscribe registers a handler for events.
	Subscribe(handler EventHandler)
}

// EventHandler processes published events.
type EventHandler func(event *BaseEvent) error
