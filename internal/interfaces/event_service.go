package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventJobProgress is published on every stage or progress write (payload models.JobEvent)
	EventJobProgress EventType = "job_progress"
	// EventJobDeleted is published after a job and its outputs are removed (payload models.JobEvent)
	EventJobDeleted EventType = "job_deleted"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe registers a handler and returns an id for Unsubscribe
	Subscribe(eventType EventType, handler EventHandler) (string, error)

	// Unsubscribe removes a handler registered with Subscribe
	Unsubscribe(eventType EventType, subscriptionID string) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
