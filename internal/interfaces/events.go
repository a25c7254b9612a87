package interfaces

import (
	"context"
	"time"
)

// EventType identifies a lifecycle event published on the internal bus
type EventType string

const (
	EventJobEnqueued        EventType = "job_enqueued"
	EventJobCompleted       EventType = "job_completed"
	EventJobFailed          EventType = "job_failed"
	EventRecoveryStarted    EventType = "recovery_started"
	EventRecoverySucceeded  EventType = "recovery_succeeded"
	EventRecoveryExhausted  EventType = "recovery_exhausted"
	EventWatcherReconnected EventType = "watcher_reconnected"
)

// Event is a lifecycle notification with an arbitrary payload
type Event struct {
	Type      EventType              `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler processes a published event
type EventHandler func(ctx context.Context, event Event) error

// EventService is a process-local pub/sub bus. The recovery-exhausted
// critical hook is delivered through it.
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	PublishSync(ctx context.Context, event Event) error
	Close() error
}
