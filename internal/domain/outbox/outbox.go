package outbox

import (
	"context"
	"time"
)

// Event is any domain event or command with a name identifier and a partition
// key. Delivery is at least once; messages sharing a key are delivered to a
// subscriber in publish order.
type Event interface {
	EventName() string
	Key() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

// FailedEvent is an outbound publish whose retries exhausted. The publisher's
// local transaction already committed, so the event is parked here for manual
// or scheduled redelivery instead of being dropped.
type FailedEvent struct {
	Event     Event
	Attempts  int
	LastError string
	FailedAt  time.Time
}

type FailedEventStore interface {
	Append(ctx context.Context, fe FailedEvent) error
	List(ctx context.Context) ([]FailedEvent, error)
}
