package ports

import (
	"context"

	"github.com/salesdesk/backend/internal/domain/events"
)

// EventHandler is a function that handles a delivered event payload.
type EventHandler func(ctx context.Context, payload interface{}) error

// EventPublisher is the pub/sub port the application publishes committed
// deltas through. Implementations must only be handed events whose
// underlying state is already persisted.
type EventPublisher interface {
	Publish(ctx context.Context, eventType events.EventType, payload interface{}) error
	Subscribe(eventType events.EventType, handler EventHandler) func()
}
