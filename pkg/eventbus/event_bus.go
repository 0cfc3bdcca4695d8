// Package eventbus provides the publish/subscribe transport for engine
// events. Handlers are registered per event type; a single subscription
// drains the stream and routes by the event_type metadata entry.
package eventbus

import (
	"context"

	"github.com/gestia/gestia/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event interface{}) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
