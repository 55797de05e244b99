// Package events provides the in-process topic bus used to propagate
// workspace and subscription changes between domains.
package events

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	TopicWorkspaceChanged      = "workspace.changed"
	TopicSubscriptionChanged   = "subscription.changed"
	TopicPaymentOrderConfirmed = "payment.order.confirmed"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Topic       string
	PrincipalID string
	WorkspaceID string
	SubjectID   string
	Metadata    map[string]string
}

type Handler func(ctx context.Context, evt Event)

// Bus is a synchronous in-process publisher. Handlers run on the
// publishing goroutine; they must not block on long work.
type Bus struct {
	mu       sync.RWMutex
	log      *zap.Logger
	handlers map[string][]Handler
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		log:      log.Named("events.bus"),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	b.mu.Unlock()
}

// Publish delivers the event to every subscriber of its topic.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	handlers := b.handlers[evt.Topic]
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, evt)
	}

	b.log.Debug("event published",
		zap.String("topic", evt.Topic),
		zap.Int("subscribers", len(handlers)),
	)
}

var Module = fx.Module("events",
	fx.Provide(NewBus),
)
