// Package messaging defines the event publishing contract shared by the broker adapters.
package messaging

import (
	"context"
	"log/slog"
)

// Subjects of the events emitted by the checkout flow.
const (
	OrdersCompletedSubject   = "orders.completed"
	CartItemsRemovedSubject  = "carts.items_removed"
	CheckoutEventsStreamName = "CHECKOUT_EVENTS"
)

// Subjects lists every subject a broker has to carry.
var Subjects = []string{OrdersCompletedSubject, CartItemsRemovedSubject}

type Event interface {
	Subject() string
	// Key groups related events, e.g. for partitioning.
	Key() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher drops events after logging them. It is used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.DebugContext(ctx, "event not published, no broker configured", "subject", event.Subject(), "key", event.Key())
	return nil
}
