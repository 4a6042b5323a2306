package nats

import (
	"context"
	"fmt"

	"github.com/bangazon/checkout/pkg/messaging"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// keyHeader carries the event key, the order id for every checkout event.
const keyHeader = "Checkout-Event-Key"

// NatsPublisher publishes events to JetStream and waits for the stream ack.
type NatsPublisher struct {
	js jetstream.JetStream
}

func NewNatsPublisher(js jetstream.JetStream) *NatsPublisher {
	return &NatsPublisher{js: js}
}

// Publish sends event on its subject. The trace context of ctx travels in the message headers.
func (p *NatsPublisher) Publish(ctx context.Context, event messaging.Event) error {
	payload, err := event.Payload()
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Subject(), err)
	}

	msg := &nats.Msg{
		Subject: event.Subject(),
		Data:    payload,
		Header:  nats.Header{},
	}
	msg.Header.Set(keyHeader, event.Key())
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Header))

	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", event.Subject(), err)
	}
	return nil
}

// headerCarrier exposes nats.Header to OTel propagators. Keys are kept exactly as given:
// nats.Header is case-sensitive, unlike http.Header.
type headerCarrier nats.Header

var _ propagation.TextMapCarrier = headerCarrier(nil)

func (c headerCarrier) Get(key string) string {
	if v := c[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	c[key] = []string{value}
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
