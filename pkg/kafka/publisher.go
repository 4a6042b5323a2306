// Package kafka publishes checkout events to Kafka topics named after the event subjects.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/bangazon/checkout/pkg/messaging"
	"github.com/segmentio/kafka-go"
)

type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher creates a synchronous writer. Topics are taken from each message.
func NewKafkaPublisher(brokers []string, writeTimeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			WriteTimeout:           writeTimeout,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event messaging.Event) error {
	msg, err := newMessage(event, time.Now())
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

// newMessage keys the message by the event key so events of one order share a partition.
func newMessage(event messaging.Event, now time.Time) (kafka.Message, error) {
	data, err := event.Payload()
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to get event payload: %w", err)
	}
	return kafka.Message{
		Topic: event.Subject(),
		Key:   []byte(event.Key()),
		Value: data,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "subject", Value: []byte(event.Subject())},
		},
	}, nil
}

// Close flushes pending writes and releases the connections.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
