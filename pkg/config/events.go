package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	BrokerNone  = "none"
	BrokerNats  = "nats"
	BrokerKafka = "kafka"
)

// EventsConfig selects where checkout events are published.
// Only the settings of the selected broker are validated.
type EventsConfig struct {
	Broker string      `koanf:"broker"`
	Nats   NATSConfig  `koanf:"nats"`
	Kafka  KafkaConfig `koanf:"kafka"`
}

func (c *EventsConfig) String() string {
	out := section("Events", "broker", c.Broker)
	switch c.Broker {
	case BrokerNats:
		out += c.Nats.String()
	case BrokerKafka:
		out += c.Kafka.String()
	}
	return out
}

func (c *EventsConfig) Validate() error {
	switch c.Broker {
	case "", BrokerNone:
		c.Broker = BrokerNone
		return nil
	case BrokerNats:
		return c.Nats.Validate()
	case BrokerKafka:
		return c.Kafka.Validate()
	}
	return fmt.Errorf("unknown events broker: %s", c.Broker)
}

type NATSConfig struct {
	Url     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
	// Stream is the JetStream stream that captures checkout events.
	Stream string `koanf:"stream"`
}

func (c *NATSConfig) String() string {
	return section("NATS", "url", c.Url, "timeout", c.Timeout, "stream", c.Stream)
}

func (c *NATSConfig) Validate() error {
	var errs []error
	if c.Url == "" {
		errs = append(errs, errors.New("NATS URL is not configured"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("nats dial timeout is not configured"))
	}
	if c.Stream == "" {
		errs = append(errs, errors.New("NATS stream is not configured"))
	}
	return errors.Join(errs...)
}

type KafkaConfig struct {
	Brokers      []string      `koanf:"brokers"`
	WriteTimeout time.Duration `koanf:"writetimeout"`
}

func (c *KafkaConfig) String() string {
	return section("Kafka", "brokers", strings.Join(c.Brokers, ","), "writetimeout", c.WriteTimeout)
}

func (c *KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka brokers are not configured")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("kafka write timeout is not configured")
	}
	for _, broker := range c.Brokers {
		if broker == "" {
			return errors.New("kafka broker address cannot be empty")
		}
	}
	return nil
}
