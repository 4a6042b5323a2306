package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_DatabaseConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     DatabaseConfig
		wantErr bool
		driver  string
	}{
		{name: "memory needs no url", cfg: DatabaseConfig{Driver: DriverMemory}, driver: DriverMemory},
		{name: "postgres by default", cfg: DatabaseConfig{URL: "postgres://u:p@db:5432/checkout", Timeout: time.Second}, driver: DriverPostgres},
		{name: "postgres without url", cfg: DatabaseConfig{Driver: DriverPostgres, Timeout: time.Second}, wantErr: true},
		{name: "wrong scheme", cfg: DatabaseConfig{URL: "mysql://db", Timeout: time.Second}, wantErr: true},
		{name: "missing timeout", cfg: DatabaseConfig{URL: "postgresql://db/checkout"}, wantErr: true},
		{name: "unknown driver", cfg: DatabaseConfig{Driver: "sqlite"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()

			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.driver, tc.cfg.Driver)
		})
	}
}

func Test_DatabaseConfig_StringMasksCredentials(t *testing.T) {
	cfg := DatabaseConfig{URL: "postgres://checkout:secret@db:5432/checkout"}

	out := cfg.String()

	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "****@db:5432/checkout")
}

func Test_EventsConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     EventsConfig
		wantErr bool
	}{
		{name: "defaults to none", cfg: EventsConfig{}},
		{name: "nats", cfg: EventsConfig{Broker: BrokerNats, Nats: NATSConfig{Url: "nats://localhost:4222", Timeout: time.Second, Stream: "CHECKOUT_EVENTS"}}},
		{name: "nats without url", cfg: EventsConfig{Broker: BrokerNats}, wantErr: true},
		{name: "kafka", cfg: EventsConfig{Broker: BrokerKafka, Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}, WriteTimeout: time.Second}}},
		{name: "kafka with empty broker", cfg: EventsConfig{Broker: BrokerKafka, Kafka: KafkaConfig{Brokers: []string{""}, WriteTimeout: time.Second}}, wantErr: true},
		{name: "unknown broker", cfg: EventsConfig{Broker: "rabbitmq"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()

			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_RedisConfig_Validate(t *testing.T) {
	assert.NoError(t, (&RedisConfig{}).Validate(), "empty address disables redis")
	assert.Error(t, (&RedisConfig{Addr: "localhost:6379"}).Validate(), "timeout is required once enabled")
	assert.NoError(t, (&RedisConfig{Addr: "localhost:6379", Timeout: time.Second}).Validate())
}

func Test_CheckoutConfig_Validate(t *testing.T) {
	assert.NoError(t, (&CheckoutConfig{}).Validate())
	assert.NoError(t, (&CheckoutConfig{MaxAttempts: 3}).Validate())
	assert.Error(t, (&CheckoutConfig{MaxAttempts: -1}).Validate())
	assert.Error(t, (&CheckoutConfig{MaxAttempts: 11}).Validate())
}
