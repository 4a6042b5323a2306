// Package config holds the configuration of the checkout service.
package config

import (
	"errors"
	"strings"

	"github.com/bangazon/checkout/pkg/config"
	"github.com/bangazon/checkout/pkg/config/configloader"
	"github.com/bangazon/checkout/pkg/messaging"
)

var _ configloader.Validator = (*Config)(nil)

type Config struct {
	HTTPServer config.HTTPConfig       `koanf:"server"`
	GRPC       config.GrpcServerConfig `koanf:"grpc"`
	Database   config.DatabaseConfig   `koanf:"database"`
	Log        config.LogConfig        `koanf:"log"`
	PProf      config.PProfConfig      `koanf:"pprof"`
	Telemetry  config.TelemetryConfig  `koanf:"telemetry"`
	Events     config.EventsConfig     `koanf:"events"`
	Redis      config.RedisConfig      `koanf:"redis"`
	Checkout   config.CheckoutConfig   `koanf:"checkout"`
	Shutdown   config.ShutdownConfig   `koanf:"shutdown"`
}

// Defaults are applied below config.yaml, .env and the environment.
func Defaults() map[string]any {
	return map[string]any{
		"server.port":               8080,
		"server.maxHeaderBytes":     1 << 20,
		"server.timeout.read":       "5s",
		"server.timeout.write":      "10s",
		"server.timeout.idle":       "120s",
		"server.timeout.readHeader": "2s",
		"grpc.port":                 "9090",
		"database.driver":           config.DriverPostgres,
		"database.timeout":          "10s",
		"log.level":                 "info",
		"events.broker":             config.BrokerNone,
		"events.nats.timeout":       "5s",
		"events.nats.stream":        messaging.CheckoutEventsStreamName,
		"events.kafka.writetimeout": "10s",
		"redis.timeout":             "3s",
		"redis.ttl":                 "24h",
		"redis.lockttl":             "30s",
		"checkout.maxattempts":      2,
		"shutdown.timeout":          "10s",
	}
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.GRPC.String())
	b.WriteString(c.Database.String())
	b.WriteString(c.Events.String())
	b.WriteString(c.Redis.String())
	b.WriteString(c.Checkout.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Shutdown.String())
	return b.String()
}

// Validate checks every section and joins their errors.
func (c *Config) Validate() error {
	validators := []configloader.Validator{
		&c.HTTPServer,
		&c.GRPC,
		&c.Database,
		&c.Log,
		&c.PProf,
		&c.Telemetry,
		&c.Events,
		&c.Redis,
		&c.Checkout,
		&c.Shutdown,
	}
	var errs []error
	for _, v := range validators {
		errs = append(errs, v.Validate())
	}
	return errors.Join(errs...)
}
