package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type LogConfig struct {
	Level string `koanf:"level"`
}

func (c *LogConfig) String() string {
	return section("Log", "level", c.Level)
}

// Validate accepts the slog level names (debug, info, warn, error) in any case.
func (c *LogConfig) Validate() error {
	if c.Level == "" {
		return nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("unknown log level: %s", c.Level)
	}
	return nil
}

type TelemetryConfig struct {
	// Enabled turns on trace export. Metrics are always served on /metrics.
	Enabled bool `koanf:"enabled"`
	Traces  struct {
		OtlpHttp OtlpHttpConfig `koanf:"otlphttp"`
	} `koanf:"traces"`
}

type OtlpHttpConfig struct {
	Endpoint string        `koanf:"endpoint"`
	Insecure bool          `koanf:"insecure"`
	Timeout  time.Duration `koanf:"timeout"`
}

func (c *TelemetryConfig) String() string {
	return section("Telemetry",
		"enabled", c.Enabled,
		"traces.otlphttp.endpoint", c.Traces.OtlpHttp.Endpoint,
		"traces.otlphttp.insecure", c.Traces.OtlpHttp.Insecure,
		"traces.otlphttp.timeout", c.Traces.OtlpHttp.Timeout,
	)
}

func (c *TelemetryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if c.Traces.OtlpHttp.Endpoint == "" {
		errs = append(errs, errors.New("OTel endpoint is not configured"))
	}
	if c.Traces.OtlpHttp.Timeout <= 0 {
		errs = append(errs, errors.New("telemetry timeout must be greater than 0"))
	}
	return errors.Join(errs...)
}
