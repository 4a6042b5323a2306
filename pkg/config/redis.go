package config

import (
	"fmt"
	"time"
)

// RedisConfig configures the checkout idempotency cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Timeout  time.Duration `koanf:"timeout"`
	TTL      time.Duration `koanf:"ttl"`
	LockTTL  time.Duration `koanf:"lockttl"`
}

func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

func (c *RedisConfig) String() string {
	if !c.Enabled() {
		return section("Redis", "addr", "<disabled>")
	}
	return section("Redis", "addr", c.Addr, "db", c.DB, "timeout", c.Timeout, "ttl", c.TTL, "lockttl", c.LockTTL)
}

func (c *RedisConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.DB < 0 {
		return fmt.Errorf("redis db must not be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("redis timeout is not configured")
	}
	if c.TTL < 0 || c.LockTTL < 0 {
		return fmt.Errorf("redis ttl values must not be negative")
	}
	return nil
}
