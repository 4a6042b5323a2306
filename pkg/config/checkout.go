package config

import "fmt"

type CheckoutConfig struct {
	// MaxAttempts bounds checkout attempts when a concurrent write conflicts.
	MaxAttempts int `koanf:"maxattempts"`
}

func (c *CheckoutConfig) String() string {
	return section("Checkout", "maxattempts", c.MaxAttempts)
}

func (c *CheckoutConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("checkout max attempts must not be negative")
	}
	if c.MaxAttempts > 10 {
		return fmt.Errorf("checkout max attempts must be at most 10, got %d", c.MaxAttempts)
	}
	return nil
}
