package purchase

import (
	"fmt"
	"strings"
)

const defaultNotificationBuffer = 64

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.ProductIdentifiers))
	for i, id := range c.ProductIdentifiers {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("productIdentifiers[%d] is empty", i)
		}
		if seen[id] {
			return fmt.Errorf("productIdentifiers contains duplicate %q", id)
		}
		seen[id] = true
	}

	if c.NotificationBuffer < 0 {
		return fmt.Errorf("notificationBuffer must be non-negative, got %d", c.NotificationBuffer)
	}

	if cb := c.CircuitBreakerConfig; cb != nil && cb.Enabled {
		if cb.FailureThreshold <= 0 {
			return fmt.Errorf("circuitBreaker failureThreshold must be positive, got %d", cb.FailureThreshold)
		}
		if cb.ResetTimeout <= 0 {
			return fmt.Errorf("circuitBreaker resetTimeout must be positive, got %s", cb.ResetTimeout)
		}
	}

	return nil
}

// withDefaults returns a copy of the config with zero values filled in
func (c Config) withDefaults() Config {
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = &NoopLogger{}
	}
	if c.NotificationBuffer == 0 {
		c.NotificationBuffer = defaultNotificationBuffer
	}
	if cb := c.CircuitBreakerConfig; cb != nil {
		cbCopy := *cb
		c.CircuitBreakerConfig = &cbCopy
	}
	ids := make([]string, len(c.ProductIdentifiers))
	copy(ids, c.ProductIdentifiers)
	c.ProductIdentifiers = ids
	return c
}
