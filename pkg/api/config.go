package api

import (
	"fmt"
	"net/http"

	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

// Config holds configuration for the purchase API handler
type Config struct {
	// Manager is the purchase manager instance (required)
	Manager *purchase.Manager

	// OnError handles errors (bad request, internal, etc.)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	// Logger is optional; request failures are logged through it
	Logger purchase.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Manager == nil {
		return fmt.Errorf("manager is required")
	}
	return nil
}

// NewHandler creates a new purchase API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &purchase.NoopLogger{}
	}
	return &Handler{
		config: config,
	}, nil
}
