// Package gin provides Gin middleware for entitlement enforcement
package gin

import (
	"errors"
	"net/http"

	gongin "github.com/gin-gonic/gin"
)

// ErrMissingProductID is passed to OnError when the extractor yields no product
var ErrMissingProductID = errors.New("missing product ID")

// ProductIDKey is the Gin context key holding the entitled product
const ProductIDKey = "purchase.productID"

// EntitlementChecker reports whether a product is currently entitled.
// *purchase.Manager satisfies it.
type EntitlementChecker interface {
	IsPurchased(productID string) bool
}

// ProductIDExtractor extracts the product that guards the request
type ProductIDExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Manager answers entitlement checks (required)
	Manager EntitlementChecker

	// GetProductID extracts the required product from context (required)
	GetProductID ProductIDExtractor

	// NotEntitledStatusCode is the HTTP status code returned when the product is not entitled
	// Default: 402 (Payment Required)
	NotEntitledStatusCode int

	// OnNotEntitled is called when the product is not entitled
	// If nil, uses default response: NotEntitledStatusCode JSON with the product ID
	OnNotEntitled func(c *gongin.Context, productID string)

	// OnError is called when no product could be extracted
	// If nil, returns 400 Bad Request
	OnError func(c *gongin.Context, err error)
}

// RequireEntitlement creates a Gin middleware that only lets entitled requests through
func RequireEntitlement(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("gopurchase/gin: Config.Manager is required")
	}
	if cfg.GetProductID == nil {
		panic("gopurchase/gin: Config.GetProductID is required")
	}
	if cfg.NotEntitledStatusCode == 0 {
		cfg.NotEntitledStatusCode = http.StatusPaymentRequired
	}

	return func(c *gongin.Context) {
		productID := cfg.GetProductID(c)
		if productID == "" {
			if cfg.OnError != nil {
				cfg.OnError(c, ErrMissingProductID)
			} else {
				c.JSON(http.StatusBadRequest, gongin.H{"error": ErrMissingProductID.Error()})
			}
			c.Abort()
			return
		}

		if !cfg.Manager.IsPurchased(productID) {
			if cfg.OnNotEntitled != nil {
				cfg.OnNotEntitled(c, productID)
			} else {
				c.JSON(cfg.NotEntitledStatusCode, gongin.H{
					"error":      "Payment required",
					"product_id": productID,
				})
			}
			c.Abort()
			return
		}

		c.Set(ProductIDKey, productID)
		c.Next()
	}
}

// Common extractors for convenience

// FixedProduct returns a ProductIDExtractor that always returns the same product
func FixedProduct(productID string) ProductIDExtractor {
	return func(*gongin.Context) string {
		return productID
	}
}

// FromHeader returns a ProductIDExtractor that reads a header
func FromHeader(headerName string) ProductIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns a ProductIDExtractor that reads a route parameter
func FromParam(paramName string) ProductIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a ProductIDExtractor that reads a query parameter
func FromQuery(queryName string) ProductIDExtractor {
	return func(c *gongin.Context) string {
		return c.Query(queryName)
	}
}
