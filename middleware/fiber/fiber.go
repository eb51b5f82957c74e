// Package fiber provides Fiber middleware for entitlement enforcement
package fiber

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ErrMissingProductID is passed to OnError when the extractor yields no product
var ErrMissingProductID = errors.New("missing product ID")

// ProductIDKey is the Fiber locals key holding the entitled product
const ProductIDKey = "purchase.productID"

// EntitlementChecker reports whether a product is currently entitled.
// *purchase.Manager satisfies it.
type EntitlementChecker interface {
	IsPurchased(productID string) bool
}

// ProductIDExtractor extracts the product that guards the request
type ProductIDExtractor func(c *fiber.Ctx) string

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
	OnNotEntitled func(c *fiber.Ctx, productID string) error

	// OnError is called when no product could be extracted
	// If nil, returns 400 Bad Request
	OnError func(c *fiber.Ctx, err error) error
}

// RequireEntitlement creates a Fiber middleware that only lets entitled requests through
func RequireEntitlement(cfg Config) fiber.Handler {
	if cfg.Manager == nil {
		panic("gopurchase/fiber: Config.Manager is required")
	}
	if cfg.GetProductID == nil {
		panic("gopurchase/fiber: Config.GetProductID is required")
	}
	if cfg.NotEntitledStatusCode == 0 {
		cfg.NotEntitledStatusCode = fiber.StatusPaymentRequired
	}

	return func(c *fiber.Ctx) error {
		productID := cfg.GetProductID(c)
		if productID == "" {
			if cfg.OnError != nil {
				return cfg.OnError(c, ErrMissingProductID)
			}
			return defaultError(c, ErrMissingProductID)
		}

		if !cfg.Manager.IsPurchased(productID) {
			if cfg.OnNotEntitled != nil {
				return cfg.OnNotEntitled(c, productID)
			}
			return defaultNotEntitled(c, productID, cfg.NotEntitledStatusCode)
		}

		c.Locals(ProductIDKey, productID)
		return c.Next()
	}
}

func defaultNotEntitled(c *fiber.Ctx, productID string, statusCode int) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"error":      "Payment required",
		"product_id": productID,
	})
}

func defaultError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

// Common extractors for convenience

// FixedProduct returns a ProductIDExtractor that always returns the same product
func FixedProduct(productID string) ProductIDExtractor {
	return func(*fiber.Ctx) string {
		return productID
	}
}

// FromHeader returns a ProductIDExtractor that reads a header
func FromHeader(headerName string) ProductIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns a ProductIDExtractor that reads a route parameter
func FromParam(paramName string) ProductIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}

// FromQuery returns a ProductIDExtractor that reads a query parameter
func FromQuery(queryName string) ProductIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Query(queryName)
	}
}
