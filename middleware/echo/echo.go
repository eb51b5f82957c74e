// Package echo provides Echo middleware for entitlement enforcement
package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrMissingProductID is passed to OnError when the extractor yields no product
var ErrMissingProductID = errors.New("missing product ID")

// ProductIDKey is the Echo context key holding the entitled product
const ProductIDKey = "purchase.productID"

// EntitlementChecker reports whether a product is currently entitled.
// *purchase.Manager satisfies it.
type EntitlementChecker interface {
	IsPurchased(productID string) bool
}

// ProductIDExtractor extracts the product that guards the request
type ProductIDExtractor func(c echo.Context) string

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
	OnNotEntitled func(c echo.Context, productID string) error

	// OnError is called when no product could be extracted
	// If nil, returns 400 Bad Request
	OnError func(c echo.Context, err error) error
}

// RequireEntitlement creates an Echo middleware that only lets entitled requests through
func RequireEntitlement(cfg Config) echo.MiddlewareFunc {
	if cfg.Manager == nil {
		panic("gopurchase/echo: Config.Manager is required")
	}
	if cfg.GetProductID == nil {
		panic("gopurchase/echo: Config.GetProductID is required")
	}
	if cfg.NotEntitledStatusCode == 0 {
		cfg.NotEntitledStatusCode = http.StatusPaymentRequired
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
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

			c.Set(ProductIDKey, productID)
			return next(c)
		}
	}
}

func defaultNotEntitled(c echo.Context, productID string, statusCode int) error {
	return c.JSON(statusCode, map[string]interface{}{
		"error":      "Payment required",
		"product_id": productID,
	})
}

func defaultError(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// Common extractors for convenience

// FixedProduct returns a ProductIDExtractor that always returns the same product
func FixedProduct(productID string) ProductIDExtractor {
	return func(echo.Context) string {
		return productID
	}
}

// FromHeader returns a ProductIDExtractor that reads a header
func FromHeader(headerName string) ProductIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns a ProductIDExtractor that reads a route parameter
func FromParam(paramName string) ProductIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a ProductIDExtractor that reads a query parameter
func FromQuery(queryName string) ProductIDExtractor {
	return func(c echo.Context) string {
		return c.QueryParam(queryName)
	}
}
