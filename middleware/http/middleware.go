// Package http provides net/http middleware for entitlement enforcement
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// ErrMissingProductID is passed to OnError when the extractor yields no product
var ErrMissingProductID = errors.New("missing product ID")

// EntitlementChecker reports whether a product is currently entitled.
// *purchase.Manager satisfies it.
type EntitlementChecker interface {
	IsPurchased(productID string) bool
}

// ProductIDExtractor extracts the product that guards the request
type ProductIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Manager answers entitlement checks (required)
	Manager EntitlementChecker

	// GetProductID extracts the required product from the request (required)
	GetProductID ProductIDExtractor

	// OnNotEntitled is called when the product is not entitled
	// If nil, returns 402 Payment Required
	OnNotEntitled func(w http.ResponseWriter, r *http.Request, productID string)

	// OnError is called when no product could be extracted
	// If nil, returns 400 Bad Request
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// ContextKey is a type for context keys
type ContextKey string

// ProductIDKey holds the entitled product for downstream handlers
const ProductIDKey ContextKey = "purchase:productID"

// RequireEntitlement creates an HTTP middleware that only lets entitled requests through
func RequireEntitlement(config Config) func(http.Handler) http.Handler {
	if config.Manager == nil {
		panic("gopurchase/http: Config.Manager is required")
	}
	if config.GetProductID == nil {
		panic("gopurchase/http: Config.GetProductID is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			productID := config.GetProductID(r)
			if productID == "" {
				if config.OnError != nil {
					config.OnError(w, r, ErrMissingProductID)
				} else {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": ErrMissingProductID.Error()})
				}
				return
			}

			if !config.Manager.IsPurchased(productID) {
				if config.OnNotEntitled != nil {
					config.OnNotEntitled(w, r, productID)
				} else {
					writeJSON(w, http.StatusPaymentRequired, map[string]string{
						"error":      "Payment required",
						"product_id": productID,
					})
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithProductID(r.Context(), productID)))
		})
	}
}

// HandlerFunc is RequireEntitlement for plain handler funcs
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := RequireEntitlement(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return middleware(next).ServeHTTP
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Common extractors for convenience

// FixedProduct returns a ProductIDExtractor that always returns the same product
func FixedProduct(productID string) ProductIDExtractor {
	return func(*http.Request) string {
		return productID
	}
}

// FromHeader returns a ProductIDExtractor that reads a header
func FromHeader(headerName string) ProductIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromQuery returns a ProductIDExtractor that reads a query parameter
func FromQuery(param string) ProductIDExtractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(param)
	}
}

// WithProductID adds the product ID to the context
func WithProductID(ctx context.Context, productID string) context.Context {
	return context.WithValue(ctx, ProductIDKey, productID)
}

// ProductIDFromContext returns the product the middleware checked
func ProductIDFromContext(ctx context.Context) string {
	productID, _ := ctx.Value(ProductIDKey).(string)
	return productID
}
