// Package platform holds what the commerce platform integrations share:
// their metrics interface and error values.
package platform

import "errors"

var (
	// ErrNotConfigured is returned when a platform is missing required configuration
	ErrNotConfigured = errors.New("commerce platform not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrAPIError is returned when the platform's API returns an error
	ErrAPIError = errors.New("commerce platform API error")

	// ErrCustomerNotFound is returned when no customer is configured or found
	ErrCustomerNotFound = errors.New("customer not found in commerce platform")

	// ErrStreamClosed is returned when an event arrives after the platform was closed
	ErrStreamClosed = errors.New("transaction update stream closed")
)
