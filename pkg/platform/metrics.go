package platform

import "time"

// Metrics defines the interface for tracking commerce platform operations.
// Platforms fall back to NoopMetrics when none is configured.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the platform.
	// eventType: The type of event (e.g., "checkout.session.completed")
	// status: "success", "ignored" or "error"
	RecordWebhookEvent(platform, eventType, status string)

	// RecordWebhookProcessingDuration records how long it took to process a webhook.
	RecordWebhookProcessingDuration(platform, eventType string, duration time.Duration)

	// RecordWebhookError records a webhook processing error.
	// errorType: The type of error (e.g., "auth_failed", "invalid_payload", "stream_closed")
	RecordWebhookError(platform, errorType string)

	// RecordAPICall records an API call to the platform.
	// endpoint: The API endpoint called (e.g., "/v1/prices")
	// status: "success" or "error"
	RecordAPICall(platform, endpoint, status string)

	// RecordAPICallDuration records how long an API call took.
	RecordAPICallDuration(platform, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
