package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/gopurchase/pkg/platform"
)

// Metrics implements platform.Metrics using Prometheus.
type Metrics struct {
	webhookEventsTotal        *prometheus.CounterVec
	webhookProcessingDuration *prometheus.HistogramVec
	webhookErrorsTotal        *prometheus.CounterVec
	apiCallsTotal             *prometheus.CounterVec
	apiCallDuration           *prometheus.HistogramVec
}

// NewMetrics creates Prometheus metrics for commerce platforms under the
// "platform" subsystem.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "webhook_events_total",
			Help:      "Total number of webhook events received from commerce platforms.",
		}, []string{"platform", "event_type", "status"}),

		webhookProcessingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "webhook_processing_duration_seconds",
			Help:      "Duration of webhook processing in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform", "event_type"}),

		webhookErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "webhook_errors_total",
			Help:      "Total number of webhook processing errors.",
		}, []string{"platform", "error_type"}),

		apiCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "api_calls_total",
			Help:      "Total number of API calls to commerce platforms.",
		}, []string{"platform", "endpoint", "status"}),

		apiCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "api_call_duration_seconds",
			Help:      "Duration of API calls to commerce platforms in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform", "endpoint"}),
	}
}

func (m *Metrics) RecordWebhookEvent(platformName, eventType, status string) {
	m.webhookEventsTotal.WithLabelValues(platformName, eventType, status).Inc()
}

func (m *Metrics) RecordWebhookProcessingDuration(platformName, eventType string, duration time.Duration) {
	m.webhookProcessingDuration.WithLabelValues(platformName, eventType).Observe(duration.Seconds())
}

func (m *Metrics) RecordWebhookError(platformName, errorType string) {
	m.webhookErrorsTotal.WithLabelValues(platformName, errorType).Inc()
}

func (m *Metrics) RecordAPICall(platformName, endpoint, status string) {
	m.apiCallsTotal.WithLabelValues(platformName, endpoint, status).Inc()
}

func (m *Metrics) RecordAPICallDuration(platformName, endpoint string, duration time.Duration) {
	m.apiCallDuration.WithLabelValues(platformName, endpoint).Observe(duration.Seconds())
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) platform.Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
