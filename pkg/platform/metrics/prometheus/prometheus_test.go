package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPlatformMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordWebhookEvent("stripe", "charge.refunded", "success")
	m.RecordWebhookError("stripe", "auth_failed")
	m.RecordWebhookProcessingDuration("stripe", "charge.refunded", 5*time.Millisecond)
	m.RecordAPICall("stripe", "/v1/prices", "success")
	m.RecordAPICallDuration("stripe", "/v1/prices", 30*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("stripe", "charge.refunded", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.webhookErrorsTotal.WithLabelValues("stripe", "auth_failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.apiCallsTotal.WithLabelValues("stripe", "/v1/prices", "success")))

	count, err := testutil.GatherAndCount(reg,
		"test_platform_webhook_processing_duration_seconds",
		"test_platform_api_call_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}
