package prommetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

var _ purchase.Metrics = (*Metrics)(nil)

func TestPrometheusMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordPurchaseOutcome("pro", "success")
	m.RecordPurchaseOutcome("pro", "success")
	m.RecordPurchaseOutcome("pro", "failure")
	m.RecordVerification(purchase.OriginListener, false)
	m.RecordReconciliation(purchase.ProductRevoked)
	m.RecordFinalize(purchase.OriginPurchase, errors.New("ack failed"))
	m.RecordFinalize(purchase.OriginPurchase, nil)
	m.RecordCircuitBreakerStateChange("open")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.purchaseOutcomesTotal.WithLabelValues("pro", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.purchaseOutcomesTotal.WithLabelValues("pro", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.verificationsTotal.WithLabelValues("listener", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.reconciliationsTotal.WithLabelValues("product_revoked")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.finalizeTotal.WithLabelValues("purchase", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.finalizeTotal.WithLabelValues("purchase", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.circuitBreakerStateChanges.WithLabelValues("open")))
}

func TestPrometheusMetrics_CatalogResolveHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordCatalogResolve("success", 20*time.Millisecond)
	m.RecordCatalogResolve("success", 40*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var hist *dto.Histogram
	for _, f := range families {
		if f.GetName() == "test_catalog_resolve_duration_seconds" {
			hist = f.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, hist)
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 0.06, hist.GetSampleSum(), 0.0001)
}
