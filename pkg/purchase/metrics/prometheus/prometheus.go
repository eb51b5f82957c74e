package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

// Metrics implements purchase.Metrics using Prometheus.
type Metrics struct {
	catalogResolveDuration     *prometheus.HistogramVec
	purchaseOutcomesTotal      *prometheus.CounterVec
	verificationsTotal         *prometheus.CounterVec
	reconciliationsTotal       *prometheus.CounterVec
	finalizeTotal              *prometheus.CounterVec
	circuitBreakerStateChanges *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		catalogResolveDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_resolve_duration_seconds",
			Help:      "Latency of catalog resolves.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),

		purchaseOutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_outcomes_total",
			Help:      "Total number of purchase attempts by terminal outcome.",
		}, []string{"product_id", "outcome"}),

		verificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_verifications_total",
			Help:      "Total number of transactions passed through the verification gate.",
		}, []string{"origin", "verified"}),

		reconciliationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Total number of applied grants and revocations.",
		}, []string{"kind"}),

		finalizeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_finalize_total",
			Help:      "Total number of transaction finalize calls.",
		}, []string{"origin", "success"}),

		circuitBreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of circuit breaker state changes.",
		}, []string{"state"}),
	}
}

func (m *Metrics) RecordCatalogResolve(status string, duration time.Duration) {
	m.catalogResolveDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *Metrics) RecordPurchaseOutcome(productID, outcome string) {
	m.purchaseOutcomesTotal.WithLabelValues(productID, outcome).Inc()
}

func (m *Metrics) RecordVerification(origin string, verified bool) {
	m.verificationsTotal.WithLabelValues(origin, strconv.FormatBool(verified)).Inc()
}

func (m *Metrics) RecordReconciliation(kind purchase.NotificationKind) {
	m.reconciliationsTotal.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) RecordFinalize(origin string, err error) {
	m.finalizeTotal.WithLabelValues(origin, strconv.FormatBool(err == nil)).Inc()
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerStateChanges.WithLabelValues(state).Inc()
}
