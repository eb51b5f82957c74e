package purchase

import "time"

// Transaction origins used in metrics labels
const (
	OriginPurchase = "purchase"
	OriginListener = "listener"
	OriginSnapshot = "snapshot"
)

// Metrics defines the interface for tracking purchase operations.
type Metrics interface {
	// RecordCatalogResolve records a catalog resolve and its duration.
	// status: "success" or "error"
	RecordCatalogResolve(status string, duration time.Duration)

	// RecordPurchaseOutcome records the terminal outcome of a purchase attempt.
	RecordPurchaseOutcome(productID, outcome string)

	// RecordVerification records a pass through the verification gate.
	RecordVerification(origin string, verified bool)

	// RecordReconciliation records an applied grant or revocation.
	RecordReconciliation(kind NotificationKind)

	// RecordFinalize records a finalize call and its error, if any.
	RecordFinalize(origin string, err error)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordCatalogResolve(status string, duration time.Duration) {}
func (n *NoopMetrics) RecordPurchaseOutcome(productID, outcome string)            {}
func (n *NoopMetrics) RecordVerification(origin string, verified bool)            {}
func (n *NoopMetrics) RecordReconciliation(kind NotificationKind)                 {}
func (n *NoopMetrics) RecordFinalize(origin string, err error)                    {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)               {}
