package purchase

import (
	"sync"
	"time"
)

// Reconciler turns verified transactions into entitlement state and
// notifications. All origins funnel through its mutex, so the store mutation
// and the enqueued notification are applied as one step and in arrival order.
type Reconciler struct {
	mu       sync.Mutex
	store    *EntitlementStore
	notifier *notifier
	metrics  Metrics
	logger   Logger
	now      func() time.Time
}

func newReconciler(store *EntitlementStore, n *notifier, metrics Metrics, logger Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		notifier: n,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// reconcile must only be called with a transaction that passed Verify.
func (r *Reconciler) reconcile(tx Transaction) Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	note := Notification{
		Kind:              ProductPurchased,
		ProductIdentifier: tx.ProductIdentifier,
		TransactionID:     tx.ID,
		At:                r.now(),
	}
	if tx.Revoked() {
		note.Kind = ProductRevoked
	}

	changed := r.store.apply(tx.ProductIdentifier, !tx.Revoked())
	r.metrics.RecordReconciliation(note.Kind)
	r.logger.Debug("transaction reconciled",
		Field{Key: "kind", Value: note.Kind},
		Field{Key: "product_id", Value: tx.ProductIdentifier},
		Field{Key: "transaction_id", Value: tx.ID},
		Field{Key: "changed", Value: changed})

	r.notifier.enqueue(note)
	return note
}
