package purchase

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Manager is the purchase and entitlement façade. It owns the cached catalog,
// the entitlement set and the update listener.
type Manager struct {
	platform Platform
	config   Config

	catalog    *CatalogResolver
	store      *EntitlementStore
	notifier   *notifier
	reconciler *Reconciler
	flow       *FlowController
	listener   *Listener

	mu          sync.Mutex
	initialized bool
	closed      bool
	closeOnce   sync.Once
}

// NewManager creates a purchase manager on top of the given platform
func NewManager(platform Platform, config Config) (*Manager, error) {
	if platform == nil {
		return nil, ErrPlatformRequired
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	if cbc := config.CircuitBreakerConfig; cbc != nil && cbc.Enabled {
		metrics := config.Metrics
		cb := NewDefaultCircuitBreaker(cbc.FailureThreshold, cbc.ResetTimeout, func(state CircuitBreakerState) {
			metrics.RecordCircuitBreakerStateChange(string(state))
		})
		platform = NewCircuitBreakerPlatform(platform, cb)
	}

	store := NewEntitlementStore()
	n := newNotifier(config.NotificationBuffer, config.Logger)
	reconciler := newReconciler(store, n, config.Metrics, config.Logger)
	catalog := newCatalogResolver(platform, config.Metrics, config.Logger)

	return &Manager{
		platform:   platform,
		config:     config,
		catalog:    catalog,
		store:      store,
		notifier:   n,
		reconciler: reconciler,
		flow:       newFlowController(platform, catalog, reconciler, config.Metrics, config.Logger),
		listener:   newListener(platform, reconciler, config.Metrics, config.Logger),
	}, nil
}

// Initialize starts the update listener, then resolves the configured catalog
// and reconciles the platform's entitlement snapshot. Both finish before it
// returns, so IsPurchased reflects the snapshot afterwards. A catalog failure
// does not stop the snapshot and vice versa; errors are joined.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.initialized {
		m.mu.Unlock()
		return ErrAlreadyInitialized
	}
	m.initialized = true
	m.mu.Unlock()

	if m.listener.Start(context.WithoutCancel(ctx)) {
		go m.supervise()
	}

	var catalogErr, snapshotErr error
	var g errgroup.Group
	g.Go(func() error {
		_, catalogErr = m.catalog.Resolve(ctx, m.config.ProductIdentifiers)
		return catalogErr
	})
	g.Go(func() error {
		_, snapshotErr = m.listener.ReconcileSnapshot(ctx)
		return snapshotErr
	})
	_ = g.Wait()

	if err := errors.Join(catalogErr, snapshotErr); err != nil {
		m.config.Logger.Error("initialization finished with errors", Field{Key: "error", Value: err.Error()})
		return err
	}

	m.config.Logger.Info("purchase manager initialized",
		Field{Key: "products", Value: len(m.catalog.Products())},
		Field{Key: "entitlements", Value: m.store.Len()})
	return nil
}

// supervise logs when the listener exits without being stopped
func (m *Manager) supervise() {
	<-m.listener.Done()
	if !m.listener.Stopped() {
		m.config.Logger.Error("transaction listener terminated unexpectedly")
	}
}

// Purchase runs a purchase for the product identifier
func (m *Manager) Purchase(ctx context.Context, identifier string) Outcome {
	if m.isClosed() {
		return Failure{Message: ErrClosed.Error(), Err: ErrClosed}
	}
	return m.flow.Purchase(ctx, identifier)
}

// IsPurchased reports whether the product is currently entitled
func (m *Manager) IsPurchased(identifier string) bool {
	return m.store.IsEntitled(identifier)
}

// Entitlements returns the currently entitled product identifiers
func (m *Manager) Entitlements() []string {
	return m.store.Snapshot()
}

// GetProducts resolves the identifiers and returns the complete resolved list.
// The cached catalog is replaced on success.
func (m *Manager) GetProducts(ctx context.Context, identifiers []string) ([]ProductDescriptor, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	return m.catalog.Resolve(ctx, identifiers)
}

// Products returns the cached catalog
func (m *Manager) Products() []ProductDescriptor {
	return m.catalog.Products()
}

// RestorePurchases asks the platform to redeliver every entitlement. The
// redelivered transactions are reconciled by the listener.
func (m *Manager) RestorePurchases(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	if err := m.platform.SyncEntitlements(ctx); err != nil {
		m.config.Logger.Warn("restore purchases failed", Field{Key: "error", Value: err.Error()})
		return &PlatformError{Op: "sync entitlements", Cause: err}
	}
	return nil
}

// Subscribe registers an observer for purchase and revoke notifications.
// The returned func removes it.
func (m *Manager) Subscribe(o Observer) func() {
	return m.notifier.subscribe(o)
}

// ListenerDone is closed when the update listener exits
func (m *Manager) ListenerDone() <-chan struct{} {
	return m.listener.Done()
}

// Close stops the listener and flushes pending notifications
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		m.listener.Stop()
		m.notifier.close()
		m.config.Logger.Info("purchase manager closed")
	})
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
