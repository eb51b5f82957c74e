package purchase

import (
	"context"
	"fmt"
	"sync"
)

// Listener consumes the platform's transaction streams for the lifetime of the
// manager. Every event goes through Verify before reconciliation; a bad event
// is logged and skipped, never fatal to the loop.
type Listener struct {
	platform   Platform
	reconciler *Reconciler
	metrics    Metrics
	logger     Logger

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	stopping bool
}

func newListener(platform Platform, reconciler *Reconciler, metrics Metrics, logger Logger) *Listener {
	return &Listener{
		platform:   platform,
		reconciler: reconciler,
		metrics:    metrics,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// ReconcileSnapshot drains the current-entitlements snapshot once. Entries
// failing verification are skipped. Snapshot entries are not finalized.
func (l *Listener) ReconcileSnapshot(ctx context.Context) (int, error) {
	applied := 0
	for result, err := range l.platform.CurrentEntitlements(ctx) {
		if err != nil {
			return applied, &PlatformError{Op: "current entitlements", Cause: err}
		}

		tx, verr := Verify(result)
		l.metrics.RecordVerification(OriginSnapshot, verr == nil)
		if verr != nil {
			l.logger.Warn("snapshot entitlement failed verification, skipping",
				Field{Key: "product_id", Value: result.untrusted().ProductIdentifier},
				Field{Key: "reason", Value: result.Reason()})
			continue
		}

		l.reconciler.reconcile(tx)
		applied++
	}

	l.logger.Info("entitlement snapshot reconciled", Field{Key: "applied", Value: applied})
	return applied, nil
}

// Start launches the live update loop and reports whether it did. Only the
// first call before Stop has an effect.
func (l *Listener) Start(parent context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.stopping {
		return false
	}
	l.started = true

	ctx, cancel := context.WithCancel(parent)
	l.cancel = cancel
	go l.run(ctx)
	return true
}

// Stop cancels the loop and waits for it to exit. An event being processed
// when Stop is called is completed first.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopping = true
		started := l.started
		cancel := l.cancel
		l.mu.Unlock()

		if !started {
			return
		}
		cancel()
		<-l.done
	})
}

// Done is closed when the live update loop exits
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Stopped reports whether Stop has been called
func (l *Listener) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopping
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	updates := l.platform.TransactionUpdates()
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("transaction listener stopped")
			return
		case result, ok := <-updates:
			if !ok {
				if ctx.Err() == nil {
					l.logger.Error("transaction update stream closed")
				}
				return
			}
			l.handle(ctx, result)
		}
	}
}

// handle processes one event. Finalize runs without the loop's cancellation so
// an event that was reconciled is always acknowledged.
func (l *Listener) handle(ctx context.Context, result VerificationResult[Transaction]) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("transaction update handler panicked",
				Field{Key: "panic", Value: fmt.Sprint(r)})
		}
	}()

	tx, err := Verify(result)
	l.metrics.RecordVerification(OriginListener, err == nil)
	if err != nil {
		untrusted := result.untrusted()
		l.logger.Warn("transaction update failed verification",
			Field{Key: "product_id", Value: untrusted.ProductIdentifier},
			Field{Key: "transaction_id", Value: untrusted.ID},
			Field{Key: "reason", Value: result.Reason()})
		return
	}

	l.reconciler.reconcile(tx)

	err = l.platform.FinalizeTransaction(context.WithoutCancel(ctx), tx)
	l.metrics.RecordFinalize(OriginListener, err)
	if err != nil {
		l.logger.Error("finalize failed",
			Field{Key: "product_id", Value: tx.ProductIdentifier},
			Field{Key: "transaction_id", Value: tx.ID},
			Field{Key: "error", Value: err.Error()})
	}
}
