package purchase

import (
	"context"
	"iter"
)

// CircuitBreakerPlatform wraps a Platform with circuit breaker protection.
// Streams are passed through untouched.
type CircuitBreakerPlatform struct {
	platform Platform
	cb       CircuitBreaker
}

// NewCircuitBreakerPlatform creates a new platform wrapper with circuit breaker.
func NewCircuitBreakerPlatform(platform Platform, cb CircuitBreaker) *CircuitBreakerPlatform {
	return &CircuitBreakerPlatform{
		platform: platform,
		cb:       cb,
	}
}

func (p *CircuitBreakerPlatform) LookupProducts(ctx context.Context, identifiers []string) ([]ProductDescriptor, error) {
	var products []ProductDescriptor
	err := p.cb.Execute(ctx, func() error {
		var e error
		products, e = p.platform.LookupProducts(ctx, identifiers)
		return e
	})
	return products, err
}

func (p *CircuitBreakerPlatform) InitiatePurchase(ctx context.Context, product ProductDescriptor) (PurchaseResult, error) {
	var result PurchaseResult
	err := p.cb.Execute(ctx, func() error {
		var e error
		result, e = p.platform.InitiatePurchase(ctx, product)
		return e
	})
	return result, err
}

func (p *CircuitBreakerPlatform) CurrentEntitlements(ctx context.Context) iter.Seq2[VerificationResult[Transaction], error] {
	return p.platform.CurrentEntitlements(ctx)
}

func (p *CircuitBreakerPlatform) TransactionUpdates() <-chan VerificationResult[Transaction] {
	return p.platform.TransactionUpdates()
}

func (p *CircuitBreakerPlatform) FinalizeTransaction(ctx context.Context, tx Transaction) error {
	return p.cb.Execute(ctx, func() error {
		return p.platform.FinalizeTransaction(ctx, tx)
	})
}

func (p *CircuitBreakerPlatform) SyncEntitlements(ctx context.Context) error {
	return p.cb.Execute(ctx, func() error {
		return p.platform.SyncEntitlements(ctx)
	})
}
