package purchase

import (
	"context"
	"fmt"
)

// Callback receives the result of an asynchronous operation. It is invoked
// exactly once, on a goroutine owned by the manager.
type Callback func(Result)

// InitializeAsync runs Initialize in the background
func (m *Manager) InitializeAsync(ctx context.Context, onComplete Callback) {
	m.async(onComplete, func() Result {
		return ErrorResult(m.Initialize(ctx))
	})
}

// PurchaseAsync runs Purchase in the background
func (m *Manager) PurchaseAsync(ctx context.Context, identifier string, onComplete Callback) {
	m.async(onComplete, func() Result {
		return OutcomeResult(m.Purchase(ctx, identifier))
	})
}

// GetProductsAsync runs GetProducts in the background; the resolved list is
// delivered in a single callback.
func (m *Manager) GetProductsAsync(ctx context.Context, identifiers []string, onComplete Callback) {
	m.async(onComplete, func() Result {
		products, err := m.GetProducts(ctx, identifiers)
		if err != nil {
			return ErrorResult(err)
		}
		return Result{Code: ResultSuccess, Products: products}
	})
}

// RestorePurchasesAsync runs RestorePurchases in the background
func (m *Manager) RestorePurchasesAsync(ctx context.Context, onComplete Callback) {
	m.async(onComplete, func() Result {
		return ErrorResult(m.RestorePurchases(ctx))
	})
}

func (m *Manager) async(onComplete Callback, fn func() Result) {
	go func() {
		var result Result
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.config.Logger.Error("async operation panicked", Field{Key: "panic", Value: fmt.Sprint(r)})
					result = Result{Code: ResultFailure, Message: fmt.Sprintf("internal error: %v", r)}
				}
			}()
			result = fn()
		}()
		if onComplete != nil {
			onComplete(result)
		}
	}()
}
