// Package memory provides an in-memory implementation of the purchase.Platform interface.
// It is scriptable and primarily intended for testing and development.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

const defaultUpdateBuffer = 64

// ErrClosed is returned when pushing to a closed platform
var ErrClosed = errors.New("memory platform closed")

type scripted struct {
	result purchase.PurchaseResult
	err    error
}

// Platform implements purchase.Platform using in-memory maps
type Platform struct {
	mu          sync.Mutex
	products    map[string]purchase.ProductDescriptor
	responses   map[string]scripted
	granted     map[string]purchase.Transaction
	snapshot    []purchase.VerificationResult[purchase.Transaction]
	lookupErr   error
	snapshotErr error
	finalizeErr error
	syncErr     error

	lookupCalls   [][]string
	purchaseCalls []string
	finalized     []purchase.Transaction

	sendMu  sync.RWMutex
	closed  bool
	updates chan purchase.VerificationResult[purchase.Transaction]
}

// New creates a new in-memory platform
func New() *Platform {
	return NewWithBuffer(defaultUpdateBuffer)
}

// NewWithBuffer creates a platform whose update stream has the given capacity
func NewWithBuffer(buffer int) *Platform {
	return &Platform{
		products:  make(map[string]purchase.ProductDescriptor),
		responses: make(map[string]scripted),
		granted:   make(map[string]purchase.Transaction),
		updates:   make(chan purchase.VerificationResult[purchase.Transaction], buffer),
	}
}

// AddProduct adds products to the catalog
func (p *Platform) AddProduct(products ...purchase.ProductDescriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, prod := range products {
		p.products[prod.Identifier] = prod
	}
}

// SetLookupError makes LookupProducts fail (nil clears it)
func (p *Platform) SetLookupError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookupErr = err
}

// SetPurchaseResponse scripts the InitiatePurchase result for a product.
// Products without a script get a verified grant.
func (p *Platform) SetPurchaseResponse(productID string, result purchase.PurchaseResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[productID] = scripted{result: result, err: err}
}

// AddSnapshot appends entries to the current-entitlements snapshot
func (p *Platform) AddSnapshot(results ...purchase.VerificationResult[purchase.Transaction]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = append(p.snapshot, results...)
}

// SetSnapshotError makes the snapshot stream end with an error
func (p *Platform) SetSnapshotError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshotErr = err
}

// SetFinalizeError makes FinalizeTransaction fail (nil clears it)
func (p *Platform) SetFinalizeError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finalizeErr = err
}

// SetSyncError makes SyncEntitlements fail (nil clears it)
func (p *Platform) SetSyncError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncErr = err
}

// LookupProducts implements purchase.Platform. Unknown identifiers are dropped.
func (p *Platform) LookupProducts(_ context.Context, identifiers []string) ([]purchase.ProductDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, len(identifiers))
	copy(ids, identifiers)
	p.lookupCalls = append(p.lookupCalls, ids)

	if p.lookupErr != nil {
		return nil, p.lookupErr
	}

	out := make([]purchase.ProductDescriptor, 0, len(identifiers))
	for _, id := range identifiers {
		if prod, ok := p.products[id]; ok {
			out = append(out, prod)
		}
	}
	return out, nil
}

// InitiatePurchase implements purchase.Platform
func (p *Platform) InitiatePurchase(_ context.Context, product purchase.ProductDescriptor) (purchase.PurchaseResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.purchaseCalls = append(p.purchaseCalls, product.Identifier)

	if s, ok := p.responses[product.Identifier]; ok {
		return s.result, s.err
	}

	tx := NewTransaction(product.Identifier, false)
	p.granted[product.Identifier] = tx
	return purchase.PurchaseVerification{Result: purchase.Verified(tx)}, nil
}

// CurrentEntitlements implements purchase.Platform
func (p *Platform) CurrentEntitlements(ctx context.Context) iter.Seq2[purchase.VerificationResult[purchase.Transaction], error] {
	p.mu.Lock()
	entries := make([]purchase.VerificationResult[purchase.Transaction], len(p.snapshot))
	copy(entries, p.snapshot)
	snapshotErr := p.snapshotErr
	p.mu.Unlock()

	return func(yield func(purchase.VerificationResult[purchase.Transaction], error) bool) {
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				yield(purchase.VerificationResult[purchase.Transaction]{}, err)
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
		if snapshotErr != nil {
			yield(purchase.VerificationResult[purchase.Transaction]{}, snapshotErr)
		}
	}
}

// TransactionUpdates implements purchase.Platform
func (p *Platform) TransactionUpdates() <-chan purchase.VerificationResult[purchase.Transaction] {
	return p.updates
}

// FinalizeTransaction implements purchase.Platform
func (p *Platform) FinalizeTransaction(_ context.Context, tx purchase.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finalizeErr != nil {
		return p.finalizeErr
	}
	p.finalized = append(p.finalized, tx)
	return nil
}

// SyncEntitlements implements purchase.Platform by redelivering every
// outstanding grant through the update stream.
func (p *Platform) SyncEntitlements(ctx context.Context) error {
	p.mu.Lock()
	if p.syncErr != nil {
		err := p.syncErr
		p.mu.Unlock()
		return err
	}
	ids := make([]string, 0, len(p.granted))
	for id := range p.granted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	grants := make([]purchase.Transaction, 0, len(ids))
	for _, id := range ids {
		grants = append(grants, p.granted[id])
	}
	p.mu.Unlock()

	for _, tx := range grants {
		if err := p.PushContext(ctx, purchase.Verified(tx)); err != nil {
			return err
		}
	}
	return nil
}

// Push delivers a result on the update stream, blocking while the buffer is full
func (p *Platform) Push(result purchase.VerificationResult[purchase.Transaction]) error {
	return p.PushContext(context.Background(), result)
}

// PushContext is Push bounded by ctx
func (p *Platform) PushContext(ctx context.Context, result purchase.VerificationResult[purchase.Transaction]) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.updates <- result:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Grant pushes a verified grant for the product (a renewal or a purchase made
// on another device) and returns it.
func (p *Platform) Grant(productID string) (purchase.Transaction, error) {
	tx := NewTransaction(productID, false)
	p.mu.Lock()
	p.granted[productID] = tx
	p.mu.Unlock()
	return tx, p.Push(purchase.Verified(tx))
}

// Revoke pushes a verified revocation for the product (refund, expiry) and returns it.
func (p *Platform) Revoke(productID string) (purchase.Transaction, error) {
	tx := NewTransaction(productID, true)
	p.mu.Lock()
	delete(p.granted, productID)
	p.mu.Unlock()
	return tx, p.Push(purchase.Verified(tx))
}

// Close closes the update stream
func (p *Platform) Close() {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.updates)
	}
}

// LookupCalls returns the identifiers of every LookupProducts call
func (p *Platform) LookupCalls() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]string, len(p.lookupCalls))
	copy(out, p.lookupCalls)
	return out
}

// PurchaseCalls returns the product of every InitiatePurchase call
func (p *Platform) PurchaseCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.purchaseCalls))
	copy(out, p.purchaseCalls)
	return out
}

// Finalized returns every finalized transaction in order
func (p *Platform) Finalized() []purchase.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]purchase.Transaction, len(p.finalized))
	copy(out, p.finalized)
	return out
}

// NewTransaction builds a transaction with a fresh ID and a JSON raw payload
func NewTransaction(productID string, revoked bool) purchase.Transaction {
	now := time.Now().UTC()
	tx := purchase.Transaction{
		ID:                uuid.NewString(),
		ProductIdentifier: productID,
		PurchaseTime:      now,
	}
	if revoked {
		tx.RevocationTime = &now
	}
	tx.RawPayload, _ = json.Marshal(map[string]interface{}{
		"transaction_id": tx.ID,
		"product_id":     productID,
		"purchased_at":   now.Format(time.RFC3339Nano),
		"revoked":        revoked,
	})
	return tx
}
