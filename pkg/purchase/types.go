package purchase

import (
	"context"
	"iter"
	"time"
)

// ProductKind classifies a product the way the commerce platform does
type ProductKind string

const (
	// KindConsumable can be bought repeatedly (e.g. credit packs)
	KindConsumable ProductKind = "consumable"
	// KindNonConsumable is bought once and owned forever
	KindNonConsumable ProductKind = "non_consumable"
	// KindAutoRenewable is a subscription renewed by the platform
	KindAutoRenewable ProductKind = "auto_renewable"
	// KindNonRenewable is a time-limited purchase that does not renew
	KindNonRenewable ProductKind = "non_renewable"
	// KindUnknown is used when the platform reports a type we don't model
	KindUnknown ProductKind = "unknown"
)

// ProductDescriptor is a priced, typed product resolved from the platform catalog.
// Descriptors are read-only once resolved.
type ProductDescriptor struct {
	Identifier   string      `json:"identifier"`
	DisplayName  string      `json:"display_name"`
	DisplayPrice string      `json:"display_price"`
	Description  string      `json:"description"`
	Kind         ProductKind `json:"kind"`
}

// Transaction is a platform-issued record of a single grant or revocation.
type Transaction struct {
	// ID is the platform transaction identifier (used for finalize/dedupe)
	ID string

	// ProductIdentifier is the product the transaction applies to
	ProductIdentifier string

	// PurchaseTime is when the platform recorded the purchase (zero if unknown)
	PurchaseTime time.Time

	// RevocationTime is set when the entitlement was revoked (refund, expiry, chargeback)
	RevocationTime *time.Time

	// RawPayload is the signed platform payload, returned to callers as the receipt
	RawPayload []byte
}

// Revoked reports whether the transaction removes the entitlement
func (t Transaction) Revoked() bool {
	return t.RevocationTime != nil
}

// VerificationResult wraps a platform payload together with the platform's
// verdict on its authenticity. The payload can only be obtained through Verify.
type VerificationResult[T any] struct {
	payload  T
	verified bool
	reason   string
}

// Verified wraps a payload the platform vouched for
func Verified[T any](payload T) VerificationResult[T] {
	return VerificationResult[T]{payload: payload, verified: true}
}

// Unverified wraps a payload that failed the platform's signature checks
func Unverified[T any](payload T, reason string) VerificationResult[T] {
	if reason == "" {
		reason = "unverified"
	}
	return VerificationResult[T]{payload: payload, reason: reason}
}

// IsVerified reports the platform verdict without exposing the payload
func (r VerificationResult[T]) IsVerified() bool {
	return r.verified
}

// Reason returns why verification failed (empty for verified results)
func (r VerificationResult[T]) Reason() string {
	return r.reason
}

// PurchaseResult is what the platform returns from InitiatePurchase.
// Implementations: PurchaseVerification, PurchasePending, PurchaseCancelled.
type PurchaseResult interface {
	isPurchaseResult()
}

// PurchaseVerification carries the signed transaction of a completed purchase
type PurchaseVerification struct {
	Result VerificationResult[Transaction]
}

// PurchasePending means the purchase awaits external approval (parental
// approval, hosted checkout, bank authentication).
type PurchasePending struct {
	// ApprovalURL is where the user completes the purchase, if the platform has one
	ApprovalURL string
}

// PurchaseCancelled means the user backed out of the purchase
type PurchaseCancelled struct{}

func (PurchaseVerification) isPurchaseResult() {}
func (PurchasePending) isPurchaseResult()      {}
func (PurchaseCancelled) isPurchaseResult()    {}

// Platform is the commerce platform SDK boundary.
// Every call may block; implementations must be safe for concurrent use.
type Platform interface {
	// LookupProducts resolves identifiers to descriptors. Unknown identifiers
	// may be silently omitted from the result.
	LookupProducts(ctx context.Context, identifiers []string) ([]ProductDescriptor, error)

	// InitiatePurchase starts a purchase for the given product
	InitiatePurchase(ctx context.Context, product ProductDescriptor) (PurchaseResult, error)

	// CurrentEntitlements returns a finite snapshot of every active entitlement.
	// It is consumed once, at initialization.
	CurrentEntitlements(ctx context.Context) iter.Seq2[VerificationResult[Transaction], error]

	// TransactionUpdates returns the live, unbounded stream of transaction events.
	// The channel is closed only when the platform shuts down.
	TransactionUpdates() <-chan VerificationResult[Transaction]

	// FinalizeTransaction acknowledges a processed transaction so it is not redelivered
	FinalizeTransaction(ctx context.Context, tx Transaction) error

	// SyncEntitlements asks the platform to redeliver all entitlements through
	// TransactionUpdates (restore purchases).
	SyncEntitlements(ctx context.Context) error
}

// NotificationKind distinguishes grant and revoke notifications
type NotificationKind string

const (
	// ProductPurchased is emitted after an entitlement is granted
	ProductPurchased NotificationKind = "product_purchased"
	// ProductRevoked is emitted after an entitlement is revoked
	ProductRevoked NotificationKind = "product_revoked"
)

// Notification describes one applied reconciliation
type Notification struct {
	Kind              NotificationKind `json:"kind"`
	ProductIdentifier string           `json:"product_identifier"`
	TransactionID     string           `json:"transaction_id,omitempty"`
	At                time.Time        `json:"at"`
}

// Observer receives notifications in reconciliation order
type Observer func(Notification)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	// Enabled determines if the circuit breaker is active
	Enabled bool

	// FailureThreshold is the number of consecutive failures before opening the circuit.
	// Must be positive when Enabled.
	FailureThreshold int

	// ResetTimeout is the duration to wait before transitioning from Open to Half-Open.
	// Must be positive when Enabled.
	ResetTimeout time.Duration
}

// Config holds purchase manager configuration
type Config struct {
	// ProductIdentifiers is the catalog resolved by Initialize
	ProductIdentifiers []string

	// Metrics is used for tracking purchase operations (default: NoopMetrics)
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// CircuitBreakerConfig optionally guards request/response platform calls
	CircuitBreakerConfig *CircuitBreakerConfig

	// NotificationBuffer is the initial capacity of the ordered notification queue (default: 64).
	// The queue grows as needed; reconciliation never waits on observers.
	NotificationBuffer int
}
