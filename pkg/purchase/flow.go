package purchase

import (
	"context"
	"errors"
	"fmt"
)

const failedVerificationMessage = "failed verification"

// FlowController drives one purchase attempt to exactly one Outcome:
//
//	Idle -> AwaitingPlatform -> {Pending, Cancelled, Verifying} -> {Success, Failed}
type FlowController struct {
	platform   Platform
	catalog    *CatalogResolver
	reconciler *Reconciler
	metrics    Metrics
	logger     Logger
}

func newFlowController(platform Platform, catalog *CatalogResolver, reconciler *Reconciler,
	metrics Metrics, logger Logger) *FlowController {
	return &FlowController{
		platform:   platform,
		catalog:    catalog,
		reconciler: reconciler,
		metrics:    metrics,
		logger:     logger,
	}
}

// Purchase buys the product with the given identifier. The cached catalog is
// consulted first; on a miss the platform is probed for that single identifier
// without replacing the cache.
func (f *FlowController) Purchase(ctx context.Context, identifier string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Failure{
				Message: fmt.Sprintf("platform panic: %v", r),
				Err:     &PlatformError{Op: "purchase", Cause: fmt.Errorf("panic: %v", r)},
			}
		}
		f.metrics.RecordPurchaseOutcome(identifier, outcome.Name())
		f.logger.Info("purchase finished",
			Field{Key: "product_id", Value: identifier},
			Field{Key: "outcome", Value: outcome.Name()})
	}()

	product, ok := f.catalog.Cached(identifier)
	if !ok {
		var err error
		product, ok, err = f.catalog.Probe(ctx, identifier)
		if err != nil {
			return platformFailure("lookup products", err)
		}
		if !ok {
			return NoSuchProduct{Identifier: identifier}
		}
	}

	result, err := f.platform.InitiatePurchase(ctx, product)
	if err != nil {
		return platformFailure("initiate purchase", err)
	}

	switch r := result.(type) {
	case PurchasePending:
		return PendingAuthorization{ApprovalURL: r.ApprovalURL}
	case PurchaseCancelled:
		return UserCancelled{}
	case PurchaseVerification:
		return f.complete(ctx, identifier, r.Result)
	default:
		return platformFailure("initiate purchase", fmt.Errorf("unexpected purchase result %T", result))
	}
}

// complete runs the Verifying state: gate, reconcile, finalize.
func (f *FlowController) complete(ctx context.Context, identifier string, result VerificationResult[Transaction]) Outcome {
	tx, err := Verify(result)
	f.metrics.RecordVerification(OriginPurchase, err == nil)
	if err != nil {
		f.logger.Warn("purchase transaction failed verification",
			Field{Key: "product_id", Value: identifier},
			Field{Key: "reason", Value: result.Reason()})
		return Failure{Message: failedVerificationMessage, Err: err}
	}

	if tx.ProductIdentifier != identifier {
		f.logger.Warn("purchase returned transaction for another product",
			Field{Key: "product_id", Value: identifier},
			Field{Key: "transaction_product_id", Value: tx.ProductIdentifier})
	}

	f.reconciler.reconcile(tx)

	err = f.platform.FinalizeTransaction(ctx, tx)
	f.metrics.RecordFinalize(OriginPurchase, err)
	if err != nil {
		f.logger.Error("finalize failed after purchase",
			Field{Key: "transaction_id", Value: tx.ID},
			Field{Key: "error", Value: err.Error()})
		return platformFailure("finalize transaction", err)
	}

	return Success{Receipt: tx.RawPayload}
}

func platformFailure(op string, err error) Failure {
	var perr *PlatformError
	if !errors.As(err, &perr) {
		perr = &PlatformError{Op: op, Cause: err}
	}
	return Failure{Message: perr.Error(), Err: perr}
}
