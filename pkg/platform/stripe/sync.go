package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gopurchase/pkg/platform"
	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

// CurrentEntitlements implements purchase.Platform by listing the configured
// customer's active subscriptions. Results come from the authenticated API
// and are reported as verified.
func (p *Platform) CurrentEntitlements(ctx context.Context) iter.Seq2[purchase.VerificationResult[purchase.Transaction], error] {
	return func(yield func(purchase.VerificationResult[purchase.Transaction], error) bool) {
		if p.config.CustomerID == "" {
			p.logger.Debug("no stripe customer configured, entitlement snapshot is empty")
			return
		}

		start := time.Now()
		params := &stripe.SubscriptionListParams{}
		params.Customer = stripe.String(p.config.CustomerID)
		params.Status = stripe.String(string(stripe.SubscriptionStatusActive))

		for sub, err := range p.client.V1Subscriptions.List(ctx, params) {
			if err != nil {
				p.recordAPICall("/v1/subscriptions", start, err)
				yield(purchase.VerificationResult[purchase.Transaction]{},
					fmt.Errorf("%w: list subscriptions: %w", platform.ErrAPIError, err))
				return
			}

			tx, ok := subscriptionTransaction(sub.ID, sub, time.Unix(sub.Created, 0))
			if !ok {
				p.logger.Warn("subscription has no product identifier, skipping",
					purchase.Field{Key: "subscription_id", Value: sub.ID})
				continue
			}
			if !yield(purchase.Verified(tx), nil) {
				return
			}
		}
		p.recordAPICall("/v1/subscriptions", start, nil)
	}
}

// SyncEntitlements implements purchase.Platform by redelivering the current
// entitlements through the update stream.
func (p *Platform) SyncEntitlements(ctx context.Context) error {
	if p.config.CustomerID == "" {
		return platform.ErrCustomerNotFound
	}

	redelivered := 0
	for result, err := range p.CurrentEntitlements(ctx) {
		if err != nil {
			return err
		}
		if err := p.push(ctx, result); err != nil {
			return err
		}
		redelivered++
	}

	p.logger.Info("stripe entitlements redelivered", purchase.Field{Key: "count", Value: redelivered})
	return nil
}

// subscriptionTransaction maps a subscription to a grant when it is active or
// trialing and to a revocation otherwise.
func subscriptionTransaction(id string, sub *stripe.Subscription, at time.Time) (purchase.Transaction, bool) {
	productID := subscriptionProductID(sub)
	if productID == "" {
		return purchase.Transaction{}, false
	}

	raw, _ := json.Marshal(sub)
	tx := purchase.Transaction{
		ID:                id,
		ProductIdentifier: productID,
		PurchaseTime:      time.Unix(sub.Created, 0).UTC(),
		RawPayload:        raw,
	}

	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
	default:
		revokedAt := at.UTC()
		tx.RevocationTime = &revokedAt
	}
	return tx, true
}

// subscriptionProductID reads the product id from metadata, falling back to
// the lookup key of the first priced item.
func subscriptionProductID(sub *stripe.Subscription) string {
	if id := sub.Metadata[metadataProductID]; id != "" {
		return id
	}
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item.Price != nil && item.Price.LookupKey != "" {
			return item.Price.LookupKey
		}
	}
	return ""
}
