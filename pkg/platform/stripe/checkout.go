package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

// InitiatePurchase implements purchase.Platform by creating a Checkout Session.
// The purchase completes asynchronously: the result is always PurchasePending
// with the session URL, and the grant arrives through the webhook stream.
func (p *Platform) InitiatePurchase(ctx context.Context, product purchase.ProductDescriptor) (purchase.PurchaseResult, error) {
	price, err := p.priceFor(ctx, product.Identifier)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	metadata := map[string]string{metadataProductID: product.Identifier}
	if p.config.UserID != "" {
		metadata[metadataUserID] = p.config.UserID
	}

	params := &stripe.CheckoutSessionCreateParams{
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(price.ID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.config.SuccessURL),
		CancelURL:  stripe.String(p.config.CancelURL),
		Metadata:   metadata,
	}

	// the product id has to travel with the subscription or payment so later
	// renewals and refunds can be mapped back
	if price.Recurring != nil {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
		for k, v := range metadata {
			params.SubscriptionData.AddMetadata(k, v)
		}
	} else {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.PaymentIntentData = &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		}
	}

	if p.config.CustomerID != "" {
		params.Customer = stripe.String(p.config.CustomerID)
	} else if p.config.UserID != "" {
		params.ClientReferenceID = stripe.String(p.config.UserID)
	}

	session, err := p.client.V1CheckoutSessions.Create(ctx, params)
	p.recordAPICall("/v1/checkout/sessions", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	p.logger.Debug("checkout session created",
		purchase.Field{Key: "product_id", Value: product.Identifier},
		purchase.Field{Key: "session_id", Value: session.ID})
	return purchase.PurchasePending{ApprovalURL: session.URL}, nil
}
