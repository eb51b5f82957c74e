package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/gopurchase/pkg/platform"
	"github.com/mihaimyh/gopurchase/pkg/platform/internal"
	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

const (
	eventCheckoutCompleted   = "checkout.session.completed"
	eventSubscriptionCreated = "customer.subscription.created"
	eventSubscriptionUpdated = "customer.subscription.updated"
	eventSubscriptionDeleted = "customer.subscription.deleted"
	eventChargeRefunded      = "charge.refunded"
)

// handleWebhook verifies a Stripe event and turns it into a transaction on the
// update stream. Events failing signature verification are still delivered,
// as unverified results, so the manager can log and discard them.
func (p *Platform) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if p.webhookSecret == "" {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBody)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(platformName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(platformName, "invalid_payload")
		}
		return
	}

	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		p.metrics.RecordWebhookError(platformName, "auth_failed")
		p.forwardUnverified(r, body, err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	eventType := string(event.Type)

	if p.isFinalized(event.ID) {
		p.metrics.RecordWebhookEvent(platformName, eventType, "duplicate")
		writeOK(w)
		return
	}

	tx, ok, err := eventTransaction(&event)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		p.metrics.RecordWebhookEvent(platformName, eventType, "error")
		p.metrics.RecordWebhookError(platformName, "invalid_payload")
		return
	}
	if !ok {
		p.metrics.RecordWebhookEvent(platformName, eventType, "ignored")
		writeOK(w)
		return
	}

	if err := p.push(r.Context(), purchase.Verified(tx)); err != nil {
		// Stripe retries non-2xx deliveries
		http.Error(w, "transaction stream unavailable", http.StatusServiceUnavailable)
		p.metrics.RecordWebhookEvent(platformName, eventType, "error")
		p.metrics.RecordWebhookError(platformName, "stream_closed")
		return
	}

	writeOK(w)
	p.metrics.RecordWebhookEvent(platformName, eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(platformName, eventType, time.Since(startTime))
}

// forwardUnverified delivers a badly signed event as an unverified result when
// its body still parses into a transaction.
func (p *Platform) forwardUnverified(r *http.Request, body []byte, cause error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return
	}
	tx, ok, err := eventTransaction(&event)
	if err != nil || !ok {
		return
	}
	reason := fmt.Sprintf("%s: %v", platform.ErrInvalidWebhookSignature, cause)
	if err := p.push(r.Context(), purchase.Unverified(tx, reason)); err != nil {
		p.logger.Debug("unverified stripe event dropped", purchase.Field{Key: "error", Value: err.Error()})
	}
}

// eventTransaction maps an event to a transaction. ok is false for events
// that carry no entitlement change.
func eventTransaction(event *stripe.Event) (tx purchase.Transaction, ok bool, err error) {
	if event.Data == nil {
		return tx, false, nil
	}
	at := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case eventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return tx, false, fmt.Errorf("%w: checkout session: %w", platform.ErrInvalidWebhookPayload, err)
		}
		productID := session.Metadata[metadataProductID]
		if productID == "" {
			return tx, false, nil
		}
		// delayed payment methods complete the session before the money arrives
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return tx, false, nil
		}
		return purchase.Transaction{
			ID:                event.ID,
			ProductIdentifier: productID,
			PurchaseTime:      at,
			RawPayload:        event.Data.Raw,
		}, true, nil

	case eventSubscriptionCreated, eventSubscriptionUpdated, eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return tx, false, fmt.Errorf("%w: subscription: %w", platform.ErrInvalidWebhookPayload, err)
		}
		if event.Type == eventSubscriptionDeleted {
			sub.Status = stripe.SubscriptionStatusCanceled
		}
		tx, ok = subscriptionTransaction(event.ID, &sub, at)
		if ok {
			tx.RawPayload = event.Data.Raw
		}
		return tx, ok, nil

	case eventChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return tx, false, fmt.Errorf("%w: charge: %w", platform.ErrInvalidWebhookPayload, err)
		}
		productID := charge.Metadata[metadataProductID]
		if productID == "" {
			return tx, false, nil
		}
		return purchase.Transaction{
			ID:                event.ID,
			ProductIdentifier: productID,
			PurchaseTime:      time.Unix(charge.Created, 0).UTC(),
			RevocationTime:    &at,
			RawPayload:        event.Data.Raw,
		}, true, nil

	default:
		return tx, false, nil
	}
}

func writeOK(w http.ResponseWriter) {
	_ = internal.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
