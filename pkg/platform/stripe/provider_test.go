package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gopurchase/pkg/platform"
	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

const (
	testStripeAPIKey        = "sk_test_1234567890"
	testStripeWebhookSecret = "whsec_test_secret"
	testCustomerID          = "cus_test_123"
	testUserID              = "test-user-123"
)

func newTestPlatform(t *testing.T, config Config) *Platform {
	t.Helper()
	if config.APIKey == "" {
		config.APIKey = testStripeAPIKey
	}
	p, err := New(config)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, platform.ErrNotConfigured)

	_, err = New(Config{APIKey: "   "})
	assert.ErrorIs(t, err, platform.ErrNotConfigured)

	p := newTestPlatform(t, Config{WebhookSecret: " " + testStripeWebhookSecret + " "})
	assert.Equal(t, "stripe", p.Name())
	assert.Equal(t, testStripeWebhookSecret, p.webhookSecret)
	assert.Equal(t, defaultUpdateBuffer, cap(p.updates))
}

func TestPlatform_ImplementsInterface(t *testing.T) {
	var _ purchase.Platform = newTestPlatform(t, Config{})
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		amount   int64
		currency string
		want     string
	}{
		{499, "usd", "4.99 USD"},
		{1000, "eur", "10.00 EUR"},
		{5, "gbp", "0.05 GBP"},
		{500, "jpy", "500 JPY"},
		{-250, "usd", "-2.50 USD"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatPrice(tt.amount, tt.currency))
	}
}

func TestPriceKind(t *testing.T) {
	recurring := &stripe.Price{Recurring: &stripe.PriceRecurring{Interval: stripe.PriceRecurringIntervalMonth}}
	assert.Equal(t, purchase.KindAutoRenewable, priceKind(recurring))

	oneTime := &stripe.Price{Type: stripe.PriceTypeOneTime}
	assert.Equal(t, purchase.KindNonConsumable, priceKind(oneTime))

	consumable := &stripe.Price{
		Type:    stripe.PriceTypeOneTime,
		Product: &stripe.Product{Metadata: map[string]string{"kind": "consumable"}},
	}
	assert.Equal(t, purchase.KindConsumable, priceKind(consumable))

	bogus := &stripe.Price{Product: &stripe.Product{Metadata: map[string]string{"kind": "lifetime"}}}
	assert.Equal(t, purchase.KindUnknown, priceKind(bogus))
}

func TestDescribePrice(t *testing.T) {
	d := describePrice(&stripe.Price{
		LookupKey:  "pro_upgrade",
		Nickname:   "Pro nickname",
		UnitAmount: 499,
		Currency:   stripe.CurrencyUSD,
		Type:       stripe.PriceTypeOneTime,
		Product:    &stripe.Product{Name: "Pro", Description: "Unlock everything"},
	})

	assert.Equal(t, purchase.ProductDescriptor{
		Identifier:   "pro_upgrade",
		DisplayName:  "Pro",
		DisplayPrice: "4.99 USD",
		Description:  "Unlock everything",
		Kind:         purchase.KindNonConsumable,
	}, d)
}

func TestPlatform_Finalize(t *testing.T) {
	p := newTestPlatform(t, Config{})
	assert.False(t, p.isFinalized("evt_1"))
	require.NoError(t, p.FinalizeTransaction(context.Background(), purchase.Transaction{ID: "evt_1"}))
	assert.True(t, p.isFinalized("evt_1"))
}

func TestPlatform_CurrentEntitlementsWithoutCustomer(t *testing.T) {
	p := newTestPlatform(t, Config{})

	count := 0
	for range p.CurrentEntitlements(context.Background()) {
		count++
	}
	assert.Zero(t, count)
	assert.ErrorIs(t, p.SyncEntitlements(context.Background()), platform.ErrCustomerNotFound)
}

func TestPlatform_LookupProducts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/prices", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"url": "/v1/prices",
			"has_more": false,
			"data": [
				{
					"id": "price_123",
					"object": "price",
					"lookup_key": "sub_monthly",
					"unit_amount": 199,
					"currency": "usd",
					"type": "recurring",
					"recurring": {"interval": "month", "interval_count": 1},
					"product": {"id": "prod_1", "object": "product", "name": "Monthly", "description": "Monthly plan"}
				}
			]
		}`))
	}))
	defer server.Close()

	p := newTestPlatform(t, Config{APIURL: server.URL, HTTPClient: server.Client()})

	products, err := p.LookupProducts(context.Background(), []string{"sub_monthly", "ghost"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "sub_monthly", products[0].Identifier)
	assert.Equal(t, "Monthly", products[0].DisplayName)
	assert.Equal(t, "1.99 USD", products[0].DisplayPrice)
	assert.Equal(t, purchase.KindAutoRenewable, products[0].Kind)

	price, err := p.priceFor(context.Background(), "sub_monthly")
	require.NoError(t, err)
	assert.Equal(t, "price_123", price.ID)
}

func TestPlatform_LookupProductsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "Invalid API Key provided"}}`))
	}))
	defer server.Close()

	p := newTestPlatform(t, Config{APIURL: server.URL, HTTPClient: server.Client()})

	_, err := p.LookupProducts(context.Background(), []string{"sub_monthly"})
	assert.ErrorIs(t, err, platform.ErrAPIError)
}
