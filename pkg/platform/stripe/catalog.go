package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gopurchase/pkg/platform"
	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

// zeroDecimalCurrencies are charged in whole units
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// LookupProducts implements purchase.Platform. Product identifiers are Stripe
// price lookup keys; identifiers without an active price are omitted.
func (p *Platform) LookupProducts(ctx context.Context, identifiers []string) ([]purchase.ProductDescriptor, error) {
	start := time.Now()

	params := &stripe.PriceListParams{
		LookupKeys: stripe.StringSlice(identifiers),
		Active:     stripe.Bool(true),
	}
	params.AddExpand("data.product")

	var products []purchase.ProductDescriptor
	found := make(map[string]*stripe.Price, len(identifiers))
	for price, err := range p.client.V1Prices.List(ctx, params) {
		if err != nil {
			p.recordAPICall("/v1/prices", start, err)
			return nil, fmt.Errorf("%w: list prices: %w", platform.ErrAPIError, err)
		}
		if price.LookupKey == "" {
			continue
		}
		found[price.LookupKey] = price
		products = append(products, describePrice(price))
	}
	p.recordAPICall("/v1/prices", start, nil)

	p.mu.Lock()
	for key, price := range found {
		p.prices[key] = price
	}
	p.mu.Unlock()

	return products, nil
}

// priceFor returns the cached price for a lookup key, fetching it if needed
func (p *Platform) priceFor(ctx context.Context, lookupKey string) (*stripe.Price, error) {
	p.mu.Lock()
	price, ok := p.prices[lookupKey]
	p.mu.Unlock()
	if ok {
		return price, nil
	}

	if _, err := p.LookupProducts(ctx, []string{lookupKey}); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if price, ok = p.prices[lookupKey]; !ok {
		return nil, fmt.Errorf("%w: no active price with lookup key %q", purchase.ErrNoSuchProduct, lookupKey)
	}
	return price, nil
}

func describePrice(price *stripe.Price) purchase.ProductDescriptor {
	d := purchase.ProductDescriptor{
		Identifier:   price.LookupKey,
		DisplayName:  price.Nickname,
		DisplayPrice: formatPrice(price.UnitAmount, string(price.Currency)),
		Kind:         priceKind(price),
	}
	if price.Product != nil {
		if price.Product.Name != "" {
			d.DisplayName = price.Product.Name
		}
		d.Description = price.Product.Description
	}
	return d
}

// priceKind prefers the product's "kind" metadata and falls back to the price type
func priceKind(price *stripe.Price) purchase.ProductKind {
	if price.Product != nil {
		switch k := purchase.ProductKind(price.Product.Metadata[metadataKind]); k {
		case purchase.KindConsumable, purchase.KindNonConsumable,
			purchase.KindAutoRenewable, purchase.KindNonRenewable:
			return k
		}
	}
	if price.Recurring != nil {
		return purchase.KindAutoRenewable
	}
	if price.Type == stripe.PriceTypeOneTime {
		return purchase.KindNonConsumable
	}
	return purchase.KindUnknown
}

// formatPrice renders minor units as "4.99 USD"
func formatPrice(amount int64, currency string) string {
	code := strings.ToUpper(currency)
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return fmt.Sprintf("%d %s", amount, code)
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, code)
}
