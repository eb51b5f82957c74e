// Package stripe implements purchase.Platform on top of Stripe: prices as the
// product catalog, Checkout Sessions as purchases and signed webhooks as the
// transaction update stream.
package stripe

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gopurchase/pkg/platform"
	"github.com/mihaimyh/gopurchase/pkg/platform/internal"
	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

const (
	platformName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	defaultUpdateBuffer      = 64
	maxWebhookBody           = 256 * 1024

	metadataProductID = "product_id"
	metadataUserID    = "user_id"
	metadataKind      = "kind"
)

// Config holds Stripe platform configuration
type Config struct {
	// APIKey is the Stripe secret key used for outbound API calls
	APIKey string

	// WebhookSecret verifies the Stripe-Signature header of incoming webhooks
	WebhookSecret string

	// CustomerID is the Stripe customer whose entitlements are tracked.
	// Checkout sessions are attached to it and the snapshot lists its subscriptions.
	CustomerID string

	// UserID is stamped on checkout metadata so webhooks can be traced back
	UserID string

	// SuccessURL and CancelURL are where Checkout redirects after the purchase
	SuccessURL string
	CancelURL  string

	// HTTPClient is an optional HTTP client for API calls (default: 10s timeout)
	HTTPClient *http.Client

	// APIURL overrides the Stripe API base URL
	APIURL string

	// UpdateBuffer is the capacity of the transaction update stream (default: 64)
	UpdateBuffer int

	// RateLimit is the number of webhook requests allowed per client IP per minute (default: 100)
	RateLimit int

	// Metrics is an optional metrics collector (default: platform.NoopMetrics)
	Metrics platform.Metrics

	// Logger is an optional structured logger (default: purchase.NoopLogger)
	Logger purchase.Logger
}

// Platform implements purchase.Platform for Stripe
type Platform struct {
	config        Config
	client        *stripe.Client
	rateLimiter   *internal.RateLimiter
	webhookSecret string
	metrics       platform.Metrics
	logger        purchase.Logger

	mu        sync.Mutex
	prices    map[string]*stripe.Price
	finalized map[string]bool

	sendMu  sync.RWMutex
	closed  bool
	updates chan purchase.VerificationResult[purchase.Transaction]
}

// New creates a Stripe platform
func New(config Config) (*Platform, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, platform.ErrNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
	}
	if config.APIURL != "" {
		backendConfig.URL = stripe.String(config.APIURL)
	}
	client := stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendConfig)))

	buffer := config.UpdateBuffer
	if buffer <= 0 {
		buffer = defaultUpdateBuffer
	}
	rateLimit := config.RateLimit
	if rateLimit == 0 {
		rateLimit = defaultRateLimitRequests
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &platform.NoopMetrics{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &purchase.NoopLogger{}
	}

	return &Platform{
		config:        config,
		client:        client,
		rateLimiter:   internal.NewRateLimiter(rateLimit, defaultRateLimitWindow),
		webhookSecret: strings.TrimSpace(config.WebhookSecret),
		metrics:       metrics,
		logger:        logger,
		prices:        make(map[string]*stripe.Price),
		finalized:     make(map[string]bool),
		updates:       make(chan purchase.VerificationResult[purchase.Transaction], buffer),
	}, nil
}

// Name returns the platform name
func (p *Platform) Name() string {
	return platformName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Platform) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

// TransactionUpdates implements purchase.Platform
func (p *Platform) TransactionUpdates() <-chan purchase.VerificationResult[purchase.Transaction] {
	return p.updates
}

// FinalizeTransaction implements purchase.Platform. Webhook events whose
// transaction was finalized are acknowledged without being redelivered.
func (p *Platform) FinalizeTransaction(_ context.Context, tx purchase.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finalized[tx.ID] = true
	return nil
}

// Close closes the transaction update stream
func (p *Platform) Close() {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.updates)
	}
}

func (p *Platform) isFinalized(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finalized[id]
}

// push delivers a result on the update stream, waiting at most until ctx is done
func (p *Platform) push(ctx context.Context, result purchase.VerificationResult[purchase.Transaction]) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if p.closed {
		return platform.ErrStreamClosed
	}
	select {
	case p.updates <- result:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Platform) recordAPICall(endpoint string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordAPICall(platformName, endpoint, status)
	p.metrics.RecordAPICallDuration(platformName, endpoint, time.Since(start))
}
