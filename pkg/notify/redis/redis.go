// Package redis mirrors purchase notifications into Redis: every notification
// is published on a channel and the entitled product set is kept in a Redis set,
// so other processes can follow entitlement changes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

// Config holds Redis publisher configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "gopurchase:")
	KeyPrefix string

	// Timeout bounds each publish (default: 2 seconds)
	Timeout time.Duration

	// Logger is used to report publish failures (default: purchase.NoopLogger)
	Logger purchase.Logger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "gopurchase:",
		Timeout:   2 * time.Second,
	}
}

// Publisher is a purchase.Observer backed by Redis
type Publisher struct {
	client redis.UniversalClient
	config Config
}

// New creates a new Redis publisher.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "gopurchase:"
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}
	if config.Logger == nil {
		config.Logger = &purchase.NoopLogger{}
	}

	return &Publisher{client: client, config: config}, nil
}

// Channel returns the pub/sub channel notifications are published on
func (p *Publisher) Channel() string {
	return p.config.KeyPrefix + "notifications"
}

func (p *Publisher) entitlementsKey() string {
	return p.config.KeyPrefix + "entitlements"
}

// Observe implements purchase.Observer. Failures are logged; the manager's
// notification order is preserved because observers run one at a time.
func (p *Publisher) Observe(n purchase.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
	defer cancel()

	if err := p.Publish(ctx, n); err != nil {
		p.config.Logger.Error("failed to publish notification to redis",
			purchase.Field{Key: "kind", Value: n.Kind},
			purchase.Field{Key: "product_id", Value: n.ProductIdentifier},
			purchase.Field{Key: "error", Value: err.Error()})
	}
}

// Publish applies the notification to the entitlement set and publishes it,
// atomically.
func (p *Publisher) Publish(ctx context.Context, n purchase.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	pipe := p.client.TxPipeline()
	switch n.Kind {
	case purchase.ProductPurchased:
		pipe.SAdd(ctx, p.entitlementsKey(), n.ProductIdentifier)
	case purchase.ProductRevoked:
		pipe.SRem(ctx, p.entitlementsKey(), n.ProductIdentifier)
	}
	pipe.Publish(ctx, p.Channel(), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Entitlements returns the mirrored entitlement set in sorted order
func (p *Publisher) Entitlements(ctx context.Context) ([]string, error) {
	ids, err := p.client.SMembers(ctx, p.entitlementsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read entitlements: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Subscribe delivers published notifications to fn until ctx is done.
// Messages that fail to decode are skipped.
func (p *Publisher) Subscribe(ctx context.Context, fn func(purchase.Notification)) error {
	sub := p.client.Subscribe(ctx, p.Channel())
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n purchase.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				p.config.Logger.Warn("skipping undecodable notification",
					purchase.Field{Key: "error", Value: err.Error()})
				continue
			}
			fn(n)
		}
	}
}
