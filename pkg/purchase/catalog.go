package purchase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CatalogResolver resolves product identifiers through the platform and keeps
// the most recent successful result as the cached catalog.
type CatalogResolver struct {
	platform Platform
	metrics  Metrics
	logger   Logger

	mu       sync.RWMutex
	products []ProductDescriptor

	group singleflight.Group
}

func newCatalogResolver(platform Platform, metrics Metrics, logger Logger) *CatalogResolver {
	return &CatalogResolver{
		platform: platform,
		metrics:  metrics,
		logger:   logger,
	}
}

// Resolve looks up the identifiers and, on success, replaces the cached
// catalog with the result. Failures leave the cache untouched and match
// ErrCatalogFailure. Resolve never retries.
//
// Concurrent calls for the same identifiers share one lookup. The shared
// lookup is detached from any single caller's cancellation; each caller stops
// waiting when its own ctx is done.
func (c *CatalogResolver) Resolve(ctx context.Context, identifiers []string) ([]ProductDescriptor, error) {
	ids := normalizeIdentifiers(identifiers)
	if len(ids) == 0 {
		return []ProductDescriptor{}, nil
	}

	key := strings.Join(ids, "\x00")
	lookupCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.resolve(lookupCtx, ids)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, &CatalogError{Cause: ctx.Err()}
	}
	if res.Err != nil {
		return nil, res.Err
	}

	shared := res.Val.([]ProductDescriptor)
	out := make([]ProductDescriptor, len(shared))
	copy(out, shared)
	return out, nil
}

func (c *CatalogResolver) resolve(ctx context.Context, ids []string) ([]ProductDescriptor, error) {
	start := time.Now()

	found, err := c.platform.LookupProducts(ctx, ids)
	if err == nil {
		found, err = matchRequested(ids, found)
	}
	if err != nil {
		c.metrics.RecordCatalogResolve("error", time.Since(start))
		c.logger.Warn("catalog resolve failed",
			Field{Key: "identifiers", Value: ids},
			Field{Key: "error", Value: err.Error()})
		return nil, &CatalogError{Cause: err}
	}

	c.mu.Lock()
	c.products = found
	c.mu.Unlock()

	c.metrics.RecordCatalogResolve("success", time.Since(start))
	c.logger.Debug("catalog resolved", Field{Key: "count", Value: len(found)})
	return found, nil
}

// Products returns a copy of the cached catalog
func (c *CatalogResolver) Products() []ProductDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ProductDescriptor, len(c.products))
	copy(out, c.products)
	return out
}

// Cached returns the cached descriptor for an identifier
func (c *CatalogResolver) Cached(identifier string) (ProductDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.products {
		if p.Identifier == identifier {
			return p, true
		}
	}
	return ProductDescriptor{}, false
}

// Probe looks up a single identifier without touching the cached catalog.
// A missing product is reported as found == false with a nil error.
func (c *CatalogResolver) Probe(ctx context.Context, identifier string) (ProductDescriptor, bool, error) {
	found, err := c.platform.LookupProducts(ctx, []string{identifier})
	if err != nil {
		return ProductDescriptor{}, false, err
	}
	for _, p := range found {
		if p.Identifier == identifier {
			return p, true, nil
		}
	}
	return ProductDescriptor{}, false, nil
}

// matchRequested validates the platform response against the request and
// returns the descriptors in request order.
func matchRequested(ids []string, found []ProductDescriptor) ([]ProductDescriptor, error) {
	requested := make(map[string]bool, len(ids))
	for _, id := range ids {
		requested[id] = true
	}

	byID := make(map[string]ProductDescriptor, len(found))
	for _, p := range found {
		if p.Identifier == "" {
			return nil, fmt.Errorf("malformed product descriptor: empty identifier")
		}
		if !requested[p.Identifier] {
			return nil, fmt.Errorf("malformed product descriptor: unexpected identifier %q", p.Identifier)
		}
		if _, dup := byID[p.Identifier]; dup {
			return nil, fmt.Errorf("malformed product descriptor: duplicate identifier %q", p.Identifier)
		}
		byID[p.Identifier] = p
	}

	var missing []string
	out := make([]ProductDescriptor, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, p)
	}
	if len(missing) > 0 {
		return nil, unknownProductsError(missing)
	}
	return out, nil
}

// normalizeIdentifiers trims, drops empties and de-duplicates, preserving first-seen order
func normalizeIdentifiers(identifiers []string) []string {
	seen := make(map[string]bool, len(identifiers))
	out := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
