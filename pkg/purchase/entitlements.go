package purchase

import (
	"sort"
	"sync"
)

// EntitlementStore holds the set of currently entitled product identifiers.
// Reads are safe from any goroutine; the only writer is the Reconciler.
type EntitlementStore struct {
	mu       sync.RWMutex
	entitled map[string]struct{}
}

// NewEntitlementStore creates an empty store
func NewEntitlementStore() *EntitlementStore {
	return &EntitlementStore{
		entitled: make(map[string]struct{}),
	}
}

// apply sets the entitlement state for a product and reports whether it changed
func (s *EntitlementStore) apply(productID string, entitled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, had := s.entitled[productID]
	if entitled {
		s.entitled[productID] = struct{}{}
	} else {
		delete(s.entitled, productID)
	}
	return had != entitled
}

// IsEntitled reports whether the product is currently entitled
func (s *EntitlementStore) IsEntitled(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entitled[productID]
	return ok
}

// Snapshot returns the entitled identifiers in sorted order
func (s *EntitlementStore) Snapshot() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entitled))
	for id := range s.entitled {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of entitled products
func (s *EntitlementStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entitled)
}
