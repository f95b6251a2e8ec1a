package engine

import (
	"context"
	"sync"
	"time"

	"github.com/Aman-CERP/knowbase/internal/store"
)

// usageTracker writes reference counts through to the store and keeps an
// in-memory copy for the ranker's usage tie-break.
type usageTracker struct {
	docs   *store.DocumentStore
	mu     sync.RWMutex
	counts map[string]int
}

func newUsageTracker(ctx context.Context, docs *store.DocumentStore) (*usageTracker, error) {
	all, err := docs.ListUsage(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(all))
	for id, u := range all {
		counts[id] = u.ReferenceCount
	}
	return &usageTracker{docs: docs, counts: counts}, nil
}

func (u *usageTracker) IncrementUsage(ctx context.Context, documentIDs []string, at time.Time) error {
	if err := u.docs.IncrementUsage(ctx, documentIDs, at); err != nil {
		return err
	}
	u.mu.Lock()
	for _, id := range documentIDs {
		u.counts[id]++
	}
	u.mu.Unlock()
	return nil
}

func (u *usageTracker) Count(documentID string) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.counts[documentID]
}

func (u *usageTracker) forget(documentID string) {
	u.mu.Lock()
	delete(u.counts, documentID)
	u.mu.Unlock()
}
