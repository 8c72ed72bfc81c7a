package cache

import (
	"context"
	"sync/atomic"
)

// NoopTier is the placeholder for the distributed and persistent tiers.
// It satisfies the Tier interface, always misses, and accepts writes
// silently, so the manager's tier chain composes the same way whether or
// not a real backend is configured.
type NoopTier struct {
	name   string
	misses int64
	sets   int64
}

// NewNoopTier creates a no-op tier with the given display name.
func NewNoopTier(name string) *NoopTier {
	return &NoopTier{name: name}
}

func (t *NoopTier) Name() string { return t.name }

func (t *NoopTier) Get(ctx context.Context, key string) (*Entry, bool) {
	atomic.AddInt64(&t.misses, 1)
	return nil, false
}

func (t *NoopTier) Put(ctx context.Context, key string, entry *Entry) {
	atomic.AddInt64(&t.sets, 1)
}

func (t *NoopTier) Delete(ctx context.Context, key string) int { return 0 }

func (t *NoopTier) DeletePrefix(ctx context.Context, prefix string) int { return 0 }

func (t *NoopTier) Stats() Stats {
	return Stats{
		Misses: atomic.LoadInt64(&t.misses),
		Sets:   atomic.LoadInt64(&t.sets),
	}
}
