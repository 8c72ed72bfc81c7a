// Package cache implements the multi-tier cache manager: key construction,
// read-through lookup with promotion, write-through stores, TTL policy,
// single-flight build deduplication, and case-wide invalidation.
package cache

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"casecontext-backend/internal/domain/contextrec"
	"casecontext-backend/internal/errors"
	tiers "casecontext-backend/internal/infrastructure/cache"
)

// Config holds the TTL policy. The memory TTL is status-independent; the
// persistent tiers (when present) select by case status frozen at build
// time.
type Config struct {
	MemoryTTL time.Duration
	ActiveTTL time.Duration
	ClosedTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MemoryTTL <= 0 {
		c.MemoryTTL = 10 * time.Minute
	}
	if c.ActiveTTL <= 0 {
		c.ActiveTTL = time.Hour
	}
	if c.ClosedTTL <= 0 {
		c.ClosedTTL = 24 * time.Hour
	}
	return c
}

// BuildFunc produces a fresh context record on a cache miss.
type BuildFunc func(ctx context.Context) (*contextrec.ContextRecord, error)

// Manager composes the tier chain. Tier 0 is the warmest (memory); any
// further tiers are consulted in order on lookup and written on store.
type Manager struct {
	tiers  []tiers.Tier
	cfg    Config
	group  singleflight.Group
	logger *zap.Logger

	// invalidatedAt records, per case, the instant of the last case-wide
	// invalidation. A store is accepted only if its insertion instant is
	// strictly later, which is how builds racing an invalidation are
	// dropped.
	mu            sync.Mutex
	invalidatedAt map[string]time.Time

	now func() time.Time
}

// NewManager creates a cache manager over the given tier chain.
func NewManager(chain []tiers.Tier, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		tiers:         chain,
		cfg:           cfg.withDefaults(),
		logger:        logger.Named("cache_manager"),
		invalidatedAt: make(map[string]time.Time),
		now:           time.Now,
	}
}

// Lookup consults tiers warmest-first. A hit in a colder tier is promoted
// into every warmer tier before being served. The returned record is a
// copy marked cached; the stored build stays untouched.
func (m *Manager) Lookup(ctx context.Context, cacheKey string) (*contextrec.ContextRecord, bool) {
	for i, tier := range m.tiers {
		entry, ok := tier.Get(ctx, cacheKey)
		if !ok {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			m.tiers[j].Put(ctx, cacheKey, m.entryForTier(j, entry.CaseKey, entry.Record, entry.InsertedAt))
		}
		return entry.Record.CachedCopy(), true
	}
	return nil, false
}

// Store writes the record through every tier with the tier's TTL. It
// returns false when the store was dropped because a case-wide
// invalidation raced the build.
func (m *Manager) Store(ctx context.Context, key contextrec.CaseKey, cacheKey string, record *contextrec.ContextRecord) bool {
	m.mu.Lock()
	insertedAt := m.now()
	marker, invalidated := m.invalidatedAt[key.String()]
	m.mu.Unlock()

	if invalidated && !insertedAt.After(marker) {
		m.logger.Debug("store dropped by invalidation marker", zap.String("key", cacheKey))
		return false
	}

	for i := range m.tiers {
		m.tiers[i].Put(ctx, cacheKey, m.entryForTier(i, key, record, insertedAt))
	}

	// Re-check after the writes: an invalidation that interleaved with the
	// puts must not leave this entry behind.
	m.mu.Lock()
	marker, invalidated = m.invalidatedAt[key.String()]
	m.mu.Unlock()
	if invalidated && !insertedAt.After(marker) {
		for _, tier := range m.tiers {
			tier.Delete(ctx, cacheKey)
		}
		m.logger.Debug("store rolled back after racing invalidation", zap.String("key", cacheKey))
		return false
	}
	return true
}

func (m *Manager) entryForTier(tierIdx int, key contextrec.CaseKey, record *contextrec.ContextRecord, insertedAt time.Time) *tiers.Entry {
	ttl := m.cfg.MemoryTTL
	if tierIdx > 0 {
		switch record.CaseStatus {
		case contextrec.CaseStatusClosed:
			ttl = m.cfg.ClosedTTL
		default:
			ttl = m.cfg.ActiveTTL
		}
	}
	return &tiers.Entry{
		Key:        BuildKey(key, record.Requested),
		CaseKey:    key,
		Record:     record,
		InsertedAt: insertedAt,
		ExpiresAt:  insertedAt.Add(ttl),
		CaseStatus: record.CaseStatus,
	}
}

// GetOrBuild serves the record for cacheKey, deduplicating concurrent
// misses: the first caller becomes the leader and runs build; followers
// block on the leader's result. A follower whose own deadline elapses
// first returns its own timeout without cancelling the leader; a cancelled
// leader yields BuildCancelled to its followers.
func (m *Manager) GetOrBuild(ctx context.Context, key contextrec.CaseKey, cacheKey string, build BuildFunc) (*contextrec.ContextRecord, error) {
	if record, ok := m.Lookup(ctx, cacheKey); ok {
		return record, nil
	}

	// Only the first caller's closure runs; if ours did, we led the build.
	led := false
	ch := m.group.DoChan(cacheKey, func() (any, error) {
		led = true
		// A flight that finished between our lookup and this call has
		// already stored the record; serve it instead of building again.
		if record, ok := m.Lookup(ctx, cacheKey); ok {
			return record, nil
		}
		record, err := build(ctx)
		if err != nil {
			return nil, err
		}
		m.Store(ctx, key, cacheKey, record)
		return record, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			if isCancellation(res.Err) && ctx.Err() == nil {
				// The leader's context died, not ours.
				return nil, errors.NewBuildCancelled()
			}
			return nil, res.Err
		}
		record := res.Val.(*contextrec.ContextRecord)
		if !led {
			// Followers observe the leader's build as a cache-served result.
			return record.CachedCopy(), nil
		}
		return record, nil
	case <-ctx.Done():
		// Our deadline elapsed while another caller leads the build. The
		// leader keeps going and will store its result for its own sake.
		return nil, errors.NewDeadlineExceeded("context retrieval")
	}
}

func isCancellation(err error) bool {
	return stderrors.Is(err, context.Canceled) ||
		stderrors.Is(err, context.DeadlineExceeded) ||
		errors.IsDeadlineExceeded(err)
}

// Invalidate removes cached entries for one case from every tier and
// returns the number removed. With a dimension set, only that set's entry
// goes; with nil, every entry for the case. Unlike InvalidateCase this
// does not advance the invalidation marker, so an in-flight build may
// still store its result.
func (m *Manager) Invalidate(ctx context.Context, key contextrec.CaseKey, dims []contextrec.DimensionName) int {
	removed := 0
	if dims == nil {
		prefix := CasePrefix(key)
		for _, tier := range m.tiers {
			removed += tier.DeletePrefix(ctx, prefix)
		}
		return removed
	}
	cacheKey := BuildKey(key, dims)
	for _, tier := range m.tiers {
		removed += tier.Delete(ctx, cacheKey)
	}
	return removed
}

// InvalidateCase removes every entry for the case from every tier,
// irrespective of scope, and advances the case's invalidation marker so
// in-flight builds cannot re-admit stale data.
func (m *Manager) InvalidateCase(ctx context.Context, key contextrec.CaseKey) int {
	m.mu.Lock()
	m.invalidatedAt[key.String()] = m.now()
	m.mu.Unlock()

	prefix := CasePrefix(key)
	removed := 0
	for _, tier := range m.tiers {
		removed += tier.DeletePrefix(ctx, prefix)
	}
	m.logger.Info("case invalidated",
		zap.String("case", key.String()),
		zap.Int("removed", removed),
	)
	return removed
}

// StatsSnapshot returns per-tier counters plus the overall hit rate.
type StatsSnapshot struct {
	Tiers   map[string]tiers.Stats `json:"tiers"`
	HitRate float64                `json:"hit_rate"`
}

// Stats returns a read-only snapshot of the tier counters.
func (m *Manager) Stats() StatsSnapshot {
	snapshot := StatsSnapshot{Tiers: make(map[string]tiers.Stats, len(m.tiers))}
	var hits, misses int64
	for _, tier := range m.tiers {
		s := tier.Stats()
		snapshot.Tiers[tier.Name()] = s
		hits += s.Hits
		misses += s.Misses
	}
	if total := hits + misses; total > 0 {
		snapshot.HitRate = float64(hits) / float64(total)
	}
	return snapshot
}
