// Package cache provides the cache tiers backing the context engine. Tiers
// are composed by the cache manager as an ordered read-through chain:
// warmest first, hits promoted upward, writes fanned to every tier.
package cache

import (
	"context"
	"time"

	"casecontext-backend/internal/domain/contextrec"
)

// Entry is one stored context record with its freshness envelope.
type Entry struct {
	Key         string
	CaseKey     contextrec.CaseKey
	Record      *contextrec.ContextRecord
	InsertedAt  time.Time
	ExpiresAt   time.Time
	CaseStatus  contextrec.CaseStatus
	AccessCount int64
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats is a point-in-time snapshot of one tier's counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Deletes   int64 `json:"deletes"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
	Capacity  int   `json:"capacity"`
}

// Tier is a keyed store for context records. Implementations must be safe
// for concurrent use and must never return expired entries.
type Tier interface {
	Name() string
	Get(ctx context.Context, key string) (*Entry, bool)
	Put(ctx context.Context, key string, entry *Entry)
	Delete(ctx context.Context, key string) int
	// DeletePrefix removes every entry whose key starts with prefix and
	// returns the count removed. Used for case-wide invalidation.
	DeletePrefix(ctx context.Context, prefix string) int
	Stats() Stats
}
