package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryTier is the warmest tier: a bounded LRU with per-entry absolute
// TTL. Expired entries are treated as absent and lazily purged on access;
// a background sweep reclaims the rest off the hot path.
type MemoryTier struct {
	mu       sync.Mutex
	items    map[string]*memoryItem
	lruList  *list.List
	capacity int

	hits      int64
	misses    int64
	sets      int64
	deletes   int64
	evictions int64

	stopSweep chan struct{}
	sweepOnce sync.Once

	logger *zap.Logger
	now    func() time.Time
}

type memoryItem struct {
	entry      *Entry
	lruElement *list.Element
}

// NewMemoryTier creates a memory tier with the given capacity.
func NewMemoryTier(capacity int, logger *zap.Logger) *MemoryTier {
	if capacity <= 0 {
		capacity = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryTier{
		items:     make(map[string]*memoryItem),
		lruList:   list.New(),
		capacity:  capacity,
		stopSweep: make(chan struct{}),
		logger:    logger.Named("memory_tier"),
		now:       time.Now,
	}
}

// Name implements Tier.
func (t *MemoryTier) Name() string { return "memory" }

// Get returns the entry for key, moving it to the most-recently-used
// position. Expired entries are removed and reported as absent.
func (t *MemoryTier) Get(ctx context.Context, key string) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[key]
	if !ok {
		t.misses++
		return nil, false
	}
	if item.entry.Expired(t.now()) {
		t.removeLocked(key, item)
		t.misses++
		return nil, false
	}

	t.lruList.MoveToFront(item.lruElement)
	item.entry.AccessCount++
	t.hits++
	return item.entry, true
}

// Put stores the entry, evicting from the LRU tail when past capacity.
func (t *MemoryTier) Put(ctx context.Context, key string, entry *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.items[key]; ok {
		t.removeLocked(key, existing)
	}

	for len(t.items) >= t.capacity && t.lruList.Len() > 0 {
		oldest := t.lruList.Back()
		oldKey := oldest.Value.(string)
		t.removeLocked(oldKey, t.items[oldKey])
		t.evictions++
	}

	element := t.lruList.PushFront(key)
	t.items[key] = &memoryItem{entry: entry, lruElement: element}
	t.sets++
}

// Delete removes the entry for key if present.
func (t *MemoryTier) Delete(ctx context.Context, key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[key]
	if !ok {
		return 0
	}
	t.removeLocked(key, item)
	t.deletes++
	return 1
}

// DeletePrefix removes every entry whose key starts with prefix.
func (t *MemoryTier) DeletePrefix(ctx context.Context, prefix string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, item := range t.items {
		if strings.HasPrefix(key, prefix) {
			t.removeLocked(key, item)
			removed++
		}
	}
	t.deletes += int64(removed)
	return removed
}

// Stats implements Tier.
func (t *MemoryTier) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Hits:      t.hits,
		Misses:    t.misses,
		Sets:      t.sets,
		Deletes:   t.deletes,
		Evictions: t.evictions,
		Size:      len(t.items),
		Capacity:  t.capacity,
	}
}

// removeLocked unlinks an item. Callers hold the mutex.
func (t *MemoryTier) removeLocked(key string, item *memoryItem) {
	if item.lruElement != nil {
		t.lruList.Remove(item.lruElement)
	}
	delete(t.items, key)
}

// StartSweep launches the background reclamation of expired entries.
func (t *MemoryTier) StartSweep(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.sweepExpired()
			case <-t.stopSweep:
				return
			}
		}
	}()
}

// StopSweep terminates the background sweep.
func (t *MemoryTier) StopSweep() {
	t.sweepOnce.Do(func() { close(t.stopSweep) })
}

func (t *MemoryTier) sweepExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for key, item := range t.items {
		if item.entry.Expired(now) {
			t.removeLocked(key, item)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Debug("swept expired cache entries", zap.Int("count", removed))
	}
}
