package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casecontext-backend/internal/domain/contextrec"
	apperrors "casecontext-backend/internal/errors"
	tiers "casecontext-backend/internal/infrastructure/cache"
)

var testKey = contextrec.CaseKey{ClientID: "C1", CaseID: "K1"}

func testRecord(status contextrec.CaseStatus) *contextrec.ContextRecord {
	return &contextrec.ContextRecord{
		CaseKey:      testKey,
		Requested:    []contextrec.DimensionName{contextrec.DimensionWho, contextrec.DimensionWhere},
		ContextScore: 0.9,
		IsComplete:   true,
		BuiltAt:      time.Now(),
		CaseStatus:   status,
	}
}

func newManager(chain ...tiers.Tier) *Manager {
	return NewManager(chain, Config{}, nil)
}

func TestBuildKey(t *testing.T) {
	t.Run("OrderIndependent", func(t *testing.T) {
		a, err := contextrec.NormalizeDimensions([]string{"WHO", "WHERE"})
		require.NoError(t, err)
		b, err := contextrec.NormalizeDimensions([]string{"where", "who"})
		require.NoError(t, err)
		assert.Equal(t, BuildKey(testKey, a), BuildKey(testKey, b))
	})

	t.Run("ScopeResolvesToDimsetKey", func(t *testing.T) {
		explicit, err := contextrec.NormalizeDimensions([]string{"WHO", "WHAT", "WHERE", "WHEN"})
		require.NoError(t, err)
		assert.Equal(t,
			BuildKey(testKey, contextrec.ScopeStandard.Dimensions()),
			BuildKey(testKey, explicit),
		)
	})

	t.Run("DistinctSetsDistinctKeys", func(t *testing.T) {
		assert.NotEqual(t,
			BuildKey(testKey, contextrec.ScopeMinimal.Dimensions()),
			BuildKey(testKey, contextrec.ScopeStandard.Dimensions()),
		)
	})

	t.Run("CasePrefixCoversKeys", func(t *testing.T) {
		key := BuildKey(testKey, contextrec.ScopeMinimal.Dimensions())
		assert.Contains(t, key, CasePrefix(testKey))
	})
}

func TestStoreAndLookup(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(tiers.NewMemoryTier(10, nil))
	record := testRecord(contextrec.CaseStatusActive)
	cacheKey := BuildKey(testKey, record.Requested)

	require.True(t, mgr.Store(ctx, testKey, cacheKey, record))

	got, ok := mgr.Lookup(ctx, cacheKey)
	require.True(t, ok, "read-your-writes: a store must be immediately visible")
	assert.True(t, got.Cached)
	assert.Equal(t, record.ContextScore, got.ContextScore)
	assert.False(t, record.Cached, "stored record must stay unmarked")
}

func TestLookupPromotesToWarmerTier(t *testing.T) {
	ctx := context.Background()
	warm := tiers.NewMemoryTier(10, nil)
	cold := tiers.NewMemoryTier(10, nil)
	mgr := newManager(warm, cold)

	record := testRecord(contextrec.CaseStatusActive)
	cacheKey := BuildKey(testKey, record.Requested)

	now := time.Now()
	cold.Put(ctx, cacheKey, &tiers.Entry{
		Key:        cacheKey,
		CaseKey:    testKey,
		Record:     record,
		InsertedAt: now,
		ExpiresAt:  now.Add(time.Hour),
	})

	_, ok := mgr.Lookup(ctx, cacheKey)
	require.True(t, ok)

	_, ok = warm.Get(ctx, cacheKey)
	assert.True(t, ok, "hit should be promoted into the warmer tier")
}

func TestSingleFlight(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(tiers.NewMemoryTier(10, nil))
	record := testRecord(contextrec.CaseStatusActive)
	cacheKey := BuildKey(testKey, record.Requested)

	var builds int32
	gate := make(chan struct{})
	build := func(ctx context.Context) (*contextrec.ContextRecord, error) {
		atomic.AddInt32(&builds, 1)
		<-gate
		return record, nil
	}

	const callers = 50
	results := make([]*contextrec.ContextRecord, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := mgr.GetOrBuild(ctx, testKey, cacheKey, build)
			require.NoError(t, err)
			results[i] = got
		}(i)
	}

	// Let all callers attach before the leader finishes.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&builds), "exactly one build per cache key")

	uncached := 0
	for _, got := range results {
		require.NotNil(t, got)
		assert.Equal(t, record.ContextScore, got.ContextScore)
		if !got.Cached {
			uncached++
		}
	}
	assert.Equal(t, 1, uncached, "only the leader reports an uncached build")
}

func TestFollowerDeadlineDoesNotCancelLeader(t *testing.T) {
	mgr := newManager(tiers.NewMemoryTier(10, nil))
	record := testRecord(contextrec.CaseStatusActive)
	cacheKey := BuildKey(testKey, record.Requested)

	gate := make(chan struct{})
	leaderDone := make(chan error, 1)
	build := func(ctx context.Context) (*contextrec.ContextRecord, error) {
		<-gate
		return record, nil
	}

	go func() {
		_, err := mgr.GetOrBuild(context.Background(), testKey, cacheKey, build)
		leaderDone <- err
	}()
	time.Sleep(20 * time.Millisecond) // let the leader install the flight

	followerCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := mgr.GetOrBuild(followerCtx, testKey, cacheKey, build)
	require.Error(t, err)
	assert.True(t, apperrors.IsDeadlineExceeded(err))

	// The leader is unaffected and completes its own store.
	close(gate)
	require.NoError(t, <-leaderDone)

	got, ok := mgr.Lookup(context.Background(), cacheKey)
	require.True(t, ok)
	assert.True(t, got.Cached)
}

func TestCancelledLeaderYieldsBuildCancelled(t *testing.T) {
	mgr := newManager(tiers.NewMemoryTier(10, nil))
	cacheKey := BuildKey(testKey, contextrec.ScopeMinimal.Dimensions())

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	started := make(chan struct{})
	build := func(ctx context.Context) (*contextrec.ContextRecord, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	leaderDone := make(chan error, 1)
	go func() {
		_, err := mgr.GetOrBuild(leaderCtx, testKey, cacheKey, build)
		leaderDone <- err
	}()
	<-started

	followerDone := make(chan error, 1)
	go func() {
		_, err := mgr.GetOrBuild(context.Background(), testKey, cacheKey, build)
		followerDone <- err
	}()
	time.Sleep(20 * time.Millisecond) // let the follower attach

	cancelLeader()

	assert.True(t, apperrors.IsBuildCancelled(<-followerDone))
	require.Error(t, <-leaderDone)
}

func TestInvalidateCaseDropsRacingStore(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(tiers.NewMemoryTier(10, nil))
	record := testRecord(contextrec.CaseStatusActive)
	cacheKey := BuildKey(testKey, record.Requested)

	// Freeze time so the store instant cannot pass the marker.
	frozen := time.Now()
	mgr.now = func() time.Time { return frozen }

	mgr.InvalidateCase(ctx, testKey)
	assert.False(t, mgr.Store(ctx, testKey, cacheKey, record), "store racing an invalidation must be dropped")

	_, ok := mgr.Lookup(ctx, cacheKey)
	assert.False(t, ok)

	// Once time moves past the marker, stores are accepted again.
	mgr.now = func() time.Time { return frozen.Add(time.Millisecond) }
	assert.True(t, mgr.Store(ctx, testKey, cacheKey, record))
}

func TestInvalidateCaseRemovesAllScopes(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(tiers.NewMemoryTier(10, nil))

	minimal := testRecord(contextrec.CaseStatusActive)
	minimal.Requested = contextrec.ScopeMinimal.Dimensions()
	standard := testRecord(contextrec.CaseStatusActive)
	standard.Requested = contextrec.ScopeStandard.Dimensions()

	otherKey := contextrec.CaseKey{ClientID: "C1", CaseID: "K2"}
	other := testRecord(contextrec.CaseStatusActive)
	other.CaseKey = otherKey

	require.True(t, mgr.Store(ctx, testKey, BuildKey(testKey, minimal.Requested), minimal))
	require.True(t, mgr.Store(ctx, testKey, BuildKey(testKey, standard.Requested), standard))
	require.True(t, mgr.Store(ctx, otherKey, BuildKey(otherKey, other.Requested), other))

	removed := mgr.InvalidateCase(ctx, testKey)
	assert.Equal(t, 2, removed)

	_, ok := mgr.Lookup(ctx, BuildKey(otherKey, other.Requested))
	assert.True(t, ok, "other cases must be untouched")
}

func TestInvalidateScoped(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(tiers.NewMemoryTier(10, nil))

	minimal := testRecord(contextrec.CaseStatusActive)
	minimal.Requested = contextrec.ScopeMinimal.Dimensions()
	standard := testRecord(contextrec.CaseStatusActive)
	standard.Requested = contextrec.ScopeStandard.Dimensions()

	require.True(t, mgr.Store(ctx, testKey, BuildKey(testKey, minimal.Requested), minimal))
	require.True(t, mgr.Store(ctx, testKey, BuildKey(testKey, standard.Requested), standard))

	removed := mgr.Invalidate(ctx, testKey, minimal.Requested)
	assert.Equal(t, 1, removed)

	_, ok := mgr.Lookup(ctx, BuildKey(testKey, standard.Requested))
	assert.True(t, ok)

	removed = mgr.Invalidate(ctx, testKey, nil)
	assert.Equal(t, 1, removed, "nil dimension set removes the remaining entries")
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(tiers.NewMemoryTier(10, nil), tiers.NewNoopTier("distributed"))
	record := testRecord(contextrec.CaseStatusActive)
	cacheKey := BuildKey(testKey, record.Requested)

	mgr.Lookup(ctx, cacheKey) // miss
	mgr.Store(ctx, testKey, cacheKey, record)
	mgr.Lookup(ctx, cacheKey) // hit

	snapshot := mgr.Stats()
	require.Contains(t, snapshot.Tiers, "memory")
	require.Contains(t, snapshot.Tiers, "distributed")
	assert.EqualValues(t, 1, snapshot.Tiers["memory"].Hits)
	assert.Greater(t, snapshot.HitRate, 0.0)
}
