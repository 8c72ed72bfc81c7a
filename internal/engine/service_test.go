package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemgr "casecontext-backend/internal/cache"
	"casecontext-backend/internal/dimensions"
	"casecontext-backend/internal/domain/contextrec"
	apperrors "casecontext-backend/internal/errors"
	tiers "casecontext-backend/internal/infrastructure/cache"
)

func newTestService(analyzers []dimensions.Analyzer) *Service {
	builder := NewBuilder(analyzers, activeStore(), BuilderConfig{}, nil)
	manager := cachemgr.NewManager([]tiers.Tier{tiers.NewMemoryTier(100, nil)}, cachemgr.Config{}, nil)
	return NewService(builder, manager, nil, ServiceConfig{BatchLimit: 5}, nil)
}

func buildCount(analyzers []dimensions.Analyzer) int32 {
	var total int32
	for _, a := range analyzers {
		if stub, ok := a.(*stubAnalyzer); ok {
			total += atomic.LoadInt32(&stub.calls)
		}
	}
	return total
}

func TestRetrieveCachesSecondCall(t *testing.T) {
	analyzers := perfectAnalyzers()
	service := newTestService(analyzers)
	ctx := context.Background()

	req := RetrieveRequest{ClientID: "C1", CaseID: "K1", Scope: "standard", UseCache: true}

	first, err := service.Retrieve(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, contextrec.ScopeStandard, first.ScopeRequested)

	second, err := service.Retrieve(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.ContextScore, second.ContextScore)
	assert.Equal(t, first.BuiltAt, second.BuiltAt, "a hit reflects the stored build")

	assert.EqualValues(t, 4, buildCount(analyzers), "one build of four dimensions")
}

func TestScopeAndExplicitDimensionsShareCacheEntry(t *testing.T) {
	analyzers := perfectAnalyzers()
	service := newTestService(analyzers)
	ctx := context.Background()

	_, err := service.Retrieve(ctx, RetrieveRequest{ClientID: "C1", CaseID: "K1", Scope: "standard", UseCache: true})
	require.NoError(t, err)

	record, err := service.Retrieve(ctx, RetrieveRequest{
		ClientID: "C1", CaseID: "K1",
		IncludeDimensions: []string{"when", "where", "what", "who"},
		UseCache:          true,
	})
	require.NoError(t, err)
	assert.True(t, record.Cached, "an equivalent explicit set must hit the scope's entry")
	assert.EqualValues(t, 4, buildCount(analyzers))
}

func TestRetrieveWithoutCache(t *testing.T) {
	analyzers := perfectAnalyzers()
	service := newTestService(analyzers)
	ctx := context.Background()

	req := RetrieveRequest{ClientID: "C1", CaseID: "K1", Scope: "minimal", UseCache: false}

	first, err := service.Retrieve(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := service.Retrieve(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Cached, "use_cache=false bypasses lookup")
	assert.EqualValues(t, 4, buildCount(analyzers), "two builds of two dimensions")

	// The bypassing build still stored its result for cached callers.
	cached, err := service.Retrieve(ctx, RetrieveRequest{ClientID: "C1", CaseID: "K1", Scope: "minimal", UseCache: true})
	require.NoError(t, err)
	assert.True(t, cached.Cached)
}

func TestRefreshForcesRebuild(t *testing.T) {
	analyzers := perfectAnalyzers()
	service := newTestService(analyzers)
	ctx := context.Background()

	first, err := service.Retrieve(ctx, RetrieveRequest{ClientID: "C1", CaseID: "K1", Scope: "standard", UseCache: true})
	require.NoError(t, err)

	refreshed, err := service.Refresh(ctx, "C1", "K1", "standard")
	require.NoError(t, err)
	assert.False(t, refreshed.Cached, "refresh always rebuilds")
	assert.Equal(t, first.ContextScore, refreshed.ContextScore, "unchanged upstream data keeps the score")

	third, err := service.Retrieve(ctx, RetrieveRequest{ClientID: "C1", CaseID: "K1", Scope: "standard", UseCache: true})
	require.NoError(t, err)
	assert.True(t, third.Cached)
	assert.Equal(t, refreshed.BuiltAt, third.BuiltAt, "the hit serves the refreshed build")
}

func TestInvalidateCaseMakesNextRetrievalUncached(t *testing.T) {
	analyzers := perfectAnalyzers()
	service := newTestService(analyzers)
	ctx := context.Background()

	req := RetrieveRequest{ClientID: "C1", CaseID: "K1", Scope: "minimal", UseCache: true}
	_, err := service.Retrieve(ctx, req)
	require.NoError(t, err)

	removed, err := service.InvalidateCase(ctx, "C1", "K1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	record, err := service.Retrieve(ctx, req)
	require.NoError(t, err)
	assert.False(t, record.Cached)
}

func TestInvalidateScoped(t *testing.T) {
	service := newTestService(perfectAnalyzers())
	ctx := context.Background()

	_, err := service.Retrieve(ctx, RetrieveRequest{ClientID: "C1", CaseID: "K1", Scope: "minimal", UseCache: true})
	require.NoError(t, err)
	_, err = service.Retrieve(ctx, RetrieveRequest{ClientID: "C1", CaseID: "K1", Scope: "standard", UseCache: true})
	require.NoError(t, err)

	removed, err := service.Invalidate(ctx, "C1", "K1", "minimal")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	record, err := service.Retrieve(ctx, RetrieveRequest{ClientID: "C1", CaseID: "K1", Scope: "standard", UseCache: true})
	require.NoError(t, err)
	assert.True(t, record.Cached, "the standard-scope entry must survive a minimal-scope invalidation")
}

func TestRetrieveDimension(t *testing.T) {
	analyzers := []dimensions.Analyzer{
		&stubAnalyzer{name: contextrec.DimensionWho, completeness: 0.7},
	}
	service := newTestService(analyzers)

	result, err := service.RetrieveDimension(context.Background(), "C1", "K1", "who")
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Equal(t, contextrec.DimensionWho, result.Name)
	assert.InDelta(t, 0.7, result.Data.Completeness, 1e-9)
}

func TestRetrieveDimensionUnknownName(t *testing.T) {
	service := newTestService(perfectAnalyzers())

	_, err := service.RetrieveDimension(context.Background(), "C1", "K1", "HOW")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestBatchRetrieve(t *testing.T) {
	t.Run("MixedResults", func(t *testing.T) {
		service := newTestService(perfectAnalyzers())

		result, err := service.BatchRetrieve(context.Background(), "C1", []string{"K1", "K2", "K3"}, "minimal")
		require.NoError(t, err)
		assert.Equal(t, 3, result.Total)
		assert.Equal(t, 3, result.Successful)
		assert.Zero(t, result.Failed)
		assert.Len(t, result.Contexts, 3)
	})

	t.Run("OverLimit", func(t *testing.T) {
		service := newTestService(perfectAnalyzers())

		ids := make([]string, 6)
		for i := range ids {
			ids[i] = fmt.Sprintf("K%d", i)
		}
		_, err := service.BatchRetrieve(context.Background(), "C1", ids, "minimal")
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("Empty", func(t *testing.T) {
		service := newTestService(perfectAnalyzers())
		_, err := service.BatchRetrieve(context.Background(), "C1", nil, "minimal")
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestWarmupPrimesCache(t *testing.T) {
	service := newTestService(perfectAnalyzers())
	ctx := context.Background()

	result, err := service.Warmup(ctx, "C1", []string{"K1", "K2"}, "standard")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Successful)
	assert.Zero(t, result.Failed)

	for _, caseID := range []string{"K1", "K2"} {
		record, err := service.Retrieve(ctx, RetrieveRequest{ClientID: "C1", CaseID: caseID, Scope: "standard", UseCache: true})
		require.NoError(t, err)
		assert.True(t, record.Cached, caseID)
	}
}

func TestCacheStats(t *testing.T) {
	service := newTestService(perfectAnalyzers())
	ctx := context.Background()

	_, err := service.Retrieve(ctx, RetrieveRequest{ClientID: "C1", CaseID: "K1", Scope: "minimal", UseCache: true})
	require.NoError(t, err)
	_, err = service.Retrieve(ctx, RetrieveRequest{ClientID: "C1", CaseID: "K1", Scope: "minimal", UseCache: true})
	require.NoError(t, err)

	stats := service.CacheStats()
	require.Contains(t, stats.Tiers, "memory")
	assert.EqualValues(t, 1, stats.Tiers["memory"].Hits)
	assert.EqualValues(t, 1, stats.Tiers["memory"].Sets)
}
