package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	cachemgr "casecontext-backend/internal/cache"
	"casecontext-backend/internal/domain/contextrec"
	apperrors "casecontext-backend/internal/errors"
	"casecontext-backend/internal/graph"
)

// ServiceConfig holds the facade tunables.
type ServiceConfig struct {
	// OverallDeadline applies to retrievals whose context carries none.
	OverallDeadline time.Duration
	// BatchLimit caps the number of case ids per batch request.
	BatchLimit int
	// BatchParallelism bounds concurrent builds within one batch.
	BatchParallelism int
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.OverallDeadline <= 0 {
		c.OverallDeadline = 30 * time.Second
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 50
	}
	if c.BatchParallelism <= 0 {
		c.BatchParallelism = 4
	}
	return c
}

// HealthChecker is the upstream health dependency of the facade.
type HealthChecker interface {
	Health(ctx context.Context) (*graph.Status, error)
}

// Service is the public entry point of the context engine: retrieval,
// per-dimension retrieval, refresh, invalidation, batch and warmup
// operations, and cache statistics.
type Service struct {
	builder *Builder
	cache   *cachemgr.Manager
	health  HealthChecker
	cfg     ServiceConfig
	logger  *zap.Logger
}

// NewService wires the facade.
func NewService(builder *Builder, cache *cachemgr.Manager, health HealthChecker, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		builder: builder,
		cache:   cache,
		health:  health,
		cfg:     cfg.withDefaults(),
		logger:  logger.Named("context_service"),
	}
}

// RetrieveRequest is the normalized input for a context retrieval.
type RetrieveRequest struct {
	ClientID          string
	CaseID            string
	Scope             string
	IncludeDimensions []string
	UseCache          bool
}

// Retrieve returns the context record for the request, served from cache
// when possible.
func (s *Service) Retrieve(ctx context.Context, req RetrieveRequest) (*contextrec.ContextRecord, error) {
	key, err := contextrec.NewCaseKey(req.ClientID, req.CaseID)
	if err != nil {
		return nil, err
	}
	scope, dims, err := contextrec.EffectiveDimensions(req.Scope, req.IncludeDimensions)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	build := func(ctx context.Context) (*contextrec.ContextRecord, error) {
		record, err := s.builder.Build(ctx, key, dims)
		if err != nil {
			return nil, err
		}
		record.ScopeRequested = scope
		return record, nil
	}

	cacheKey := cachemgr.BuildKey(key, dims)
	if !req.UseCache {
		record, err := build(ctx)
		if err != nil {
			return nil, err
		}
		s.cache.Store(ctx, key, cacheKey, record)
		return record, nil
	}
	return s.cache.GetOrBuild(ctx, key, cacheKey, build)
}

// RetrieveDimension returns a single dimension for the case, cached under
// the one-dimension fingerprint.
func (s *Service) RetrieveDimension(ctx context.Context, clientID, caseID, dimension string) (*contextrec.DimensionResult, error) {
	name, err := contextrec.ParseDimension(dimension)
	if err != nil {
		return nil, err
	}
	record, err := s.Retrieve(ctx, RetrieveRequest{
		ClientID:          clientID,
		CaseID:            caseID,
		IncludeDimensions: []string{string(name)},
		UseCache:          true,
	})
	if err != nil {
		return nil, err
	}
	return record.Dimension(name), nil
}

// Refresh forces a rebuild: the cached entry for the scope is dropped, a
// fresh record is built and stored, and the fresh record is returned.
func (s *Service) Refresh(ctx context.Context, clientID, caseID, scope string) (*contextrec.ContextRecord, error) {
	key, err := contextrec.NewCaseKey(clientID, caseID)
	if err != nil {
		return nil, err
	}
	scopeName, dims, err := contextrec.EffectiveDimensions(scope, nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	s.cache.Invalidate(ctx, key, dims)

	record, err := s.builder.Build(ctx, key, dims)
	if err != nil {
		return nil, err
	}
	record.ScopeRequested = scopeName
	s.cache.Store(ctx, key, cachemgr.BuildKey(key, dims), record)
	return record, nil
}

// Invalidate removes cached entries for the case. With a scope, only that
// scope's entry is removed; without one, every entry for the case.
func (s *Service) Invalidate(ctx context.Context, clientID, caseID, scope string) (int, error) {
	key, err := contextrec.NewCaseKey(clientID, caseID)
	if err != nil {
		return 0, err
	}
	if scope == "" {
		return s.cache.Invalidate(ctx, key, nil), nil
	}
	_, dims, err := contextrec.EffectiveDimensions(scope, nil)
	if err != nil {
		return 0, err
	}
	return s.cache.Invalidate(ctx, key, dims), nil
}

// InvalidateCase removes every cached entry for the case and records the
// invalidation instant so racing builds cannot re-admit stale data. Used
// after document ingestion touches the case.
func (s *Service) InvalidateCase(ctx context.Context, clientID, caseID string) (int, error) {
	key, err := contextrec.NewCaseKey(clientID, caseID)
	if err != nil {
		return 0, err
	}
	return s.cache.InvalidateCase(ctx, key), nil
}

// BatchResult aggregates a batch retrieval.
type BatchResult struct {
	Total      int
	Successful int
	Failed     int
	Contexts   map[string]*contextrec.ContextRecord
	Errors     map[string]string
}

// BatchRetrieve retrieves context for up to BatchLimit cases of one
// client, with bounded parallelism. Per-case failures are collected, not
// propagated.
func (s *Service) BatchRetrieve(ctx context.Context, clientID string, caseIDs []string, scope string) (*BatchResult, error) {
	if len(caseIDs) == 0 {
		return nil, apperrors.NewValidation("case_ids must not be empty")
	}
	if len(caseIDs) > s.cfg.BatchLimit {
		return nil, apperrors.NewValidation("case_ids exceeds the batch limit")
	}

	result := &BatchResult{
		Total:    len(caseIDs),
		Contexts: make(map[string]*contextrec.ContextRecord, len(caseIDs)),
		Errors:   make(map[string]string),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchParallelism)
	for _, caseID := range caseIDs {
		caseID := caseID
		g.Go(func() error {
			record, err := s.Retrieve(gctx, RetrieveRequest{
				ClientID: clientID,
				CaseID:   caseID,
				Scope:    scope,
				UseCache: true,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors[caseID] = err.Error()
				return nil // keep the rest of the batch going
			}
			result.Successful++
			result.Contexts[caseID] = record
			return nil
		})
	}
	_ = g.Wait()
	return result, nil
}

// WarmupResult reports a cache warmup run.
type WarmupResult struct {
	Successful int
	Failed     int
	Errors     map[string]string
}

// Warmup populates the cache for the given cases ahead of demand.
func (s *Service) Warmup(ctx context.Context, clientID string, caseIDs []string, scope string) (*WarmupResult, error) {
	batch, err := s.BatchRetrieve(ctx, clientID, caseIDs, scope)
	if err != nil {
		return nil, err
	}
	return &WarmupResult{
		Successful: batch.Successful,
		Failed:     batch.Failed,
		Errors:     batch.Errors,
	}, nil
}

// CacheStats returns the per-tier cache counters.
func (s *Service) CacheStats() cachemgr.StatsSnapshot {
	return s.cache.Stats()
}

// Ready reports whether the engine can serve: the graph upstream must
// answer its health probe.
func (s *Service) Ready(ctx context.Context) error {
	if s.health == nil {
		return nil
	}
	status, err := s.health.Health(ctx)
	if err != nil {
		return err
	}
	if !status.Healthy {
		return apperrors.NewUnavailable("graph", nil)
	}
	return nil
}

func (s *Service) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.OverallDeadline)
}
