// Package app assembles the service graph at startup. There is no global
// mutable state: everything handlers need hangs off this container and is
// passed down explicitly.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	cachemgr "casecontext-backend/internal/cache"
	"casecontext-backend/internal/casestore"
	"casecontext-backend/internal/config"
	"casecontext-backend/internal/dimensions"
	"casecontext-backend/internal/engine"
	"casecontext-backend/internal/graph"
	tiers "casecontext-backend/internal/infrastructure/cache"
	"casecontext-backend/internal/observability"
)

// Container holds the constructed service graph.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Graph   *graph.Client
	Cache   *cachemgr.Manager
	Service *engine.Service
	Metrics *observability.Metrics
	Tracing *observability.TracerProvider

	memoryTier *tiers.MemoryTier
}

// NewContainer wires the engine. The case store is provided by the caller;
// its connections and pooling are owned outside this module.
func NewContainer(cfg *config.Config, store casestore.Store, logger *zap.Logger) (*Container, error) {
	if store == nil {
		return nil, fmt.Errorf("case store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	graphClient := graph.NewClient(graph.Config{
		BaseURL:          cfg.Graph.Endpoint,
		Timeout:          cfg.Graph.Timeout,
		MaxRetries:       cfg.Graph.MaxRetries,
		RetryBaseDelay:   cfg.Graph.RetryBaseDelay,
		FailureThreshold: cfg.Graph.FailureThreshold,
		OpenDuration:     cfg.Graph.OpenDuration,
	}, logger)

	var chain []tiers.Tier
	var memoryTier *tiers.MemoryTier
	if cfg.Cache.EnableMemory {
		memoryTier = tiers.NewMemoryTier(cfg.Cache.MemoryCapacity, logger)
		memoryTier.StartSweep(cfg.Cache.SweepInterval)
		chain = append(chain, memoryTier)
	}
	// The distributed and persistent tiers are extension points; until a
	// real backend is wired they always miss.
	chain = append(chain, tiers.NewNoopTier("distributed"))
	if cfg.Cache.EnablePersistent {
		chain = append(chain, tiers.NewNoopTier("persistent"))
	}

	cacheManager := cachemgr.NewManager(chain, cachemgr.Config{
		MemoryTTL: cfg.Cache.MemoryTTL,
		ActiveTTL: cfg.Cache.ActiveCaseTTL,
		ClosedTTL: cfg.Cache.ClosedCaseTTL,
	}, logger)

	analyzers := []dimensions.Analyzer{
		dimensions.NewWhoAnalyzer(graphClient, store),
		dimensions.NewWhatAnalyzer(graphClient, store),
		dimensions.NewWhereAnalyzer(store),
		dimensions.NewWhenAnalyzer(store),
		dimensions.NewWhyAnalyzer(graphClient),
	}

	builder := engine.NewBuilder(analyzers, store, engine.BuilderConfig{
		MetadataTimeout: cfg.Build.MetadataTimeout,
		ScoringBudget:   cfg.Build.ScoringBudget,
	}, logger)

	service := engine.NewService(builder, cacheManager, graphClient, engine.ServiceConfig{
		OverallDeadline:  cfg.Build.OverallDeadline,
		BatchLimit:       cfg.Batch.Limit,
		BatchParallelism: cfg.Batch.Parallelism,
	}, logger)

	container := &Container{
		Config:     cfg,
		Logger:     logger,
		Graph:      graphClient,
		Cache:      cacheManager,
		Service:    service,
		memoryTier: memoryTier,
	}

	if cfg.Metrics.Enabled {
		container.Metrics = observability.NewMetrics()
		container.Metrics.MustRegister(observability.NewEngineCollector(
			cfg.Graph.Endpoint,
			cacheManager.Stats,
			func() int { return int(graphClient.BreakerState()) },
		))
	}
	if cfg.Tracing.Enabled {
		tp, err := observability.InitTracing("context-engine", string(cfg.Environment), cfg.Tracing.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("initializing tracing: %w", err)
		}
		container.Tracing = tp
	}

	return container, nil
}

// Shutdown releases container-owned resources.
func (c *Container) Shutdown(ctx context.Context) {
	if c.memoryTier != nil {
		c.memoryTier.StopSweep()
	}
	if c.Tracing != nil {
		if err := c.Tracing.Shutdown(ctx); err != nil {
			c.Logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}
