// Package engine orchestrates context assembly: the parallel dimension
// fan-out (Builder) and the public service facade on top of it.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"casecontext-backend/internal/casestore"
	"casecontext-backend/internal/dimensions"
	"casecontext-backend/internal/domain/contextrec"
	apperrors "casecontext-backend/internal/errors"
	"casecontext-backend/internal/observability"
)

// BuilderConfig holds the orchestration tunables.
type BuilderConfig struct {
	// MetadataTimeout bounds the pre-build case metadata fetch.
	MetadataTimeout time.Duration
	// ScoringBudget is reserved from the request deadline for assembling
	// and scoring results after the analyzers return.
	ScoringBudget time.Duration
}

func (c BuilderConfig) withDefaults() BuilderConfig {
	if c.MetadataTimeout <= 0 {
		c.MetadataTimeout = 3 * time.Second
	}
	if c.ScoringBudget <= 0 {
		c.ScoringBudget = 250 * time.Millisecond
	}
	return c
}

// Builder runs the selected analyzers concurrently and aggregates their
// results into a ContextRecord.
type Builder struct {
	analyzers map[contextrec.DimensionName]dimensions.Analyzer
	store     casestore.Store
	cfg       BuilderConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewBuilder creates a builder over the given analyzers.
func NewBuilder(analyzers []dimensions.Analyzer, store casestore.Store, cfg BuilderConfig, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[contextrec.DimensionName]dimensions.Analyzer, len(analyzers))
	for _, a := range analyzers {
		byName[a.Name()] = a
	}
	return &Builder{
		analyzers: byName,
		store:     store,
		cfg:       cfg.withDefaults(),
		logger:    logger.Named("context_builder"),
		now:       time.Now,
	}
}

type analyzerOutcome struct {
	name contextrec.DimensionName
	data *contextrec.DimensionData
	err  error
}

// Build assembles a context record for the effective dimension set.
//
// Partial analyzer failures never fail the build: a failed dimension is
// recorded with its reason and contributes zero to the quality score. The
// only build errors are invalid input and a case that does not exist.
func (b *Builder) Build(ctx context.Context, key contextrec.CaseKey, dims []contextrec.DimensionName) (*contextrec.ContextRecord, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if len(dims) == 0 {
		return nil, apperrors.NewValidation("effective dimension set must not be empty")
	}
	for _, d := range dims {
		if _, ok := b.analyzers[d]; !ok {
			return nil, apperrors.NewValidation(fmt.Sprintf("no analyzer registered for dimension %s", d))
		}
	}

	start := b.now()

	dimNames := make([]string, len(dims))
	for i, d := range dims {
		dimNames[i] = string(d)
	}
	ctx, buildSpan := observability.StartBuildSpan(ctx, key.String(), dimNames)
	defer buildSpan.End()

	// Confirm the case exists and freeze its status for TTL selection.
	// Transport trouble here degrades the status to unknown; only a
	// definitive not-found aborts the build.
	status := contextrec.CaseStatusUnknown
	caseName := ""
	mdCtx, cancel := context.WithTimeout(ctx, b.cfg.MetadataTimeout)
	md, err := b.store.GetCaseMetadata(mdCtx, key)
	cancel()
	switch {
	case err == nil:
		status = md.Status
		caseName = md.CaseName
	case apperrors.IsNotFound(err):
		return nil, apperrors.NewNotFound(fmt.Sprintf("case %s not found", key.CaseID))
	default:
		b.logger.Warn("case metadata fetch failed, degrading status to unknown",
			zap.String("case", key.String()),
			zap.Error(err),
		)
	}

	// Analyzers share one deadline: the request deadline minus the
	// scoring budget.
	buildCtx := ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancelBuild context.CancelFunc
		buildCtx, cancelBuild = context.WithDeadline(ctx, deadline.Add(-b.cfg.ScoringBudget))
		defer cancelBuild()
	}

	outcomes := make(chan analyzerOutcome, len(dims))
	var wg sync.WaitGroup
	for _, d := range dims {
		wg.Add(1)
		go func(name contextrec.DimensionName, analyzer dimensions.Analyzer) {
			defer wg.Done()
			dimCtx, span := observability.StartDimensionSpan(buildCtx, string(name))
			defer span.End()
			defer func() {
				if r := recover(); r != nil {
					outcomes <- analyzerOutcome{
						name: name,
						err:  apperrors.NewInternal(fmt.Sprintf("analyzer %s panicked: %v", name, r), nil),
					}
				}
			}()
			data, err := analyzer.Analyze(dimCtx, key)
			if err != nil {
				span.RecordError(err)
			}
			outcomes <- analyzerOutcome{name: name, data: data, err: err}
		}(d, b.analyzers[d])
	}
	wg.Wait()
	close(outcomes)

	results := make(map[contextrec.DimensionName]*contextrec.DimensionResult, len(dims))
	for outcome := range outcomes {
		result := &contextrec.DimensionResult{Name: outcome.name}
		switch {
		case outcome.err == nil:
			result.Data = outcome.data
		case isDeadline(outcome.err):
			result.Err = "deadline exceeded"
		default:
			result.Err = outcome.err.Error()
		}
		if result.Err != "" {
			b.logger.Warn("dimension analysis failed",
				zap.String("case", key.String()),
				zap.String("dimension", string(outcome.name)),
				zap.String("reason", result.Err),
			)
		}
		results[outcome.name] = result
	}

	score := contextrec.ComputeScore(results, dims)
	finished := b.now()

	failed := 0
	for _, result := range results {
		if !result.Succeeded() {
			failed++
		}
	}
	observability.RecordBuildOutcome(buildSpan, score, failed)

	return &contextrec.ContextRecord{
		CaseKey:      key,
		Requested:    dims,
		Dimensions:   results,
		ContextScore: score,
		IsComplete:   score >= contextrec.SufficientThreshold,
		BuiltAt:      finished,
		Cached:       false,
		BuildLatency: finished.Sub(start),
		CaseStatus:   status,
		CaseName:     caseName,
	}, nil
}

func isDeadline(err error) bool {
	return stderrors.Is(err, context.DeadlineExceeded) ||
		stderrors.Is(err, context.Canceled) ||
		apperrors.IsDeadlineExceeded(err)
}
