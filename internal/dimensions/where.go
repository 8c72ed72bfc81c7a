package dimensions

import (
	"context"

	"casecontext-backend/internal/casestore"
	"casecontext-backend/internal/domain/contextrec"
)

// WhereAnalyzer assembles the WHERE dimension from the case store:
// jurisdiction, court, and venue.
type WhereAnalyzer struct {
	store casestore.Store
}

// NewWhereAnalyzer creates the WHERE analyzer.
func NewWhereAnalyzer(store casestore.Store) *WhereAnalyzer {
	return &WhereAnalyzer{store: store}
}

func (a *WhereAnalyzer) Name() contextrec.DimensionName { return contextrec.DimensionWhere }

// Analyze reads the case metadata. Each of jurisdiction, court, and venue
// contributes a third of completeness.
func (a *WhereAnalyzer) Analyze(ctx context.Context, key contextrec.CaseKey) (*contextrec.DimensionData, error) {
	md, err := a.store.GetCaseMetadata(ctx, key)
	if err != nil {
		return nil, err
	}

	present := 0
	data := make(map[string]any, 3)
	if md.Jurisdiction != "" {
		data["jurisdiction"] = md.Jurisdiction
		present++
	}
	if md.Court != "" {
		data["court"] = md.Court
		present++
	}
	if md.Venue != "" {
		data["venue"] = md.Venue
		present++
	}

	completeness := float64(present) / 3.0
	return finish(data, completeness, 1.0, present), nil
}
