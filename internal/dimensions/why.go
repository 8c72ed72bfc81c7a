package dimensions

import (
	"context"

	"casecontext-backend/internal/domain/contextrec"
	"casecontext-backend/internal/graph"
)

// WhyAnalyzer assembles the WHY dimension: case theories, the supporting
// precedent network, risks and mitigations, and outcome signals. This is
// the one dimension allowed to reach across cases — precedents inherently
// cite out-of-case authority — but everything returned is tagged with the
// querying case key.
type WhyAnalyzer struct {
	graph GraphReader
}

// NewWhyAnalyzer creates the WHY analyzer.
func NewWhyAnalyzer(g GraphReader) *WhyAnalyzer {
	return &WhyAnalyzer{graph: g}
}

func (a *WhyAnalyzer) Name() contextrec.DimensionName { return contextrec.DimensionWhy }

// Analyze gathers strategy data and scores completeness: two or more
// theories (20%), supporting precedents scaled to ten (30%), risks with
// mitigations (20%), judge ruling patterns (15%), similar-case outcomes
// (15%).
func (a *WhyAnalyzer) Analyze(ctx context.Context, key contextrec.CaseKey) (*contextrec.DimensionData, error) {
	theories, err := a.graph.ListCaseEntities(ctx, key, EntityLegalTheory, 0, entityLimit)
	if err != nil {
		return nil, err
	}
	risks, err := a.graph.ListCaseEntities(ctx, key, EntityRisk, 0, entityLimit)
	if err != nil {
		return nil, err
	}
	mitigations, err := a.graph.ListCaseEntities(ctx, key, EntityMitigation, 0, entityLimit)
	if err != nil {
		return nil, err
	}

	precedents, err := a.graph.Research(ctx, key,
		"supporting precedents for the case theories", "", graph.SearchHybrid)
	if err != nil {
		return nil, err
	}
	outcomes, err := a.graph.Research(ctx, key,
		"judge ruling patterns and outcomes of similar cases", "", graph.SearchGlobal)
	if err != nil {
		return nil, err
	}

	judgePatterns, hasPatterns := outcomes.Metadata["judge_patterns"]
	similarOutcomes, hasOutcomes := outcomes.Metadata["similar_outcomes"]
	if !hasOutcomes && len(outcomes.Entities) > 0 {
		similarOutcomes = entityDocs(outcomes.Entities)
		hasOutcomes = true
	}

	completeness := boolWeight(len(theories) >= 2, 0.20) +
		scaled(len(precedents.Entities), 10)*0.30 +
		boolWeight(len(risks) > 0 && len(mitigations) > 0, 0.20) +
		boolWeight(hasPatterns, 0.15) +
		boolWeight(hasOutcomes, 0.15)

	data := map[string]any{
		"theories":        entityDocs(theories),
		"precedents":      entityDocs(precedents.Entities),
		"precedent_edges": relationshipDocs(precedents.Relationships),
		"risks":           entityDocs(risks),
		"mitigations":     entityDocs(mitigations),
		"precedent_count": len(precedents.Entities),
	}
	if precedents.Answer != "" {
		data["precedent_summary"] = precedents.Answer
	}
	if hasPatterns {
		data["judge_patterns"] = judgePatterns
	}
	if hasOutcomes {
		data["similar_outcomes"] = similarOutcomes
	}

	points := len(theories) + len(precedents.Entities) + len(risks) + len(mitigations) + len(outcomes.Entities)
	confidence := meanConfidence(theories, precedents.Entities, risks, mitigations)
	return finish(data, completeness, confidence, points), nil
}
