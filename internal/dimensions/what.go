package dimensions

import (
	"context"

	"casecontext-backend/internal/casestore"
	"casecontext-backend/internal/domain/contextrec"
)

// WhatAnalyzer assembles the WHAT dimension: the legal substance of the
// case — issues, causes of action, citations, and doctrine. Entities fall
// back to the relational store when the graph upstream is unavailable.
type WhatAnalyzer struct {
	graph GraphReader
	store casestore.Store
}

// NewWhatAnalyzer creates the WHAT analyzer.
func NewWhatAnalyzer(g GraphReader, store casestore.Store) *WhatAnalyzer {
	return &WhatAnalyzer{graph: g, store: store}
}

func (a *WhatAnalyzer) Name() contextrec.DimensionName { return contextrec.DimensionWhat }

// Analyze gathers the legal-substance entities and scores completeness:
// three or more legal issues (25%), at least one cause of action (25%),
// combined citations scaled to ten (30%), a primary legal theory (20%).
func (a *WhatAnalyzer) Analyze(ctx context.Context, key contextrec.CaseKey) (*contextrec.DimensionData, error) {
	degraded := false

	issues, deg, err := fetchEntities(ctx, a.graph, a.store, key, EntityLegalIssue, entityLimit)
	if err != nil {
		return nil, err
	}
	degraded = degraded || deg

	causes, deg, err := fetchEntities(ctx, a.graph, a.store, key, EntityCauseOfAction, entityLimit)
	if err != nil {
		return nil, err
	}
	degraded = degraded || deg

	statutes, deg, err := fetchEntities(ctx, a.graph, a.store, key, EntityStatuteCitation, entityLimit)
	if err != nil {
		return nil, err
	}
	degraded = degraded || deg

	citations, deg, err := fetchEntities(ctx, a.graph, a.store, key, EntityCaseCitation, entityLimit)
	if err != nil {
		return nil, err
	}
	degraded = degraded || deg

	doctrines, deg, err := fetchEntities(ctx, a.graph, a.store, key, EntityLegalDoctrine, entityLimit)
	if err != nil {
		return nil, err
	}
	degraded = degraded || deg

	totalCitations := len(statutes) + len(citations)
	completeness := boolWeight(len(issues) >= 3, 0.25) +
		boolWeight(len(causes) >= 1, 0.25) +
		scaled(totalCitations, 10)*0.30 +
		boolWeight(len(doctrines) >= 1, 0.20)

	data := map[string]any{
		"legal_issues":      entityDocs(issues),
		"causes_of_action":  entityDocs(causes),
		"statute_citations": entityDocs(statutes),
		"case_citations":    entityDocs(citations),
		"doctrines":         entityDocs(doctrines),
		"citation_count":    totalCitations,
	}
	if len(doctrines) > 0 {
		// Entities are sorted by confidence, so the head is the primary theory.
		data["primary_theory"] = doctrines[0].Name
	}
	if degraded {
		data["degraded"] = true
	}

	points := len(issues) + len(causes) + totalCitations + len(doctrines)
	confidence := meanConfidence(issues, causes, statutes, citations, doctrines)
	return finish(data, completeness, confidence, points), nil
}
