// Package dimensions contains the five dimension analyzers. Each analyzer
// gathers one slice of the context record (WHO, WHAT, WHERE, WHEN, WHY)
// from the upstreams, normalizes it into an opaque payload, and scores its
// own completeness with a fixed weighted formula.
//
// Analyzers share one contract: they respect the deadline on their
// context, they never issue an unscoped query, and they are independently
// re-runnable with no ordering dependencies between them.
package dimensions

import (
	"context"

	"casecontext-backend/internal/casestore"
	"casecontext-backend/internal/domain/contextrec"
	apperrors "casecontext-backend/internal/errors"
	"casecontext-backend/internal/graph"
)

// Entity types used by the analyzers when querying the knowledge graph.
const (
	EntityParty           = "PARTY"
	EntityJudge           = "JUDGE"
	EntityAttorney        = "ATTORNEY"
	EntityWitness         = "WITNESS"
	EntityStatuteCitation = "STATUTE_CITATION"
	EntityCaseCitation    = "CASE_CITATION"
	EntityLegalIssue      = "LEGAL_ISSUE"
	EntityCauseOfAction   = "CAUSE_OF_ACTION"
	EntityLegalDoctrine   = "LEGAL_DOCTRINE"
	EntityLegalTheory     = "LEGAL_THEORY"
	EntityRisk            = "RISK"
	EntityMitigation      = "MITIGATION"

	RelationshipRepresents = "REPRESENTS"
)

// entityLimit bounds every per-type entity fetch.
const entityLimit = 50

// GraphReader is the slice of the graph client the analyzers depend on.
type GraphReader interface {
	QueryCase(ctx context.Context, key contextrec.CaseKey, queryText string, searchType graph.SearchType, limit int) (*graph.QueryResult, error)
	ListCaseEntities(ctx context.Context, key contextrec.CaseKey, entityType string, minConfidence float64, limit int) ([]graph.Entity, error)
	ListCaseRelationships(ctx context.Context, key contextrec.CaseKey, relType string, minConfidence float64) ([]graph.Relationship, error)
	Research(ctx context.Context, key contextrec.CaseKey, queryText, jurisdiction string, searchType graph.SearchType) (*graph.QueryResult, error)
}

// Analyzer produces one dimension of the context record.
type Analyzer interface {
	Name() contextrec.DimensionName
	Analyze(ctx context.Context, key contextrec.CaseKey) (*contextrec.DimensionData, error)
}

// fetchEntities reads case entities from the graph, falling back to the
// relational store when the graph upstream is unavailable. The returned
// flag reports whether the degraded path was taken. Store-sourced rows
// carry no graph properties but keep the engine serving during a graph
// outage.
func fetchEntities(ctx context.Context, g GraphReader, store casestore.Store, key contextrec.CaseKey, entityType string, limit int) ([]graph.Entity, bool, error) {
	entities, err := g.ListCaseEntities(ctx, key, entityType, 0, limit)
	if err == nil {
		return entities, false, nil
	}
	if !apperrors.IsUnavailable(err) || store == nil {
		return nil, false, err
	}
	rows, storeErr := store.ListEntities(ctx, key, []string{entityType}, limit)
	if storeErr != nil {
		return nil, true, err // report the original graph failure
	}
	converted := make([]graph.Entity, 0, len(rows))
	for _, row := range rows {
		converted = append(converted, graph.Entity{
			ID:         row.ID,
			CaseID:     row.CaseID,
			Type:       row.Type,
			Name:       row.Name,
			Confidence: row.Confidence,
		})
	}
	graph.SortEntities(converted)
	return converted, true, nil
}

// scaled maps a count onto [0,1] against a target, saturating at 1.
func scaled(count, target int) float64 {
	if target <= 0 || count <= 0 {
		return 0
	}
	v := float64(count) / float64(target)
	if v > 1 {
		return 1
	}
	return v
}

// boolWeight returns weight when the predicate holds.
func boolWeight(ok bool, weight float64) float64 {
	if ok {
		return weight
	}
	return 0
}

// meanConfidence averages entity confidences; empty input yields 0.
func meanConfidence(groups ...[]graph.Entity) float64 {
	var sum float64
	count := 0
	for _, entities := range groups {
		for _, e := range entities {
			sum += e.Confidence
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// entityDocs renders entities into the opaque payload shape.
func entityDocs(entities []graph.Entity) []map[string]any {
	docs := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		doc := map[string]any{
			"id":         e.ID,
			"case_id":    e.CaseID,
			"type":       e.Type,
			"name":       e.Name,
			"confidence": e.Confidence,
		}
		if len(e.Properties) > 0 {
			doc["properties"] = e.Properties
		}
		docs = append(docs, doc)
	}
	return docs
}

// relationshipDocs renders relationships into the opaque payload shape.
func relationshipDocs(rels []graph.Relationship) []map[string]any {
	docs := make([]map[string]any, 0, len(rels))
	for _, r := range rels {
		docs = append(docs, map[string]any{
			"id":         r.ID,
			"case_id":    r.CaseID,
			"type":       r.Type,
			"source_id":  r.SourceID,
			"target_id":  r.TargetID,
			"confidence": r.Confidence,
		})
	}
	return docs
}

// finish assembles the DimensionData envelope from a payload and its
// quality scalars.
func finish(data map[string]any, completeness, confidence float64, dataPoints int) *contextrec.DimensionData {
	if completeness < 0 {
		completeness = 0
	}
	if completeness > 1 {
		completeness = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return &contextrec.DimensionData{
		Data:         data,
		Completeness: completeness,
		Confidence:   confidence,
		DataPoints:   dataPoints,
		Sufficient:   completeness >= contextrec.SufficientThreshold,
	}
}
