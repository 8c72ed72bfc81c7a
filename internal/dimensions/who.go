package dimensions

import (
	"context"

	"casecontext-backend/internal/casestore"
	"casecontext-backend/internal/domain/contextrec"
	apperrors "casecontext-backend/internal/errors"
	"casecontext-backend/internal/graph"
)

// WhoAnalyzer assembles the WHO dimension: the people and organizations in
// the case — parties, judge, counsel, witnesses — plus the representation
// map between them. Participant entities fall back to the relational store
// when the graph upstream is unavailable; the representation map is
// graph-only and degrades to absent.
type WhoAnalyzer struct {
	graph GraphReader
	store casestore.Store
}

// NewWhoAnalyzer creates the WHO analyzer.
func NewWhoAnalyzer(g GraphReader, store casestore.Store) *WhoAnalyzer {
	return &WhoAnalyzer{graph: g, store: store}
}

func (a *WhoAnalyzer) Name() contextrec.DimensionName { return contextrec.DimensionWho }

// Analyze gathers the participant entities and scores completeness:
// two or more parties (30%), counsel for every party (20%), an assigned
// judge (20%), witnesses (10%), and a representation map (20%). When a
// source was unavailable and no representation edges came back, the
// counsel and representation shares are both awarded on headcount: at
// least one attorney per party.
func (a *WhoAnalyzer) Analyze(ctx context.Context, key contextrec.CaseKey) (*contextrec.DimensionData, error) {
	degraded := false

	parties, deg, err := fetchEntities(ctx, a.graph, a.store, key, EntityParty, entityLimit)
	if err != nil {
		return nil, err
	}
	degraded = degraded || deg

	judges, deg, err := fetchEntities(ctx, a.graph, a.store, key, EntityJudge, entityLimit)
	if err != nil {
		return nil, err
	}
	degraded = degraded || deg

	attorneys, deg, err := fetchEntities(ctx, a.graph, a.store, key, EntityAttorney, entityLimit)
	if err != nil {
		return nil, err
	}
	degraded = degraded || deg

	witnesses, deg, err := fetchEntities(ctx, a.graph, a.store, key, EntityWitness, entityLimit)
	if err != nil {
		return nil, err
	}
	degraded = degraded || deg

	representation, err := a.graph.ListCaseRelationships(ctx, key, RelationshipRepresents, 0)
	if err != nil {
		if !apperrors.IsUnavailable(err) {
			return nil, err
		}
		// Graph-only data; keep serving the store-backed participants.
		representation = nil
		degraded = true
	}

	counselled := allPartiesRepresented(parties, representation)
	if degraded && len(representation) == 0 {
		// Without the representation map, approximate counsel coverage
		// from headcount: at least one attorney per party.
		counselled = len(parties) > 0 && len(attorneys) >= len(parties)
	}

	completeness := boolWeight(len(parties) >= 2, 0.30) +
		boolWeight(counselled, 0.20) +
		boolWeight(len(judges) >= 1, 0.20) +
		boolWeight(len(witnesses) >= 1, 0.10) +
		boolWeight(len(representation) > 0 || (degraded && counselled), 0.20)

	data := map[string]any{
		"parties":        entityDocs(parties),
		"judges":         entityDocs(judges),
		"attorneys":      entityDocs(attorneys),
		"witnesses":      entityDocs(witnesses),
		"representation": relationshipDocs(representation),
		"party_count":    len(parties),
		"witness_count":  len(witnesses),
	}
	if degraded {
		data["degraded"] = true
	}

	points := len(parties) + len(judges) + len(attorneys) + len(witnesses) + len(representation)
	confidence := meanConfidence(parties, judges, attorneys, witnesses)
	return finish(data, completeness, confidence, points), nil
}

// allPartiesRepresented reports whether every party appears on at least
// one representation edge. Vacuously false with no parties.
func allPartiesRepresented(parties []graph.Entity, rels []graph.Relationship) bool {
	if len(parties) == 0 || len(rels) == 0 {
		return false
	}
	represented := make(map[string]bool, len(rels)*2)
	for _, r := range rels {
		represented[r.SourceID] = true
		represented[r.TargetID] = true
	}
	for _, p := range parties {
		if !represented[p.ID] {
			return false
		}
	}
	return true
}
