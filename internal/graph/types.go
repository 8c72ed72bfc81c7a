package graph

import (
	"sort"
)

// SearchType selects the retrieval strategy on the knowledge-graph side.
type SearchType string

const (
	SearchLocal  SearchType = "LOCAL"
	SearchGlobal SearchType = "GLOBAL"
	SearchHybrid SearchType = "HYBRID"
)

// Entity is a node returned by the knowledge-graph service.
type Entity struct {
	ID         string         `json:"id"`
	CaseID     string         `json:"case_id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Confidence float64        `json:"confidence"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Relationship is an edge returned by the knowledge-graph service.
type Relationship struct {
	ID         string         `json:"id"`
	CaseID     string         `json:"case_id"`
	Type       string         `json:"type"`
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Confidence float64        `json:"confidence"`
	Properties map[string]any `json:"properties,omitempty"`
}

// QueryResult is the composite response for query and research calls.
type QueryResult struct {
	Answer        string         `json:"answer,omitempty"`
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Status is the upstream health report.
type Status struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// SortEntities orders entities by confidence descending, id ascending, so
// analyzer output is deterministic regardless of upstream ordering.
func SortEntities(entities []Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Confidence != entities[j].Confidence {
			return entities[i].Confidence > entities[j].Confidence
		}
		return entities[i].ID < entities[j].ID
	})
}

// SortRelationships applies the same deterministic ordering to edges.
func SortRelationships(rels []Relationship) {
	sort.SliceStable(rels, func(i, j int) bool {
		if rels[i].Confidence != rels[j].Confidence {
			return rels[i].Confidence > rels[j].Confidence
		}
		return rels[i].ID < rels[j].ID
	})
}
