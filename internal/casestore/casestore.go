// Package casestore defines the narrow interface the engine needs from the
// relational case store. The implementation is provided by the caller;
// connection ownership, pooling, and retries live outside this module.
//
// Contract: every query is filtered by BOTH client_id and case_id. An
// implementation that cannot guarantee that filtering must not be wired in.
package casestore

import (
	"context"
	"time"

	"casecontext-backend/internal/domain/contextrec"
)

// Metadata is the case header row: status plus the venue fields the WHERE
// dimension is assembled from.
type Metadata struct {
	CaseKey      contextrec.CaseKey
	CaseName     string
	Status       contextrec.CaseStatus
	FilingDate   *time.Time
	Court        string
	Jurisdiction string
	Venue        string
	Properties   map[string]any
}

// Entity is a case-scoped record from the relational store.
type Entity struct {
	ID         string  `json:"id"`
	CaseID     string  `json:"case_id"`
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// EventKind classifies timeline events.
type EventKind string

const (
	EventFiling   EventKind = "filing"
	EventHearing  EventKind = "hearing"
	EventDeadline EventKind = "deadline"
	EventOrder    EventKind = "order"
	EventGeneric  EventKind = "event"
)

// Event is one entry on the case timeline. Due is set for deadline events.
type Event struct {
	ID          string     `json:"id"`
	CaseID      string     `json:"case_id"`
	Kind        EventKind  `json:"kind"`
	Description string     `json:"description"`
	OccurredAt  time.Time  `json:"occurred_at"`
	Due         *time.Time `json:"due,omitempty"`
}

// EventFilter bounds a timeline query.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	Limit int
}

// Store is the case/entity store dependency.
type Store interface {
	// GetCaseMetadata returns the case header, or a NOT_FOUND error when
	// the case does not exist for that client.
	GetCaseMetadata(ctx context.Context, key contextrec.CaseKey) (*Metadata, error)

	// ListEntities returns entities of the given types for the case.
	ListEntities(ctx context.Context, key contextrec.CaseKey, types []string, limit int) ([]Entity, error)

	// ListEvents returns the case timeline, ordered by occurrence.
	ListEvents(ctx context.Context, key contextrec.CaseKey, filter EventFilter) ([]Event, error)
}
