// Package api defines the contracts for API requests and responses.
// It decouples the wire structure from the internal domain models.
package api

// RetrieveContextRequest is the body for POST /context/retrieve.
type RetrieveContextRequest struct {
	ClientID          string   `json:"client_id" validate:"required"`
	CaseID            string   `json:"case_id" validate:"required"`
	Scope             string   `json:"scope,omitempty" validate:"omitempty,oneof=minimal standard comprehensive"`
	IncludeDimensions []string `json:"include_dimensions,omitempty"`
	UseCache          *bool    `json:"use_cache,omitempty"`
}

// RetrieveDimensionRequest is the body for POST /context/dimension/retrieve.
type RetrieveDimensionRequest struct {
	ClientID  string `json:"client_id" validate:"required"`
	CaseID    string `json:"case_id" validate:"required"`
	Dimension string `json:"dimension" validate:"required"`
}

// RefreshContextRequest is the body for POST /context/refresh.
type RefreshContextRequest struct {
	ClientID string `json:"client_id" validate:"required"`
	CaseID   string `json:"case_id" validate:"required"`
	Scope    string `json:"scope,omitempty" validate:"omitempty,oneof=minimal standard comprehensive"`
}

// BatchRetrieveRequest is the body for POST /context/batch/retrieve and
// POST /cache/warmup.
type BatchRetrieveRequest struct {
	ClientID string   `json:"client_id" validate:"required"`
	CaseIDs  []string `json:"case_ids" validate:"required,min=1"`
	Scope    string   `json:"scope,omitempty" validate:"omitempty,oneof=minimal standard comprehensive"`
}

// ContextResponse is the envelope for a full context record. Dimensions
// outside the effective set, and failed dimensions, are null; failures are
// observable through is_complete and the errors map.
type ContextResponse struct {
	QueryID         string            `json:"query_id"`
	CaseID          string            `json:"case_id"`
	CaseName        string            `json:"case_name,omitempty"`
	Who             map[string]any    `json:"who"`
	What            map[string]any    `json:"what"`
	Where           map[string]any    `json:"where"`
	When            map[string]any    `json:"when"`
	Why             map[string]any    `json:"why"`
	ContextScore    float64           `json:"context_score"`
	IsComplete      bool              `json:"is_complete"`
	Cached          bool              `json:"cached"`
	ExecutionTimeMS float64           `json:"execution_time_ms"`
	Timestamp       string            `json:"timestamp"`
	Errors          map[string]string `json:"errors,omitempty"`
}

// DimensionResponse is the envelope for a single-dimension retrieval.
type DimensionResponse struct {
	CaseID    string         `json:"case_id"`
	Dimension string         `json:"dimension"`
	Data      map[string]any `json:"data"`
}

// BatchRetrieveResponse summarizes a batch retrieval.
type BatchRetrieveResponse struct {
	Total      int                         `json:"total"`
	Successful int                         `json:"successful"`
	Failed     int                         `json:"failed"`
	Contexts   map[string]*ContextResponse `json:"contexts"`
	Errors     map[string]string           `json:"errors,omitempty"`
}

// WarmupResponse summarizes a cache warmup run.
type WarmupResponse struct {
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// InvalidateResponse reports an invalidation.
type InvalidateResponse struct {
	Removed int `json:"removed"`
}

// HealthResponse is the health probe body.
type HealthResponse struct {
	Status string `json:"status"`
}
