package casestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"casecontext-backend/internal/domain/contextrec"
	apperrors "casecontext-backend/internal/errors"
)

// HTTPClient is a thin adapter over the CaseDB query service. Every call
// carries both client_id and case_id; filtering happens server-side.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPClient creates a CaseDB adapter for the given endpoint.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("casedb_client"),
	}
}

type metadataPayload struct {
	CaseName     string         `json:"case_name"`
	Status       string         `json:"status"`
	FilingDate   *time.Time     `json:"filing_date"`
	Court        string         `json:"court"`
	Jurisdiction string         `json:"jurisdiction"`
	Venue        string         `json:"venue"`
	Properties   map[string]any `json:"properties"`
}

type entitiesPayload struct {
	Entities []Entity `json:"entities"`
}

type eventsPayload struct {
	Events []Event `json:"events"`
}

// GetCaseMetadata implements Store.
func (c *HTTPClient) GetCaseMetadata(ctx context.Context, key contextrec.CaseKey) (*Metadata, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("client_id", key.ClientID)
	q.Set("case_id", key.CaseID)

	var payload metadataPayload
	if err := c.get(ctx, "/api/v1/cases/metadata", q, &payload); err != nil {
		return nil, err
	}

	status := contextrec.CaseStatusUnknown
	switch payload.Status {
	case "active":
		status = contextrec.CaseStatusActive
	case "closed":
		status = contextrec.CaseStatusClosed
	}
	return &Metadata{
		CaseKey:      key,
		CaseName:     payload.CaseName,
		Status:       status,
		FilingDate:   payload.FilingDate,
		Court:        payload.Court,
		Jurisdiction: payload.Jurisdiction,
		Venue:        payload.Venue,
		Properties:   payload.Properties,
	}, nil
}

// ListEntities implements Store.
func (c *HTTPClient) ListEntities(ctx context.Context, key contextrec.CaseKey, types []string, limit int) ([]Entity, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("client_id", key.ClientID)
	q.Set("case_id", key.CaseID)
	for _, t := range types {
		q.Add("type", t)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}

	var payload entitiesPayload
	if err := c.get(ctx, "/api/v1/cases/entities", q, &payload); err != nil {
		return nil, err
	}
	return payload.Entities, nil
}

// ListEvents implements Store.
func (c *HTTPClient) ListEvents(ctx context.Context, key contextrec.CaseKey, filter EventFilter) ([]Event, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("client_id", key.ClientID)
	q.Set("case_id", key.CaseID)
	if filter.Since != nil {
		q.Set("since", filter.Since.Format(time.RFC3339))
	}
	if filter.Until != nil {
		q.Set("until", filter.Until.Format(time.RFC3339))
	}
	if filter.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", filter.Limit))
	}

	var payload eventsPayload
	if err := c.get(ctx, "/api/v1/cases/events", q, &payload); err != nil {
		return nil, err
	}
	return payload.Events, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return apperrors.NewInternal("building casedb request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewUnavailable(c.baseURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return apperrors.NewNotFound("case not found")
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return apperrors.NewUnavailable(c.baseURL, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		io.Copy(io.Discard, resp.Body)
		return apperrors.NewRejected(c.baseURL, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewInternal("decoding casedb response", err)
	}
	return nil
}
