// Package graph implements the case-scoped client for the knowledge-graph
// query service (GraphRAG). It is the only path the engine uses to reach
// the graph upstream and it encapsulates retry, timeout, circuit breaking,
// and case-isolation enforcement.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"casecontext-backend/internal/domain/contextrec"
	apperrors "casecontext-backend/internal/errors"
	"casecontext-backend/internal/observability"
)

// Config holds the client tunables. Zero values are replaced by defaults.
type Config struct {
	BaseURL          string
	Timeout          time.Duration // whole-call budget, retries included
	MaxRetries       int
	RetryBaseDelay   time.Duration
	FailureThreshold uint32 // consecutive failures before the breaker opens
	OpenDuration     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = 60 * time.Second
	}
	return c
}

// Client talks to one knowledge-graph endpoint. One breaker exists per
// endpoint for the process lifetime.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a graph client for the configured endpoint.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("graph_client")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.BaseURL,
		MaxRequests: 1, // half-open admits a single probe
		Timeout:     cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// Upstream rejections (4xx) indicate a bug in our request, not
			// an unavailable upstream; they must not trip the breaker.
			return err == nil || apperrors.IsRejected(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("endpoint", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
	}
}

// BreakerState exposes the breaker state for readiness checks and metrics.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// request/response shapes on the wire

type queryRequest struct {
	ClientID   string `json:"client_id"`
	CaseID     string `json:"case_id,omitempty"`
	Query      string `json:"query"`
	SearchType string `json:"search_type"`
	Limit      int    `json:"limit,omitempty"`
}

type entitiesRequest struct {
	ClientID      string  `json:"client_id"`
	CaseID        string  `json:"case_id"`
	EntityType    string  `json:"entity_type,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
	Limit         int     `json:"limit,omitempty"`
}

type entitiesResponse struct {
	Entities []Entity `json:"entities"`
}

type relationshipsRequest struct {
	ClientID         string  `json:"client_id"`
	CaseID           string  `json:"case_id"`
	RelationshipType string  `json:"relationship_type,omitempty"`
	MinConfidence    float64 `json:"min_confidence,omitempty"`
}

type relationshipsResponse struct {
	Relationships []Relationship `json:"relationships"`
}

type researchRequest struct {
	ClientID     string `json:"client_id"`
	CaseID       string `json:"case_id,omitempty"`
	Query        string `json:"query"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	SearchType   string `json:"search_type"`
}

// QueryCase issues a case-scoped query. The case id is mandatory: callers
// without one get MissingCaseID before any network traffic.
func (c *Client) QueryCase(ctx context.Context, key contextrec.CaseKey, queryText string, searchType SearchType, limit int) (*QueryResult, error) {
	if key.CaseID == "" {
		return nil, apperrors.NewMissingCaseID("query_case")
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if searchType == "" {
		searchType = SearchLocal
	}

	var result QueryResult
	err := c.call(ctx, "/api/v1/query", queryRequest{
		ClientID:   key.ClientID,
		CaseID:     key.CaseID,
		Query:      queryText,
		SearchType: string(searchType),
		Limit:      limit,
	}, &result)
	if err != nil {
		return nil, err
	}
	c.verifyCaseScope(key.CaseID, result.Entities)
	SortEntities(result.Entities)
	SortRelationships(result.Relationships)
	return &result, nil
}

// ListCaseEntities returns case entities of one type. entityType may be
// empty to fetch all types.
func (c *Client) ListCaseEntities(ctx context.Context, key contextrec.CaseKey, entityType string, minConfidence float64, limit int) ([]Entity, error) {
	if key.CaseID == "" {
		return nil, apperrors.NewMissingCaseID("list_case_entities")
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var resp entitiesResponse
	err := c.call(ctx, "/api/v1/entities", entitiesRequest{
		ClientID:      key.ClientID,
		CaseID:        key.CaseID,
		EntityType:    entityType,
		MinConfidence: minConfidence,
		Limit:         limit,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.verifyCaseScope(key.CaseID, resp.Entities)
	SortEntities(resp.Entities)
	return resp.Entities, nil
}

// ListCaseRelationships returns case relationships, optionally filtered by
// type and minimum confidence.
func (c *Client) ListCaseRelationships(ctx context.Context, key contextrec.CaseKey, relType string, minConfidence float64) ([]Relationship, error) {
	if key.CaseID == "" {
		return nil, apperrors.NewMissingCaseID("list_case_relationships")
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var resp relationshipsResponse
	err := c.call(ctx, "/api/v1/relationships", relationshipsRequest{
		ClientID:         key.ClientID,
		CaseID:           key.CaseID,
		RelationshipType: relType,
		MinConfidence:    minConfidence,
	}, &resp)
	if err != nil {
		return nil, err
	}
	SortRelationships(resp.Relationships)
	return resp.Relationships, nil
}

// Research issues a cross-case query for precedent discovery. It requires a
// client id but not a case id; entities in the result are re-tagged with
// the querying case so downstream isolation checks hold.
func (c *Client) Research(ctx context.Context, key contextrec.CaseKey, queryText, jurisdiction string, searchType SearchType) (*QueryResult, error) {
	if key.ClientID == "" {
		return nil, apperrors.NewValidation("research requires a client_id")
	}
	if searchType != SearchGlobal && searchType != SearchHybrid {
		return nil, apperrors.NewValidation(fmt.Sprintf("research search_type must be GLOBAL or HYBRID, got %q", searchType))
	}

	var result QueryResult
	err := c.call(ctx, "/api/v1/research", researchRequest{
		ClientID:     key.ClientID,
		CaseID:       key.CaseID,
		Query:        queryText,
		Jurisdiction: jurisdiction,
		SearchType:   string(searchType),
	}, &result)
	if err != nil {
		return nil, err
	}
	// Precedents come from other cases; tag them with the querying case id.
	for i := range result.Entities {
		result.Entities[i].CaseID = key.CaseID
	}
	for i := range result.Relationships {
		result.Relationships[i].CaseID = key.CaseID
	}
	SortEntities(result.Entities)
	SortRelationships(result.Relationships)
	return &result, nil
}

// Health probes the upstream health endpoint. Health checks bypass retries
// but still observe the breaker.
func (c *Client) Health(ctx context.Context) (*Status, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
		if err != nil {
			return nil, apperrors.NewInternal("building health request", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, apperrors.NewUnavailable(c.cfg.BaseURL, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &Status{Healthy: false, Detail: fmt.Sprintf("status %d", resp.StatusCode)}, nil
		}
		return &Status{Healthy: true}, nil
	})
	if err != nil {
		return nil, c.mapBreakerErr(err)
	}
	return res.(*Status), nil
}

// call runs one logical request through the breaker with retries inside.
// The breaker sees a single success or failure per logical call, so its
// consecutive-failure count tracks exhausted calls, not attempts.
func (c *Client) call(ctx context.Context, path string, payload, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.doWithRetry(ctx, path, payload, out)
	})
	return c.mapBreakerErr(err)
}

func (c *Client) mapBreakerErr(err error) error {
	switch err {
	case nil:
		return nil
	case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
		return apperrors.NewUnavailable(c.cfg.BaseURL, err)
	default:
		return err
	}
}

// doWithRetry retries transient faults with exponential backoff. Transport
// errors and 5xx responses are transient; 4xx and validation errors are
// terminal. The whole sequence shares one timeout budget.
func (c *Client) doWithRetry(ctx context.Context, path string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewInternal("encoding graph request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			// Keep the context error on the chain so callers can tell a
			// deadline-driven failure from an unreachable upstream.
			lastErr = apperrors.NewUnavailable(c.cfg.BaseURL, err)
			break
		}

		err := c.doOnce(ctx, path, body, out, attempt)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("graph call succeeded after retry",
					zap.String("path", path),
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}
		lastErr = err

		if apperrors.IsRejected(err) || apperrors.IsValidation(err) {
			return err // never retried
		}
		if attempt >= c.cfg.MaxRetries {
			break
		}

		delay := c.cfg.RetryBaseDelay << uint(attempt)
		c.logger.Warn("retrying graph call",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return apperrors.NewUnavailable(c.cfg.BaseURL, ctx.Err())
		}
	}

	return apperrors.NewUnavailable(c.cfg.BaseURL, lastErr)
}

func (c *Client) doOnce(ctx context.Context, path string, body []byte, out any, attempt int) (err error) {
	ctx, span := observability.StartGraphSpan(ctx, path, attempt)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return apperrors.NewInternal("building graph request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewUnavailable(c.cfg.BaseURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return apperrors.NewUnavailable(c.cfg.BaseURL, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		io.Copy(io.Discard, resp.Body)
		return apperrors.NewRejected(c.cfg.BaseURL, resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewInternal("decoding graph response", err)
	}
	return nil
}

// verifyCaseScope checks that every returned entity carries the expected
// case id. Entities that don't are kept but tagged, so consumers can see
// the data-quality problem without losing the payload.
func (c *Client) verifyCaseScope(caseID string, entities []Entity) {
	for i := range entities {
		e := &entities[i]
		var warning string
		switch {
		case e.CaseID == "":
			warning = "missing_case_id"
		case e.CaseID != caseID:
			warning = "case_id_mismatch"
		default:
			continue
		}
		c.logger.Warn("entity failed case-scope verification",
			zap.String("entity_id", e.ID),
			zap.String("expected_case_id", caseID),
			zap.String("entity_case_id", e.CaseID),
			zap.String("warning", warning),
		)
		if e.Properties == nil {
			e.Properties = make(map[string]any, 1)
		}
		e.Properties["data_quality_warning"] = warning
	}
}
