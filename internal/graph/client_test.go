package graph

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casecontext-backend/internal/domain/contextrec"
	apperrors "casecontext-backend/internal/errors"
)

var caseKey = contextrec.CaseKey{ClientID: "C1", CaseID: "K1"}

func fastConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		Timeout:          2 * time.Second,
		MaxRetries:       2,
		RetryBaseDelay:   5 * time.Millisecond,
		FailureThreshold: 3,
		OpenDuration:     time.Minute,
	}
}

func TestQueryCaseRequiresCaseID(t *testing.T) {
	client := NewClient(fastConfig("http://localhost:0"), nil)

	_, err := client.QueryCase(context.Background(), contextrec.CaseKey{ClientID: "C1"}, "q", SearchLocal, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingCaseID(err))

	_, err = client.ListCaseEntities(context.Background(), contextrec.CaseKey{ClientID: "C1"}, "", 0, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingCaseID(err))
}

func TestQueryCaseSendsCaseID(t *testing.T) {
	var seen queryRequestCapture
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		json.NewEncoder(w).Encode(QueryResult{})
	}))
	defer server.Close()

	client := NewClient(fastConfig(server.URL), nil)
	_, err := client.QueryCase(context.Background(), caseKey, "breach of contract", SearchLocal, 10)
	require.NoError(t, err)

	assert.Equal(t, "C1", seen.ClientID)
	assert.Equal(t, "K1", seen.CaseID)
	assert.Equal(t, "LOCAL", seen.SearchType)
}

type queryRequestCapture struct {
	ClientID   string `json:"client_id"`
	CaseID     string `json:"case_id"`
	SearchType string `json:"search_type"`
}

func TestRetryOnTransientFault(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(entitiesResponse{Entities: []Entity{{ID: "e1", CaseID: "K1"}}})
	}))
	defer server.Close()

	client := NewClient(fastConfig(server.URL), nil)
	entities, err := client.ListCaseEntities(context.Background(), caseKey, "PARTY", 0, 10)
	require.NoError(t, err)
	assert.Len(t, entities, 1)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls), "two transient failures then success")
}

func TestNoRetryOn4xx(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(fastConfig(server.URL), nil)
	_, err := client.ListCaseEntities(context.Background(), caseKey, "PARTY", 0, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsRejected(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "4xx must not be retried")
}

func TestExhaustedRetriesYieldUnavailable(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(fastConfig(server.URL), nil)
	_, err := client.ListCaseEntities(context.Background(), caseKey, "PARTY", 0, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls), "initial attempt plus MaxRetries")
}

func TestExpiredContextKeepsDeadlineOnChain(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := NewClient(fastConfig(server.URL), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := client.ListCaseEntities(ctx, caseKey, "PARTY", 0, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded),
		"the context error must survive on the chain for deadline classification")
	assert.Zero(t, atomic.LoadInt32(&calls), "no request once the budget is gone")
}

func TestBreakerOpensAndFailsFast(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(fastConfig(server.URL), nil)
	ctx := context.Background()

	// Three exhausted logical calls trip the breaker.
	for i := 0; i < 3; i++ {
		_, err := client.ListCaseEntities(ctx, caseKey, "PARTY", 0, 10)
		require.Error(t, err)
	}

	before := atomic.LoadInt32(&calls)
	_, err := client.ListCaseEntities(ctx, caseKey, "PARTY", 0, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.EqualValues(t, before, atomic.LoadInt32(&calls), "open breaker must not issue network requests")
}

func TestRejectionsDoNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(fastConfig(server.URL), nil)
	for i := 0; i < 10; i++ {
		_, err := client.ListCaseEntities(context.Background(), caseKey, "PARTY", 0, 10)
		assert.True(t, apperrors.IsRejected(err))
	}
}

func TestCaseScopeVerificationTagsEntities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(entitiesResponse{Entities: []Entity{
			{ID: "good", CaseID: "K1", Confidence: 0.9},
			{ID: "unscoped", Confidence: 0.8},
			{ID: "foreign", CaseID: "K9", Confidence: 0.7},
		}})
	}))
	defer server.Close()

	client := NewClient(fastConfig(server.URL), nil)
	entities, err := client.ListCaseEntities(context.Background(), caseKey, "PARTY", 0, 10)
	require.NoError(t, err)
	require.Len(t, entities, 3, "entities with scope problems are kept, not discarded")

	byID := make(map[string]Entity, 3)
	for _, e := range entities {
		byID[e.ID] = e
	}
	assert.Nil(t, byID["good"].Properties["data_quality_warning"])
	assert.Equal(t, "missing_case_id", byID["unscoped"].Properties["data_quality_warning"])
	assert.Equal(t, "case_id_mismatch", byID["foreign"].Properties["data_quality_warning"])
}

func TestResearch(t *testing.T) {
	t.Run("RetagsEntitiesWithQueryingCase", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(QueryResult{Entities: []Entity{
				{ID: "p1", CaseID: "OTHER_CASE", Confidence: 0.9},
			}})
		}))
		defer server.Close()

		client := NewClient(fastConfig(server.URL), nil)
		result, err := client.Research(context.Background(), caseKey, "precedents", "", SearchHybrid)
		require.NoError(t, err)
		require.Len(t, result.Entities, 1)
		assert.Equal(t, "K1", result.Entities[0].CaseID)
	})

	t.Run("RejectsLocalSearchType", func(t *testing.T) {
		client := NewClient(fastConfig("http://localhost:0"), nil)
		_, err := client.Research(context.Background(), caseKey, "precedents", "", SearchLocal)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("RequiresClientID", func(t *testing.T) {
		client := NewClient(fastConfig("http://localhost:0"), nil)
		_, err := client.Research(context.Background(), contextrec.CaseKey{}, "precedents", "", SearchGlobal)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestEntityOrdering(t *testing.T) {
	entities := []Entity{
		{ID: "b", Confidence: 0.5},
		{ID: "a", Confidence: 0.5},
		{ID: "c", Confidence: 0.9},
	}
	SortEntities(entities)
	assert.Equal(t, "c", entities[0].ID)
	assert.Equal(t, "a", entities[1].ID)
	assert.Equal(t, "b", entities[2].ID)
}
