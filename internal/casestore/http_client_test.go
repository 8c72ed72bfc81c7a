package casestore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casecontext-backend/internal/domain/contextrec"
	apperrors "casecontext-backend/internal/errors"
)

var key = contextrec.CaseKey{ClientID: "C1", CaseID: "K1"}

func TestGetCaseMetadata(t *testing.T) {
	filing := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/cases/metadata", r.URL.Path)
		assert.Equal(t, "C1", r.URL.Query().Get("client_id"))
		assert.Equal(t, "K1", r.URL.Query().Get("case_id"))
		json.NewEncoder(w).Encode(map[string]any{
			"case_name":    "Smith v. Jones",
			"status":       "closed",
			"filing_date":  filing,
			"court":        "Superior Court",
			"jurisdiction": "California",
			"venue":        "Los Angeles County",
		})
	}))
	defer server.Close()

	store := NewHTTPClient(server.URL, time.Second, nil)
	md, err := store.GetCaseMetadata(context.Background(), key)
	require.NoError(t, err)

	assert.Equal(t, "Smith v. Jones", md.CaseName)
	assert.Equal(t, contextrec.CaseStatusClosed, md.Status)
	require.NotNil(t, md.FilingDate)
	assert.True(t, md.FilingDate.Equal(filing))
	assert.Equal(t, "California", md.Jurisdiction)
}

func TestGetCaseMetadataNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store := NewHTTPClient(server.URL, time.Second, nil)
	_, err := store.GetCaseMetadata(context.Background(), key)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetCaseMetadataUnknownStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "archived"})
	}))
	defer server.Close()

	store := NewHTTPClient(server.URL, time.Second, nil)
	md, err := store.GetCaseMetadata(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, contextrec.CaseStatusUnknown, md.Status)
}

func TestListEntitiesCarriesCaseScope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "K1", r.URL.Query().Get("case_id"))
		assert.ElementsMatch(t, []string{"PARTY", "JUDGE"}, r.URL.Query()["type"])
		json.NewEncoder(w).Encode(map[string]any{
			"entities": []map[string]any{{"id": "p1", "case_id": "K1", "type": "PARTY"}},
		})
	}))
	defer server.Close()

	store := NewHTTPClient(server.URL, time.Second, nil)
	entities, err := store.ListEntities(context.Background(), key, []string{"PARTY", "JUDGE"}, 10)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "p1", entities[0].ID)
}

func TestListEventsRejectsInvalidKey(t *testing.T) {
	store := NewHTTPClient("http://localhost:0", time.Second, nil)
	_, err := store.ListEvents(context.Background(), contextrec.CaseKey{ClientID: "C1"}, EventFilter{})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	store := NewHTTPClient(server.URL, time.Second, nil)
	_, err := store.ListEntities(context.Background(), key, []string{"PARTY"}, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}
