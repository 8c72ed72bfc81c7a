package errors

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		err       error
		predicate func(error) bool
	}{
		{NewValidation("bad"), IsValidation},
		{NewMissingCaseID("query_case"), IsMissingCaseID},
		{NewNotFound("case"), IsNotFound},
		{NewDeadlineExceeded("build"), IsDeadlineExceeded},
		{NewBuildCancelled(), IsBuildCancelled},
		{NewUnavailable("graph", nil), IsUnavailable},
		{NewRejected("graph", 422), IsRejected},
	}
	for _, tc := range cases {
		assert.True(t, tc.predicate(tc.err), tc.err)
	}
	assert.False(t, IsValidation(NewNotFound("x")))
}

func TestWrapPreservesClassification(t *testing.T) {
	inner := NewUnavailable("graph", fmt.Errorf("connection refused"))
	wrapped := Wrap(inner, "listing entities")

	assert.True(t, IsUnavailable(wrapped))
	assert.Contains(t, wrapped.Error(), "listing entities")
}

func TestWrapForeignErrorBecomesInternal(t *testing.T) {
	wrapped := Wrap(fmt.Errorf("boom"), "doing work")
	assert.Equal(t, ErrorTypeInternal, TypeOf(wrapped))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(NewValidation("x")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(NewMissingCaseID("op")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NewNotFound("x")))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(NewDeadlineExceeded("op")))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(NewUnavailable("graph", nil)))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(NewBuildCancelled()))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(NewRejected("graph", 400)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(fmt.Errorf("plain")))
}

func TestWriterBody(t *testing.T) {
	t.Run("ClientError", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewWriter(nil).Write(rec, NewValidation("scope is unknown"), "req-1", "K1")

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t,
			`{"detail":"scope is unknown","error_code":"invalid_request","request_id":"req-1","case_id":"K1"}`,
			rec.Body.String(),
		)
	})

	t.Run("NotFound", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewWriter(nil).Write(rec, NewNotFound("case K9 not found"), "", "K9")

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t,
			`{"detail":"Case not found","error_code":"not_found","case_id":"K9"}`,
			rec.Body.String(),
		)
	})

	t.Run("ServerErrorHidesDetail", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewWriter(nil).Write(rec, NewRejected("http://graph:8010", 400), "", "")

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "graph:8010", "upstream details must not leak")
	})
}
