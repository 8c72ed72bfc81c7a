package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse is the JSON body written for every failed request.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	CaseID    string `json:"case_id,omitempty"`
}

// HTTPStatus maps a classified error to its response status code.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeValidation, ErrorTypeMissingCaseID:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeDeadlineExceeded:
		return http.StatusGatewayTimeout
	case ErrorTypeUnavailable, ErrorTypeBuildCancelled:
		return http.StatusServiceUnavailable
	default:
		// UPSTREAM_REJECTED indicates a bug in our request construction,
		// so it surfaces as an internal error.
		return http.StatusInternalServerError
	}
}

// Writer translates application errors into HTTP responses.
type Writer struct {
	logger *zap.Logger
}

// NewWriter creates an error writer using the given logger.
func NewWriter(logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{logger: logger}
}

// Write serializes err as the standard error body. requestID and caseID may
// be empty; they are included in the body when present for correlation.
func (wr *Writer) Write(w http.ResponseWriter, err error, requestID, caseID string) {
	status := HTTPStatus(err)

	body := ErrorResponse{
		Detail:    "Internal server error",
		ErrorCode: "internal",
		RequestID: requestID,
		CaseID:    caseID,
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		body.ErrorCode = appErr.Code
		if status < http.StatusInternalServerError {
			body.Detail = appErr.Message
		} else {
			// Do not leak upstream details on 5xx.
			body.Detail = http.StatusText(status)
		}
	}
	if IsNotFound(err) {
		body.Detail = "Case not found"
	}

	if status >= http.StatusInternalServerError {
		wr.logger.Error("request failed",
			zap.String("request_id", requestID),
			zap.String("case_id", caseID),
			zap.Error(err),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
