package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"casecontext-backend/internal/domain/contextrec"
	"casecontext-backend/internal/engine"
	apperrors "casecontext-backend/internal/errors"
	"casecontext-backend/internal/middleware"
	"casecontext-backend/internal/validation"
	"casecontext-backend/pkg/api"
)

// ContextHandler handles context retrieval, refresh, and batch requests.
type ContextHandler struct {
	service *engine.Service
	logger  *zap.Logger
	errors  *apperrors.Writer
}

// NewContextHandler creates a context handler.
func NewContextHandler(service *engine.Service, logger *zap.Logger) *ContextHandler {
	return &ContextHandler{
		service: service,
		logger:  logger,
		errors:  apperrors.NewWriter(logger),
	}
}

// Retrieve handles POST /context/retrieve.
func (h *ContextHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req api.RetrieveContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, apperrors.NewValidation("invalid request body: "+err.Error()), "")
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		h.writeErr(w, r, apperrors.NewValidation(err.Error()), req.CaseID)
		return
	}

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}
	h.retrieve(w, r, engine.RetrieveRequest{
		ClientID:          req.ClientID,
		CaseID:            req.CaseID,
		Scope:             req.Scope,
		IncludeDimensions: req.IncludeDimensions,
		UseCache:          useCache,
	})
}

// RetrieveGet handles GET /context/retrieve.
func (h *ContextHandler) RetrieveGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	useCache := true
	if v := q.Get("use_cache"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			h.writeErr(w, r, apperrors.NewValidation("use_cache must be a boolean"), q.Get("case_id"))
			return
		}
		useCache = parsed
	}
	h.retrieve(w, r, engine.RetrieveRequest{
		ClientID: q.Get("client_id"),
		CaseID:   q.Get("case_id"),
		Scope:    q.Get("scope"),
		UseCache: useCache,
	})
}

func (h *ContextHandler) retrieve(w http.ResponseWriter, r *http.Request, req engine.RetrieveRequest) {
	start := time.Now()
	record, err := h.service.Retrieve(r.Context(), req)
	if err != nil {
		h.writeErr(w, r, err, req.CaseID)
		return
	}
	api.JSON(w, http.StatusOK, toContextResponse(record, time.Since(start)))
}

// RetrieveDimension handles POST /context/dimension/retrieve.
func (h *ContextHandler) RetrieveDimension(w http.ResponseWriter, r *http.Request) {
	var req api.RetrieveDimensionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, apperrors.NewValidation("invalid request body: "+err.Error()), "")
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		h.writeErr(w, r, apperrors.NewValidation(err.Error()), req.CaseID)
		return
	}

	result, err := h.service.RetrieveDimension(r.Context(), req.ClientID, req.CaseID, req.Dimension)
	if err != nil {
		h.writeErr(w, r, err, req.CaseID)
		return
	}

	resp := api.DimensionResponse{
		CaseID:    req.CaseID,
		Dimension: string(result.Name),
	}
	if result.Succeeded() {
		resp.Data = result.Data.Data
	}
	api.JSON(w, http.StatusOK, resp)
}

// Refresh handles POST /context/refresh.
func (h *ContextHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req api.RefreshContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, apperrors.NewValidation("invalid request body: "+err.Error()), "")
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		h.writeErr(w, r, apperrors.NewValidation(err.Error()), req.CaseID)
		return
	}

	start := time.Now()
	record, err := h.service.Refresh(r.Context(), req.ClientID, req.CaseID, req.Scope)
	if err != nil {
		h.writeErr(w, r, err, req.CaseID)
		return
	}
	api.JSON(w, http.StatusOK, toContextResponse(record, time.Since(start)))
}

// BatchRetrieve handles POST /context/batch/retrieve.
func (h *ContextHandler) BatchRetrieve(w http.ResponseWriter, r *http.Request) {
	var req api.BatchRetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, apperrors.NewValidation("invalid request body: "+err.Error()), "")
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		h.writeErr(w, r, apperrors.NewValidation(err.Error()), "")
		return
	}

	start := time.Now()
	result, err := h.service.BatchRetrieve(r.Context(), req.ClientID, req.CaseIDs, req.Scope)
	if err != nil {
		h.writeErr(w, r, err, "")
		return
	}

	elapsed := time.Since(start)
	resp := api.BatchRetrieveResponse{
		Total:      result.Total,
		Successful: result.Successful,
		Failed:     result.Failed,
		Contexts:   make(map[string]*api.ContextResponse, len(result.Contexts)),
		Errors:     result.Errors,
	}
	for caseID, record := range result.Contexts {
		resp.Contexts[caseID] = toContextResponse(record, elapsed)
	}
	api.JSON(w, http.StatusOK, resp)
}

func (h *ContextHandler) writeErr(w http.ResponseWriter, r *http.Request, err error, caseID string) {
	h.errors.Write(w, err, middleware.GetRequestIDFromRequest(r), caseID)
}

// toContextResponse flattens a context record into the response envelope.
// Dimensions outside the effective set and failed dimensions are null;
// failure reasons land in the errors map.
func toContextResponse(record *contextrec.ContextRecord, elapsed time.Duration) *api.ContextResponse {
	resp := &api.ContextResponse{
		QueryID:         uuid.New().String(),
		CaseID:          record.CaseKey.CaseID,
		CaseName:        record.CaseName,
		ContextScore:    record.ContextScore,
		IsComplete:      record.IsComplete,
		Cached:          record.Cached,
		ExecutionTimeMS: float64(elapsed.Microseconds()) / 1000.0,
		Timestamp:       record.BuiltAt.UTC().Format(time.RFC3339Nano),
	}

	for _, name := range contextrec.CanonicalDimensions {
		result, ok := record.Dimensions[name]
		if !ok {
			continue
		}
		if !result.Succeeded() {
			if resp.Errors == nil {
				resp.Errors = make(map[string]string)
			}
			resp.Errors[string(name)] = result.Err
			continue
		}
		switch name {
		case contextrec.DimensionWho:
			resp.Who = result.Data.Data
		case contextrec.DimensionWhat:
			resp.What = result.Data.Data
		case contextrec.DimensionWhere:
			resp.Where = result.Data.Data
		case contextrec.DimensionWhen:
			resp.When = result.Data.Data
		case contextrec.DimensionWhy:
			resp.Why = result.Data.Data
		}
	}
	return resp
}
