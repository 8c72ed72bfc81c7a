package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"casecontext-backend/internal/engine"
	apperrors "casecontext-backend/internal/errors"
	"casecontext-backend/internal/middleware"
	"casecontext-backend/internal/validation"
	"casecontext-backend/pkg/api"
)

// CacheHandler handles cache statistics, invalidation, and warmup.
type CacheHandler struct {
	service *engine.Service
	logger  *zap.Logger
	errors  *apperrors.Writer
}

// NewCacheHandler creates a cache handler.
func NewCacheHandler(service *engine.Service, logger *zap.Logger) *CacheHandler {
	return &CacheHandler{
		service: service,
		logger:  logger,
		errors:  apperrors.NewWriter(logger),
	}
}

// Stats handles GET /cache/stats.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, h.service.CacheStats())
}

// Invalidate handles DELETE /cache/invalidate. Scope is optional; without
// one, every entry for the case is removed.
func (h *CacheHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	removed, err := h.service.Invalidate(r.Context(), q.Get("client_id"), q.Get("case_id"), q.Get("scope"))
	if err != nil {
		h.writeErr(w, r, err, q.Get("case_id"))
		return
	}
	api.JSON(w, http.StatusOK, api.InvalidateResponse{Removed: removed})
}

// InvalidateCase handles POST /cache/invalidate/case.
func (h *CacheHandler) InvalidateCase(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	removed, err := h.service.InvalidateCase(r.Context(), q.Get("client_id"), q.Get("case_id"))
	if err != nil {
		h.writeErr(w, r, err, q.Get("case_id"))
		return
	}
	api.JSON(w, http.StatusOK, api.InvalidateResponse{Removed: removed})
}

// Warmup handles POST /cache/warmup.
func (h *CacheHandler) Warmup(w http.ResponseWriter, r *http.Request) {
	var req api.BatchRetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, apperrors.NewValidation("invalid request body: "+err.Error()), "")
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		h.writeErr(w, r, apperrors.NewValidation(err.Error()), "")
		return
	}

	result, err := h.service.Warmup(r.Context(), req.ClientID, req.CaseIDs, req.Scope)
	if err != nil {
		h.writeErr(w, r, err, "")
		return
	}
	api.JSON(w, http.StatusOK, api.WarmupResponse{
		Successful: result.Successful,
		Failed:     result.Failed,
		Errors:     result.Errors,
	})
}

func (h *CacheHandler) writeErr(w http.ResponseWriter, r *http.Request, err error, caseID string) {
	h.errors.Write(w, err, middleware.GetRequestIDFromRequest(r), caseID)
}
