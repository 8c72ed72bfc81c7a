// Package rest wires the HTTP surface of the context engine.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"casecontext-backend/interfaces/http/rest/handlers"
	"casecontext-backend/internal/config"
	"casecontext-backend/internal/engine"
	"casecontext-backend/internal/middleware"
	"casecontext-backend/internal/observability"
	"casecontext-backend/pkg/api"
)

// Router creates and configures the HTTP router.
type Router struct {
	service *engine.Service
	cfg     *config.Config
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRouter creates a new router instance.
func NewRouter(service *engine.Service, cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) *Router {
	return &Router{
		service: service,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Recovery(rt.logger))
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.Timeout(rt.cfg.Build.OverallDeadline))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	if rt.metrics != nil && rt.cfg.Metrics.Enabled {
		router.Method(http.MethodGet, rt.cfg.Metrics.Path, rt.metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		contextHandler := handlers.NewContextHandler(rt.service, rt.logger)
		r.Route("/context", func(r chi.Router) {
			r.Post("/retrieve", rt.instrument("/context/retrieve", contextHandler.Retrieve))
			r.Get("/retrieve", rt.instrument("/context/retrieve", contextHandler.RetrieveGet))
			r.Post("/dimension/retrieve", rt.instrument("/context/dimension/retrieve", contextHandler.RetrieveDimension))
			r.Post("/refresh", rt.instrument("/context/refresh", contextHandler.Refresh))
			r.Post("/batch/retrieve", rt.instrument("/context/batch/retrieve", contextHandler.BatchRetrieve))
		})

		cacheHandler := handlers.NewCacheHandler(rt.service, rt.logger)
		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", rt.instrument("/cache/stats", cacheHandler.Stats))
			r.Delete("/invalidate", rt.instrument("/cache/invalidate", cacheHandler.Invalidate))
			r.Post("/invalidate/case", rt.instrument("/cache/invalidate/case", cacheHandler.InvalidateCase))
			r.Post("/warmup", rt.instrument("/cache/warmup", cacheHandler.Warmup))
		})
	})

	return router
}

// instrument wraps a handler with the metrics middleware when enabled.
func (rt *Router) instrument(path string, fn http.HandlerFunc) http.HandlerFunc {
	if rt.metrics == nil {
		return fn
	}
	wrapped := rt.metrics.InstrumentHTTP(path, fn)
	return wrapped.ServeHTTP
}

// healthCheck reports process liveness.
func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, api.HealthResponse{Status: "healthy"})
}

// readinessCheck verifies the graph upstream answers its health probe.
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := rt.service.Ready(r.Context()); err != nil {
		api.JSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "degraded"})
		return
	}
	api.JSON(w, http.StatusOK, api.HealthResponse{Status: "ready"})
}
