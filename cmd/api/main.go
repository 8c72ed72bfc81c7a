package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"casecontext-backend/interfaces/http/rest"
	"casecontext-backend/internal/app"
	"casecontext-backend/internal/casestore"
	"casecontext-backend/internal/config"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}

	store := casestore.NewHTTPClient(cfg.CaseDB.Endpoint, cfg.CaseDB.Timeout, logger)

	container, err := app.NewContainer(cfg, store, logger)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	if path := os.Getenv("CONTEXT_ENGINE_CONFIG"); path != "" {
		watcher, err := config.NewWatcher(path, logger)
		if err != nil {
			logger.Warn("config watcher unavailable", zap.Error(err))
		} else {
			watcher.OnChange(func(updated *config.Config) {
				logger.Info("configuration updated",
					zap.Duration("memory_ttl", updated.Cache.MemoryTTL),
					zap.Duration("active_case_ttl", updated.Cache.ActiveCaseTTL),
				)
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	router := rest.NewRouter(container.Service, cfg, container.Metrics, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting context engine",
			zap.String("address", cfg.Server.Address()),
			zap.String("environment", string(cfg.Environment)),
			zap.String("graph_endpoint", cfg.Graph.Endpoint),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	container.Shutdown(shutdownCtx)

	_ = logger.Sync()
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Environment == config.Production {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if err := zapCfg.Level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return nil, err
	}
	return zapCfg.Build()
}
