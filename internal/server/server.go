// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/matthewbaird/reportfilter/internal/engine"
	"github.com/matthewbaird/reportfilter/internal/handler"
	"github.com/matthewbaird/reportfilter/internal/history"
	"github.com/matthewbaird/reportfilter/internal/repl"
	"github.com/matthewbaird/reportfilter/internal/tablemap"
)

// Config holds server configuration.
type Config struct {
	Port    int
	Engine  *engine.Engine
	Mapping *tablemap.Mapping
	Stats   handler.StatsSource // optional
	History history.Store       // optional
	Logger  hclog.Logger
}

// NewRouter builds the router with every route registered. ctx bounds
// background work started for the routes.
func NewRouter(ctx context.Context, cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	httpLogger := logger.Named("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(handler.Recovery(httpLogger))
	r.Use(handler.Logging(httpLogger))

	ch := handler.NewCompileHandler(cfg.Engine, cfg.Stats, cfg.History, logger)

	// Health check
	r.Get("/healthz", ch.Health)

	// --- CompileService ---
	r.Route("/v1", func(r chi.Router) {
		r.Post("/compile", ch.Compile)
		r.Post("/compile/batch", ch.CompileBatch)
		r.Post("/parse", ch.Parse)
		r.Get("/stats", ch.Stats)
		r.Get("/history", ch.History)
	})

	// --- REPL ---
	repl.RegisterRoutes(ctx, r, cfg.Engine, cfg.Mapping, logger)

	return r
}

// Run starts the HTTP server with all routes registered and shuts it down
// when ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Engine == nil {
		return errors.New("server: engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(ctx, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	logger.Info("starting server", "addr", addr, "dialect", cfg.Engine.Dialect())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
