// Package repl provides the WebSocket-based REPL for compiling FQL filters
// interactively.
package repl

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"

	"github.com/matthewbaird/reportfilter/internal/engine"
	"github.com/matthewbaird/reportfilter/internal/repl/autocomplete"
	"github.com/matthewbaird/reportfilter/internal/repl/meta"
	"github.com/matthewbaird/reportfilter/internal/repl/session"
	"github.com/matthewbaird/reportfilter/internal/repl/wire"
	"github.com/matthewbaird/reportfilter/internal/tablemap"
)

const (
	sessionMaxAge      = 24 * time.Hour
	sessionIdleTimeout = 30 * time.Minute
	cleanupInterval    = 5 * time.Minute
)

// RegisterRoutes registers REPL HTTP and WebSocket routes on the given
// router. Expired sessions are swept until ctx is cancelled.
func RegisterRoutes(ctx context.Context, r chi.Router, eng *engine.Engine, mapping *tablemap.Mapping, logger hclog.Logger) *session.Manager {
	sessions := session.NewManager(sessionMaxAge, sessionIdleTimeout, session.Settings{
		Optimization: eng.OptimizationConfig(),
		Batch:        eng.BatchConfig(),
	})
	go sessions.Run(ctx, cleanupInterval)

	ac := autocomplete.New(mapping)
	metaHandler := meta.New(mapping, eng.Dialect())

	wsHandler := wire.NewHandler(sessions, eng, ac, metaHandler, logger)

	r.Route("/api/repl", func(r chi.Router) {
		// WebSocket endpoint
		r.Get("/ws", wsHandler.ServeHTTP)

		// Entity mapping (REST, for inspector/tooling)
		r.Get("/entities", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(mapping.Tables())
		})

		// Session create endpoint; pass the id as ?session= on /ws to attach.
		r.Post("/session", func(w http.ResponseWriter, r *http.Request) {
			sess := sessions.Create()
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(sess)
		})
	})
	return sessions
}
