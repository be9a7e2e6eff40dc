package handler

import (
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/matthewbaird/reportfilter/internal/compiler"
	"github.com/matthewbaird/reportfilter/internal/engine"
	"github.com/matthewbaird/reportfilter/internal/eventbus"
	"github.com/matthewbaird/reportfilter/internal/fql"
	"github.com/matthewbaird/reportfilter/internal/history"
	"github.com/matthewbaird/reportfilter/internal/planner"
)

// StatsSource exposes aggregated compile statistics.
type StatsSource interface {
	Snapshot() eventbus.Stats
}

// CompileHandler serves the compile, parse, stats and history endpoints.
type CompileHandler struct {
	engine  *engine.Engine
	stats   StatsSource
	history history.Store
	logger  hclog.Logger
}

// NewCompileHandler creates a CompileHandler. stats and store may be nil,
// in which case their endpoints answer 404.
func NewCompileHandler(e *engine.Engine, stats StatsSource, store history.Store, logger hclog.Logger) *CompileHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &CompileHandler{engine: e, stats: stats, history: store, logger: logger.Named("http")}
}

type compileRequest struct {
	Filter       string                `json:"filter"`
	Primary      string                `json:"primary"`
	Optimization *optimizationOverride `json:"optimization,omitempty"`
	Batch        *batchOverride        `json:"batch,omitempty"`
}

// optimizationOverride holds the rewrite thresholds a client sent. Omitted
// fields keep the engine's defaults.
type optimizationOverride struct {
	MaxOrConditionsForIn *int `json:"max_or_conditions_for_in"`
	MaxInValues          *int `json:"max_in_values"`
}

func (o *optimizationOverride) overlay(cfg compiler.OptimizationConfig) *compiler.OptimizationConfig {
	if o == nil {
		return nil
	}
	if o.MaxOrConditionsForIn != nil {
		cfg.MaxOrConditionsForIn = *o.MaxOrConditionsForIn
	}
	if o.MaxInValues != nil {
		cfg.MaxInValues = *o.MaxInValues
	}
	return &cfg
}

// batchOverride holds the batching settings a client sent. Omitted fields
// keep the engine's defaults.
type batchOverride struct {
	MaxBatchSize          *int  `json:"max_batch_size"`
	EnableBatchProcessing *bool `json:"enable_batch_processing"`
}

func (o *batchOverride) overlay(cfg planner.BatchConfig) *planner.BatchConfig {
	if o == nil {
		return nil
	}
	if o.MaxBatchSize != nil {
		cfg.MaxBatchSize = *o.MaxBatchSize
	}
	if o.EnableBatchProcessing != nil {
		cfg.EnableBatchProcessing = *o.EnableBatchProcessing
	}
	return &cfg
}

func (req compileRequest) engineRequest(e *engine.Engine) engine.Request {
	return engine.Request{
		Filter:       req.Filter,
		Primary:      req.Primary,
		Source:       "http",
		Optimization: req.Optimization.overlay(e.OptimizationConfig()),
		Batch:        req.Batch.overlay(e.BatchConfig()),
	}
}

type compileResponse struct {
	SQL           string                  `json:"sql"`
	Args          []any                   `json:"args"`
	Inline        string                  `json:"inline"`
	Dialect       string                  `json:"dialect"`
	Optimizations []compiler.Optimization `json:"optimizations"`
}

type statementResponse struct {
	SQL    string `json:"sql"`
	Args   []any  `json:"args"`
	Inline string `json:"inline"`
}

type batchResponse struct {
	Statements    []statementResponse     `json:"statements"`
	Dialect       string                  `json:"dialect"`
	Optimizations []compiler.Optimization `json:"optimizations"`
	EstimatedRows *int                    `json:"estimated_rows"`
}

type filterResponse struct {
	Field     string `json:"field"`
	Condition string `json:"condition"`
}

type crossFilterResponse struct {
	Source  string           `json:"source"`
	Target  string           `json:"target"`
	Filters []filterResponse `json:"filters"`
}

type parseResponse struct {
	Canonical    string                `json:"canonical"`
	BaseFilters  []filterResponse      `json:"base_filters"`
	CrossFilters []crossFilterResponse `json:"cross_filters"`
}

// Compile handles POST /v1/compile.
func (h *CompileHandler) Compile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	res, err := h.engine.Compile(r.Context(), req.engineRequest(h.engine))
	if err != nil {
		compileErrorToHTTP(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, compileResponse{
		SQL:           res.SQL,
		Args:          nonNilArgs(res.Args),
		Inline:        res.Inline(),
		Dialect:       res.Dialect,
		Optimizations: nonNilOpts(res.Optimizations),
	})
}

// CompileBatch handles POST /v1/compile/batch.
func (h *CompileHandler) CompileBatch(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	res, err := h.engine.CompileBatch(r.Context(), req.engineRequest(h.engine))
	if err != nil {
		compileErrorToHTTP(w, h.logger, err)
		return
	}
	inline := res.Inline()
	out := batchResponse{
		Statements:    make([]statementResponse, len(res.Statements)),
		Dialect:       res.Dialect,
		Optimizations: nonNilOpts(res.Optimizations),
		EstimatedRows: res.EstimatedRows,
	}
	for i, s := range res.Statements {
		out.Statements[i] = statementResponse{SQL: s.SQL, Args: nonNilArgs(s.Args), Inline: inline[i]}
	}
	writeJSON(w, http.StatusOK, out)
}

// Parse handles POST /v1/parse.
func (h *CompileHandler) Parse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filter string `json:"filter"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	q, err := h.engine.Parse(req.Filter)
	if err != nil {
		compileErrorToHTTP(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toParseResponse(q))
}

// Stats handles GET /v1/stats.
func (h *CompileHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "stats are not enabled")
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Snapshot())
}

// History handles GET /v1/history.
func (h *CompileHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "history is not enabled")
		return
	}
	q := r.URL.Query()
	opts := history.QueryOptions{
		Limit:   parseLimit(r, 50),
		Cursor:  q.Get("cursor"),
		Primary: q.Get("primary"),
	}
	if t := q["type"]; len(t) > 0 {
		opts.EventTypes = t
	}
	entries, next, total, err := h.history.Query(r.Context(), opts)
	if err != nil {
		if opts.Cursor != "" {
			writeError(w, http.StatusBadRequest, "INVALID_CURSOR", err.Error())
			return
		}
		h.logger.Error("querying history", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":     entries,
		"next_cursor": next,
		"total_count": total,
	})
}

// Health handles GET /healthz.
func (h *CompileHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "dialect": h.engine.Dialect()})
}

func toParseResponse(q *fql.Query) parseResponse {
	out := parseResponse{
		Canonical:    q.String(),
		BaseFilters:  toFilters(q.BaseFilters),
		CrossFilters: make([]crossFilterResponse, len(q.CrossFilters)),
	}
	for i, cf := range q.CrossFilters {
		out.CrossFilters[i] = crossFilterResponse{
			Source:  cf.Source.String(),
			Target:  cf.Target.String(),
			Filters: toFilters(cf.Filters),
		}
	}
	return out
}

func toFilters(filters []fql.FieldFilter) []filterResponse {
	out := make([]filterResponse, len(filters))
	for i, f := range filters {
		out[i] = filterResponse{Field: f.Field.String(), Condition: f.Condition.String()}
	}
	return out
}

func nonNilArgs(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}

func nonNilOpts(opts []compiler.Optimization) []compiler.Optimization {
	if opts == nil {
		return []compiler.Optimization{}
	}
	return opts
}
