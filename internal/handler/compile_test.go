package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/reportfilter/internal/compiler"
	"github.com/matthewbaird/reportfilter/internal/engine"
	"github.com/matthewbaird/reportfilter/internal/event"
	"github.com/matthewbaird/reportfilter/internal/eventbus"
	"github.com/matthewbaird/reportfilter/internal/history"
	"github.com/matthewbaird/reportfilter/internal/tablemap"
)

func newTestHandler(t *testing.T) (*CompileHandler, *history.MemoryStore) {
	t.Helper()
	stats := eventbus.NewStatsConsumer()
	store := history.NewMemoryStore()
	rec := history.NewRecorder(store)

	c, err := compiler.New(compiler.WithTableMapper(tablemap.Default()))
	require.NoError(t, err)
	eng, err := engine.New(
		engine.WithCompiler(c),
		engine.WithPublisher(event.PublisherFunc(func(ctx context.Context, evt event.DomainEvent) {
			require.NoError(t, stats.HandleEvent(ctx, evt))
			require.NoError(t, rec.Record(ctx, evt))
		})),
	)
	require.NoError(t, err)
	return NewCompileHandler(eng, stats, store, nil), store
}

func do(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCompile(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(h.Compile, http.MethodPost, "/v1/compile",
		`{"filter": "Filter: status[\"Open\"]; CrossFilter: <Test-Run> status[\"PASS\"]", "primary": "Task"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[compileResponse](t, rec)
	assert.Equal(t,
		`SELECT * FROM "tasks" JOIN "test_runs" AS "joined_table_1" ON "tasks"."id" = "joined_table_1"."id" `+
			`WHERE "tasks"."status" = $1 AND "joined_table_1"."status" = $2`,
		body.SQL)
	assert.Equal(t, []any{"Open", "PASS"}, body.Args)
	assert.Contains(t, body.Inline, `"tasks"."status" = 'Open'`)
	assert.Equal(t, "postgres", body.Dialect)
	assert.Empty(t, body.Optimizations)
}

func TestCompile_OptimizationOverride(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(h.Compile, http.MethodPost, "/v1/compile",
		`{"filter": "Filter: s[\"a\" OR \"b\"]", "primary": "Task", "optimization": {"max_or_conditions_for_in": 2, "max_in_values": 10}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[compileResponse](t, rec)
	assert.Equal(t, `SELECT * FROM "tasks" WHERE "tasks"."s" IN ($1, $2)`, body.SQL)
	require.Len(t, body.Optimizations, 1)
	assert.Equal(t, compiler.KindOrToIn, body.Optimizations[0].Kind)
	assert.Equal(t, "tasks.s", body.Optimizations[0].Field)
}

func TestCompile_Errors(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"invalid json", `{"filter": `, http.StatusBadRequest, "INVALID_JSON"},
		{"unknown field", `{"filter": "Filter: a[1]", "primary": "Task", "dialect": "mysql"}`, http.StatusBadRequest, "INVALID_JSON"},
		{"parse error", `{"filter": "Filter: status[\"Open\"", "primary": "Task"}`, http.StatusBadRequest, "PARSE_ERROR"},
		{"missing primary", `{"filter": "Filter: a[1]"}`, http.StatusUnprocessableEntity, "COMPILE_ERROR"},
		{"invalid config", `{"filter": "Filter: a[1]", "primary": "Task", "optimization": {"max_in_values": 0}}`, http.StatusBadRequest, "INVALID_CONFIG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h.Compile, http.MethodPost, "/v1/compile", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode[errorResponse](t, rec).Code)
		})
	}
}

func TestCompile_ParseErrorSpan(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(h.Compile, http.MethodPost, "/v1/compile", `{"filter": "Filter: status[!\"x\"]", "primary": "Task"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode[errorResponse](t, rec)
	require.NotNil(t, body.Span)
	assert.Equal(t, 15, body.Span.Start)
	assert.Equal(t, 16, body.Span.End)
	assert.Equal(t, 1, body.Line)
	assert.Equal(t, 16, body.Col)

	rec = do(h.Compile, http.MethodPost, "/v1/compile", `{"filter": "Filtr: a[1]", "primary": "Task"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "did you mean 'Filter:'?", decode[errorResponse](t, rec).Suggestion)
}

func TestCompileBatch(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(h.CompileBatch, http.MethodPost, "/v1/compile/batch",
		`{"filter": "Filter: id[IN (1, 2, 3)]", "primary": "Task", "batch": {"max_batch_size": 2, "enable_batch_processing": true}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[batchResponse](t, rec)
	require.Len(t, body.Statements, 2)
	assert.Equal(t, `SELECT * FROM "tasks" WHERE "tasks"."id" IN ($1, $2)`, body.Statements[0].SQL)
	assert.Equal(t, []any{float64(1), float64(2)}, body.Statements[0].Args)
	assert.Equal(t, `SELECT * FROM "tasks" WHERE "tasks"."id" IN (3)`, body.Statements[1].Inline)
	require.NotNil(t, body.EstimatedRows)
	assert.Equal(t, 4, *body.EstimatedRows)
	require.Len(t, body.Optimizations, 1)
	assert.Equal(t, compiler.KindInToUnion, body.Optimizations[0].Kind)
}

func TestCompile_PartialOverridesKeepDefaults(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(h.Compile, http.MethodPost, "/v1/compile",
		`{"filter": "Filter: s[\"a\" OR \"b\"]", "primary": "Task", "optimization": {"max_in_values": 1000}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[compileResponse](t, rec)
	assert.Equal(t, `SELECT * FROM "tasks" WHERE "tasks"."s" = $1 OR "tasks"."s" = $2`, body.SQL)
	assert.Empty(t, body.Optimizations)

	values := make([]string, 600)
	for i := range values {
		values[i] = strconv.Itoa(i + 1)
	}
	filter := "Filter: id[IN (" + strings.Join(values, ", ") + ")]"
	rec = do(h.CompileBatch, http.MethodPost, "/v1/compile/batch",
		`{"filter": "`+filter+`", "primary": "Task", "batch": {"max_batch_size": 100}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	batch := decode[batchResponse](t, rec)
	require.Len(t, batch.Statements, 6)
	assert.Len(t, batch.Statements[5].Args, 100)
	require.NotNil(t, batch.EstimatedRows)
	assert.Equal(t, 600, *batch.EstimatedRows)

	rec = do(h.CompileBatch, http.MethodPost, "/v1/compile/batch",
		`{"filter": "Filter: id[IN (1, 2, 3)]", "primary": "Task", "batch": {"enable_batch_processing": false}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[batchResponse](t, rec).Statements, 1)
}

func TestParse(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(h.Parse, http.MethodPost, "/v1/parse",
		`{"filter": "filter: a[ 1 ]; b[\"x\" or \"y\"]; crossfilter: <Test-Run> c[is null]"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[parseResponse](t, rec)
	assert.Equal(t, `Filter: a[1]; b["x" OR "y"]; CrossFilter: <Test-Run> c[IS NULL]`, body.Canonical)
	assert.Equal(t, []filterResponse{{"a", "1"}, {"b", `"x" OR "y"`}}, body.BaseFilters)
	require.Len(t, body.CrossFilters, 1)
	assert.Equal(t, "Test", body.CrossFilters[0].Source)
	assert.Equal(t, "Run", body.CrossFilters[0].Target)
	assert.Equal(t, []filterResponse{{"c", "IS NULL"}}, body.CrossFilters[0].Filters)
}

func TestStatsAndHistory(t *testing.T) {
	h, store := newTestHandler(t)

	do(h.Compile, http.MethodPost, "/v1/compile", `{"filter": "Filter: a[1]", "primary": "Task"}`)
	do(h.Compile, http.MethodPost, "/v1/compile", `{"filter": "Filter: a[", "primary": "Task"}`)
	do(h.Compile, http.MethodPost, "/v1/compile", `{"filter": "Filter: a[1]", "primary": "Run"}`)
	assert.Equal(t, 3, store.Len())

	rec := do(h.Stats, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[eventbus.Stats](t, rec)
	assert.Equal(t, 2, stats.Compiled)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, map[string]int{"parse": 1}, stats.RejectedBy)

	rec = do(h.History, http.MethodGet, "/v1/history?primary=Task", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Entries    []history.Entry `json:"entries"`
		NextCursor string          `json:"next_cursor"`
		TotalCount int             `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.TotalCount)
	for _, e := range page.Entries {
		assert.Equal(t, "Task", e.Primary)
		assert.Equal(t, "http", e.Source)
	}

	rec = do(h.History, http.MethodGet, "/v1/history?type=filter_rejected", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "parse", page.Entries[0].Stage)

	rec = do(h.History, http.MethodGet, "/v1/history?cursor=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptionalEndpoints(t *testing.T) {
	eng, err := engine.New()
	require.NoError(t, err)
	h := NewCompileHandler(eng, nil, nil, nil)

	assert.Equal(t, http.StatusNotFound, do(h.Stats, http.MethodGet, "/v1/stats", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h.History, http.MethodGet, "/v1/history", "").Code)

	rec := do(h.Health, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","dialect":"postgres"}`, rec.Body.String())
}

func TestRecovery(t *testing.T) {
	h := Recovery(hclog.NewNullLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decode[errorResponse](t, rec).Code)
}
