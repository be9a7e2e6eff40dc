package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/reportfilter/internal/compiler"
	"github.com/matthewbaird/reportfilter/internal/event"
	"github.com/matthewbaird/reportfilter/internal/fql"
	"github.com/matthewbaird/reportfilter/internal/planner"
)

type recorded struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (r *recorded) Publish(_ context.Context, evt event.DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorded) payloads(t *testing.T) []event.CompilePayload {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.CompilePayload, len(r.events))
	for i, evt := range r.events {
		p, err := event.DecodeCompilePayload(evt)
		require.NoError(t, err)
		out[i] = p
	}
	return out
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *recorded) {
	t.Helper()
	rec := &recorded{}
	e, err := New(append([]Option{WithPublisher(rec)}, opts...)...)
	require.NoError(t, err)
	return e, rec
}

func TestEngine_Compile(t *testing.T) {
	e, rec := newEngine(t)

	res, err := e.Compile(context.Background(), Request{
		Filter:  `Filter: status["Open"]`,
		Primary: "Task",
		Source:  "cli",
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."status" = $1`, res.SQL)
	assert.Equal(t, []any{"Open"}, res.Args)
	assert.Equal(t, "postgres", e.Dialect())

	require.Len(t, rec.events, 1)
	assert.Equal(t, event.TypeFilterCompiled, rec.events[0].EventType)
	p := rec.payloads(t)[0]
	assert.Equal(t, "Task", p.Primary)
	assert.Equal(t, "cli", p.Source)
	assert.Equal(t, []string{res.SQL}, p.Statements)
}

func TestEngine_ParseErrorIsPublished(t *testing.T) {
	e, rec := newEngine(t)

	_, err := e.Compile(context.Background(), Request{Filter: `Filter: status[`, Primary: "Task"})
	var pe *fql.ParseError
	require.ErrorAs(t, err, &pe)
	assert.True(t, IsUserError(err))

	require.Len(t, rec.events, 1)
	assert.Equal(t, event.TypeFilterRejected, rec.events[0].EventType)
	p := rec.payloads(t)[0]
	assert.Equal(t, event.StageParse, p.Stage)
	assert.Equal(t, err.Error(), p.Error)
}

func TestEngine_CompileErrorIsPublished(t *testing.T) {
	e, rec := newEngine(t)

	_, err := e.Compile(context.Background(), Request{Filter: `Filter: status["Open"]`})
	var ce *compiler.CompileError
	require.ErrorAs(t, err, &ce)
	assert.True(t, IsUserError(err))

	require.Len(t, rec.events, 1)
	assert.Equal(t, event.StageCompile, rec.payloads(t)[0].Stage)
}

func TestEngine_OptimizationOverride(t *testing.T) {
	e, _ := newEngine(t)
	filter := `Filter: status["a" OR "b"]`

	res, err := e.Compile(context.Background(), Request{Filter: filter, Primary: "Task"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."status" = $1 OR "task"."status" = $2`, res.SQL)
	assert.Empty(t, res.Optimizations)

	res, err = e.Compile(context.Background(), Request{
		Filter:       filter,
		Primary:      "Task",
		Optimization: &compiler.OptimizationConfig{MaxOrConditionsForIn: 2, MaxInValues: 1000},
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."status" IN ($1, $2)`, res.SQL)
	require.Len(t, res.Optimizations, 1)
	assert.Equal(t, compiler.KindOrToIn, res.Optimizations[0].Kind)

	// The override does not leak into later calls.
	assert.Equal(t, compiler.DefaultOptimizationConfig(), e.OptimizationConfig())
}

func TestEngine_InvalidOverride(t *testing.T) {
	e, rec := newEngine(t)

	_, err := e.Compile(context.Background(), Request{
		Filter:       `Filter: a[1]`,
		Primary:      "Task",
		Optimization: &compiler.OptimizationConfig{MaxInValues: 0},
	})
	assert.ErrorIs(t, err, compiler.ErrInvalidConfig)
	assert.True(t, IsUserError(err))
	assert.Empty(t, rec.events)

	_, err = e.CompileBatch(context.Background(), Request{
		Filter:  `Filter: a[1]`,
		Primary: "Task",
		Batch:   &planner.BatchConfig{MaxBatchSize: 0, EnableBatchProcessing: true},
	})
	assert.ErrorIs(t, err, planner.ErrInvalidBatchConfig)
}

func TestEngine_CompileBatch(t *testing.T) {
	e, rec := newEngine(t)

	res, err := e.CompileBatch(context.Background(), Request{
		Filter:  `Filter: n[IN (1, 2, 3, 4, 5)]`,
		Primary: "Task",
		Batch:   &planner.BatchConfig{MaxBatchSize: 2, EnableBatchProcessing: true},
	})
	require.NoError(t, err)
	require.Len(t, res.Statements, 3)
	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."n" IN ($1, $2)`, res.Statements[0].SQL)
	assert.Equal(t, []any{int64(1), int64(2)}, res.Statements[0].Args)
	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."n" IN ($1)`, res.Statements[2].SQL)
	assert.Equal(t, []any{int64(5)}, res.Statements[2].Args)
	require.NotNil(t, res.EstimatedRows)
	assert.Equal(t, 6, *res.EstimatedRows)

	require.Len(t, rec.events, 1)
	assert.Equal(t, event.TypeFilterBatchCompiled, rec.events[0].EventType)
	assert.Len(t, rec.payloads(t)[0].Statements, 3)
}

func TestEngine_CompileBatchSingleStatement(t *testing.T) {
	e, rec := newEngine(t)

	res, err := e.CompileBatch(context.Background(), Request{Filter: `Filter: n[IN (1, 2)]`, Primary: "Task"})
	require.NoError(t, err)
	require.Len(t, res.Statements, 1)
	assert.Nil(t, res.EstimatedRows)

	require.Len(t, rec.events, 1)
	assert.Equal(t, event.TypeFilterCompiled, rec.events[0].EventType)
}

func TestEngine_CancelledContext(t *testing.T) {
	e, rec := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Compile(ctx, Request{Filter: `Filter: a[1]`, Primary: "Task"})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = e.CompileBatch(ctx, Request{Filter: `Filter: a[1]`, Primary: "Task"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsUserError(err))
	assert.Empty(t, rec.events)
}

func TestEngine_CustomCompiler(t *testing.T) {
	c, err := compiler.New(
		compiler.WithDialect("sqlite3"),
		compiler.WithTableMapper(compiler.TableMapperFunc(func(string) string { return "tasks" })),
	)
	require.NoError(t, err)
	e, _ := newEngine(t, WithCompiler(c))

	res, err := e.Compile(context.Background(), Request{Filter: `Filter: due[< today]`, Primary: "Task"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `tasks` WHERE `tasks`.`due` < DATE('now')", res.SQL)
	assert.Equal(t, "sqlite3", e.Dialect())
}

func TestEngine_Parse(t *testing.T) {
	e, rec := newEngine(t)
	q, err := e.Parse(`Filter: a[1]; CrossFilter: <Test-Run> b[IS NULL]`)
	require.NoError(t, err)
	assert.Len(t, q.BaseFilters, 1)
	assert.Len(t, q.CrossFilters, 1)
	assert.Empty(t, rec.events)
}

func TestIsUserError(t *testing.T) {
	assert.False(t, IsUserError(errors.New("disk full")))
	assert.True(t, IsUserError(&compiler.CompileError{Message: "x"}))
}
