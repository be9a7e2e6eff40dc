package planner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/reportfilter/internal/compiler"
	"github.com/matthewbaird/reportfilter/internal/fql"
)

// fakeCompiler renders each query as its canonical FQL text.
type fakeCompiler struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (f *fakeCompiler) Name() string { return "fake" }

func (f *fakeCompiler) Compile(q *fql.Query, primary string) (*compiler.CompileResult, error) {
	text := q.String()
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, &compiler.CompileError{Message: "cannot compile " + text}
	}
	return &compiler.CompileResult{SQL: primary + ": " + text}, nil
}

func parse(t *testing.T, input string) *fql.Query {
	t.Helper()
	q, err := fql.Parse(input)
	require.NoError(t, err, "parse error for: %s", input)
	return q
}

func newPlanner(t *testing.T, c compiler.QueryCompiler, cfg BatchConfig) *Planner {
	t.Helper()
	p, err := New(c, WithBatchConfig(cfg))
	require.NoError(t, err)
	return p
}

func sqlCompiler(t *testing.T) *compiler.SQLCompiler {
	t.Helper()
	c, err := compiler.New()
	require.NoError(t, err)
	return c
}

func statementSQL(res *BatchResult) []string {
	out := make([]string, len(res.Statements))
	for i, s := range res.Statements {
		out[i] = s.SQL
	}
	return out
}

func TestPlanner_NoOversizedList(t *testing.T) {
	p := newPlanner(t, &fakeCompiler{}, BatchConfig{MaxBatchSize: 2, EnableBatchProcessing: true})

	res, err := p.CompileBatch(context.Background(), parse(t, `Filter: n[IN (1, 2)]`), "Task")
	require.NoError(t, err)
	assert.Equal(t, []string{"Task: Filter: n[IN (1, 2)]"}, statementSQL(res))
	assert.Nil(t, res.EstimatedRows)
	assert.Empty(t, res.Optimizations)
}

func TestPlanner_DisabledMatchesSingleStatement(t *testing.T) {
	c := sqlCompiler(t)
	q := parse(t, `Filter: s["a" OR "b" OR "c" OR "d" OR "e"]; n[IN (1, 2, 3, 4, 5)]`)

	single, err := c.Compile(q, "Task")
	require.NoError(t, err)

	p := newPlanner(t, c, BatchConfig{MaxBatchSize: 2, EnableBatchProcessing: false})
	res, err := p.CompileBatch(context.Background(), q, "Task")
	require.NoError(t, err)

	require.Len(t, res.Statements, 1)
	assert.Equal(t, single.SQL, res.Statements[0].SQL)
	assert.Equal(t, single.Args, res.Statements[0].Args)
	assert.Equal(t, single.Optimizations, res.Optimizations)
	assert.Nil(t, res.EstimatedRows)
}

func TestPlanner_SplitsOversizedList(t *testing.T) {
	p := newPlanner(t, sqlCompiler(t), BatchConfig{MaxBatchSize: 2, EnableBatchProcessing: true})

	res, err := p.CompileBatch(context.Background(), parse(t, `Filter: n[IN (1, 2, 3, 4, 5)]`), "Task")
	require.NoError(t, err)

	assert.Equal(t, []Statement{
		{SQL: `SELECT * FROM "task" WHERE "task"."n" IN ($1, $2)`, Args: []any{int64(1), int64(2)}},
		{SQL: `SELECT * FROM "task" WHERE "task"."n" IN ($1, $2)`, Args: []any{int64(3), int64(4)}},
		{SQL: `SELECT * FROM "task" WHERE "task"."n" IN ($1)`, Args: []any{int64(5)}},
	}, res.Statements)
	assert.Equal(t, []compiler.Optimization{compiler.InToUnion(BatchProcessingField, 3, 3)}, res.Optimizations)
	require.NotNil(t, res.EstimatedRows)
	assert.Equal(t, 6, *res.EstimatedRows)

	assert.Equal(t, []string{
		`SELECT * FROM "task" WHERE "task"."n" IN (1, 2)`,
		`SELECT * FROM "task" WHERE "task"."n" IN (3, 4)`,
		`SELECT * FROM "task" WHERE "task"."n" IN (5)`,
	}, res.Inline())
}

func TestPlanner_MergesChunkLogs(t *testing.T) {
	p := newPlanner(t, sqlCompiler(t), BatchConfig{MaxBatchSize: 2, EnableBatchProcessing: true})

	q := parse(t, `Filter: s["a" OR "b" OR "c" OR "d" OR "e"]; n[IN (1, 2, 3)]`)
	res, err := p.CompileBatch(context.Background(), q, "Task")
	require.NoError(t, err)

	assert.Len(t, res.Statements, 2)
	assert.Equal(t, []compiler.Optimization{
		compiler.OrToIn("task.s", 5),
		compiler.OrToIn("task.s", 5),
		compiler.InToUnion(BatchProcessingField, 2, 2),
	}, res.Optimizations)
}

func TestPlanner_ScanOrder(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:  "only the first oversized list is split",
			input: `Filter: a[IN (1, 2, 3)]; b[IN (4, 5, 6)]`,
			expected: []string{
				"Task: Filter: a[IN (1, 2)]; b[IN (4, 5, 6)]",
				"Task: Filter: a[IN (3)]; b[IN (4, 5, 6)]",
			},
		},
		{
			name:  "cross filters are scanned after base filters",
			input: `Filter: a[1]; CrossFilter: <A-B> c[IN (1, 2, 3)]`,
			expected: []string{
				"Task: Filter: a[1]; CrossFilter: <A-B> c[IN (1, 2)]",
				"Task: Filter: a[1]; CrossFilter: <A-B> c[IN (3)]",
			},
		},
		{
			name:  "nested lists are found",
			input: `Filter: a[NOT IN (1, 2, 3) AND >0]`,
			expected: []string{
				"Task: Filter: a[NOT IN (1, 2) AND >0]",
				"Task: Filter: a[NOT IN (3) AND >0]",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlanner(t, &fakeCompiler{}, BatchConfig{MaxBatchSize: 2, EnableBatchProcessing: true})
			res, err := p.CompileBatch(context.Background(), parse(t, tt.input), "Task")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, statementSQL(res))
		})
	}
}

func TestPlanner_DoesNotMutateQuery(t *testing.T) {
	q := parse(t, `Filter: a[IN (1, 2, 3, 4)]; CrossFilter: <A-B> b[IN (5, 6)]`)
	before := q.String()

	p := newPlanner(t, &fakeCompiler{}, BatchConfig{MaxBatchSize: 1, EnableBatchProcessing: true})
	_, err := p.CompileBatch(context.Background(), q, "Task")
	require.NoError(t, err)

	assert.Equal(t, before, q.String())
	assert.Len(t, q.BaseFilters[0].Condition.(*fql.In).Values, 4)
}

func TestPlanner_OrderIndependentOfCompletion(t *testing.T) {
	values := make([]string, 20)
	expected := make([]string, 20)
	for i := range values {
		values[i] = fmt.Sprint(i + 1)
		expected[i] = fmt.Sprintf("Task: Filter: n[IN (%d)]", i+1)
	}

	p, err := New(&fakeCompiler{}, WithBatchConfig(BatchConfig{MaxBatchSize: 1, EnableBatchProcessing: true}), WithParallelism(4))
	require.NoError(t, err)

	res, err := p.CompileBatch(context.Background(), parse(t, "Filter: n[IN ("+strings.Join(values, ", ")+")]"), "Task")
	require.NoError(t, err)
	assert.Equal(t, expected, statementSQL(res))
	assert.Equal(t, 20, *res.EstimatedRows)
}

func TestPlanner_ChunkFailureDiscardsBatch(t *testing.T) {
	fc := &fakeCompiler{failOn: "IN (3)"}
	p := newPlanner(t, fc, BatchConfig{MaxBatchSize: 1, EnableBatchProcessing: true})

	res, err := p.CompileBatch(context.Background(), parse(t, `Filter: n[IN (1, 2, 3, 4)]`), "Task")
	require.Error(t, err)
	assert.Nil(t, res)

	var cerr *compiler.CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "batch 3 of 4")
}

func TestPlanner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPlanner(t, &fakeCompiler{}, BatchConfig{MaxBatchSize: 1, EnableBatchProcessing: true})
	_, err := p.CompileBatch(ctx, parse(t, `Filter: n[IN (1, 2, 3)]`), "Task")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(&fakeCompiler{}, WithBatchConfig(BatchConfig{MaxBatchSize: 0, EnableBatchProcessing: true}))
	assert.ErrorIs(t, err, ErrInvalidBatchConfig)

	_, err = New(&fakeCompiler{}, WithBatchConfig(BatchConfig{MaxBatchSize: 0, EnableBatchProcessing: false}))
	assert.NoError(t, err)

	_, err = New(nil)
	assert.ErrorIs(t, err, ErrInvalidBatchConfig)

	p, err := New(&fakeCompiler{}, WithParallelism(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchConfig(), p.Config())
}
