package compiler

import (
	"strings"
	"testing"

	"entgo.io/ent/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/reportfilter/internal/fql"
)

var testMapper = TableMapperFunc(func(entity string) string {
	if entity == "Run" {
		return "test_runs"
	}
	return strings.ToLower(entity)
})

func newCompiler(t *testing.T, opts ...Option) *SQLCompiler {
	t.Helper()
	c, err := New(append([]Option{WithTableMapper(testMapper)}, opts...)...)
	require.NoError(t, err)
	return c
}

func compile(t *testing.T, c QueryCompiler, input string) *CompileResult {
	t.Helper()
	q, err := fql.Parse(input)
	require.NoError(t, err, "parse error for: %s", input)
	res, err := c.Compile(q, "Task")
	require.NoError(t, err, "compile error for: %s", input)
	return res
}

func TestCompile_SimpleEquality(t *testing.T) {
	res := compile(t, newCompiler(t), `Filter: status["Open"]`)

	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."status" = $1`, res.SQL)
	assert.Equal(t, []any{"Open"}, res.Args)
	assert.Empty(t, res.Optimizations)
	assert.Equal(t, dialect.Postgres, res.Dialect)
}

func TestCompile_NoFilters(t *testing.T) {
	res := compile(t, newCompiler(t), ``)
	assert.Equal(t, `SELECT * FROM "task"`, res.SQL)
	assert.Empty(t, res.Args)
}

func TestCompile_BaseAndCrossFilters(t *testing.T) {
	res := compile(t, newCompiler(t), `Filter: status["Open"]; priority[>2]; CrossFilter: <Test-Run> status["PASS"]`)

	assert.Equal(t,
		`SELECT * FROM "task" JOIN "test_runs" AS "joined_table_1" ON "task"."id" = "joined_table_1"."id" `+
			`WHERE ("task"."status" = $1 AND "task"."priority" > $2) AND "joined_table_1"."status" = $3`,
		res.SQL)
	assert.Equal(t, []any{"Open", int64(2), "PASS"}, res.Args)
	assert.Empty(t, res.Optimizations)
}

func TestCompile_CrossFilterAliasesFollowPosition(t *testing.T) {
	res := compile(t, newCompiler(t), `CrossFilter: <Test-Run> status["PASS"]; CrossFilter: <Task-Project> name["X"]`)

	assert.Equal(t,
		`SELECT * FROM "task" JOIN "test_runs" AS "joined_table_1" ON "task"."id" = "joined_table_1"."id" `+
			`JOIN "project" AS "joined_table_2" ON "task"."id" = "joined_table_2"."id" `+
			`WHERE "joined_table_1"."status" = $1 AND "joined_table_2"."name" = $2`,
		res.SQL)
	assert.Equal(t, []any{"PASS", "X"}, res.Args)
}

func TestCompile_OrParenthesisedUnderAnd(t *testing.T) {
	res := compile(t, newCompiler(t), `Filter: status["Open" OR "Closed"]; CrossFilter: <Test-Run> status["PASS"]`)

	assert.Equal(t,
		`SELECT * FROM "task" JOIN "test_runs" AS "joined_table_1" ON "task"."id" = "joined_table_1"."id" `+
			`WHERE ("task"."status" = $1 OR "task"."status" = $2) AND "joined_table_1"."status" = $3`,
		res.SQL)
}

func TestCompile_OrToIn(t *testing.T) {
	input := `Filter: status["Open" OR "Pending" OR "Review" OR "Approved" OR "Testing"]`

	res := compile(t, newCompiler(t), input)
	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."status" IN ($1, $2, $3, $4, $5)`, res.SQL)
	assert.Equal(t, []any{"Open", "Pending", "Review", "Approved", "Testing"}, res.Args)
	assert.Equal(t, []Optimization{OrToIn("task.status", 5)}, res.Optimizations)

	strict := newCompiler(t, WithOptimizationConfig(OptimizationConfig{MaxOrConditionsForIn: 6, MaxInValues: 1000}))
	res = compile(t, strict, input)
	assert.Equal(t,
		`SELECT * FROM "task" WHERE ((("task"."status" = $1 OR "task"."status" = $2) OR "task"."status" = $3) `+
			`OR "task"."status" = $4) OR "task"."status" = $5`,
		res.SQL)
	assert.Empty(t, res.Optimizations)
}

func TestCompile_OrToInThroughGroups(t *testing.T) {
	res := compile(t, newCompiler(t), `Filter: s[("a" OR "b") OR ("c" OR ("d" OR "e"))]`)
	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."s" IN ($1, $2, $3, $4, $5)`, res.SQL)
	assert.Equal(t, []any{"a", "b", "c", "d", "e"}, res.Args)
	assert.Equal(t, []Optimization{OrToIn("task.s", 5)}, res.Optimizations)
}

func TestCompile_OrToInAllOrNothing(t *testing.T) {
	// The NOT sits in every Or node's chain, so no node qualifies.
	res := compile(t, newCompiler(t), `Filter: a[NOT 6 OR 1 OR 2 OR 3 OR 4 OR 5]`)
	assert.Empty(t, res.Optimizations)
	assert.NotContains(t, res.SQL, " IN ")

	// A trailing non-equality blocks the outer Or only; the inner chain of
	// five still folds.
	res = compile(t, newCompiler(t), `Filter: a[1 OR 2 OR 3 OR 4 OR 5 OR NOT 6]`)
	assert.Equal(t,
		`SELECT * FROM "task" WHERE "task"."a" IN ($1, $2, $3, $4, $5) OR (NOT ("task"."a" = $6))`,
		res.SQL)
	assert.Equal(t, []Optimization{OrToIn("task.a", 5)}, res.Optimizations)

	// Equalities after the break are not a subtree of their own.
	res = compile(t, newCompiler(t), `Filter: a[1 OR 2 OR NOT 3 OR 4 OR 5 OR 6]`)
	assert.Empty(t, res.Optimizations)

	// Non-equality comparisons never fold.
	res = compile(t, newCompiler(t), `Filter: a[>1 OR >2 OR >3 OR >4 OR >5]`)
	assert.Empty(t, res.Optimizations)
}

func TestCompile_InToUnion(t *testing.T) {
	vals := make([]string, 1500)
	for i := range vals {
		vals[i] = "\"v\""
	}
	res := compile(t, newCompiler(t), `Filter: id[IN (`+strings.Join(vals, ", ")+`)]`)

	assert.Equal(t, []Optimization{InToUnion("task.id", 1500, 2)}, res.Optimizations)
	assert.Len(t, res.Args, 1500)
	assert.True(t, strings.HasPrefix(res.SQL, `SELECT * FROM "task" WHERE "task"."id" IN ($1, $2, `), res.SQL[:80])
	assert.Contains(t, res.SQL, `$1000) OR "task"."id" IN ($1001, `)
	assert.True(t, strings.HasSuffix(res.SQL, `$1500)`))
}

func TestCompile_InToUnionChunkCount(t *testing.T) {
	c := newCompiler(t, WithOptimizationConfig(OptimizationConfig{MaxOrConditionsForIn: 5, MaxInValues: 2}))

	res := compile(t, c, `Filter: n[IN (1, 2, 3, 4, 5)]`)
	assert.Equal(t, []Optimization{InToUnion("task.n", 5, 3)}, res.Optimizations)
	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."n" IN ($1, $2) OR "task"."n" IN ($3, $4) OR "task"."n" IN ($5)`, res.SQL)

	res = compile(t, c, `Filter: n[IN (1, 2)]`)
	assert.Empty(t, res.Optimizations)
	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."n" IN ($1, $2)`, res.SQL)
}

func TestCompile_FoldedInIsNotSplit(t *testing.T) {
	c := newCompiler(t, WithOptimizationConfig(OptimizationConfig{MaxOrConditionsForIn: 2, MaxInValues: 2}))
	res := compile(t, c, `Filter: n[1 OR 2 OR 3]`)
	assert.Equal(t, []Optimization{OrToIn("task.n", 3)}, res.Optimizations)
	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."n" IN ($1, $2, $3)`, res.SQL)
}

func TestCompile_DoubleNegationKept(t *testing.T) {
	res := compile(t, newCompiler(t), `Filter: status[NOT NOT "Open"]`)
	assert.Equal(t, `SELECT * FROM "task" WHERE NOT (NOT ("task"."status" = $1))`, res.SQL)
	assert.Empty(t, res.Optimizations)
}

func TestCompile_NullChecksAndEmptyIn(t *testing.T) {
	res := compile(t, newCompiler(t), `Filter: owner[IS NULL]; reviewer[IS NOT NULL]`)
	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."owner" IS NULL AND "task"."reviewer" IS NOT NULL`, res.SQL)
	assert.Empty(t, res.Args)

	res = compile(t, newCompiler(t), `Filter: a[IN ()]`)
	assert.Equal(t, `SELECT * FROM "task" WHERE FALSE`, res.SQL)
}

func TestCompile_Operators(t *testing.T) {
	res := compile(t, newCompiler(t), `Filter: a[!=1]; b[<2]; c[>=3]; d[<=4]; e[=5]`)
	assert.Equal(t,
		`SELECT * FROM "task" WHERE "task"."a" <> $1 AND "task"."b" < $2 AND "task"."c" >= $3 AND "task"."d" <= $4 AND "task"."e" = $5`,
		res.SQL)
	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4), int64(5)}, res.Args)
}

func TestCompile_DateAndUserLiterals(t *testing.T) {
	input := `Filter: due[>today]; closed[<yesterday]; start[<=tomorrow]`

	tests := []struct {
		dialect  string
		expected string
	}{
		{
			dialect.Postgres,
			`SELECT * FROM "task" WHERE "task"."due" > CURRENT_DATE AND "task"."closed" < CURRENT_DATE - INTERVAL '1 day' ` +
				`AND "task"."start" <= CURRENT_DATE + INTERVAL '1 day'`,
		},
		{
			dialect.MySQL,
			"SELECT * FROM `task` WHERE `task`.`due` > CURRENT_DATE AND `task`.`closed` < CURRENT_DATE - INTERVAL 1 DAY " +
				"AND `task`.`start` <= CURRENT_DATE + INTERVAL 1 DAY",
		},
		{
			dialect.SQLite,
			"SELECT * FROM `task` WHERE `task`.`due` > DATE('now') AND `task`.`closed` < DATE('now', '-1 day') " +
				"AND `task`.`start` <= DATE('now', '+1 day')",
		},
	}

	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			res := compile(t, newCompiler(t, WithDialect(tt.dialect)), input)
			assert.Equal(t, tt.expected, res.SQL)
			assert.Empty(t, res.Args)
		})
	}

	res := compile(t, newCompiler(t), `Filter: assignee[!=current_user]`)
	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."assignee" <> CURRENT_USER`, res.SQL)

	// Resolved date text is bound as a plain value.
	q := &fql.Query{BaseFilters: []fql.FieldFilter{{
		Field:     "due",
		Condition: &fql.Comparison{Op: fql.CompEQ, Value: fql.DateLit("2024-03-01")},
	}}}
	res, err := newCompiler(t).Compile(q, "Task")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "task" WHERE "task"."due" = $1`, res.SQL)
	assert.Equal(t, []any{"2024-03-01"}, res.Args)
}

func TestCompile_CurrentUserUnsupportedOnSQLite(t *testing.T) {
	q, err := fql.Parse(`Filter: owner[current_user]`)
	require.NoError(t, err)

	_, err = newCompiler(t, WithDialect(dialect.SQLite)).Compile(q, "Task")
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Message, "current_user")
}

func TestCompile_MySQLPlaceholders(t *testing.T) {
	res := compile(t, newCompiler(t, WithDialect(dialect.MySQL)), `Filter: status["Open"]; priority[>2]`)
	assert.Equal(t, "SELECT * FROM `task` WHERE `task`.`status` = ? AND `task`.`priority` > ?", res.SQL)
	assert.Equal(t, []any{"Open", int64(2)}, res.Args)
}

func TestCompile_Errors(t *testing.T) {
	c := newCompiler(t)

	_, err := c.Compile(nil, "Task")
	assert.Error(t, err)

	_, err = c.Compile(&fql.Query{}, "")
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "primary entity is required", cerr.Message)

	_, err = c.Compile(&fql.Query{BaseFilters: []fql.FieldFilter{{Field: "a"}}}, "Task")
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Message, "task.a")
}

func TestCompile_Deterministic(t *testing.T) {
	c := newCompiler(t)
	q, err := fql.Parse(`Filter: status["a" OR "b" OR "c" OR "d" OR "e"]; CrossFilter: <Test-Run> n[IN (1, 2)]`)
	require.NoError(t, err)

	first, err := c.Compile(q, "Task")
	require.NoError(t, err)
	second, err := c.Compile(q, "Task")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(WithDialect("oracle"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithOptimizationConfig(OptimizationConfig{MaxOrConditionsForIn: 5, MaxInValues: 0}))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithOptimizationConfig(OptimizationConfig{MaxOrConditionsForIn: -1, MaxInValues: 10}))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, dialect.Postgres, c.Name())
	assert.Equal(t, DefaultOptimizationConfig(), c.OptimizationConfig())
}

func TestWithOptimization_DerivesCopy(t *testing.T) {
	c := newCompiler(t)
	derived, err := c.WithOptimization(OptimizationConfig{MaxOrConditionsForIn: 2, MaxInValues: 10})
	require.NoError(t, err)

	assert.Equal(t, DefaultOptimizationConfig(), c.OptimizationConfig())
	res := compile(t, derived, `Filter: s["a" OR "b"]`)
	assert.Equal(t, []Optimization{OrToIn("task.s", 2)}, res.Optimizations)

	_, err = c.WithOptimization(OptimizationConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOptimization_String(t *testing.T) {
	assert.Equal(t, "OrToIn{field: task.status, value_count: 5}", OrToIn("task.status", 5).String())
	assert.Equal(t, "InToUnion{field: task.id, total_values: 1500, union_count: 2}", InToUnion("task.id", 1500, 2).String())
	assert.Equal(t, "condition_simplification", Optimization{Kind: KindConditionSimplification}.String())
}
