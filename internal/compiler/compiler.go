// Package compiler translates parsed FQL queries into SQL statements.
//
// Each field filter's condition tree is compiled into an ent predicate in a
// single bottom-up pass. Rewrite rules (OR chains folded into IN, oversized
// IN lists split into OR-ed chunks) are applied during that pass and every
// applied rewrite is reported in the result's optimization log. The compiled
// predicates are then assembled into one SELECT statement with one JOIN per
// cross filter.
package compiler

import (
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
	"github.com/hashicorp/go-hclog"

	"github.com/matthewbaird/reportfilter/internal/fql"
)

// QueryCompiler compiles a parsed query for a primary entity into one statement.
type QueryCompiler interface {
	Name() string
	Compile(q *fql.Query, primary string) (*CompileResult, error)
}

// Optimizer is implemented by compilers whose rewrite thresholds can be
// changed for a single call. WithOptimization returns a derived compiler and
// leaves the receiver untouched.
type Optimizer interface {
	OptimizationConfig() OptimizationConfig
	WithOptimization(cfg OptimizationConfig) (QueryCompiler, error)
}

// TableMapper resolves an entity name to a table name. It must be total.
type TableMapper interface {
	TableName(entity string) string
}

// TableMapperFunc adapts a function to the TableMapper interface.
type TableMapperFunc func(entity string) string

// TableName calls f(entity).
func (f TableMapperFunc) TableName(entity string) string { return f(entity) }

// LowerCase maps every entity to its lower-cased name.
var LowerCase TableMapper = TableMapperFunc(strings.ToLower)

// Dialects lists the SQL dialects the compiler can render.
var Dialects = []string{dialect.Postgres, dialect.MySQL, dialect.SQLite}

// SQLCompiler is the default QueryCompiler. It is immutable after
// construction and safe for concurrent use.
type SQLCompiler struct {
	dialect string
	mapper  TableMapper
	cfg     OptimizationConfig
	logger  hclog.Logger
}

var (
	_ QueryCompiler = (*SQLCompiler)(nil)
	_ Optimizer     = (*SQLCompiler)(nil)
)

// Option configures an SQLCompiler.
type Option func(*SQLCompiler)

// WithDialect selects the SQL dialect (dialect.Postgres, dialect.MySQL or dialect.SQLite).
func WithDialect(name string) Option {
	return func(c *SQLCompiler) { c.dialect = name }
}

// WithTableMapper sets the entity-to-table resolver.
func WithTableMapper(m TableMapper) Option {
	return func(c *SQLCompiler) { c.mapper = m }
}

// WithOptimizationConfig sets the rewrite thresholds.
func WithOptimizationConfig(cfg OptimizationConfig) Option {
	return func(c *SQLCompiler) { c.cfg = cfg }
}

// WithLogger sets the logger used to trace applied rewrites.
func WithLogger(l hclog.Logger) Option {
	return func(c *SQLCompiler) { c.logger = l }
}

// New creates an SQLCompiler. Defaults: postgres, lower-case table names,
// DefaultOptimizationConfig and a null logger.
func New(opts ...Option) (*SQLCompiler, error) {
	c := &SQLCompiler{
		dialect: dialect.Postgres,
		mapper:  LowerCase,
		cfg:     DefaultOptimizationConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !isDialect(c.dialect) {
		return nil, fmt.Errorf("%w: unsupported dialect %q", ErrInvalidConfig, c.dialect)
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	if c.mapper == nil {
		c.mapper = LowerCase
	}
	if c.logger == nil {
		c.logger = hclog.NewNullLogger()
	}
	c.logger = c.logger.Named("compiler")
	return c, nil
}

// Name returns the dialect the compiler renders.
func (c *SQLCompiler) Name() string { return c.dialect }

// Dialect returns the dialect the compiler renders.
func (c *SQLCompiler) Dialect() string { return c.dialect }

// OptimizationConfig returns the compiler's rewrite thresholds.
func (c *SQLCompiler) OptimizationConfig() OptimizationConfig { return c.cfg }

// WithOptimization returns a copy of c using cfg.
func (c *SQLCompiler) WithOptimization(cfg OptimizationConfig) (QueryCompiler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	derived := *c
	derived.cfg = cfg
	return &derived, nil
}

// Compile compiles q into one SELECT statement over the primary entity's table.
func (c *SQLCompiler) Compile(q *fql.Query, primary string) (*CompileResult, error) {
	if q == nil {
		return nil, &CompileError{Message: "nil query"}
	}
	if primary == "" {
		return nil, &CompileError{Message: "primary entity is required"}
	}
	return c.assemble(q, primary)
}

func isDialect(name string) bool {
	for _, d := range Dialects {
		if d == name {
			return true
		}
	}
	return false
}
