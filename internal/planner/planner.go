package planner

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/reportfilter/internal/compiler"
	"github.com/matthewbaird/reportfilter/internal/fql"
)

// BatchCompiler compiles a query into one or more statements.
type BatchCompiler interface {
	CompileBatch(ctx context.Context, q *fql.Query, primary string) (*BatchResult, error)
}

// Planner is the default BatchCompiler. Only the first oversized IN list of
// a query is split; other lists are compiled unchanged into every statement.
type Planner struct {
	compiler    compiler.QueryCompiler
	cfg         BatchConfig
	parallelism int
	logger      hclog.Logger
}

var _ BatchCompiler = (*Planner)(nil)

// Option configures a Planner.
type Option func(*Planner)

// WithBatchConfig sets the batching thresholds.
func WithBatchConfig(cfg BatchConfig) Option {
	return func(p *Planner) { p.cfg = cfg }
}

// WithParallelism bounds how many chunks compile concurrently.
func WithParallelism(n int) Option {
	return func(p *Planner) { p.parallelism = n }
}

// WithLogger sets the planner's logger.
func WithLogger(l hclog.Logger) Option {
	return func(p *Planner) { p.logger = l }
}

// New creates a planner compiling through c.
func New(c compiler.QueryCompiler, opts ...Option) (*Planner, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: compiler is required", ErrInvalidBatchConfig)
	}
	p := &Planner{
		compiler:    c,
		cfg:         DefaultBatchConfig(),
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	if p.parallelism < 1 {
		p.parallelism = 1
	}
	if p.logger == nil {
		p.logger = hclog.NewNullLogger()
	}
	p.logger = p.logger.Named("planner")
	return p, nil
}

// Config returns the planner's batch configuration.
func (p *Planner) Config() BatchConfig { return p.cfg }

// CompileBatch compiles q. When batching is disabled or no IN list exceeds
// MaxBatchSize the result is the single statement Compile would produce.
// Otherwise one statement is produced per chunk of the first oversized list.
// Any chunk failure fails the whole call and no statements are returned.
func (p *Planner) CompileBatch(ctx context.Context, q *fql.Query, primary string) (*BatchResult, error) {
	if q == nil {
		return nil, &compiler.CompileError{Message: "nil query"}
	}

	tgt, found := target{}, false
	if p.cfg.EnableBatchProcessing {
		tgt, found = findOversized(q, p.cfg.MaxBatchSize)
	}
	if !found {
		res, err := p.compiler.Compile(q, primary)
		if err != nil {
			return nil, err
		}
		return singleStatement(res), nil
	}

	chunks := chunk(tgt.node.Values, p.cfg.MaxBatchSize)
	p.logger.Debug("splitting oversized IN list", "field", tgt.field,
		"values", len(tgt.node.Values), "statements", len(chunks), "max_batch_size", p.cfg.MaxBatchSize)

	results := make([]*compiler.CompileResult, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, values := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.compiler.Compile(withValues(q, tgt.node, values), primary)
			if err != nil {
				return fmt.Errorf("batch %d of %d: %w", i+1, len(chunks), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Debug("batch compile failed", "field", tgt.field, "error", err)
		return nil, err
	}

	out := &BatchResult{
		Statements: make([]Statement, len(results)),
		Dialect:    results[0].Dialect,
	}
	for i, res := range results {
		out.Statements[i] = Statement{SQL: res.SQL, Args: res.Args}
		out.Optimizations = append(out.Optimizations, res.Optimizations...)
	}
	n := len(results)
	out.Optimizations = append(out.Optimizations, compiler.InToUnion(BatchProcessingField, n, n))
	estimated := n * p.cfg.MaxBatchSize
	out.EstimatedRows = &estimated
	return out, nil
}
