// Package engine composes the parser, the SQL compiler and the batch planner
// into the single entry point used by the HTTP API, the REPL and the CLI.
// Every call publishes a compile event when a publisher is configured.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/matthewbaird/reportfilter/internal/compiler"
	"github.com/matthewbaird/reportfilter/internal/event"
	"github.com/matthewbaird/reportfilter/internal/fql"
	"github.com/matthewbaird/reportfilter/internal/planner"
)

// Request is one compile call. Nil overrides use the engine's defaults.
type Request struct {
	Filter       string
	Primary      string
	Source       string // "http", "repl", "cli"
	Optimization *compiler.OptimizationConfig
	Batch        *planner.BatchConfig
}

// Engine is safe for concurrent use.
type Engine struct {
	compiler    compiler.QueryCompiler
	batch       planner.BatchConfig
	parallelism int
	publisher   event.Publisher
	logger      hclog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCompiler sets the compiler. Optimization overrides require it to
// implement compiler.Optimizer.
func WithCompiler(c compiler.QueryCompiler) Option {
	return func(e *Engine) { e.compiler = c }
}

// WithBatchConfig sets the default batching thresholds.
func WithBatchConfig(cfg planner.BatchConfig) Option {
	return func(e *Engine) { e.batch = cfg }
}

// WithParallelism bounds concurrent chunk compilation in batch calls.
func WithParallelism(n int) Option {
	return func(e *Engine) { e.parallelism = n }
}

// WithPublisher sets where compile events are sent.
func WithPublisher(p event.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLogger sets the engine's logger.
func WithLogger(l hclog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine. Without WithCompiler a postgres SQLCompiler with
// lower-case table names is used.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		batch:       planner.DefaultBatchConfig(),
		parallelism: planner.DefaultParallelism,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = hclog.NewNullLogger()
	}
	if e.compiler == nil {
		c, err := compiler.New(compiler.WithLogger(e.logger))
		if err != nil {
			return nil, err
		}
		e.compiler = c
	}
	if err := e.batch.Validate(); err != nil {
		return nil, err
	}
	e.logger = e.logger.Named("engine")
	return e, nil
}

// Dialect returns the name of the configured compiler.
func (e *Engine) Dialect() string { return e.compiler.Name() }

// BatchConfig returns the default batching thresholds.
func (e *Engine) BatchConfig() planner.BatchConfig { return e.batch }

// OptimizationConfig returns the compiler's default rewrite thresholds, or
// the package defaults when the compiler does not expose them.
func (e *Engine) OptimizationConfig() compiler.OptimizationConfig {
	if o, ok := e.compiler.(compiler.Optimizer); ok {
		return o.OptimizationConfig()
	}
	return compiler.DefaultOptimizationConfig()
}

// Parse parses filter without compiling it.
func (e *Engine) Parse(filter string) (*fql.Query, error) {
	return fql.Parse(filter)
}

// Compile parses and compiles req into one statement.
func (e *Engine) Compile(ctx context.Context, req Request) (*compiler.CompileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	q, err := fql.Parse(req.Filter)
	if err != nil {
		e.reject(ctx, req, event.StageParse, err, start)
		return nil, err
	}
	c, err := e.compilerFor(req)
	if err != nil {
		return nil, err
	}
	res, err := c.Compile(q, req.Primary)
	if err != nil {
		e.reject(ctx, req, event.StageCompile, err, start)
		return nil, err
	}

	e.logger.Debug("compiled filter", "primary", req.Primary, "dialect", res.Dialect,
		"optimizations", len(res.Optimizations), "source", req.Source)
	e.publish(ctx, event.NewFilterCompiled(event.CompilePayload{
		Filter:        req.Filter,
		Primary:       req.Primary,
		Dialect:       res.Dialect,
		Source:        req.Source,
		Statements:    []string{res.SQL},
		Optimizations: res.Optimizations,
		Duration:      time.Since(start),
	}))
	return res, nil
}

// CompileBatch parses and compiles req, splitting an oversized IN list into
// several statements when batching is enabled.
func (e *Engine) CompileBatch(ctx context.Context, req Request) (*planner.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	q, err := fql.Parse(req.Filter)
	if err != nil {
		e.reject(ctx, req, event.StageParse, err, start)
		return nil, err
	}
	c, err := e.compilerFor(req)
	if err != nil {
		return nil, err
	}
	cfg := e.batch
	if req.Batch != nil {
		cfg = *req.Batch
	}
	p, err := planner.New(c,
		planner.WithBatchConfig(cfg),
		planner.WithParallelism(e.parallelism),
		planner.WithLogger(e.logger),
	)
	if err != nil {
		return nil, err
	}

	res, err := p.CompileBatch(ctx, q, req.Primary)
	if err != nil {
		if ctx.Err() == nil {
			e.reject(ctx, req, event.StageCompile, err, start)
		}
		return nil, err
	}

	statements := make([]string, len(res.Statements))
	for i, s := range res.Statements {
		statements[i] = s.SQL
	}
	payload := event.CompilePayload{
		Filter:        req.Filter,
		Primary:       req.Primary,
		Dialect:       res.Dialect,
		Source:        req.Source,
		Statements:    statements,
		Optimizations: res.Optimizations,
		Duration:      time.Since(start),
	}
	if len(statements) > 1 {
		e.publish(ctx, event.NewFilterBatchCompiled(payload))
	} else {
		e.publish(ctx, event.NewFilterCompiled(payload))
	}
	return res, nil
}

// compilerFor derives a compiler for req's optimization override.
func (e *Engine) compilerFor(req Request) (compiler.QueryCompiler, error) {
	if req.Optimization == nil {
		return e.compiler, nil
	}
	o, ok := e.compiler.(compiler.Optimizer)
	if !ok {
		return nil, fmt.Errorf("%w: compiler %q does not accept optimization overrides",
			compiler.ErrInvalidConfig, e.compiler.Name())
	}
	return o.WithOptimization(*req.Optimization)
}

func (e *Engine) reject(ctx context.Context, req Request, stage string, err error, start time.Time) {
	e.logger.Debug("rejected filter", "stage", stage, "primary", req.Primary, "error", err)
	e.publish(ctx, event.NewFilterRejected(event.CompilePayload{
		Filter:   req.Filter,
		Primary:  req.Primary,
		Dialect:  e.compiler.Name(),
		Source:   req.Source,
		Stage:    stage,
		Error:    err.Error(),
		Duration: time.Since(start),
	}))
}

func (e *Engine) publish(ctx context.Context, evt event.DomainEvent) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(ctx, evt)
}

// IsUserError reports whether err was caused by the filter text or its
// options rather than by the engine.
func IsUserError(err error) bool {
	var pe *fql.ParseError
	var ce *compiler.CompileError
	return errors.As(err, &pe) || errors.As(err, &ce) ||
		errors.Is(err, compiler.ErrInvalidConfig) || errors.Is(err, planner.ErrInvalidBatchConfig)
}
