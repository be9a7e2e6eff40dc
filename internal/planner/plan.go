// Package planner splits queries whose IN lists are too large for one
// statement into several statements, one per chunk of values.
package planner

import (
	"errors"
	"fmt"

	"github.com/matthewbaird/reportfilter/internal/compiler"
)

// Default batch settings.
const (
	DefaultMaxBatchSize = 500
	DefaultParallelism  = 4
)

// BatchProcessingField labels the synthetic log entry of a batched compile.
const BatchProcessingField = "batch_processing"

// ErrInvalidBatchConfig is wrapped by BatchConfig validation errors.
var ErrInvalidBatchConfig = errors.New("invalid batch configuration")

// BatchConfig controls batching. It is immutable per call.
type BatchConfig struct {
	MaxBatchSize          int  `json:"max_batch_size" yaml:"max_batch_size"`
	EnableBatchProcessing bool `json:"enable_batch_processing" yaml:"enable_batch_processing"`
}

// DefaultBatchConfig returns batching enabled with chunks of 500 values.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxBatchSize:          DefaultMaxBatchSize,
		EnableBatchProcessing: true,
	}
}

// Validate rejects chunk sizes below one while batching is enabled.
func (c BatchConfig) Validate() error {
	if c.EnableBatchProcessing && c.MaxBatchSize < 1 {
		return fmt.Errorf("%w: max_batch_size must be at least 1, got %d", ErrInvalidBatchConfig, c.MaxBatchSize)
	}
	return nil
}

// Statement is one rendered statement of a batch.
type Statement struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// BatchResult holds the statements of one batched compile in chunk order.
// EstimatedRows is set only when the query was split, to statements ×
// MaxBatchSize: an upper bound heuristic, not a cardinality estimate.
type BatchResult struct {
	Statements    []Statement             `json:"statements"`
	Dialect       string                  `json:"dialect,omitempty"`
	Optimizations []compiler.Optimization `json:"optimizations"`
	EstimatedRows *int                    `json:"estimated_rows,omitempty"`
}

// Inline renders every statement with its arguments substituted.
func (r *BatchResult) Inline() []string {
	out := make([]string, len(r.Statements))
	for i, s := range r.Statements {
		out[i] = compiler.Inline(r.Dialect, s.SQL, s.Args)
	}
	return out
}

func singleStatement(res *compiler.CompileResult) *BatchResult {
	return &BatchResult{
		Statements:    []Statement{{SQL: res.SQL, Args: res.Args}},
		Dialect:       res.Dialect,
		Optimizations: res.Optimizations,
	}
}
