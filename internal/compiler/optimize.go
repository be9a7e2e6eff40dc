package compiler

import "fmt"

// Default rewrite thresholds.
const (
	DefaultMaxOrConditionsForIn = 5
	DefaultMaxInValues          = 1000
)

// OptimizationConfig holds the thresholds of the rewrite rules. A value is
// passed into each compiler at construction and never changes afterwards.
type OptimizationConfig struct {
	// MaxOrConditionsForIn is the number of OR-ed equalities at which the
	// chain is folded into a single IN.
	MaxOrConditionsForIn int `json:"max_or_conditions_for_in" yaml:"max_or_conditions_for_in"`
	// MaxInValues is the largest IN list emitted as one membership test.
	MaxInValues int `json:"max_in_values" yaml:"max_in_values"`
}

// DefaultOptimizationConfig returns the default thresholds.
func DefaultOptimizationConfig() OptimizationConfig {
	return OptimizationConfig{
		MaxOrConditionsForIn: DefaultMaxOrConditionsForIn,
		MaxInValues:          DefaultMaxInValues,
	}
}

// Validate reports thresholds the rules cannot work with.
func (c OptimizationConfig) Validate() error {
	if c.MaxOrConditionsForIn < 0 {
		return fmt.Errorf("%w: max_or_conditions_for_in must not be negative, got %d", ErrInvalidConfig, c.MaxOrConditionsForIn)
	}
	if c.MaxInValues < 1 {
		return fmt.Errorf("%w: max_in_values must be at least 1, got %d", ErrInvalidConfig, c.MaxInValues)
	}
	return nil
}

// OptimizationKind identifies a rewrite rule.
type OptimizationKind string

const (
	KindOrToIn    OptimizationKind = "or_to_in"
	KindInToUnion OptimizationKind = "in_to_union"

	// Reserved for simplification rules; no rule produces these yet.
	KindConditionSimplification   OptimizationKind = "condition_simplification"
	KindRedundantConditionRemoval OptimizationKind = "redundant_condition_removal"
)

// Optimization is one entry of the optimization log.
type Optimization struct {
	Kind        OptimizationKind `json:"kind"`
	Field       string           `json:"field,omitempty"`
	ValueCount  int              `json:"value_count,omitempty"`
	TotalValues int              `json:"total_values,omitempty"`
	UnionCount  int              `json:"union_count,omitempty"`
	Description string           `json:"description,omitempty"`
}

// OrToIn records an OR chain of valueCount equalities folded into one IN.
func OrToIn(field string, valueCount int) Optimization {
	return Optimization{Kind: KindOrToIn, Field: field, ValueCount: valueCount}
}

// InToUnion records an IN list of totalValues split into unionCount chunks.
func InToUnion(field string, totalValues, unionCount int) Optimization {
	return Optimization{Kind: KindInToUnion, Field: field, TotalValues: totalValues, UnionCount: unionCount}
}

// String renders the entry for logs and the REPL.
func (o Optimization) String() string {
	switch o.Kind {
	case KindOrToIn:
		return fmt.Sprintf("OrToIn{field: %s, value_count: %d}", o.Field, o.ValueCount)
	case KindInToUnion:
		return fmt.Sprintf("InToUnion{field: %s, total_values: %d, union_count: %d}", o.Field, o.TotalValues, o.UnionCount)
	default:
		if o.Description != "" {
			return fmt.Sprintf("%s{%s}", o.Kind, o.Description)
		}
		return string(o.Kind)
	}
}
