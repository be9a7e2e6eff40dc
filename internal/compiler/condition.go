package compiler

import (
	"fmt"

	"entgo.io/ent/dialect/sql"
	"github.com/hashicorp/go-hclog"

	"github.com/matthewbaird/reportfilter/internal/fql"
)

// conditionCompiler compiles the condition tree of one field filter.
type conditionCompiler struct {
	dialect string
	cfg     OptimizationConfig
	logger  hclog.Logger

	column string // rendered, qualified column identifier
	field  string // dotted name used in the optimization log

	log []Optimization
}

// compileCondition translates cond into a predicate on column and returns
// the rewrites applied along the way, in traversal order.
func compileCondition(d string, cfg OptimizationConfig, logger hclog.Logger, column, field string, cond fql.Condition) (*sql.Predicate, []Optimization, error) {
	cc := &conditionCompiler{
		dialect: d,
		cfg:     cfg,
		logger:  logger,
		column:  column,
		field:   field,
	}
	p, err := cc.compile(cond)
	if err != nil {
		return nil, nil, err
	}
	return p, cc.log, nil
}

func (cc *conditionCompiler) compile(cond fql.Condition) (*sql.Predicate, error) {
	switch c := cond.(type) {
	case *fql.Comparison:
		return cc.comparison(c)

	case *fql.And:
		left, err := cc.compile(c.Left)
		if err != nil {
			return nil, err
		}
		right, err := cc.compile(c.Right)
		if err != nil {
			return nil, err
		}
		return sql.And(left, right), nil

	case *fql.Or:
		if p, ok, err := cc.orToIn(c); err != nil || ok {
			return p, err
		}
		left, err := cc.compile(c.Left)
		if err != nil {
			return nil, err
		}
		right, err := cc.compile(c.Right)
		if err != nil {
			return nil, err
		}
		return sql.Or(left, right), nil

	case *fql.Not:
		inner, err := cc.compile(c.Inner)
		if err != nil {
			return nil, err
		}
		return sql.Not(inner), nil

	case *fql.Grouped:
		return cc.compile(c.Inner)

	case *fql.In:
		return cc.in(c.Values)

	case *fql.IsNull:
		return sql.IsNull(cc.column), nil

	case *fql.IsNotNull:
		return sql.NotNull(cc.column), nil

	case nil:
		return nil, &CompileError{Message: fmt.Sprintf("field %s has no condition", cc.field)}

	default:
		return nil, &CompileError{Message: fmt.Sprintf("unsupported condition %T", cond)}
	}
}

func (cc *conditionCompiler) comparison(c *fql.Comparison) (*sql.Predicate, error) {
	v, err := value(cc.dialect, c.Value)
	if err != nil {
		return nil, err
	}
	switch c.Op {
	case fql.CompEQ:
		return sql.EQ(cc.column, v), nil
	case fql.CompNEQ:
		return sql.NEQ(cc.column, v), nil
	case fql.CompGT:
		return sql.GT(cc.column, v), nil
	case fql.CompLT:
		return sql.LT(cc.column, v), nil
	case fql.CompGTE:
		return sql.GTE(cc.column, v), nil
	case fql.CompLTE:
		return sql.LTE(cc.column, v), nil
	default:
		return nil, &CompileError{Message: fmt.Sprintf("unsupported comparison operator %s", c.Op)}
	}
}

// ── OR → IN ─────────────────────────────────────────────────────────────────

// orToIn folds an OR chain of equalities into one IN predicate. The whole
// chain must consist of Or, Grouped and equality nodes; a single node of any
// other shape anywhere in the chain keeps the rule from firing for this Or.
func (cc *conditionCompiler) orToIn(or *fql.Or) (*sql.Predicate, bool, error) {
	var lits []fql.Literal
	if !collectEqualities(or, &lits) || len(lits) < cc.cfg.MaxOrConditionsForIn {
		return nil, false, nil
	}
	args, err := values(cc.dialect, lits)
	if err != nil {
		return nil, false, err
	}
	cc.record(OrToIn(cc.field, len(lits)))
	return sql.In(cc.column, args...), true, nil
}

// collectEqualities appends the values of an Or/Grouped chain of equality
// comparisons to lits, in source order. It returns false as soon as it meets
// any other node.
func collectEqualities(cond fql.Condition, lits *[]fql.Literal) bool {
	switch c := cond.(type) {
	case *fql.Or:
		return collectEqualities(c.Left, lits) && collectEqualities(c.Right, lits)
	case *fql.Grouped:
		return collectEqualities(c.Inner, lits)
	case *fql.Comparison:
		if c.Op != fql.CompEQ {
			return false
		}
		*lits = append(*lits, c.Value)
		return true
	default:
		return false
	}
}

// ── IN → chunked OR ─────────────────────────────────────────────────────────

func (cc *conditionCompiler) in(lits []fql.Literal) (*sql.Predicate, error) {
	args, err := values(cc.dialect, lits)
	if err != nil {
		return nil, err
	}
	size := cc.cfg.MaxInValues
	if len(args) <= size {
		return sql.In(cc.column, args...), nil
	}

	chunks := make([]*sql.Predicate, 0, (len(args)+size-1)/size)
	for start := 0; start < len(args); start += size {
		end := min(start+size, len(args))
		chunks = append(chunks, sql.In(cc.column, args[start:end]...))
	}
	cc.record(InToUnion(cc.field, len(args), len(chunks)))
	return sql.Or(chunks...), nil
}

func (cc *conditionCompiler) record(o Optimization) {
	cc.logger.Trace("applied rewrite", "rule", o.Kind, "field", o.Field,
		"value_count", o.ValueCount, "total_values", o.TotalValues, "union_count", o.UnionCount)
	cc.log = append(cc.log, o)
}
