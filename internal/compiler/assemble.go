package compiler

import (
	"fmt"

	"entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/reportfilter/internal/fql"
)

// JoinAlias returns the alias of the n-th (1-based) cross filter's join.
func JoinAlias(n int) string {
	return fmt.Sprintf("joined_table_%d", n)
}

// assemble renders
//
//	SELECT * FROM <primary>
//	  JOIN <target_1> AS joined_table_1 ON <primary>.id = joined_table_1.id ...
//	  WHERE (<base filters>) AND (<cross filter 1>) ...
//
// Base filters contribute one conjunction; each cross filter contributes its
// own. A query without filters has no WHERE clause.
func (c *SQLCompiler) assemble(q *fql.Query, primary string) (*CompileResult, error) {
	b := sql.Dialect(c.dialect)
	primaryTable := c.mapper.TableName(primary)
	t := b.Table(primaryTable)
	sel := b.Select().From(t)

	var log []Optimization

	base, err := c.compileFilters(q.BaseFilters, primaryTable, t.C, &log)
	if err != nil {
		return nil, err
	}
	if base != nil {
		sel.Where(base)
	}

	for i, cf := range q.CrossFilters {
		alias := JoinAlias(i + 1)
		jt := b.Table(c.mapper.TableName(cf.Target.String())).As(alias)
		sel.Join(jt).On(t.C("id"), jt.C("id"))

		pred, err := c.compileFilters(cf.Filters, alias, jt.C, &log)
		if err != nil {
			return nil, err
		}
		if pred != nil {
			sel.Where(pred)
		}
	}

	query, args := sel.Query()
	if err := sel.Err(); err != nil {
		return nil, &CompileError{Message: err.Error()}
	}
	return &CompileResult{
		SQL:           query,
		Args:          args,
		Dialect:       c.dialect,
		Optimizations: log,
	}, nil
}

// compileFilters compiles a filter sequence into one conjunction. qualifier
// names the table or alias in the optimization log; column renders a
// qualified column identifier.
func (c *SQLCompiler) compileFilters(filters []fql.FieldFilter, qualifier string, column func(string) string, log *[]Optimization) (*sql.Predicate, error) {
	preds := make([]*sql.Predicate, 0, len(filters))
	for _, ff := range filters {
		field := ff.Field.String()
		p, applied, err := compileCondition(c.dialect, c.cfg, c.logger, column(field), qualifier+"."+field, ff.Condition)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
		*log = append(*log, applied...)
	}
	switch len(preds) {
	case 0:
		return nil, nil
	case 1:
		// A lone predicate must keep its own depth so an enclosing AND
		// parenthesises it.
		return preds[0], nil
	default:
		return sql.And(preds...), nil
	}
}
