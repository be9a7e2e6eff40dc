package planner

import "github.com/matthewbaird/reportfilter/internal/fql"

// target is the first oversized IN node of a query.
type target struct {
	node  *fql.In
	field string // filter field holding the node, for logging
}

// findOversized scans base filters, then cross filters, each condition
// tree depth-first and left to right, for the first IN list longer than limit.
func findOversized(q *fql.Query, limit int) (target, bool) {
	for _, ff := range q.BaseFilters {
		if in := firstOversized(ff.Condition, limit); in != nil {
			return target{node: in, field: ff.Field.String()}, true
		}
	}
	for _, cf := range q.CrossFilters {
		for _, ff := range cf.Filters {
			if in := firstOversized(ff.Condition, limit); in != nil {
				return target{node: in, field: ff.Field.String()}, true
			}
		}
	}
	return target{}, false
}

func firstOversized(cond fql.Condition, limit int) *fql.In {
	switch c := cond.(type) {
	case *fql.In:
		if len(c.Values) > limit {
			return c
		}
	case *fql.And:
		if in := firstOversized(c.Left, limit); in != nil {
			return in
		}
		return firstOversized(c.Right, limit)
	case *fql.Or:
		if in := firstOversized(c.Left, limit); in != nil {
			return in
		}
		return firstOversized(c.Right, limit)
	case *fql.Not:
		return firstOversized(c.Inner, limit)
	case *fql.Grouped:
		return firstOversized(c.Inner, limit)
	}
	return nil
}

// chunk splits values into contiguous runs of at most size.
func chunk(values []fql.Literal, size int) [][]fql.Literal {
	chunks := make([][]fql.Literal, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		chunks = append(chunks, values[start:min(start+size, len(values))])
	}
	return chunks
}

// withValues returns a copy of q in which the node old is replaced by an IN
// over values. q itself is not modified.
func withValues(q *fql.Query, old *fql.In, values []fql.Literal) *fql.Query {
	out := &fql.Query{
		BaseFilters:  cloneFilters(q.BaseFilters, old, values),
		CrossFilters: make([]fql.CrossFilter, len(q.CrossFilters)),
	}
	for i, cf := range q.CrossFilters {
		out.CrossFilters[i] = fql.CrossFilter{
			Source:  cf.Source,
			Target:  cf.Target,
			Filters: cloneFilters(cf.Filters, old, values),
		}
	}
	return out
}

func cloneFilters(filters []fql.FieldFilter, old *fql.In, values []fql.Literal) []fql.FieldFilter {
	if filters == nil {
		return nil
	}
	out := make([]fql.FieldFilter, len(filters))
	for i, ff := range filters {
		out[i] = fql.FieldFilter{Field: ff.Field, Condition: cloneCondition(ff.Condition, old, values)}
	}
	return out
}

func cloneCondition(cond fql.Condition, old *fql.In, values []fql.Literal) fql.Condition {
	switch c := cond.(type) {
	case *fql.And:
		return &fql.And{Left: cloneCondition(c.Left, old, values), Right: cloneCondition(c.Right, old, values)}
	case *fql.Or:
		return &fql.Or{Left: cloneCondition(c.Left, old, values), Right: cloneCondition(c.Right, old, values)}
	case *fql.Not:
		return &fql.Not{Inner: cloneCondition(c.Inner, old, values)}
	case *fql.Grouped:
		return &fql.Grouped{Inner: cloneCondition(c.Inner, old, values)}
	case *fql.In:
		if c == old {
			return &fql.In{Values: values}
		}
		return &fql.In{Values: append([]fql.Literal(nil), c.Values...)}
	case *fql.Comparison:
		cp := *c
		return &cp
	case *fql.IsNull:
		return &fql.IsNull{}
	case *fql.IsNotNull:
		return &fql.IsNotNull{}
	default:
		return cond
	}
}
