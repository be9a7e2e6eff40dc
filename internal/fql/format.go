package fql

import (
	"fmt"
	"strconv"
	"strings"
)

// String renders the query as canonical FQL. Parsing the result yields an
// equal query for any query produced by the parser, as long as no string
// literal contains a double quote.
func (q *Query) String() string {
	var clauses []string
	if len(q.BaseFilters) > 0 {
		clauses = append(clauses, "Filter: "+joinFilters(q.BaseFilters))
	}
	for _, cf := range q.CrossFilters {
		clauses = append(clauses, cf.String())
	}
	return strings.Join(clauses, "; ")
}

// String renders the cross filter clause.
func (cf CrossFilter) String() string {
	return "CrossFilter: <" + string(cf.Source) + "-" + string(cf.Target) + "> " + joinFilters(cf.Filters)
}

// String renders field[condition].
func (ff FieldFilter) String() string {
	cond := ""
	if ff.Condition != nil {
		cond = ff.Condition.String()
	}
	return string(ff.Field) + "[" + cond + "]"
}

func joinFilters(filters []FieldFilter) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	return strings.Join(parts, "; ")
}

func (c *And) String() string     { return c.Left.String() + " AND " + c.Right.String() }
func (c *Or) String() string      { return c.Left.String() + " OR " + c.Right.String() }
func (c *Not) String() string     { return "NOT " + c.Inner.String() }
func (c *Grouped) String() string { return "(" + c.Inner.String() + ")" }
func (*IsNull) String() string    { return "IS NULL" }
func (*IsNotNull) String() string { return "IS NOT NULL" }

func (c *Comparison) String() string {
	if c.Op == CompEQ {
		return c.Value.String()
	}
	return c.Op.String() + c.Value.String()
}

func (c *In) String() string {
	parts := make([]string, len(c.Values))
	for i, v := range c.Values {
		parts[i] = v.String()
	}
	return "IN (" + strings.Join(parts, ", ") + ")"
}

// String renders the literal as FQL source text.
func (l Literal) String() string {
	switch l.Kind {
	case LitNumber:
		return strconv.FormatInt(l.Number, 10)
	case LitCurrentUser:
		return "current_user"
	case LitDate:
		switch l.Text {
		case DateToday, DateYesterday, DateTomorrow:
			return l.Text
		}
	}
	return `"` + l.Text + `"`
}

// Tree renders the query as an indented outline with one node per line.
func (q *Query) Tree() string {
	var b strings.Builder
	b.WriteString("Query\n")
	if len(q.BaseFilters) > 0 {
		b.WriteString("  Filter\n")
		for _, f := range q.BaseFilters {
			writeFilterTree(&b, f, 2)
		}
	}
	for _, cf := range q.CrossFilters {
		fmt.Fprintf(&b, "  CrossFilter <%s-%s>\n", cf.Source, cf.Target)
		for _, f := range cf.Filters {
			writeFilterTree(&b, f, 2)
		}
	}
	return b.String()
}

func writeFilterTree(b *strings.Builder, f FieldFilter, depth int) {
	fmt.Fprintf(b, "%sField %s\n", strings.Repeat("  ", depth), f.Field)
	writeConditionTree(b, f.Condition, depth+1)
}

func writeConditionTree(b *strings.Builder, c Condition, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	switch n := c.(type) {
	case *And:
		b.WriteString("And\n")
		writeConditionTree(b, n.Left, depth+1)
		writeConditionTree(b, n.Right, depth+1)
	case *Or:
		b.WriteString("Or\n")
		writeConditionTree(b, n.Left, depth+1)
		writeConditionTree(b, n.Right, depth+1)
	case *Not:
		b.WriteString("Not\n")
		writeConditionTree(b, n.Inner, depth+1)
	case *Grouped:
		b.WriteString("Group\n")
		writeConditionTree(b, n.Inner, depth+1)
	case *Comparison:
		fmt.Fprintf(b, "Compare %s %s\n", n.Op, n.Value)
	case *In:
		fmt.Fprintf(b, "In %d values\n", len(n.Values))
	case *IsNull:
		b.WriteString("IsNull\n")
	case *IsNotNull:
		b.WriteString("IsNotNull\n")
	default:
		b.WriteString("Empty\n")
	}
}
