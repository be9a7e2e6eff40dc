package compiler

import (
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/reportfilter/internal/fql"
)

// dateExprs holds the relative-date expressions of each dialect.
var dateExprs = map[string]map[string]string{
	dialect.Postgres: {
		fql.DateToday:     "CURRENT_DATE",
		fql.DateYesterday: "CURRENT_DATE - INTERVAL '1 day'",
		fql.DateTomorrow:  "CURRENT_DATE + INTERVAL '1 day'",
	},
	dialect.MySQL: {
		fql.DateToday:     "CURRENT_DATE",
		fql.DateYesterday: "CURRENT_DATE - INTERVAL 1 DAY",
		fql.DateTomorrow:  "CURRENT_DATE + INTERVAL 1 DAY",
	},
	dialect.SQLite: {
		fql.DateToday:     "DATE('now')",
		fql.DateYesterday: "DATE('now', '-1 day')",
		fql.DateTomorrow:  "DATE('now', '+1 day')",
	},
}

// value converts a literal into an argument for an ent predicate. Strings
// and numbers become bound parameters; date keywords and the current user
// become raw SQL expressions.
func value(d string, lit fql.Literal) (any, error) {
	switch lit.Kind {
	case fql.LitString:
		return lit.Text, nil
	case fql.LitNumber:
		return lit.Number, nil
	case fql.LitDate:
		if expr, ok := dateExprs[d][lit.Text]; ok {
			return sql.Raw(expr), nil
		}
		return lit.Text, nil
	case fql.LitCurrentUser:
		if d == dialect.SQLite {
			return nil, &CompileError{Message: "current_user cannot be represented in the sqlite3 dialect"}
		}
		return sql.Raw("CURRENT_USER"), nil
	default:
		return nil, &CompileError{Message: "unsupported literal kind " + lit.Kind.String()}
	}
}

// values converts every literal of an IN list or folded OR chain.
func values(d string, lits []fql.Literal) ([]any, error) {
	out := make([]any, len(lits))
	for i, lit := range lits {
		v, err := value(d, lit)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
