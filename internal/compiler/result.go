package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"entgo.io/ent/dialect"
)

// CompileResult is one rendered statement with its bound arguments and the
// rewrites applied while compiling it.
type CompileResult struct {
	SQL           string         `json:"sql"`
	Args          []any          `json:"args"`
	Dialect       string         `json:"dialect"`
	Optimizations []Optimization `json:"optimizations"`
}

// Inline renders SQL with every placeholder replaced by its argument, for
// display only. Strings are single-quoted with embedded quotes doubled.
func (r *CompileResult) Inline() string {
	return Inline(r.Dialect, r.SQL, r.Args)
}

// Inline substitutes args into the placeholders of query. Postgres uses
// numbered $n placeholders; the other dialects use positional '?'.
// Placeholders inside quoted text are left alone.
func Inline(d, query string, args []any) string {
	var b strings.Builder
	b.Grow(len(query))
	next := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
			b.WriteByte(ch)
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			b.WriteByte(ch)
		case ch == '$' && d == dialect.Postgres:
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			n, err := strconv.Atoi(query[i+1 : j])
			if err != nil || n < 1 || n > len(args) {
				b.WriteByte(ch)
				continue
			}
			b.WriteString(formatArg(args[n-1]))
			i = j - 1
		case ch == '?' && d != dialect.Postgres && next < len(args):
			b.WriteString(formatArg(args[next]))
			next++
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func formatArg(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(v), "'", "''") + "'"
	}
}
