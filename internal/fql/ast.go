package fql

// Identifier is a field or entity name. Two identifiers are equal when
// their text is equal.
type Identifier string

// String returns the identifier text.
func (id Identifier) String() string { return string(id) }

// ── Query structure ─────────────────────────────────────────────────────────

// Query is the root of a parsed filter: conditions on the primary entity
// followed by conditions on joined entities.
type Query struct {
	BaseFilters  []FieldFilter
	CrossFilters []CrossFilter
}

// IsEmpty reports whether the query has no filters at all.
func (q *Query) IsEmpty() bool {
	return len(q.BaseFilters) == 0 && len(q.CrossFilters) == 0
}

// CrossFilter represents: CrossFilter: <Source-Target> field[...]; ...
type CrossFilter struct {
	Source  Identifier
	Target  Identifier
	Filters []FieldFilter
}

// FieldFilter represents: field[condition]
type FieldFilter struct {
	Field     Identifier
	Condition Condition
}

// ── Conditions (predicate tree) ─────────────────────────────────────────────

// Condition is implemented by every node of a field's condition tree.
// Children are owned by their parent; trees never share nodes.
type Condition interface {
	String() string
	condNode()
}

// And represents "left AND right".
type And struct {
	Left  Condition
	Right Condition
}

// Or represents "left OR right".
type Or struct {
	Left  Condition
	Right Condition
}

// Not represents "NOT inner".
type Not struct {
	Inner Condition
}

// Grouped represents a parenthesised condition. It is kept as its own node
// so rewrites can see where the user placed parentheses.
type Grouped struct {
	Inner Condition
}

// Comparison represents "[op] value"; Op is CompEQ when no operator was written.
type Comparison struct {
	Op    CompOp
	Value Literal
}

// In represents "IN (v1, v2, ...)".
type In struct {
	Values []Literal
}

// IsNull represents "IS NULL".
type IsNull struct{}

// IsNotNull represents "IS NOT NULL".
type IsNotNull struct{}

func (*And) condNode()        {}
func (*Or) condNode()         {}
func (*Not) condNode()        {}
func (*Grouped) condNode()    {}
func (*Comparison) condNode() {}
func (*In) condNode()         {}
func (*IsNull) condNode()     {}
func (*IsNotNull) condNode()  {}

// CompOp is a comparison operator.
type CompOp int

const (
	CompEQ CompOp = iota
	CompNEQ
	CompGT
	CompLT
	CompGTE
	CompLTE
)

// String returns the FQL operator symbol.
func (op CompOp) String() string {
	switch op {
	case CompEQ:
		return "="
	case CompNEQ:
		return "!="
	case CompGT:
		return ">"
	case CompLT:
		return "<"
	case CompGTE:
		return ">="
	case CompLTE:
		return "<="
	default:
		return "?"
	}
}

// ── Literal values ──────────────────────────────────────────────────────────

// LiteralKind classifies a literal value.
type LiteralKind int

const (
	LitString LiteralKind = iota
	LitNumber
	LitDate
	LitCurrentUser
)

// String returns the kind name.
func (k LiteralKind) String() string {
	switch k {
	case LitString:
		return "string"
	case LitNumber:
		return "number"
	case LitDate:
		return "date"
	case LitCurrentUser:
		return "current_user"
	default:
		return "unknown"
	}
}

// Date keywords understood by the compiler. Any other date text is passed
// through unchanged.
const (
	DateToday     = "today"
	DateYesterday = "yesterday"
	DateTomorrow  = "tomorrow"
)

// Literal is a typed constant. Text holds the value for strings and dates;
// Number holds the value for numbers.
type Literal struct {
	Kind   LiteralKind
	Text   string
	Number int64
}

// StringLit returns a string literal.
func StringLit(s string) Literal { return Literal{Kind: LitString, Text: s} }

// NumberLit returns a number literal.
func NumberLit(n int64) Literal { return Literal{Kind: LitNumber, Number: n} }

// DateLit returns a date literal ("today", "yesterday", "tomorrow" or resolved date text).
func DateLit(s string) Literal { return Literal{Kind: LitDate, Text: s} }

// CurrentUserLit returns the current-user literal.
func CurrentUserLit() Literal { return Literal{Kind: LitCurrentUser} }
