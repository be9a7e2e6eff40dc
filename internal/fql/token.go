// Package fql implements the lexer, parser, and AST for FQL
// (Filter Query Language), the report filter DSL:
//
//	Filter: status["Open"]; priority[>2]; CrossFilter: <Test-Run> status["PASS"]
package fql

import "strings"

// TokenType identifies the kind of lexical token.
type TokenType int

const (
	// Special
	TokenEOF     TokenType = iota
	TokenIllegal           // any character the lexer does not recognise

	// Literals and identifiers
	TokenIdent  // unquoted identifier (field name, entity pair, bare value)
	TokenString // "quoted string"
	TokenNumber // 123

	// Keywords: clause prefixes (include the trailing colon)
	TokenFilter      // Filter:
	TokenCrossFilter // CrossFilter:

	// Keywords: logical operators
	TokenAnd
	TokenOr
	TokenNot
	TokenIn
	TokenIs
	TokenNull

	// Keywords: value keywords
	TokenToday
	TokenYesterday
	TokenTomorrow
	TokenCurrentUser

	// Punctuation
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrack    // [
	TokenRBrack    // ]
	TokenSemicolon // ;
	TokenComma     // ,
	TokenDash      // -

	// Operators
	TokenEQ  // =
	TokenNEQ // !=
	TokenGT  // >
	TokenLT  // <
	TokenGTE // >=
	TokenLTE // <=
)

// String returns a human-readable name for the token type.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of input"
	case TokenIllegal:
		return "illegal character"
	case TokenIdent:
		return "identifier"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenFilter:
		return "'Filter:'"
	case TokenCrossFilter:
		return "'CrossFilter:'"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenNot:
		return "NOT"
	case TokenIn:
		return "IN"
	case TokenIs:
		return "IS"
	case TokenNull:
		return "NULL"
	case TokenToday:
		return "today"
	case TokenYesterday:
		return "yesterday"
	case TokenTomorrow:
		return "tomorrow"
	case TokenCurrentUser:
		return "current_user"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	case TokenLBrack:
		return "'['"
	case TokenRBrack:
		return "']'"
	case TokenSemicolon:
		return "';'"
	case TokenComma:
		return "','"
	case TokenDash:
		return "'-'"
	case TokenEQ:
		return "'='"
	case TokenNEQ:
		return "'!='"
	case TokenGT:
		return "'>'"
	case TokenLT:
		return "'<'"
	case TokenGTE:
		return "'>='"
	case TokenLTE:
		return "'<='"
	default:
		return "unknown"
	}
}

// Span is a half-open byte range [Start, End) into the source text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Text returns the source text covered by the span.
func (s Span) Text(src string) string {
	if s.Start < 0 || s.End > len(src) || s.Start > s.End {
		return ""
	}
	return src[s.Start:s.End]
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Token represents a single lexical token.
type Token struct {
	Type    TokenType
	Literal string // raw text, or the unquoted content for strings
	Span    Span
	Line    int // 1-based line number
	Col     int // 1-based column number
}

// keywords maps lowercase keyword strings to their token types.
var keywords = map[string]TokenType{
	"and":          TokenAnd,
	"or":           TokenOr,
	"not":          TokenNot,
	"in":           TokenIn,
	"is":           TokenIs,
	"null":         TokenNull,
	"today":        TokenToday,
	"yesterday":    TokenYesterday,
	"tomorrow":     TokenTomorrow,
	"current_user": TokenCurrentUser,
}

// clausePrefixes are the keywords only recognised when a colon follows.
var clausePrefixes = map[string]TokenType{
	"filter":      TokenFilter,
	"crossfilter": TokenCrossFilter,
}

// LookupKeyword returns the keyword token type for an identifier, or
// TokenIdent if the identifier is not a keyword. Lookup is case-insensitive.
func LookupKeyword(ident string) TokenType {
	if tok, ok := keywords[strings.ToLower(ident)]; ok {
		return tok
	}
	return TokenIdent
}

// lookupClausePrefix reports whether ident names a clause prefix.
func lookupClausePrefix(ident string) (TokenType, bool) {
	tok, ok := clausePrefixes[strings.ToLower(ident)]
	return tok, ok
}

// IsCompOp returns true if the token type is a comparison operator.
func (t TokenType) IsCompOp() bool {
	switch t {
	case TokenEQ, TokenNEQ, TokenGT, TokenLT, TokenGTE, TokenLTE:
		return true
	}
	return false
}

// IsLiteral returns true if the token type can start a literal value.
func (t TokenType) IsLiteral() bool {
	switch t {
	case TokenString, TokenNumber, TokenIdent,
		TokenToday, TokenYesterday, TokenTomorrow, TokenCurrentUser:
		return true
	}
	return false
}

// IsKeyword returns true for word-shaped keywords (including clause prefixes).
func (t TokenType) IsKeyword() bool {
	return t >= TokenFilter && t <= TokenCurrentUser
}
