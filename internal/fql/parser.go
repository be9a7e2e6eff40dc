package fql

import (
	"fmt"
	"strconv"
	"strings"
)

// maxNestingDepth bounds how deeply NOT and parentheses may nest.
const maxNestingDepth = 256

// clauseNames are offered as suggestions for misspelled clause prefixes.
var clauseNames = []string{"Filter", "CrossFilter"}

// Parser implements a one-token-lookahead recursive descent parser for FQL.
// Parsing stops at the first error; a parser is single-use.
type Parser struct {
	tokens []Token
	pos    int
	depth  int
	used   bool
}

// NewParser creates a parser from a token slice (typically from Lexer.Tokenize).
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse tokenizes and parses input in one step.
func Parse(input string) (*Query, error) {
	return NewParser(NewLexer(input).Tokenize()).Parse()
}

// Parse parses the token stream into a Query. On error no partial query is
// returned and the parser cannot be resumed.
func (p *Parser) Parse() (*Query, error) {
	if p.used {
		return nil, ErrParserConsumed
	}
	p.used = true

	q := &Query{}
	for !p.atEnd() {
		tok := p.peek()
		switch tok.Type {
		case TokenFilter:
			p.advance()
			filters, err := p.parseFieldFilters()
			if err != nil {
				return nil, err
			}
			q.BaseFilters = append(q.BaseFilters, filters...)
		case TokenCrossFilter:
			p.advance()
			cf, err := p.parseCrossFilter()
			if err != nil {
				return nil, err
			}
			q.CrossFilters = append(q.CrossFilters, cf)
		default:
			perr := newParseErrorf(tok, "expected 'Filter:' or 'CrossFilter:', found %s", describe(tok))
			if tok.Type == TokenIdent {
				if s := SuggestFrom(tok.Literal, clauseNames, 2); s != "" {
					perr.Suggestion = strings.TrimSuffix(s, "'?") + ":'?"
				}
			}
			return nil, perr
		}
	}
	return q, nil
}

// ── Token navigation ────────────────────────────────────────────────────────

func (p *Parser) peek() Token {
	return p.peekAt(0)
}

func (p *Parser) peekAt(offset int) Token {
	if i := p.pos + offset; i < len(p.tokens) {
		return p.tokens[i]
	}
	end := 0
	if n := len(p.tokens); n > 0 {
		end = p.tokens[n-1].Span.End
	}
	return Token{Type: TokenEOF, Span: Span{Start: end, End: end}}
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) atEnd() bool {
	return p.peek().Type == TokenEOF
}

func (p *Parser) check(t TokenType) bool {
	return p.peek().Type == t
}

func (p *Parser) expect(t TokenType) (Token, error) {
	if p.check(t) {
		return p.advance(), nil
	}
	tok := p.peek()
	return tok, newParseErrorf(tok, "expected %s, found %s", t, describe(tok))
}

// describe names a token for error messages.
func describe(tok Token) string {
	switch tok.Type {
	case TokenIdent:
		return fmt.Sprintf("identifier '%s'", tok.Literal)
	case TokenString:
		return fmt.Sprintf("string %q", tok.Literal)
	case TokenNumber:
		return "number " + tok.Literal
	case TokenIllegal:
		return fmt.Sprintf("illegal character %q", tok.Literal)
	default:
		return tok.Type.String()
	}
}

// ── Clauses ─────────────────────────────────────────────────────────────────

// parseFieldFilters parses "field[...] (; field[...])*". The sequence ends
// at a CrossFilter prefix, at end of input, or at a semicolon followed by
// either of those.
func (p *Parser) parseFieldFilters() ([]FieldFilter, error) {
	var filters []FieldFilter
	for {
		ff, err := p.parseFieldFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, ff)

		tok := p.peek()
		switch tok.Type {
		case TokenEOF, TokenCrossFilter:
			return filters, nil
		case TokenSemicolon:
			p.advance()
			if next := p.peek().Type; next == TokenEOF || next == TokenCrossFilter {
				return filters, nil
			}
		default:
			return nil, newParseErrorf(tok, "expected ';' or 'CrossFilter:', found %s", describe(tok))
		}
	}
}

func (p *Parser) parseCrossFilter() (CrossFilter, error) {
	if _, err := p.expect(TokenLT); err != nil {
		return CrossFilter{}, err
	}

	entity := p.peek()
	if entity.Type != TokenIdent {
		return CrossFilter{}, newParseErrorf(entity, "expected entity pair 'Source-Target', found %s", describe(entity))
	}
	p.advance()

	parts := strings.Split(entity.Literal, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return CrossFilter{}, newParseErrorf(entity, "entity identifier '%s' must be in format 'Source-Target'", entity.Literal)
	}

	if _, err := p.expect(TokenGT); err != nil {
		return CrossFilter{}, err
	}

	filters, err := p.parseFieldFilters()
	if err != nil {
		return CrossFilter{}, err
	}
	return CrossFilter{
		Source:  Identifier(parts[0]),
		Target:  Identifier(parts[1]),
		Filters: filters,
	}, nil
}

func (p *Parser) parseFieldFilter() (FieldFilter, error) {
	field := p.peek()
	if field.Type != TokenIdent {
		return FieldFilter{}, newParseErrorf(field, "expected field name, found %s", describe(field))
	}
	p.advance()

	if _, err := p.expect(TokenLBrack); err != nil {
		return FieldFilter{}, err
	}
	cond, err := p.parseCondition()
	if err != nil {
		return FieldFilter{}, err
	}
	if _, err := p.expect(TokenRBrack); err != nil {
		return FieldFilter{}, err
	}
	return FieldFilter{Field: Identifier(field.Literal), Condition: cond}, nil
}

// ── Conditions ──────────────────────────────────────────────────────────────
//
// Precedence, loosest first: OR, AND, NOT, primary.

func (p *Parser) parseCondition() (Condition, error) {
	return p.parseOrExpr()
}

func (p *Parser) parseOrExpr() (Condition, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	for p.check(TokenOr) {
		p.advance()
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAndExpr() (Condition, error) {
	left, err := p.parseNotExpr()
	if err != nil {
		return nil, err
	}
	for p.check(TokenAnd) {
		p.advance()
		right, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNotExpr() (Condition, error) {
	if !p.check(TokenNot) {
		return p.parsePrimary()
	}
	tok := p.advance()
	if err := p.enter(tok); err != nil {
		return nil, err
	}
	defer p.leave()

	inner, err := p.parseNotExpr()
	if err != nil {
		return nil, err
	}
	return &Not{Inner: inner}, nil
}

func (p *Parser) parsePrimary() (Condition, error) {
	tok := p.peek()
	switch {
	case tok.Type == TokenEOF:
		return nil, newParseError(tok, "unexpected end of input")

	case tok.Type == TokenLParen:
		p.advance()
		if err := p.enter(tok); err != nil {
			return nil, err
		}
		defer p.leave()
		inner, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return &Grouped{Inner: inner}, nil

	case tok.Type == TokenIs:
		p.advance()
		negated := false
		if p.check(TokenNot) {
			p.advance()
			negated = true
		}
		if _, err := p.expect(TokenNull); err != nil {
			return nil, err
		}
		if negated {
			return &IsNotNull{}, nil
		}
		return &IsNull{}, nil

	case tok.Type == TokenIn:
		p.advance()
		values, err := p.parseValueList()
		if err != nil {
			return nil, err
		}
		return &In{Values: values}, nil

	case tok.Type.IsCompOp():
		op := p.parseCompOp()
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &Comparison{Op: op, Value: val}, nil

	default:
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &Comparison{Op: CompEQ, Value: val}, nil
	}
}

func (p *Parser) parseCompOp() CompOp {
	switch p.advance().Type {
	case TokenNEQ:
		return CompNEQ
	case TokenGT:
		return CompGT
	case TokenLT:
		return CompLT
	case TokenGTE:
		return CompGTE
	case TokenLTE:
		return CompLTE
	default:
		return CompEQ
	}
}

// parseValueList parses "( [literal (, literal)*] )".
func (p *Parser) parseValueList() ([]Literal, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	var values []Literal
	if !p.check(TokenRParen) {
		for {
			val, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			values = append(values, val)
			if p.check(TokenRParen) {
				break
			}
			if _, err := p.expect(TokenComma); err != nil {
				return nil, err
			}
		}
	}

	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return values, nil
}

func (p *Parser) parseLiteral() (Literal, error) {
	tok := p.peek()
	switch tok.Type {
	case TokenString:
		p.advance()
		return StringLit(tok.Literal), nil
	case TokenIdent:
		p.advance()
		return StringLit(tok.Literal), nil
	case TokenNumber:
		n, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			return Literal{}, newParseErrorf(tok, "number %s is out of range", tok.Literal)
		}
		p.advance()
		return NumberLit(n), nil
	case TokenToday:
		p.advance()
		return DateLit(DateToday), nil
	case TokenYesterday:
		p.advance()
		return DateLit(DateYesterday), nil
	case TokenTomorrow:
		p.advance()
		return DateLit(DateTomorrow), nil
	case TokenCurrentUser:
		p.advance()
		return CurrentUserLit(), nil
	case TokenEOF:
		return Literal{}, newParseError(tok, "unexpected end of input")
	default:
		return Literal{}, newParseErrorf(tok, "expected literal value, found %s", describe(tok))
	}
}

func (p *Parser) enter(tok Token) error {
	p.depth++
	if p.depth > maxNestingDepth {
		return newParseErrorf(tok, "condition nested deeper than %d levels", maxNestingDepth)
	}
	return nil
}

func (p *Parser) leave() {
	p.depth--
}
