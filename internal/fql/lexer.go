package fql

import (
	"iter"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes FQL source text. It never fails: characters it does not
// recognise become TokenIllegal and are reported by the parser.
type Lexer struct {
	input string
	pos   int // current byte position
	line  int // 1-based
	col   int // 1-based
	done  bool
}

// NewLexer creates a lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input: input,
		line:  1,
		col:   1,
	}
}

// Next scans and returns the next token. Once the input is exhausted every
// call returns a TokenEOF positioned at the end of the input.
func (l *Lexer) Next() Token {
	tok := l.next()
	if tok.Type == TokenEOF {
		l.done = true
	}
	return tok
}

// All returns the remaining tokens as a lazy sequence ending with TokenEOF.
// The sequence shares the lexer cursor and cannot be restarted.
func (l *Lexer) All() iter.Seq[Token] {
	return func(yield func(Token) bool) {
		for !l.done {
			if !yield(l.Next()) {
				return
			}
		}
	}
}

// Tokenize scans the entire input and returns all tokens, TokenEOF last.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for tok := range l.All() {
		tokens = append(tokens, tok)
	}
	return tokens
}

// peek returns the current rune without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

// peekAt returns the rune at offset from current position.
func (l *Lexer) peekAt(offset int) rune {
	p := l.pos + offset
	if p >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[p:])
	return r
}

// advance moves forward by one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

// skipWhitespace advances past any Unicode whitespace.
func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

func (l *Lexer) next() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Span: Span{Start: l.pos, End: l.pos}, Line: l.line, Col: l.col}
	}

	startPos := l.pos
	startLine := l.line
	startCol := l.col
	r := l.peek()

	if r == '"' {
		return l.scanString(startPos, startLine, startCol)
	}
	if r >= '0' && r <= '9' {
		return l.scanNumber(startPos, startLine, startCol)
	}
	if isIdentStart(r) {
		return l.scanIdent(startPos, startLine, startCol)
	}

	// Two-character operators
	if (r == '!' || r == '>' || r == '<') && l.peekAt(1) == '=' {
		l.advance()
		l.advance()
		typ := TokenNEQ
		switch r {
		case '>':
			typ = TokenGTE
		case '<':
			typ = TokenLTE
		}
		return l.token(typ, startPos, startLine, startCol)
	}

	l.advance()
	typ := TokenIllegal
	switch r {
	case '=':
		typ = TokenEQ
	case '>':
		typ = TokenGT
	case '<':
		typ = TokenLT
	case '(':
		typ = TokenLParen
	case ')':
		typ = TokenRParen
	case '[':
		typ = TokenLBrack
	case ']':
		typ = TokenRBrack
	case ';':
		typ = TokenSemicolon
	case ',':
		typ = TokenComma
	case '-':
		typ = TokenDash
	}
	return l.token(typ, startPos, startLine, startCol)
}

// token builds a token whose literal is the raw source text since startPos.
func (l *Lexer) token(typ TokenType, startPos, startLine, startCol int) Token {
	return Token{
		Type:    typ,
		Literal: l.input[startPos:l.pos],
		Span:    Span{Start: startPos, End: l.pos},
		Line:    startLine,
		Col:     startCol,
	}
}

// scanString reads a double-quoted string. There are no escape sequences;
// an unterminated string runs to the end of the input.
func (l *Lexer) scanString(startPos, startLine, startCol int) Token {
	l.advance() // opening quote
	contentStart := l.pos
	for l.pos < len(l.input) && l.peek() != '"' {
		l.advance()
	}
	content := l.input[contentStart:l.pos]
	l.advance() // closing quote, no-op at end of input
	return Token{
		Type:    TokenString,
		Literal: content,
		Span:    Span{Start: startPos, End: l.pos},
		Line:    startLine,
		Col:     startCol,
	}
}

// scanNumber reads an unsigned run of decimal digits.
func (l *Lexer) scanNumber(startPos, startLine, startCol int) Token {
	for l.pos < len(l.input) {
		r := l.peek()
		if r < '0' || r > '9' {
			break
		}
		l.advance()
	}
	return l.token(TokenNumber, startPos, startLine, startCol)
}

// scanIdent reads an identifier, keyword, or clause prefix. A clause
// prefix is only recognised when a colon immediately follows the word;
// the colon becomes part of the token.
func (l *Lexer) scanIdent(startPos, startLine, startCol int) Token {
	for l.pos < len(l.input) && isIdentPart(l.peek()) {
		l.advance()
	}
	lit := l.input[startPos:l.pos]

	if l.peek() == ':' {
		if typ, ok := lookupClausePrefix(lit); ok {
			l.advance()
			return l.token(typ, startPos, startLine, startCol)
		}
	}
	return l.token(LookupKeyword(lit), startPos, startLine, startCol)
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
