// Package autocomplete provides context-aware completions for FQL.
package autocomplete

import (
	"strings"

	"github.com/matthewbaird/reportfilter/internal/fql"
	"github.com/matthewbaird/reportfilter/internal/repl/meta"
	"github.com/matthewbaird/reportfilter/internal/tablemap"
)

// CompletionItem is a single autocomplete suggestion.
type CompletionItem struct {
	Label      string `json:"label"`
	Kind       string `json:"kind"` // "clause", "entity", "operator", "keyword", "value", "punctuation", "command"
	Detail     string `json:"detail,omitempty"`
	InsertText string `json:"insert_text,omitempty"`
}

// Engine completes from the in-memory table mapping.
type Engine struct {
	mapping *tablemap.Mapping
}

// New creates an autocomplete engine backed by the given mapping.
func New(mapping *tablemap.Mapping) *Engine {
	return &Engine{mapping: mapping}
}

var clauses = []string{"Filter:", "CrossFilter:"}

// conditionStart is offered where a condition may begin.
var conditionStart = []string{"NOT", "IN", "IS NULL", "IS NOT NULL", "(", "!=", ">", "<", ">=", "<="}

var literalKeywords = []string{"today", "yesterday", "tomorrow", "current_user"}

// afterValue is offered once a complete value has been typed.
var afterValue = []string{"AND", "OR", "]"}

// Complete returns suggestions for text with the cursor at the given byte offset.
func (e *Engine) Complete(text string, cursor int) []CompletionItem {
	if cursor > len(text) || cursor < 0 {
		cursor = len(text)
	}
	prefix := text[:cursor]

	if trimmed := strings.TrimLeft(prefix, " \t"); strings.HasPrefix(trimmed, ":") {
		if strings.ContainsAny(trimmed, " \t") {
			return nil
		}
		return filterItems(meta.Commands, strings.ToLower(trimmed), "command")
	}

	tokens := fql.NewLexer(prefix).Tokenize()
	tokens = tokens[:len(tokens)-1] // EOF

	// An identifier touching the cursor is still being typed.
	partial := ""
	if n := len(tokens); n > 0 {
		last := tokens[n-1]
		if last.Type == fql.TokenIdent && last.Span.End == cursor {
			partial = strings.ToLower(last.Literal)
			tokens = tokens[:n-1]
		}
	}
	if n := len(tokens); n > 0 && tokens[n-1].Type == fql.TokenString {
		if raw := tokens[n-1].Span.Text(prefix); len(raw) < 2 || !strings.HasSuffix(raw, `"`) {
			return nil // inside an unterminated string
		}
	}

	if insideBrackets(tokens) {
		return e.completeCondition(tokens, partial)
	}
	return e.completeClause(tokens, partial)
}

func (e *Engine) completeClause(tokens []fql.Token, partial string) []CompletionItem {
	if len(tokens) == 0 {
		return filterItems(clauses, partial, "clause")
	}
	last := tokens[len(tokens)-1]
	switch last.Type {
	case fql.TokenLT:
		// The entity pair lexes as one identifier; complete the target
		// once the dash is typed.
		if _, target, ok := strings.Cut(partial, "-"); ok {
			return e.completeEntities(target)
		}
		return e.completeEntities(partial)
	case fql.TokenCrossFilter:
		return filterItems([]string{"<"}, partial, "punctuation")
	case fql.TokenSemicolon:
		return filterItems([]string{"CrossFilter:"}, partial, "clause")
	case fql.TokenRBrack:
		return filterItems([]string{";"}, partial, "punctuation")
	case fql.TokenIdent:
		if len(tokens) >= 2 && tokens[len(tokens)-2].Type == fql.TokenLT {
			return filterItems([]string{">"}, partial, "punctuation")
		}
		return filterItems([]string{"["}, partial, "punctuation")
	}
	return nil
}

func (e *Engine) completeCondition(tokens []fql.Token, partial string) []CompletionItem {
	last := tokens[len(tokens)-1]
	switch {
	case last.Type == fql.TokenLBrack, last.Type == fql.TokenAnd, last.Type == fql.TokenOr,
		last.Type == fql.TokenNot, last.Type == fql.TokenLParen:
		items := filterItems(conditionStart, partial, "operator")
		return append(items, filterItems(literalKeywords, partial, "value")...)
	case last.Type.IsCompOp():
		return filterItems(literalKeywords, partial, "value")
	case last.Type == fql.TokenIs:
		return filterItems([]string{"NULL", "NOT NULL"}, partial, "keyword")
	case last.Type == fql.TokenIn:
		return filterItems([]string{"("}, partial, "punctuation")
	case last.Type == fql.TokenString, last.Type == fql.TokenNumber, last.Type == fql.TokenNull,
		last.Type == fql.TokenRParen, last.Type == fql.TokenToday, last.Type == fql.TokenYesterday,
		last.Type == fql.TokenTomorrow, last.Type == fql.TokenCurrentUser, last.Type == fql.TokenIdent:
		if insideParens(tokens) {
			return filterItems([]string{",", ")", "AND", "OR"}, partial, "keyword")
		}
		return filterItems(afterValue, partial, "keyword")
	}
	return nil
}

func (e *Engine) completeEntities(partial string) []CompletionItem {
	var items []CompletionItem
	for _, name := range e.mapping.Entities() {
		if partial == "" || strings.HasPrefix(strings.ToLower(name), partial) {
			items = append(items, CompletionItem{
				Label:  name,
				Kind:   "entity",
				Detail: e.mapping.TableName(name),
			})
		}
	}
	return items
}

// ── Helpers ─────────────────────────────────────────────────────────────────

func filterItems(candidates []string, partial, kind string) []CompletionItem {
	var items []CompletionItem
	for _, c := range candidates {
		if partial == "" || strings.HasPrefix(strings.ToLower(c), partial) {
			items = append(items, CompletionItem{
				Label: c,
				Kind:  kind,
			})
		}
	}
	return items
}

func insideBrackets(tokens []fql.Token) bool {
	depth := 0
	for _, t := range tokens {
		switch t.Type {
		case fql.TokenLBrack:
			depth++
		case fql.TokenRBrack:
			depth--
		}
	}
	return depth > 0
}

// insideParens reports whether the innermost open group is an IN list.
func insideParens(tokens []fql.Token) bool {
	depth := 0
	for i := len(tokens) - 1; i >= 0; i-- {
		switch tokens[i].Type {
		case fql.TokenRParen:
			depth++
		case fql.TokenLParen:
			if depth == 0 {
				return i > 0 && tokens[i-1].Type == fql.TokenIn
			}
			depth--
		case fql.TokenLBrack:
			return false
		}
	}
	return false
}
