// Package guardrail validates generated SQL before it is allowed anywhere
// near a database. The checks are deterministic and purely lexical; the
// same input always yields the same verdict.
package guardrail

// TokenKind classifies lexed SQL tokens.
type TokenKind int

const (
	// TokenEOF marks the end of input.
	TokenEOF TokenKind = iota
	// TokenWord is a bare identifier or keyword. Keyword checks apply
	// only to this kind.
	TokenWord
	// TokenQuotedIdent is a double-quoted identifier. Never a keyword.
	TokenQuotedIdent
	// TokenString is a single-quoted string literal. Never a keyword.
	TokenString
	// TokenNumber is a numeric literal.
	TokenNumber
	// TokenSymbol is an operator or punctuation character.
	TokenSymbol
	// TokenSemicolon is a statement terminator.
	TokenSemicolon
)

// Token is one lexed SQL token.
type Token struct {
	Kind    TokenKind
	Literal string
}
