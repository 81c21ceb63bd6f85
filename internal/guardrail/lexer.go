package guardrail

import (
	"fmt"
	"strings"
	"unicode"
)

// lexer tokenizes SQL input. Comments are skipped, strings and quoted
// identifiers keep their content so keyword checks can exclude them.
type lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.readChar()

	return l
}

// tokenize returns all tokens of the input, excluding the trailing EOF.
// Unterminated strings, identifiers, and block comments are errors.
func tokenize(input string) ([]Token, error) {
	l := newLexer(input)

	var tokens []Token

	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}

		if tok.Kind == TokenEOF {
			return tokens, nil
		}

		tokens = append(tokens, tok)
	}
}

func (l *lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // ASCII NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}

	l.pos = l.readPos
	l.readPos++
}

func (l *lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}

	return l.input[l.readPos]
}

func (l *lexer) nextToken() (Token, error) {
	if err := l.skipWhitespaceAndComments(); err != nil {
		return Token{}, err
	}

	switch {
	case l.ch == 0:
		return Token{Kind: TokenEOF}, nil
	case l.ch == ';':
		l.readChar()
		return Token{Kind: TokenSemicolon, Literal: ";"}, nil
	case l.ch == '\'':
		literal, err := l.readString()
		if err != nil {
			return Token{}, err
		}

		return Token{Kind: TokenString, Literal: literal}, nil
	case l.ch == '"':
		literal, err := l.readQuotedIdentifier()
		if err != nil {
			return Token{}, err
		}

		return Token{Kind: TokenQuotedIdent, Literal: literal}, nil
	case isLetter(l.ch) || l.ch == '_':
		return Token{Kind: TokenWord, Literal: l.readWord()}, nil
	case isDigit(l.ch):
		return Token{Kind: TokenNumber, Literal: l.readNumber()}, nil
	case isSymbol(l.ch):
		ch := l.ch
		l.readChar()

		return Token{Kind: TokenSymbol, Literal: string(ch)}, nil
	default:
		return Token{}, fmt.Errorf("illegal character %q", l.ch)
	}
}

func (l *lexer) skipWhitespaceAndComments() error {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}

		// Line comment (-- ...)
		if l.ch == '-' && l.peekChar() == '-' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}

			continue
		}

		// Block comment (/* ... */)
		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar() // skip '/'
			l.readChar() // skip '*'

			closed := false

			for l.ch != 0 {
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar() // skip '*'
					l.readChar() // skip '/'
					closed = true

					break
				}

				l.readChar()
			}

			if !closed {
				return fmt.Errorf("unterminated block comment")
			}

			continue
		}

		return nil
	}
}

// readString reads a single-quoted string literal.
// Doubled single quotes are the escape: 'it''s' -> it's
func (l *lexer) readString() (string, error) {
	l.readChar() // skip opening quote

	var result strings.Builder

	for l.ch != 0 {
		if l.ch == '\'' {
			if l.peekChar() == '\'' {
				result.WriteByte('\'')
				l.readChar() // skip first quote
				l.readChar() // skip second quote

				continue
			}

			l.readChar() // skip closing quote

			return result.String(), nil
		}

		result.WriteByte(l.ch)
		l.readChar()
	}

	return "", fmt.Errorf("unterminated string literal")
}

// readQuotedIdentifier reads a double-quoted identifier.
// Doubled double quotes are the escape: "col""name" -> col"name
func (l *lexer) readQuotedIdentifier() (string, error) {
	l.readChar() // skip opening quote

	var result strings.Builder

	for l.ch != 0 {
		if l.ch == '"' {
			if l.peekChar() == '"' {
				result.WriteByte('"')
				l.readChar() // skip first quote
				l.readChar() // skip second quote

				continue
			}

			l.readChar() // skip closing quote

			return result.String(), nil
		}

		result.WriteByte(l.ch)
		l.readChar()
	}

	return "", fmt.Errorf("unterminated quoted identifier")
}

func (l *lexer) readWord() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '$' {
		l.readChar()
	}

	return l.input[start:l.pos]
}

// readNumber reads a numeric literal (integer, decimal, or scientific).
func (l *lexer) readNumber() string {
	start := l.pos

	for isDigit(l.ch) {
		l.readChar()
	}

	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar() // skip '.'
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()

		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}

		for isDigit(l.ch) {
			l.readChar()
		}
	}

	return l.input[start:l.pos]
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isSymbol(ch byte) bool {
	switch ch {
	case '+', '-', '*', '/', '%', '=', '<', '>', '!', '|', '&', '^', '~',
		'.', ',', '(', ')', '[', ']', ':', '?', '#', '@':
		return true
	default:
		return false
	}
}
