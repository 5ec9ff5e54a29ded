package traceql

import (
	"strings"
	"unicode"
)

// TokenType is the kind of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenString
	TokenColon
	TokenLParen
	TokenRParen
	TokenAnd
	TokenOr
	TokenNot
	TokenCompare // != > >= < <=
	TokenIllegal
)

// Token is one lexical token.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// Lexer splits an expression into tokens.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a Lexer over input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// NextToken returns the next token; TokenEOF repeats at the end.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]
	switch ch {
	case ':':
		l.pos++
		return Token{Type: TokenColon, Value: ":", Pos: start}
	case '(':
		l.pos++
		return Token{Type: TokenLParen, Value: "(", Pos: start}
	case ')':
		l.pos++
		return Token{Type: TokenRParen, Value: ")", Pos: start}
	case '"':
		return l.readString()
	case '!', '>', '<':
		l.pos++
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			l.pos++
		}
		op := l.input[start:l.pos]
		if op == "!" {
			return Token{Type: TokenIllegal, Value: op, Pos: start}
		}
		return Token{Type: TokenCompare, Value: op, Pos: start}
	}

	if isWordChar(ch) {
		return l.readWord()
	}
	l.pos++
	return Token{Type: TokenIllegal, Value: string(ch), Pos: start}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func (l *Lexer) readString() Token {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) && l.input[l.pos] != '"' {
		if l.input[l.pos] == '\\' && l.pos+1 < len(l.input) {
			l.pos++
		}
		b.WriteByte(l.input[l.pos])
		l.pos++
	}
	if l.pos >= len(l.input) {
		return Token{Type: TokenIllegal, Value: l.input[start:], Pos: start}
	}
	l.pos++
	return Token{Type: TokenString, Value: b.String(), Pos: start}
}

func (l *Lexer) readWord() Token {
	start := l.pos
	for l.pos < len(l.input) && isWordChar(l.input[l.pos]) {
		l.pos++
	}
	value := l.input[start:l.pos]

	switch strings.ToUpper(value) {
	case "AND":
		return Token{Type: TokenAnd, Value: "AND", Pos: start}
	case "OR":
		return Token{Type: TokenOr, Value: "OR", Pos: start}
	case "NOT":
		return Token{Type: TokenNot, Value: "NOT", Pos: start}
	}
	return Token{Type: TokenIdent, Value: value, Pos: start}
}

// isWordChar accepts identifier and number characters, so values like
// 0.25, -3 and 2026-10-16T14 lex as one word.
func isWordChar(ch byte) bool {
	r := rune(ch)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || ch == '_' || ch == '-' || ch == '.'
}
