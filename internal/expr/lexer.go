package expr

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a lexer token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenNumber
	TokenString
	TokenTrue
	TokenFalse
	TokenNull
	TokenIn
	TokenAnd      // &&
	TokenOr       // ||
	TokenBang     // !
	TokenEqEq     // ==
	TokenBangEq   // !=
	TokenLt       // <
	TokenLte      // <=
	TokenGt       // >
	TokenGte      // >=
	TokenPlus     // +
	TokenMinus    // -
	TokenStar     // *
	TokenSlash    // /
	TokenPercent  // %
	TokenQuestion // ?
	TokenColon    // :
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenComma    // ,
	TokenDot      // .
	TokenError
)

// Token represents a lexer token.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

var keywords = map[string]TokenType{
	"true":  TokenTrue,
	"false": TokenFalse,
	"null":  TokenNull,
	"in":    TokenIn,
}

// Lexer tokenizes an expression.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]
	next := byte(0)
	if l.pos+1 < len(l.input) {
		next = l.input[l.pos+1]
	}

	single := func(t TokenType) Token {
		l.pos++
		return Token{Type: t, Value: string(ch), Pos: start}
	}
	double := func(t TokenType) Token {
		l.pos += 2
		return Token{Type: t, Value: l.input[start:l.pos], Pos: start}
	}

	switch ch {
	case '&':
		if next == '&' {
			return double(TokenAnd)
		}
		l.pos++
		return Token{Type: TokenError, Value: "&", Pos: start}
	case '|':
		if next == '|' {
			return double(TokenOr)
		}
		l.pos++
		return Token{Type: TokenError, Value: "|", Pos: start}
	case '!':
		if next == '=' {
			return double(TokenBangEq)
		}
		return single(TokenBang)
	case '=':
		if next == '=' {
			return double(TokenEqEq)
		}
		l.pos++
		return Token{Type: TokenError, Value: "=", Pos: start}
	case '<':
		if next == '=' {
			return double(TokenLte)
		}
		return single(TokenLt)
	case '>':
		if next == '=' {
			return double(TokenGte)
		}
		return single(TokenGt)
	case '+':
		return single(TokenPlus)
	case '-':
		return single(TokenMinus)
	case '*':
		return single(TokenStar)
	case '/':
		return single(TokenSlash)
	case '%':
		return single(TokenPercent)
	case '?':
		return single(TokenQuestion)
	case ':':
		return single(TokenColon)
	case '(':
		return single(TokenLParen)
	case ')':
		return single(TokenRParen)
	case '[':
		return single(TokenLBracket)
	case ']':
		return single(TokenRBracket)
	case ',':
		return single(TokenComma)
	case '.':
		if isDigit(next) {
			return l.scanNumber()
		}
		return single(TokenDot)
	case '\'', '"':
		return l.scanString(false)
	}

	if (ch == 'r' || ch == 'R') && (next == '\'' || next == '"') {
		l.pos++
		return l.scanString(true)
	}
	if isDigit(ch) {
		return l.scanNumber()
	}
	if isIdentStart(ch) {
		for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
			l.pos++
		}
		word := l.input[start:l.pos]
		if t, ok := keywords[word]; ok {
			return Token{Type: t, Value: word, Pos: start}
		}
		return Token{Type: TokenIdent, Value: word, Pos: start}
	}

	l.pos++
	return Token{Type: TokenError, Value: string(ch), Pos: start}
}

// scanString reads a quoted literal starting at the quote. Raw strings keep
// backslashes verbatim.
func (l *Lexer) scanString(raw bool) Token {
	start := l.pos
	if raw {
		start--
	}
	quote := l.input[l.pos]
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == quote {
			l.pos++
			return Token{Type: TokenString, Value: b.String(), Pos: start}
		}
		if ch == '\\' && !raw && l.pos+1 < len(l.input) {
			l.pos++
			switch esc := l.input[l.pos]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(esc)
			}
			l.pos++
			continue
		}
		b.WriteByte(ch)
		l.pos++
	}
	return Token{Type: TokenError, Value: l.input[start:], Pos: start}
}

func (l *Lexer) scanNumber() Token {
	start := l.pos
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1]) {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
				l.pos++
			}
		} else {
			l.pos = save
		}
	}
	return Token{Type: TokenNumber, Value: l.input[start:l.pos], Pos: start}
}

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of input"
	case TokenIdent:
		return "identifier"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenError:
		return "invalid token"
	}
	return fmt.Sprintf("token(%d)", int(t))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
