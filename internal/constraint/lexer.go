package constraint

import (
	"strings"
	"unicode"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokNumber
	tokString
	tokWord
	tokOp     // = == != <> < <= > >=
	tokMinus  // -
	tokDotDot // ..
	tokLParen
	tokRParen
	tokComma
	tokError
)

type token struct {
	typ   tokenType
	value string
	pos   int
}

// text is the token as it appeared in the input, used in error messages.
func (t token) text() string {
	if t.typ == tokEOF {
		return "end of input"
	}
	return t.value
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() token {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{typ: tokEOF, pos: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]
	switch {
	case ch == '(':
		l.pos++
		return token{typ: tokLParen, value: "(", pos: start}
	case ch == ')':
		l.pos++
		return token{typ: tokRParen, value: ")", pos: start}
	case ch == ',':
		l.pos++
		return token{typ: tokComma, value: ",", pos: start}
	case ch == '-':
		l.pos++
		return token{typ: tokMinus, value: "-", pos: start}
	case ch == '.' && l.peekByte(1) == '.':
		l.pos += 2
		return token{typ: tokDotDot, value: "..", pos: start}
	case ch == '=' || ch == '!' || ch == '<' || ch == '>':
		return l.scanOp()
	case ch == '\'' || ch == '"':
		return l.scanString(ch)
	case isDigit(ch) || (ch == '.' && isDigit(l.peekByte(1))):
		return l.scanNumber()
	case isWordChar(ch):
		for l.pos < len(l.input) && isWordChar(l.input[l.pos]) {
			l.pos++
		}
		return token{typ: tokWord, value: l.input[start:l.pos], pos: start}
	}
	l.pos++
	return token{typ: tokError, value: string(ch), pos: start}
}

func (l *lexer) peekByte(offset int) byte {
	if l.pos+offset < len(l.input) {
		return l.input[l.pos+offset]
	}
	return 0
}

func (l *lexer) scanOp() token {
	start := l.pos
	two := ""
	if l.pos+1 < len(l.input) {
		two = l.input[l.pos : l.pos+2]
	}
	switch two {
	case "==", "!=", "<>", "<=", ">=":
		l.pos += 2
		return token{typ: tokOp, value: two, pos: start}
	}
	ch := l.input[l.pos]
	l.pos++
	if ch == '!' {
		return token{typ: tokError, value: "!", pos: start}
	}
	return token{typ: tokOp, value: string(ch), pos: start}
}

func (l *lexer) scanString(quote byte) token {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			b.WriteByte(l.input[l.pos+1])
			l.pos += 2
			continue
		}
		if ch == quote {
			l.pos++
			return token{typ: tokString, value: b.String(), pos: start}
		}
		b.WriteByte(ch)
		l.pos++
	}
	return token{typ: tokError, value: l.input[start:], pos: start}
}

func (l *lexer) scanNumber() token {
	start := l.pos
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	// A single dot is a decimal point; ".." is the range separator.
	if l.pos < len(l.input) && l.input[l.pos] == '.' && isDigit(l.peekByte(1)) {
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
	return token{typ: tokNumber, value: l.input[start:l.pos], pos: start}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isWordChar(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || isDigit(ch)
}
