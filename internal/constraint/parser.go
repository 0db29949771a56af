package constraint

import (
	"strings"

	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/schema"
)

type parser struct {
	expr  string
	vt    schema.ValueType
	lexer *lexer
	curr  token
	peek  token
}

// Parse parses a constraint expression. Literals are coerced to vt; a
// literal that does not fit fails with TypeMismatch, any syntax problem
// with MalformedConstraint naming the offending token.
func Parse(expr string, vt schema.ValueType) (*Predicate, error) {
	p := &parser{expr: expr, vt: vt, lexer: &lexer{input: expr}}
	p.advance()
	p.advance()

	pred, err := p.parsePredicate()
	if err != nil {
		return nil, err
	}
	if p.curr.typ != tokEOF {
		return nil, malformed(expr, p.curr, "unexpected trailing %q", p.curr.text())
	}
	pred.source = strings.TrimSpace(expr)
	pred.valueType = vt
	return pred, nil
}

func (p *parser) advance() {
	p.curr = p.peek
	p.peek = p.lexer.next()
}

func (p *parser) isWord(tok token, word string) bool {
	return tok.typ == tokWord && strings.EqualFold(tok.value, word)
}

func (p *parser) expectWord(word string) error {
	if !p.isWord(p.curr, word) {
		return malformed(p.expr, p.curr, "expected %q, got %q", word, p.curr.text())
	}
	p.advance()
	return nil
}

func (p *parser) parsePredicate() (*Predicate, error) {
	switch {
	case p.curr.typ == tokEOF:
		return nil, malformed(p.expr, p.curr, "empty constraint")

	case p.curr.typ == tokError:
		return nil, malformed(p.expr, p.curr, "unexpected character %q", p.curr.value)

	case p.isWord(p.curr, "is"):
		p.advance()
		op := OpIsNull
		if p.isWord(p.curr, "not") {
			op = OpIsNotNull
			p.advance()
		}
		if err := p.expectWord("null"); err != nil {
			return nil, err
		}
		return &Predicate{op: op}, nil

	case p.isWord(p.curr, "in"):
		p.advance()
		return p.parseList(OpIn)

	case p.isWord(p.curr, "not"):
		p.advance()
		if err := p.expectWord("in"); err != nil {
			return nil, err
		}
		return p.parseList(OpNotIn)

	case p.curr.typ == tokOp:
		op := p.curr
		p.advance()
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &Predicate{op: comparisonOp(op.value), operands: []schema.Value{lit}}, nil
	}

	return p.parseRange()
}

func comparisonOp(s string) Op {
	switch s {
	case "!=", "<>":
		return OpNe
	case "<":
		return OpLt
	case "<=":
		return OpLe
	case ">":
		return OpGt
	case ">=":
		return OpGe
	}
	return OpEq
}

// parseRange handles "a-b" and "a..b", both inclusive.
func (p *parser) parseRange() (*Predicate, error) {
	startTok := p.curr
	lo, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	if p.curr.typ != tokMinus && p.curr.typ != tokDotDot {
		return nil, malformed(p.expr, p.curr, "expected operator or range separator after %q", startTok.text())
	}
	p.advance()
	hi, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	if !p.vt.IsNumeric() && p.vt != schema.TypeDatetime {
		return nil, errs.New(errs.TypeMismatch, "range constraints require a numeric or datetime property, not %s", p.vt).WithFragment(p.expr)
	}
	if c, err := schema.Compare(lo, hi); err != nil || c > 0 {
		return nil, malformed(p.expr, startTok, "range lower bound %s exceeds upper bound %s", lo, hi)
	}
	return &Predicate{op: OpRange, operands: []schema.Value{lo, hi}}, nil
}

func (p *parser) parseList(op Op) (*Predicate, error) {
	if p.curr.typ != tokLParen {
		return nil, malformed(p.expr, p.curr, "expected '(' after %s", opText[op])
	}
	p.advance()

	var values []schema.Value
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, lit)
		if p.curr.typ == tokComma {
			p.advance()
			continue
		}
		if p.curr.typ == tokRParen {
			p.advance()
			break
		}
		return nil, malformed(p.expr, p.curr, "expected ',' or ')' in list")
	}
	return &Predicate{op: op, operands: values}, nil
}

// parseLiteral reads one literal, with an optional leading minus for
// numbers, and coerces it to the property's value type.
func (p *parser) parseLiteral() (schema.Value, error) {
	tok := p.curr
	text := tok.value
	switch tok.typ {
	case tokMinus:
		p.advance()
		if p.curr.typ != tokNumber {
			return schema.Value{}, malformed(p.expr, p.curr, "expected number after '-'")
		}
		text = "-" + p.curr.value
	case tokNumber, tokString:
	case tokWord:
		if strings.EqualFold(text, "null") {
			return schema.Value{}, malformed(p.expr, tok, "null is only valid with 'is null' or 'is not null'")
		}
	default:
		return schema.Value{}, malformed(p.expr, tok, "expected a value, got %q", tok.text())
	}
	p.advance()

	if tok.typ == tokString && p.vt.IsNumeric() {
		return schema.Value{}, errs.New(errs.TypeMismatch, "quoted literal %q used with %s property", text, p.vt).WithFragment(text)
	}
	v, err := schema.Coerce(p.vt, text)
	if err != nil {
		return schema.Value{}, errs.New(errs.TypeMismatch, "literal %q is not a valid %s", text, p.vt).WithFragment(text)
	}
	return v, nil
}
