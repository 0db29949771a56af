// Package constraint parses single-property constraint strings such as
// "> 10", "5..10" or "in (1, 2, 3)" into predicates over typed values.
package constraint

import (
	"fmt"
	"strings"

	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/schema"
)

// Op identifies the comparison a Predicate performs.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpRange
	OpIn
	OpNotIn
	OpIsNull
	OpIsNotNull
)

var opText = map[Op]string{
	OpEq: "=", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpIn: "in", OpNotIn: "not in", OpIsNull: "is null", OpIsNotNull: "is not null",
}

// Truth is a three-valued logic result.
type Truth int

const (
	Unknown Truth = iota
	False
	True
)

func (t Truth) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "unknown"
}

func truth(b bool) Truth {
	if b {
		return True
	}
	return False
}

// Predicate is a parsed constraint bound to a value type. It is immutable
// and safe for concurrent use.
type Predicate struct {
	source    string
	valueType schema.ValueType
	op        Op
	operands  []schema.Value
}

// Source returns the constraint text the predicate was parsed from.
func (p *Predicate) Source() string { return p.source }

// Op returns the comparison operator.
func (p *Predicate) Op() Op { return p.op }

// Operands returns the literal operands, two for a range.
func (p *Predicate) Operands() []schema.Value {
	out := make([]schema.Value, len(p.operands))
	copy(out, p.operands)
	return out
}

// Test evaluates the predicate with SQL semantics: comparisons against
// null are Unknown, and only "is null" / "is not null" can match null.
func (p *Predicate) Test(v schema.Value) Truth {
	switch p.op {
	case OpIsNull:
		return truth(v.IsNull())
	case OpIsNotNull:
		return truth(!v.IsNull())
	}
	if v.IsNull() {
		return Unknown
	}

	cmp := func(operand schema.Value) (int, bool) {
		c, err := schema.Compare(v, operand)
		return c, err == nil
	}

	switch p.op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		c, ok := cmp(p.operands[0])
		if !ok {
			return False
		}
		switch p.op {
		case OpEq:
			return truth(c == 0)
		case OpNe:
			return truth(c != 0)
		case OpLt:
			return truth(c < 0)
		case OpLe:
			return truth(c <= 0)
		case OpGt:
			return truth(c > 0)
		}
		return truth(c >= 0)

	case OpRange:
		lo, ok1 := cmp(p.operands[0])
		hi, ok2 := cmp(p.operands[1])
		return truth(ok1 && ok2 && lo >= 0 && hi <= 0)

	case OpIn, OpNotIn:
		found := false
		for _, operand := range p.operands {
			if schema.Equal(v, operand) {
				found = true
				break
			}
		}
		if p.op == OpIn {
			return truth(found)
		}
		return truth(!found)
	}
	return Unknown
}

// Evaluate reports whether v satisfies the predicate. Unknown is false.
func (p *Predicate) Evaluate(v schema.Value) bool {
	return p.Test(v) == True
}

// String renders the predicate in canonical form.
func (p *Predicate) String() string {
	switch p.op {
	case OpIsNull, OpIsNotNull:
		return opText[p.op]
	case OpRange:
		return fmt.Sprintf("%s..%s", p.operands[0], p.operands[1])
	case OpIn, OpNotIn:
		parts := make([]string, len(p.operands))
		for i, v := range p.operands {
			parts[i] = literalText(v)
		}
		return fmt.Sprintf("%s (%s)", opText[p.op], strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s %s", opText[p.op], literalText(p.operands[0]))
}

func literalText(v schema.Value) string {
	if v.Type().IsNumeric() || v.Type() == schema.TypeBool {
		return v.String()
	}
	return fmt.Sprintf("'%s'", strings.ReplaceAll(v.String(), "'", `\'`))
}

// Conjunction is the implicit AND of a property's validators.
type Conjunction []*Predicate

// Test combines member results with three-valued AND.
func (c Conjunction) Test(v schema.Value) Truth {
	result := True
	for _, p := range c {
		switch p.Test(v) {
		case False:
			return False
		case Unknown:
			result = Unknown
		}
	}
	return result
}

// Evaluate reports whether every member is true.
func (c Conjunction) Evaluate(v schema.Value) bool {
	return c.Test(v) == True
}

// Failing returns the members that evaluate to False for v, in order.
func (c Conjunction) Failing(v schema.Value) []*Predicate {
	var out []*Predicate
	for _, p := range c {
		if p.Test(v) == False {
			out = append(out, p)
		}
	}
	return out
}

// ParseAll parses each expression against vt. The first error aborts.
func ParseAll(exprs []string, vt schema.ValueType) (Conjunction, error) {
	out := make(Conjunction, 0, len(exprs))
	for _, e := range exprs {
		p, err := Parse(e, vt)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func malformed(expr string, tok token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return errs.New(errs.MalformedConstraint, "invalid constraint %q: %s", expr, msg).WithFragment(tok.text())
}
