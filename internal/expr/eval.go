package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aidanlsb/moltrack/internal/dates"
	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/schema"
)

// EvalOption configures a single evaluation.
type EvalOption func(*evaluator)

// WithDefaults supplies values for fields missing from the record. A key
// mapped to nil makes the field evaluate to null instead of failing.
func WithDefaults(defaults map[string]interface{}) EvalOption {
	return func(ev *evaluator) {
		ev.defaults = defaults
	}
}

// WithClock overrides the time source used by today().
func WithClock(now func() time.Time) EvalOption {
	return func(ev *evaluator) {
		ev.now = now
	}
}

type evaluator struct {
	rule     *Rule
	record   map[string]interface{}
	defaults map[string]interface{}
	now      func() time.Time
}

func (ev *evaluator) errorf(n Node, format string, args ...any) error {
	return errs.New(errs.EvaluationError, format, args...).WithFragment(n.String())
}

func (ev *evaluator) lookup(id *Ident) (interface{}, error) {
	if v, ok := ev.record[id.Name]; ok {
		return normalize(v), nil
	}
	if v, ok := ev.defaults[id.Name]; ok {
		return normalize(v), nil
	}
	return nil, errs.New(errs.EvaluationError, "field %q is not present in the record", id.Name).WithFragment(id.Name)
}

// normalize maps record values onto the evaluator's value domain:
// nil, bool, float64, string, time.Time and []interface{}.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case schema.Value:
		return normalize(x.Native())
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case uuid.UUID:
		return x.String()
	case []string:
		out := make([]interface{}, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = normalize(item)
		}
		return out
	}
	return v
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	case time.Time:
		return "date"
	case []interface{}:
		return "list"
	}
	return fmt.Sprintf("%T", v)
}

func (ev *evaluator) eval(n Node) (interface{}, error) {
	switch x := n.(type) {
	case *Literal:
		return x.Value, nil
	case *Ident:
		return ev.lookup(x)
	case *List:
		out := make([]interface{}, len(x.Items))
		for i, item := range x.Items {
			v, err := ev.eval(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *Unary:
		v, err := ev.eval(x.Operand)
		if err != nil {
			return nil, err
		}
		if x.Op == TokenBang {
			b, ok := v.(bool)
			if !ok {
				return nil, ev.errorf(x, "'!' expects a bool, got %s", typeName(v))
			}
			return !b, nil
		}
		f, ok := v.(float64)
		if !ok {
			return nil, ev.errorf(x, "unary '-' expects a number, got %s", typeName(v))
		}
		return -f, nil
	case *Conditional:
		c, err := ev.eval(x.Cond)
		if err != nil {
			return nil, err
		}
		b, ok := c.(bool)
		if !ok {
			return nil, ev.errorf(x, "condition must be a bool, got %s", typeName(c))
		}
		if b {
			return ev.eval(x.Then)
		}
		return ev.eval(x.Else)
	case *Call:
		args := make([]interface{}, len(x.Args))
		for i, arg := range x.Args {
			v, err := ev.eval(arg)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return x.Func.call(ev, x, args)
	case *Binary:
		return ev.evalBinary(x)
	}
	return nil, fmt.Errorf("unknown node %T", n)
}

func (ev *evaluator) evalBinary(x *Binary) (interface{}, error) {
	if x.Op == TokenAnd || x.Op == TokenOr {
		return ev.evalLogical(x)
	}

	l, err := ev.eval(x.Left)
	if err != nil {
		return nil, err
	}
	r, err := ev.eval(x.Right)
	if err != nil {
		return nil, err
	}

	switch x.Op {
	case TokenEqEq, TokenBangEq:
		eq, err := ev.equal(x, l, r)
		if err != nil {
			return nil, err
		}
		return eq == (x.Op == TokenEqEq), nil

	case TokenLt, TokenLte, TokenGt, TokenGte:
		c, err := ev.compare(x, l, r)
		if err != nil {
			return nil, err
		}
		switch x.Op {
		case TokenLt:
			return c < 0, nil
		case TokenLte:
			return c <= 0, nil
		case TokenGt:
			return c > 0, nil
		}
		return c >= 0, nil

	case TokenIn:
		switch coll := r.(type) {
		case []interface{}:
			for _, item := range coll {
				if eq, err := ev.equal(x, l, item); err == nil && eq {
					return true, nil
				}
			}
			return false, nil
		case string:
			s, ok := l.(string)
			if !ok {
				return nil, ev.errorf(x, "'in' on a string expects a string, got %s", typeName(l))
			}
			return strings.Contains(coll, s), nil
		}
		return nil, ev.errorf(x, "'in' expects a list, got %s", typeName(r))
	}

	return ev.arith(x, l, r)
}

func (ev *evaluator) evalLogical(x *Binary) (interface{}, error) {
	l, err := ev.eval(x.Left)
	if err != nil {
		return nil, err
	}
	lb, ok := l.(bool)
	if !ok {
		return nil, ev.errorf(x, "%s expects bool operands, got %s", opSymbol[x.Op], typeName(l))
	}
	if x.Op == TokenAnd && !lb {
		return false, nil
	}
	if x.Op == TokenOr && lb {
		return true, nil
	}
	r, err := ev.eval(x.Right)
	if err != nil {
		return nil, err
	}
	rb, ok := r.(bool)
	if !ok {
		return nil, ev.errorf(x, "%s expects bool operands, got %s", opSymbol[x.Op], typeName(r))
	}
	return rb, nil
}

func (ev *evaluator) arith(x *Binary, l, r interface{}) (interface{}, error) {
	if x.Op == TokenPlus {
		if ls, ok := l.(string); ok {
			if rs, ok := r.(string); ok {
				return ls + rs, nil
			}
		}
		if ll, ok := l.([]interface{}); ok {
			if rl, ok := r.([]interface{}); ok {
				return append(append([]interface{}{}, ll...), rl...), nil
			}
		}
	}
	lf, lok := l.(float64)
	rf, rok := r.(float64)
	if !lok || !rok {
		return nil, ev.errorf(x, "%s expects numbers, got %s and %s", opSymbol[x.Op], typeName(l), typeName(r))
	}
	switch x.Op {
	case TokenPlus:
		return lf + rf, nil
	case TokenMinus:
		return lf - rf, nil
	case TokenStar:
		return lf * rf, nil
	case TokenSlash:
		if rf == 0 {
			return nil, ev.errorf(x, "division by zero")
		}
		return lf / rf, nil
	case TokenPercent:
		if rf == 0 {
			return nil, ev.errorf(x, "modulo by zero")
		}
		return math.Mod(lf, rf), nil
	}
	return nil, ev.errorf(x, "unsupported operator")
}

// coerceTimes lets a date compare against an ISO string.
func coerceTimes(l, r interface{}) (interface{}, interface{}) {
	lt, lIsTime := l.(time.Time)
	rt, rIsTime := r.(time.Time)
	switch {
	case lIsTime && !rIsTime:
		if s, ok := r.(string); ok {
			if t, err := dates.ParseDatetime(s); err == nil {
				return lt, t
			}
		}
	case rIsTime && !lIsTime:
		if s, ok := l.(string); ok {
			if t, err := dates.ParseDatetime(s); err == nil {
				return t, rt
			}
		}
	}
	return l, r
}

func (ev *evaluator) equal(x *Binary, l, r interface{}) (bool, error) {
	if l == nil || r == nil {
		return l == nil && r == nil, nil
	}
	l, r = coerceTimes(l, r)
	switch lv := l.(type) {
	case bool:
		rv, ok := r.(bool)
		return ok && lv == rv, nil
	case []interface{}:
		rv, ok := r.([]interface{})
		if !ok || len(lv) != len(rv) {
			return false, nil
		}
		for i := range lv {
			if eq, _ := ev.equal(x, lv[i], rv[i]); !eq {
				return false, nil
			}
		}
		return true, nil
	}
	c, err := ev.compare(x, l, r)
	if err != nil {
		return false, nil
	}
	return c == 0, nil
}

func (ev *evaluator) compare(x *Binary, l, r interface{}) (int, error) {
	l, r = coerceTimes(l, r)
	switch lv := l.(type) {
	case float64:
		if rv, ok := r.(float64); ok {
			switch {
			case lv < rv:
				return -1, nil
			case lv > rv:
				return 1, nil
			}
			return 0, nil
		}
	case string:
		if rv, ok := r.(string); ok {
			return strings.Compare(lv, rv), nil
		}
	case time.Time:
		if rv, ok := r.(time.Time); ok {
			return lv.Compare(rv), nil
		}
	}
	return 0, ev.errorf(x, "cannot compare %s with %s", typeName(l), typeName(r))
}
