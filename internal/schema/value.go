package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aidanlsb/moltrack/internal/dates"
	"github.com/aidanlsb/moltrack/internal/errs"
)

// Qualifier marks a censored numeric measurement such as "<5".
type Qualifier int

const (
	QualEqual Qualifier = iota
	QualLess
	QualGreater
)

func (q Qualifier) String() string {
	switch q {
	case QualLess:
		return "<"
	case QualGreater:
		return ">"
	}
	return "="
}

// Value is a typed dynamic attribute value. The zero Value is null.
type Value struct {
	typ   ValueType
	value interface{}
	qual  Qualifier
}

// String creates a string Value.
func String(s string) Value {
	return Value{typ: TypeString, value: s}
}

// Double creates a double Value.
func Double(f float64) Value {
	return Value{typ: TypeDouble, value: f}
}

// Int creates an integer Value.
func Int(i int64) Value {
	return Value{typ: TypeInt, value: i}
}

// Bool creates a boolean Value.
func Bool(b bool) Value {
	return Value{typ: TypeBool, value: b}
}

// Time creates a datetime Value.
func Time(t time.Time) Value {
	return Value{typ: TypeDatetime, value: t}
}

// UUID creates a uuid Value.
func UUID(u uuid.UUID) Value {
	return Value{typ: TypeUUID, value: u}
}

// Null creates a null Value.
func Null() Value {
	return Value{}
}

// WithQualifier returns a copy of v carrying q. Only numeric values keep a
// qualifier.
func (v Value) WithQualifier(q Qualifier) Value {
	if v.typ.IsNumeric() {
		v.qual = q
	}
	return v
}

// Qualifier returns the numeric qualifier, QualEqual when none was given.
func (v Value) Qualifier() Qualifier { return v.qual }

// Type returns the value type, or "" for null.
func (v Value) Type() ValueType { return v.typ }

// IsNull returns true if the value is null.
func (v Value) IsNull() bool { return v.value == nil }

// AsString returns the value as a string, if it is one.
func (v Value) AsString() (string, bool) {
	s, ok := v.value.(string)
	return s, ok
}

// AsFloat returns numeric values as float64.
func (v Value) AsFloat() (float64, bool) {
	switch n := v.value.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// AsInt returns the value as an int64, if it is an integer.
func (v Value) AsInt() (int64, bool) {
	i, ok := v.value.(int64)
	return i, ok
}

// AsBool returns the value as a boolean, if it is one.
func (v Value) AsBool() (bool, bool) {
	b, ok := v.value.(bool)
	return b, ok
}

// AsTime returns the value as a time, if it is a datetime.
func (v Value) AsTime() (time.Time, bool) {
	t, ok := v.value.(time.Time)
	return t, ok
}

// AsUUID returns the value as a uuid, if it is one.
func (v Value) AsUUID() (uuid.UUID, bool) {
	u, ok := v.value.(uuid.UUID)
	return u, ok
}

// Raw returns the underlying Go value suitable for binding as a SQL
// argument. Datetimes render as RFC3339 text and uuids as canonical text.
func (v Value) Raw() interface{} {
	switch x := v.value.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case uuid.UUID:
		return x.String()
	}
	return v.value
}

// Native returns the underlying Go value without any rendering.
func (v Value) Native() interface{} {
	return v.value
}

func (v Value) String() string {
	if v.IsNull() {
		return "null"
	}
	prefix := ""
	if v.qual != QualEqual {
		prefix = v.qual.String()
	}
	switch x := v.value.(type) {
	case time.Time:
		return prefix + dates.Format(x)
	case float64:
		return prefix + strconv.FormatFloat(x, 'g', -1, 64)
	}
	return prefix + fmt.Sprint(v.value)
}

// MarshalJSON renders the underlying value.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.qual != QualEqual {
		return json.Marshal(v.String())
	}
	return json.Marshal(v.Raw())
}

func mismatch(vt ValueType, raw interface{}) error {
	return errs.New(errs.TypeMismatch, "expected %s, got %v (%T)", vt, raw, raw).WithFragment(fmt.Sprint(raw))
}

// Coerce converts a raw decoded value (from JSON, YAML, CLI text or Go
// code) to a Value of type vt. Strings are parsed; numeric strings may carry
// a leading "<", ">" or "=" qualifier. Nil coerces to Null.
func Coerce(vt ValueType, raw interface{}) (Value, error) {
	if raw == nil {
		return Null(), nil
	}
	if existing, ok := raw.(Value); ok {
		if f, ok := existing.AsFloat(); ok && !finite(f) {
			return Value{}, mismatch(vt, f)
		}
		if existing.IsNull() || existing.typ == vt {
			return existing, nil
		}
		if vt == TypeDouble && existing.typ == TypeInt {
			f, _ := existing.AsFloat()
			return Double(f).WithQualifier(existing.qual), nil
		}
		return Coerce(vt, existing.Native())
	}

	switch vt {
	case TypeString:
		if s, ok := raw.(string); ok {
			return String(s), nil
		}
		return Value{}, mismatch(vt, raw)

	case TypeDouble:
		if s, ok := raw.(string); ok {
			q, rest := splitQualifier(s)
			f, err := strconv.ParseFloat(rest, 64)
			if err != nil || !finite(f) {
				return Value{}, mismatch(vt, raw)
			}
			return Double(f).WithQualifier(q), nil
		}
		if f, ok := toFloat(raw); ok && finite(f) {
			return Double(f), nil
		}
		return Value{}, mismatch(vt, raw)

	case TypeInt:
		if s, ok := raw.(string); ok {
			q, rest := splitQualifier(s)
			i, err := strconv.ParseInt(rest, 10, 64)
			if err != nil {
				return Value{}, mismatch(vt, raw)
			}
			return Int(i).WithQualifier(q), nil
		}
		switch n := raw.(type) {
		case int:
			return Int(int64(n)), nil
		case int64:
			return Int(n), nil
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return Int(i), nil
			}
		}
		if f, ok := toFloat(raw); ok {
			// float64(math.MaxInt64) rounds up to 2^63, which is out of range.
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return Value{}, mismatch(vt, raw)
			}
			return Int(int64(f)), nil
		}
		return Value{}, mismatch(vt, raw)

	case TypeBool:
		switch b := raw.(type) {
		case bool:
			return Bool(b), nil
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true", "yes", "1":
				return Bool(true), nil
			case "false", "no", "0":
				return Bool(false), nil
			}
		}
		return Value{}, mismatch(vt, raw)

	case TypeDatetime:
		switch t := raw.(type) {
		case time.Time:
			return Time(t), nil
		case string:
			parsed, err := dates.ParseDatetime(t)
			if err != nil {
				return Value{}, mismatch(vt, raw)
			}
			return Time(parsed), nil
		}
		return Value{}, mismatch(vt, raw)

	case TypeUUID:
		switch u := raw.(type) {
		case uuid.UUID:
			return UUID(u), nil
		case string:
			parsed, err := uuid.Parse(strings.TrimSpace(u))
			if err != nil {
				return Value{}, mismatch(vt, raw)
			}
			return UUID(parsed), nil
		}
		return Value{}, mismatch(vt, raw)
	}
	return Value{}, errs.New(errs.TypeMismatch, "unknown value type %q", vt)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func splitQualifier(s string) (Qualifier, string) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "<"):
		return QualLess, strings.TrimSpace(s[1:])
	case strings.HasPrefix(s, ">"):
		return QualGreater, strings.TrimSpace(s[1:])
	case strings.HasPrefix(s, "="):
		return QualEqual, strings.TrimSpace(s[1:])
	}
	return QualEqual, s
}

func toFloat(raw interface{}) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Infer builds a Value from a raw decoded value without a declared type.
// JSON numbers become doubles unless integral.
func Infer(raw interface{}) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case time.Time:
		return Time(x)
	case uuid.UUID:
		return UUID(x)
	case int:
		return Int(int64(x))
	case int64:
		return Int(x)
	}
	if f, ok := toFloat(raw); ok {
		return Double(f)
	}
	return String(fmt.Sprint(raw))
}

// Compare orders two non-null values of compatible type. Integers and
// doubles compare numerically. Qualifiers are ignored.
func Compare(a, b Value) (int, error) {
	if a.IsNull() || b.IsNull() {
		return 0, errs.New(errs.TypeMismatch, "cannot order null values")
	}
	if af, ok := a.AsFloat(); ok {
		bf, ok := b.AsFloat()
		if !ok {
			return 0, errs.New(errs.TypeMismatch, "cannot compare %s with %s", a.typ, b.typ)
		}
		if math.IsNaN(af) || math.IsNaN(bf) {
			return 0, errs.New(errs.TypeMismatch, "NaN is not ordered")
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		}
		return 0, nil
	}
	if a.typ != b.typ {
		return 0, errs.New(errs.TypeMismatch, "cannot compare %s with %s", a.typ, b.typ)
	}
	switch x := a.value.(type) {
	case string:
		return strings.Compare(x, b.value.(string)), nil
	case bool:
		y := b.value.(bool)
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		}
		return 1, nil
	case time.Time:
		return x.Compare(b.value.(time.Time)), nil
	case uuid.UUID:
		return strings.Compare(x.String(), b.value.(uuid.UUID).String()), nil
	}
	return 0, errs.New(errs.TypeMismatch, "values of type %s are not ordered", a.typ)
}

// Equal reports whether a and b hold the same value. Null equals only null.
func Equal(a, b Value) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	c, err := Compare(a, b)
	return err == nil && c == 0
}
