package constraint

import (
	"math"
	"testing"

	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/schema"
)

func TestRangeForms(t *testing.T) {
	for _, expr := range []string{"5..10", "5-10", " 5 .. 10 ", "5 - 10"} {
		t.Run(expr, func(t *testing.T) {
			p, err := Parse(expr, schema.TypeDouble)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", expr, err)
			}
			tests := []struct {
				v    float64
				want bool
			}{
				{5, true},
				{10, true},
				{7.5, true},
				{4.999, false},
				{10.001, false},
			}
			for _, tt := range tests {
				if got := p.Evaluate(schema.Double(tt.v)); got != tt.want {
					t.Errorf("%q.Evaluate(%v) = %v, want %v", expr, tt.v, got, tt.want)
				}
			}
		})
	}
}

func TestNegativeRange(t *testing.T) {
	p, err := Parse("-10--5", schema.TypeInt)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !p.Evaluate(schema.Int(-7)) || p.Evaluate(schema.Int(-4)) {
		t.Errorf("negative range evaluated incorrectly")
	}
	if p.String() != "-10..-5" {
		t.Errorf("String() = %q", p.String())
	}
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		expr string
		vt   schema.ValueType
		v    schema.Value
		want bool
	}{
		{"> 10", schema.TypeInt, schema.Int(11), true},
		{"> 10", schema.TypeInt, schema.Int(10), false},
		{">= 10", schema.TypeInt, schema.Int(10), true},
		{"< 0.5", schema.TypeDouble, schema.Double(0.4), true},
		{"<= -1", schema.TypeDouble, schema.Double(-1), true},
		{"= 3", schema.TypeInt, schema.Int(3), true},
		{"== 3", schema.TypeInt, schema.Int(4), false},
		{"!= 3", schema.TypeInt, schema.Int(4), true},
		{"<> 3", schema.TypeInt, schema.Int(3), false},
		{"in (1, 2, 3)", schema.TypeInt, schema.Int(2), true},
		{"IN (1,2,3)", schema.TypeInt, schema.Int(4), false},
		{"not in (1, 2)", schema.TypeInt, schema.Int(4), true},
		{"in ('a', 'b')", schema.TypeString, schema.String("b"), true},
		{"in (a, b)", schema.TypeString, schema.String("A"), false},
		{"is null", schema.TypeInt, schema.Null(), true},
		{"is not null", schema.TypeInt, schema.Null(), false},
		{"is not null", schema.TypeInt, schema.Int(1), true},
		{"> '2024-01-01'", schema.TypeDatetime, mustTime(t, "2024-02-01"), true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := Parse(tt.expr, tt.vt)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.expr, err)
			}
			if got := p.Evaluate(tt.v); got != tt.want {
				t.Errorf("Evaluate(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func mustTime(t *testing.T, s string) schema.Value {
	t.Helper()
	v, err := schema.Coerce(schema.TypeDatetime, s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestNaNNeverSatisfiesOrderedConstraints(t *testing.T) {
	if _, err := schema.Coerce(schema.TypeDouble, "NaN"); !errs.Is(err, errs.TypeMismatch) {
		t.Fatalf("Coerce(NaN) err = %v, want TypeMismatch", err)
	}
	nan := schema.Double(math.NaN())
	for _, expr := range []string{"5..10", ">= 0", "<= 10", "= 5"} {
		p, err := Parse(expr, schema.TypeDouble)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", expr, err)
		}
		if p.Evaluate(nan) {
			t.Errorf("%q accepted NaN", expr)
		}
	}
}

func TestNullIsUnknown(t *testing.T) {
	for _, expr := range []string{"> 1", "= 1", "!= 1", "in (1)", "not in (1)", "1..2"} {
		p, err := Parse(expr, schema.TypeInt)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", expr, err)
		}
		if got := p.Test(schema.Null()); got != Unknown {
			t.Errorf("%q.Test(null) = %v, want unknown", expr, got)
		}
	}
}

func TestMalformed(t *testing.T) {
	tests := []struct {
		expr     string
		fragment string
	}{
		{"", "end of input"},
		{">", "end of input"},
		{"5", "end of input"},
		{"5 10", "10"},
		{"in 1, 2", "1"},
		{"in (1, 2", "end of input"},
		{"is nul", "nul"},
		{"> 5 extra", "extra"},
		{"10..5", "10"},
		{"& 5", "&"},
		{"! 5", "!"},
		{"= null", "null"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Parse(tt.expr, schema.TypeInt)
			if !errs.Is(err, errs.MalformedConstraint) {
				t.Fatalf("Parse(%q) = %v, want MalformedConstraint", tt.expr, err)
			}
			var ce *errs.Error
			ce, _ = err.(*errs.Error)
			if ce == nil || ce.Fragment != tt.fragment {
				t.Errorf("fragment = %q, want %q", ce.Fragment, tt.fragment)
			}
		})
	}
}

func TestTypeMismatch(t *testing.T) {
	tests := []struct {
		expr string
		vt   schema.ValueType
	}{
		{"> 1.5", schema.TypeInt},
		{"in (1, 2.5)", schema.TypeInt},
		{"> 'abc'", schema.TypeDouble},
		{"a..b", schema.TypeString},
		{"= maybe", schema.TypeBool},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Parse(tt.expr, tt.vt)
			if !errs.Is(err, errs.TypeMismatch) {
				t.Fatalf("Parse(%q, %s) = %v, want TypeMismatch", tt.expr, tt.vt, err)
			}
		})
	}
}

func TestConjunction(t *testing.T) {
	c, err := ParseAll([]string{"> 0", "< 100", "not in (50)"}, schema.TypeInt)
	if err != nil {
		t.Fatalf("ParseAll error: %v", err)
	}
	if !c.Evaluate(schema.Int(10)) {
		t.Errorf("10 should satisfy all validators")
	}
	failing := c.Failing(schema.Int(150))
	if len(failing) != 1 || failing[0].Source() != "< 100" {
		t.Errorf("Failing(150) = %v", failing)
	}
	if c.Test(schema.Null()) != Unknown {
		t.Errorf("null should be unknown for a conjunction of comparisons")
	}
}
