package schema

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/aidanlsb/moltrack/internal/errs"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		vt      ValueType
		raw     interface{}
		want    string
		wantErr bool
	}{
		{"string", TypeString, "abc", "abc", false},
		{"string from number", TypeString, 3.0, "", true},
		{"double from int", TypeDouble, 3, "3", false},
		{"double from string", TypeDouble, "4.5", "4.5", false},
		{"double qualified", TypeDouble, "<5", "<5", false},
		{"int from float", TypeInt, 7.0, "7", false},
		{"int rejects fraction", TypeInt, 7.5, "", true},
		{"int from string", TypeInt, "12", "12", false},
		{"bool", TypeBool, true, "true", false},
		{"bool from string", TypeBool, "no", "false", false},
		{"bool rejects number", TypeBool, 1.0, "", true},
		{"datetime date", TypeDatetime, "2024-01-02", "2024-01-02", false},
		{"datetime bad", TypeDatetime, "next week", "", true},
		{"uuid", TypeUUID, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", false},
		{"uuid bad", TypeUUID, "nope", "", true},
		{"null", TypeInt, nil, "null", false},
		{"double rejects NaN string", TypeDouble, "NaN", "", true},
		{"double rejects infinity string", TypeDouble, "-Inf", "", true},
		{"double rejects NaN", TypeDouble, math.NaN(), "", true},
		{"double rejects infinity", TypeDouble, math.Inf(1), "", true},
		{"int from int64", TypeInt, int64(math.MaxInt64), "9223372036854775807", false},
		{"int from json number", TypeInt, json.Number("9007199254740993"), "9007199254740993", false},
		{"int rejects overflow", TypeInt, 1e19, "", true},
		{"int rejects negative overflow", TypeInt, -1e19, "", true},
		{"int rejects 2^63", TypeInt, math.Pow(2, 63), "", true},
		{"int rejects overflowing json number", TypeInt, json.Number("1e19"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.vt, tt.raw)
			if tt.wantErr {
				if !errs.Is(err, errs.TypeMismatch) {
					t.Fatalf("expected TypeMismatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("Coerce(%v) = %q, want %q", tt.raw, got.String(), tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	c, err := Compare(Int(5), Double(5.0))
	if err != nil || c != 0 {
		t.Errorf("Int(5) vs Double(5) = %d, %v", c, err)
	}
	c, _ = Compare(Double(4.999), Int(5))
	if c != -1 {
		t.Errorf("expected 4.999 < 5")
	}
	d1 := Time(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	d2 := Time(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if c, _ := Compare(d2, d1); c != 1 {
		t.Errorf("expected later date to compare greater")
	}
	if _, err := Compare(String("a"), Int(1)); !errs.Is(err, errs.TypeMismatch) {
		t.Errorf("expected TypeMismatch comparing string to int, got %v", err)
	}
	if !Equal(Null(), Null()) || Equal(Null(), Int(0)) {
		t.Errorf("null equality is wrong")
	}
}

func TestCompareRejectsNaN(t *testing.T) {
	for _, pair := range [][2]Value{{Double(math.NaN()), Double(5)}, {Int(5), Double(math.NaN())}} {
		if _, err := Compare(pair[0], pair[1]); !errs.Is(err, errs.TypeMismatch) {
			t.Errorf("Compare(%v, %v) err = %v, want TypeMismatch", pair[0], pair[1], err)
		}
	}
}

func TestQualifierOnlyOnNumeric(t *testing.T) {
	v := String("x").WithQualifier(QualLess)
	if v.Qualifier() != QualEqual {
		t.Errorf("string values must not carry a qualifier")
	}
	n := Double(3).WithQualifier(QualGreater)
	if n.Qualifier() != QualGreater || n.String() != ">3" {
		t.Errorf("got %v %q", n.Qualifier(), n.String())
	}
}
