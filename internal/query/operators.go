package query

import (
	"strings"

	"github.com/aidanlsb/moltrack/internal/schema"
)

// Operator is a leaf comparison.
type Operator string

const (
	OpEq               Operator = "="
	OpNe               Operator = "!="
	OpLt               Operator = "<"
	OpGt               Operator = ">"
	OpLe               Operator = "<="
	OpGe               Operator = ">="
	OpIn               Operator = "IN"
	OpNotIn            Operator = "NOT IN"
	OpLike             Operator = "LIKE"
	OpContains         Operator = "CONTAINS"
	OpStartsWith       Operator = "STARTS WITH"
	OpEndsWith         Operator = "ENDS WITH"
	OpExists           Operator = "EXISTS"
	OpRange            Operator = "RANGE"
	OpBefore           Operator = "BEFORE"
	OpAfter            Operator = "AFTER"
	OpOn               Operator = "ON"
	OpSimilar          Operator = "IS SIMILAR"
	OpHasSubstructure  Operator = "HAS SUBSTRUCTURE"
	OpIsSubstructureOf Operator = "IS SUBSTRUCTURE OF"
)

var allOperators = []Operator{
	OpEq, OpNe, OpLt, OpGt, OpLe, OpGe, OpIn, OpNotIn, OpLike, OpContains,
	OpStartsWith, OpEndsWith, OpExists, OpRange, OpBefore, OpAfter, OpOn,
	OpSimilar, OpHasSubstructure, OpIsSubstructureOf,
}

// ParseOperator normalizes case and inner whitespace. "==" and "<>" are
// accepted as aliases.
func ParseOperator(s string) (Operator, bool) {
	norm := strings.Join(strings.Fields(strings.ToUpper(s)), " ")
	switch norm {
	case "==":
		return OpEq, true
	case "<>":
		return OpNe, true
	}
	for _, op := range allOperators {
		if string(op) == norm {
			return op, true
		}
	}
	return "", false
}

func (op Operator) isStructure() bool {
	return op == OpSimilar || op == OpHasSubstructure || op == OpIsSubstructureOf
}

// takesList reports whether the operator's value is an array.
func (op Operator) takesList() bool {
	return op == OpIn || op == OpNotIn || op == OpRange
}

var (
	scalarOps      = []Operator{OpEq, OpNe, OpIn, OpNotIn, OpExists}
	orderedOps     = []Operator{OpLt, OpGt, OpLe, OpGe}
	stringOps      = []Operator{OpLike, OpContains, OpStartsWith, OpEndsWith}
	datetimeOps    = []Operator{OpRange, OpBefore, OpAfter, OpOn}
	structureOps   = []Operator{OpSimilar, OpHasSubstructure, OpIsSubstructureOf, OpEq, OpExists}
	representedOps = []Operator{OpEq, OpNe, OpIn, OpNotIn, OpExists}
)

// operatorsFor lists the operators valid for a resolved field.
func operatorsFor(f *Field) []Operator {
	switch {
	case f.Column.Structure:
		return structureOps
	case f.Column.Representation:
		return representedOps
	}
	ops := append([]Operator{}, scalarOps...)
	switch f.ValueType {
	case schema.TypeString:
		ops = append(ops, orderedOps...)
		ops = append(ops, stringOps...)
	case schema.TypeDouble, schema.TypeInt:
		ops = append(ops, orderedOps...)
		ops = append(ops, OpRange)
	case schema.TypeDatetime:
		ops = append(ops, orderedOps...)
		ops = append(ops, datetimeOps...)
	case schema.TypeBool:
		ops = []Operator{OpEq, OpNe, OpExists}
	}
	return ops
}

func operatorAllowed(op Operator, f *Field) bool {
	for _, allowed := range operatorsFor(f) {
		if allowed == op {
			return true
		}
	}
	return false
}
