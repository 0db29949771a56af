// Package schema defines the dynamic schema model: entity types, value
// types, property and synonym definitions, record-level validators, and the
// typed value union shared by validation and query compilation.
package schema

import (
	"fmt"
	"strings"
)

// EntityType names one of the registrable entity kinds.
type EntityType string

const (
	Compound    EntityType = "COMPOUND"
	Batch       EntityType = "BATCH"
	Addition    EntityType = "ADDITION"
	Assay       EntityType = "ASSAY"
	AssayRun    EntityType = "ASSAY_RUN"
	AssayResult EntityType = "ASSAY_RESULT"
)

// EntityTypes lists every entity type in level order.
var EntityTypes = []EntityType{Compound, Batch, Addition, Assay, AssayRun, AssayResult}

var entityTables = map[EntityType]string{
	Compound:    "compounds",
	Batch:       "batches",
	Addition:    "additions",
	Assay:       "assays",
	AssayRun:    "assay_runs",
	AssayResult: "assay_results",
}

// Table returns the level name used in field references, e.g. "compounds".
func (e EntityType) Table() string {
	return entityTables[e]
}

// DetailsTable returns the name of the table holding dynamic values.
func (e EntityType) DetailsTable() string {
	t := e.Table()
	switch {
	case strings.HasSuffix(t, "ches"):
		t = strings.TrimSuffix(t, "es")
	default:
		t = strings.TrimSuffix(t, "s")
	}
	return t + "_details"
}

// DetailsKey returns the details table column referencing the entity,
// e.g. "assay_result_id".
func (e EntityType) DetailsKey() string {
	return strings.TrimSuffix(e.DetailsTable(), "_details") + "_id"
}

// Valid reports whether e is a known entity type.
func (e EntityType) Valid() bool {
	_, ok := entityTables[e]
	return ok
}

// ParseEntityType accepts the enum name ("ASSAY_RUN"), its lower-case form
// or the level name ("assay_runs").
func ParseEntityType(s string) (EntityType, error) {
	norm := strings.TrimSpace(s)
	candidate := EntityType(strings.ToUpper(norm))
	if candidate.Valid() {
		return candidate, nil
	}
	for et, table := range entityTables {
		if strings.EqualFold(table, norm) {
			return et, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// ValueType is the declared storage type of a property.
type ValueType string

const (
	TypeString   ValueType = "string"
	TypeDouble   ValueType = "double"
	TypeInt      ValueType = "int"
	TypeBool     ValueType = "bool"
	TypeDatetime ValueType = "datetime"
	TypeUUID     ValueType = "uuid"
)

// ParseValueType accepts the canonical names plus "integer" and "boolean".
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string":
		return TypeString, nil
	case "double", "float", "number":
		return TypeDouble, nil
	case "int", "integer":
		return TypeInt, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "datetime", "date":
		return TypeDatetime, nil
	case "uuid":
		return TypeUUID, nil
	}
	return "", fmt.Errorf("unknown value type %q", s)
}

// Valid reports whether v is a known value type.
func (v ValueType) Valid() bool {
	switch v {
	case TypeString, TypeDouble, TypeInt, TypeBool, TypeDatetime, TypeUUID:
		return true
	}
	return false
}

// IsNumeric reports whether values of this type compare numerically.
func (v ValueType) IsNumeric() bool {
	return v == TypeDouble || v == TypeInt
}

// PropertyClass is a provenance tag.
type PropertyClass string

const (
	ClassDeclared   PropertyClass = "DECLARED"
	ClassCalculated PropertyClass = "CALCULATED"
	ClassMeasured   PropertyClass = "MEASURED"
	ClassPredicted  PropertyClass = "PREDICTED"
)

// ParsePropertyClass is case-insensitive.
func ParsePropertyClass(s string) (PropertyClass, error) {
	switch c := PropertyClass(strings.ToUpper(strings.TrimSpace(s))); c {
	case ClassDeclared, ClassCalculated, ClassMeasured, ClassPredicted:
		return c, nil
	}
	return "", fmt.Errorf("unknown property class %q", s)
}

// Kind distinguishes plain properties from synonym types in storage.
type Kind string

const (
	KindProperty Kind = "property"
	KindSynonym  Kind = "synonym"
)
