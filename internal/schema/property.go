package schema

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Property is a schema-registered typed attribute attachable to an entity
// type's details map.
type Property struct {
	ID            string        `json:"id,omitempty" yaml:"id,omitempty"`
	Name          string        `json:"name" yaml:"name"`
	EntityType    EntityType    `json:"entity_type" yaml:"entity_type"`
	ValueType     ValueType     `json:"value_type" yaml:"value_type"`
	PropertyClass PropertyClass `json:"property_class" yaml:"property_class"`
	Unit          string        `json:"unit,omitempty" yaml:"unit,omitempty"`
	FriendlyName  string        `json:"friendly_name,omitempty" yaml:"friendly_name,omitempty"`
	Description   string        `json:"description,omitempty" yaml:"description,omitempty"`
	SemanticType  string        `json:"semantic_type,omitempty" yaml:"semantic_type,omitempty"`
	Min           *float64      `json:"min,omitempty" yaml:"min,omitempty"`
	Max           *float64      `json:"max,omitempty" yaml:"max,omitempty"`
	Choices       []string      `json:"choices,omitempty" yaml:"choices,omitempty"`
	Validators    []string      `json:"validators,omitempty" yaml:"validators,omitempty"`
	Nullable      *bool         `json:"nullable,omitempty" yaml:"nullable,omitempty"`
}

// SynonymType is a property-like definition for alternate identifiers.
// Pattern must fully match a synonym value when it is attached.
type SynonymType struct {
	Property `yaml:",inline"`
	Pattern  string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Validator is a named cross-field rule evaluated against a whole record.
type Validator struct {
	ID          string     `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string     `json:"name" yaml:"name"`
	EntityType  EntityType `json:"entity_type" yaml:"entity_type"`
	Expression  string     `json:"expression" yaml:"expression"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	IsActive    bool       `json:"is_active" yaml:"is_active"`
}

// Definitions is the payload accepted by schema registration.
type Definitions struct {
	Properties   []Property    `json:"properties,omitempty" yaml:"properties,omitempty"`
	SynonymTypes []SynonymType `json:"synonym_types,omitempty" yaml:"synonym_types,omitempty"`
	Validators   []Validator   `json:"validators,omitempty" yaml:"validators,omitempty"`
}

// IsNullable defaults to true when unset.
func (p *Property) IsNullable() bool {
	return p.Nullable == nil || *p.Nullable
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Normalize fills defaults and canonicalizes enum spellings in place.
func (p *Property) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	if et, err := ParseEntityType(string(p.EntityType)); err == nil {
		p.EntityType = et
	}
	if vt, err := ParseValueType(string(p.ValueType)); err == nil {
		p.ValueType = vt
	}
	if p.PropertyClass == "" {
		p.PropertyClass = ClassDeclared
	} else if pc, err := ParsePropertyClass(string(p.PropertyClass)); err == nil {
		p.PropertyClass = pc
	}
}

// Normalize canonicalizes the entity type spelling in place.
func (v *Validator) Normalize() {
	v.Name = strings.TrimSpace(v.Name)
	if et, err := ParseEntityType(string(v.EntityType)); err == nil {
		v.EntityType = et
	}
}

// Check validates the definition's own attributes. It does not consult any
// registry state.
func (p *Property) Check() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !namePattern.MatchString(p.Name) {
		return fmt.Errorf("name %q must start with a letter or underscore and contain only letters, digits and underscores", p.Name)
	}
	if !p.EntityType.Valid() {
		return fmt.Errorf("unknown entity type %q", p.EntityType)
	}
	if !p.ValueType.Valid() {
		return fmt.Errorf("unknown value type %q", p.ValueType)
	}
	if _, err := ParsePropertyClass(string(p.PropertyClass)); err != nil {
		return err
	}
	if IsReservedName(p.EntityType, p.Name) {
		return fmt.Errorf("%s is a reserved name and cannot be used", p.Name)
	}
	if (p.Min != nil || p.Max != nil) && !p.ValueType.IsNumeric() {
		return fmt.Errorf("min/max apply only to numeric properties, not %s", p.ValueType)
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		return fmt.Errorf("min %v is greater than max %v", *p.Min, *p.Max)
	}
	if len(p.Choices) > 0 {
		if p.ValueType != TypeString {
			return fmt.Errorf("choices apply only to string properties, not %s", p.ValueType)
		}
		seen := make(map[string]struct{}, len(p.Choices))
		for _, c := range p.Choices {
			if _, dup := seen[c]; dup {
				return fmt.Errorf("duplicate choice %q", c)
			}
			seen[c] = struct{}{}
		}
	}
	return nil
}

// Check validates the synonym definition, including its pattern.
func (s *SynonymType) Check() error {
	if err := s.Property.Check(); err != nil {
		return err
	}
	if s.ValueType != TypeString {
		return fmt.Errorf("synonym types must have value type string, not %s", s.ValueType)
	}
	if s.Pattern != "" {
		if _, err := regexp.Compile(s.Pattern); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", s.Pattern, err)
		}
	}
	return nil
}

// anchoredPatterns caches compiled synonym patterns by source.
var anchoredPatterns, _ = lru.New[string, *regexp.Regexp](256)

// MatchesPattern reports whether value fully matches the synonym pattern.
// An empty pattern accepts everything.
func (s *SynonymType) MatchesPattern(value string) (bool, error) {
	if s.Pattern == "" {
		return true, nil
	}
	re, ok := anchoredPatterns.Get(s.Pattern)
	if !ok {
		var err error
		if re, err = regexp.Compile(`^(?:` + s.Pattern + `)$`); err != nil {
			return false, err
		}
		anchoredPatterns.Add(s.Pattern, re)
	}
	return re.MatchString(value), nil
}

// Diff lists the attribute names on which p and other differ. Identity
// fields (ID) are ignored.
func (p *Property) Diff(other *Property) []string {
	var diffs []string
	add := func(name string, same bool) {
		if !same {
			diffs = append(diffs, name)
		}
	}
	add("entity_type", p.EntityType == other.EntityType)
	add("value_type", p.ValueType == other.ValueType)
	add("property_class", p.PropertyClass == other.PropertyClass)
	add("unit", p.Unit == other.Unit)
	add("friendly_name", p.FriendlyName == other.FriendlyName)
	add("description", p.Description == other.Description)
	add("semantic_type", p.SemanticType == other.SemanticType)
	add("min", floatPtrEqual(p.Min, other.Min))
	add("max", floatPtrEqual(p.Max, other.Max))
	add("choices", slices.Equal(p.Choices, other.Choices))
	add("validators", slices.Equal(p.Validators, other.Validators))
	add("nullable", p.IsNullable() == other.IsNullable())
	return diffs
}

// Diff extends Property.Diff with the synonym pattern.
func (s *SynonymType) Diff(other *SynonymType) []string {
	diffs := s.Property.Diff(&other.Property)
	if s.Pattern != other.Pattern {
		diffs = append(diffs, "pattern")
	}
	return diffs
}

// Diff lists differing validator attributes. Activation state is ignored.
func (v *Validator) Diff(other *Validator) []string {
	var diffs []string
	if v.EntityType != other.EntityType {
		diffs = append(diffs, "entity_type")
	}
	if v.Expression != other.Expression {
		diffs = append(diffs, "expression")
	}
	if v.Description != other.Description {
		diffs = append(diffs, "description")
	}
	return diffs
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// FloatPtr is a convenience for building definitions in code.
func FloatPtr(f float64) *float64 {
	return &f
}

// BoolPtr is a convenience for building definitions in code.
func BoolPtr(b bool) *bool {
	return &b
}
