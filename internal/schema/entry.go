package schema

// Entry is the stored form shared by properties and synonym types. Both
// kinds live in one namespace per entity type.
type Entry struct {
	Kind Kind `json:"kind"`
	SynonymType
	// Seq orders entries by registration.
	Seq int64 `json:"-"`
}

// PropertyEntry wraps a property for storage.
func PropertyEntry(p Property) Entry {
	return Entry{Kind: KindProperty, SynonymType: SynonymType{Property: p}}
}

// SynonymEntry wraps a synonym type for storage.
func SynonymEntry(s SynonymType) Entry {
	return Entry{Kind: KindSynonym, SynonymType: s}
}

// Diff compares two entries including their kind.
func (e *Entry) Diff(other *Entry) []string {
	var diffs []string
	if e.Kind != other.Kind {
		diffs = append(diffs, "kind")
	}
	return append(diffs, e.SynonymType.Diff(&other.SynonymType)...)
}

// Schema is the registered definition set of one entity type in
// registration order.
type Schema struct {
	EntityType   EntityType    `json:"entity_type"`
	Properties   []Property    `json:"properties"`
	SynonymTypes []SynonymType `json:"synonym_types"`
	Validators   []Validator   `json:"validators,omitempty"`
}

// Property finds a registered property by name.
func (s *Schema) Property(name string) (*Property, bool) {
	for i := range s.Properties {
		if s.Properties[i].Name == name {
			return &s.Properties[i], true
		}
	}
	return nil, false
}

// SynonymType finds a registered synonym type by name.
func (s *Schema) SynonymType(name string) (*SynonymType, bool) {
	for i := range s.SynonymTypes {
		if s.SynonymTypes[i].Name == name {
			return &s.SynonymTypes[i], true
		}
	}
	return nil, false
}
