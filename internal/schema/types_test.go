package schema

import "testing"

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		in   string
		want EntityType
	}{
		{"COMPOUND", Compound},
		{"compound", Compound},
		{"compounds", Compound},
		{"assay_runs", AssayRun},
		{"ASSAY_RESULT", AssayResult},
		{"batches", Batch},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEntityType(tt.in)
			if err != nil {
				t.Fatalf("ParseEntityType(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseEntityType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if _, err := ParseEntityType("molecule"); err == nil {
		t.Errorf("expected error for unknown entity type")
	}
}

func TestDetailsTable(t *testing.T) {
	tests := map[EntityType]string{
		Compound:    "compound_details",
		Batch:       "batch_details",
		Addition:    "addition_details",
		Assay:       "assay_details",
		AssayRun:    "assay_run_details",
		AssayResult: "assay_result_details",
	}
	for et, want := range tests {
		if got := et.DetailsTable(); got != want {
			t.Errorf("%s.DetailsTable() = %q, want %q", et, got, want)
		}
	}
}

func TestPropertyCheck(t *testing.T) {
	base := func() Property {
		return Property{Name: "ic50", EntityType: AssayResult, ValueType: TypeDouble, PropertyClass: ClassMeasured}
	}
	tests := []struct {
		name    string
		mutate  func(p *Property)
		wantErr bool
	}{
		{"valid", func(p *Property) {}, false},
		{"empty name", func(p *Property) { p.Name = "" }, true},
		{"bad name", func(p *Property) { p.Name = "1abc" }, true},
		{"reserved fixed column", func(p *Property) { p.Name = "created_at" }, true},
		{"reserved smiles", func(p *Property) { p.Name = "smiles" }, true},
		{"min above max", func(p *Property) { p.Min = FloatPtr(10); p.Max = FloatPtr(1) }, true},
		{"min equals max", func(p *Property) { p.Min = FloatPtr(1); p.Max = FloatPtr(1) }, false},
		{"choices on double", func(p *Property) { p.Choices = []string{"a"} }, true},
		{"min on string", func(p *Property) { p.ValueType = TypeString; p.Min = FloatPtr(1) }, true},
		{"duplicate choices", func(p *Property) { p.ValueType = TypeString; p.Choices = []string{"a", "a"} }, true},
		{"unknown value type", func(p *Property) { p.ValueType = "decimal" }, true},
		{"unknown class", func(p *Property) { p.PropertyClass = "GUESSED" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(&p)
			err := p.Check()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSynonymPattern(t *testing.T) {
	s := SynonymType{
		Property: Property{Name: "cas", EntityType: Compound, ValueType: TypeString, PropertyClass: ClassDeclared},
		Pattern:  `\d{2,7}-\d{2}-\d`,
	}
	if err := s.Check(); err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	ok, err := s.MatchesPattern("50-00-0")
	if err != nil || !ok {
		t.Errorf("expected 50-00-0 to match, got %v %v", ok, err)
	}
	ok, _ = s.MatchesPattern("x50-00-0")
	if ok {
		t.Errorf("pattern must match the whole value")
	}

	s.Pattern = "("
	if err := s.Check(); err == nil {
		t.Errorf("expected invalid pattern error")
	}
}

func TestSynonymPatternCompiledOnce(t *testing.T) {
	anchoredPatterns.Purge()
	a := SynonymType{Pattern: "MT-[0-9]{4}"}
	b := SynonymType{Pattern: "MT-[0-9]{4}"}

	tests := []struct {
		st    *SynonymType
		value string
		want  bool
	}{
		{&a, "MT-0001", true},
		{&a, "MT-01", false},
		{&b, "MT-1234", true},
		{&b, "xMT-1234", false},
	}
	for _, tt := range tests {
		got, err := tt.st.MatchesPattern(tt.value)
		if err != nil || got != tt.want {
			t.Errorf("MatchesPattern(%q) = %v, %v; want %v", tt.value, got, err, tt.want)
		}
	}
	if n := anchoredPatterns.Len(); n != 1 {
		t.Errorf("cached patterns = %d, want 1", n)
	}

	bad := SynonymType{Pattern: "("}
	if _, err := bad.MatchesPattern("x"); err == nil {
		t.Error("expected an error for an invalid pattern")
	}
	if anchoredPatterns.Contains("(") {
		t.Error("invalid pattern should not be cached")
	}
}

func TestPropertyDiff(t *testing.T) {
	a := Property{Name: "mw", EntityType: Compound, ValueType: TypeDouble, PropertyClass: ClassCalculated, Min: FloatPtr(0)}
	b := a
	if d := a.Diff(&b); len(d) != 0 {
		t.Fatalf("identical definitions differ on %v", d)
	}
	b.ValueType = TypeInt
	b.Min = FloatPtr(1)
	d := a.Diff(&b)
	if len(d) != 2 || d[0] != "value_type" || d[1] != "min" {
		t.Errorf("Diff() = %v, want [value_type min]", d)
	}

	nullable := a
	nullable.Nullable = BoolPtr(true)
	if d := a.Diff(&nullable); len(d) != 0 {
		t.Errorf("explicit nullable=true should equal the default, got %v", d)
	}
}

func TestParseDefinitions(t *testing.T) {
	data := []byte(`
properties:
  - name: project
    entity_type: compounds
    value_type: string
    property_class: declared
    choices: [X, Y]
  - name: ic50
    entity_type: ASSAY_RESULT
    value_type: double
    property_class: MEASURED
    unit: uM
    validators: ["> 0"]
synonym_types:
  - name: cas
    entity_type: COMPOUND
    value_type: string
    pattern: '\d+-\d{2}-\d'
validators:
  - name: positive_dose
    entity_type: assay_result
    expression: "${ic50} > 0"
    is_active: true
`)
	defs, err := ParseDefinitions(data)
	if err != nil {
		t.Fatalf("ParseDefinitions() error: %v", err)
	}
	if len(defs.Properties) != 2 || len(defs.SynonymTypes) != 1 || len(defs.Validators) != 1 {
		t.Fatalf("unexpected counts: %+v", defs)
	}
	p := defs.Properties[0]
	if p.EntityType != Compound || p.PropertyClass != ClassDeclared {
		t.Errorf("enums not normalized: %+v", p)
	}
	if defs.SynonymTypes[0].PropertyClass != ClassDeclared {
		t.Errorf("missing property class should default to DECLARED")
	}
	if defs.Validators[0].EntityType != AssayResult {
		t.Errorf("validator entity type = %q", defs.Validators[0].EntityType)
	}

	if _, err := ParseDefinitions([]byte("properties:\n  - name: x\n    maximum: 3\n")); err == nil {
		t.Errorf("expected unknown key to be rejected")
	}
}
