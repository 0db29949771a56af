package validation_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/metrics"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/testutil"
	"github.com/aidanlsb/moltrack/internal/validation"
)

const compoundSchema = `
properties:
  - name: mw
    entity_type: COMPOUND
    value_type: double
    min: 100
    max: 500
  - name: series
    entity_type: COMPOUND
    value_type: string
    choices: [A, B]
  - name: purity
    entity_type: COMPOUND
    value_type: double
    validators: [">= 0", "< 100", "!= 50"]
  - name: owner
    entity_type: COMPOUND
    value_type: string
    nullable: false
  - name: heavy_atoms
    entity_type: COMPOUND
    value_type: int
synonym_types:
  - name: corp_id
    entity_type: COMPOUND
    value_type: string
    pattern: "MT-[0-9]{4}"
validators:
  - name: small_molecule
    entity_type: COMPOUND
    expression: "${heavy_atoms} is null || ${heavy_atoms} < 70"
    description: heavy atom count must stay below 70
`

func newEngine(t *testing.T, yaml string, opts ...validation.Option) (*validation.Engine, *testutil.Fixture) {
	t.Helper()
	f := testutil.NewTestStore(t).WithSchema(yaml).Build()
	e, err := validation.New(f.Registry, 0, opts...)
	if err != nil {
		t.Fatalf("validation.New: %v", err)
	}
	return e, f
}

func validate(t *testing.T, e *validation.Engine, et schema.EntityType, record map[string]any) *validation.Result {
	t.Helper()
	res, err := e.Validate(context.Background(), et, record)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return res
}

func TestSingleFieldChecks(t *testing.T) {
	e, _ := newEngine(t, compoundSchema)

	tests := []struct {
		name   string
		record map[string]any
		want   []string
	}{
		{name: "lower bound inclusive", record: map[string]any{"mw": 100.0}},
		{name: "upper bound inclusive", record: map[string]any{"mw": 500}},
		{name: "below minimum", record: map[string]any{"mw": 99.9}, want: []string{"Value 99.9 is less than the minimum allowed 100"}},
		{name: "above maximum", record: map[string]any{"mw": "500.1"}, want: []string{"Value 500.1 is greater than the maximum allowed 500"}},
		{name: "choice", record: map[string]any{"series": "A"}},
		{name: "choices are case sensitive", record: map[string]any{"series": "a"}, want: []string{`Value "a" is not in the allowed choices: A, B`}},
		{name: "constraint passes", record: map[string]any{"purity": 99.5}},
		{name: "every failing constraint is reported", record: map[string]any{"purity": 150.0}, want: []string{"Value 150 does not satisfy < 100"}},
		{name: "excluded value", record: map[string]any{"purity": 50}, want: []string{"Value 50 does not satisfy != 50"}},
		{name: "type mismatch", record: map[string]any{"mw": "heavy"}, want: []string{"expected double"}},
		{name: "NaN is not within bounds", record: map[string]any{"mw": "NaN"}, want: []string{"expected double"}},
		{name: "infinity is not within bounds", record: map[string]any{"mw": "+Inf"}, want: []string{"expected double"}},
		{name: "required", record: map[string]any{"owner": nil}, want: []string{"Value is required"}},
		{name: "nullable by default", record: map[string]any{"mw": nil}},
		{name: "unregistered fields are ignored", record: map[string]any{"notes": 12}},
		{name: "synonym pattern", record: map[string]any{"corp_id": "MT-12"}, want: []string{`Value "MT-12" does not match the pattern MT-[0-9]{4}`}},
		{
			name:   "registration order",
			record: map[string]any{"series": "C", "mw": 1.0},
			want:   []string{"less than the minimum", "not in the allowed choices"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := validate(t, e, schema.Compound, tt.record)
			if res.OK != (len(tt.want) == 0) {
				t.Fatalf("OK = %v, failures = %+v", res.OK, res.Failures)
			}
			if len(res.Failures) != len(tt.want) {
				t.Fatalf("failures = %+v, want %d", res.Failures, len(tt.want))
			}
			for i, want := range tt.want {
				if !strings.Contains(res.Failures[i].Message, want) {
					t.Errorf("failure %d = %q, want it to contain %q", i, res.Failures[i].Message, want)
				}
				if res.Failures[i].Scope != validation.ScopeField {
					t.Errorf("failure %d scope = %s", i, res.Failures[i].Scope)
				}
			}
		})
	}
}

func TestRecordValidators(t *testing.T) {
	e, f := newEngine(t, compoundSchema)
	ctx := context.Background()

	res := validate(t, e, schema.Compound, map[string]any{"heavy_atoms": 80})
	if res.OK || len(res.Failures) != 1 {
		t.Fatalf("failures = %+v, want one", res.Failures)
	}
	got := res.Failures[0]
	if got.Scope != validation.ScopeRecord || got.Validator != "small_molecule" {
		t.Errorf("failure = %+v", got)
	}
	if got.Message != "Record failed validator small_molecule: heavy atom count must stay below 70" {
		t.Errorf("message = %q", got.Message)
	}

	if res := validate(t, e, schema.Compound, map[string]any{}); !res.OK {
		t.Errorf("missing registered field should evaluate as null, got %+v", res.Failures)
	}

	if err := f.Registry.DisableValidator(ctx, "small_molecule"); err != nil {
		t.Fatalf("DisableValidator: %v", err)
	}
	if res := validate(t, e, schema.Compound, map[string]any{"heavy_atoms": 80}); !res.OK {
		t.Errorf("disabled validator still ran: %+v", res.Failures)
	}
}

func TestDateRule(t *testing.T) {
	e, _ := newEngine(t, `
properties:
  - name: start_date
    entity_type: ASSAY
    value_type: datetime
  - name: end_date
    entity_type: ASSAY
    value_type: datetime
validators:
  - name: ordered_dates
    entity_type: ASSAY
    expression: "date(${end_date}) > date(${start_date})"
`)
	ok := validate(t, e, schema.Assay, map[string]any{"start_date": "2024-01-01", "end_date": "2024-01-02"})
	if !ok.OK {
		t.Errorf("ordered dates failed: %+v", ok.Failures)
	}
	swapped := validate(t, e, schema.Assay, map[string]any{"start_date": "2024-01-02", "end_date": "2024-01-01"})
	if swapped.OK {
		t.Error("swapped dates passed")
	}
	missing := validate(t, e, schema.Assay, map[string]any{"start_date": "2024-01-02"})
	if missing.OK || !strings.Contains(missing.Failures[0].Message, "could not be evaluated") {
		t.Errorf("missing end date = %+v", missing.Failures)
	}
}

func TestFieldFailureDoesNotSkipRecordRules(t *testing.T) {
	e, _ := newEngine(t, `
properties:
  - name: qty
    entity_type: BATCH
    value_type: int
    min: 0
validators:
  - name: small_qty
    entity_type: BATCH
    expression: "qty < 10"
`)
	res := validate(t, e, schema.Batch, map[string]any{"qty": -5})
	if len(res.Failures) != 1 || res.Failures[0].Scope != validation.ScopeField {
		t.Errorf("failures = %+v, want only the bound failure", res.Failures)
	}

	res = validate(t, e, schema.Batch, map[string]any{"qty": 25})
	if len(res.Failures) != 1 || res.Failures[0].Validator != "small_qty" {
		t.Errorf("failures = %+v, want only the rule failure", res.Failures)
	}

	res = validate(t, e, schema.Batch, map[string]any{"qty": "many"})
	if len(res.Failures) != 2 {
		t.Fatalf("failures = %+v, want a field and a record failure", res.Failures)
	}
	if res.Failures[0].Scope != validation.ScopeField || res.Failures[1].Scope != validation.ScopeRecord {
		t.Errorf("failure order = %+v", res.Failures)
	}
}

func TestValidateSynonym(t *testing.T) {
	e, _ := newEngine(t, compoundSchema)
	ctx := context.Background()

	res, err := e.ValidateSynonym(ctx, schema.Compound, "corp_id", "MT-0042")
	if err != nil || !res.OK {
		t.Fatalf("ValidateSynonym = %+v, %v", res, err)
	}
	res, err = e.ValidateSynonym(ctx, schema.Compound, "corp_id", "XMT-0042")
	if err != nil || res.OK {
		t.Fatalf("pattern must match the whole value: %+v, %v", res, err)
	}
	if _, err := e.ValidateSynonym(ctx, schema.Compound, "cas", "50-00-0"); !errs.Is(err, errs.UnknownField) {
		t.Errorf("unknown synonym type err = %v, want UnknownField", err)
	}
}

func TestValidateRows(t *testing.T) {
	e, _ := newEngine(t, compoundSchema)
	rows := []map[string]any{
		{"mw": 200.0},
		{"mw": 50.0},
		{"series": "B"},
	}

	tests := []struct {
		policy   validation.Policy
		accepted []int
	}{
		{validation.RejectAll, []int{}},
		{validation.RejectRow, []int{0, 2}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			res, err := e.ValidateRows(context.Background(), schema.Compound, rows, tt.policy)
			if err != nil {
				t.Fatalf("ValidateRows: %v", err)
			}
			if res.OK() {
				t.Error("OK() = true with an invalid row")
			}
			if len(res.Rejected) != 1 || res.Rejected[0].Row != 1 {
				t.Errorf("rejected = %+v, want row 1", res.Rejected)
			}
			if len(res.Accepted) != len(tt.accepted) {
				t.Fatalf("accepted = %v, want %v", res.Accepted, tt.accepted)
			}
			for i := range tt.accepted {
				if res.Accepted[i] != tt.accepted[i] {
					t.Errorf("accepted = %v, want %v", res.Accepted, tt.accepted)
				}
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    validation.Policy
		wantErr bool
	}{
		{"", validation.RejectAll, false},
		{"REJECT_ROW", validation.RejectRow, false},
		{"reject_all", validation.RejectAll, false},
		{"skip", "", true},
	}
	for _, tt := range tests {
		got, err := validation.ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestMetricsAndRuleCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg, "")
	if err != nil {
		t.Fatalf("metrics.New: %v", err)
	}
	e, _ := newEngine(t, compoundSchema, validation.WithMetrics(m))

	validate(t, e, schema.Compound, map[string]any{"heavy_atoms": 80})
	validate(t, e, schema.Compound, map[string]any{"heavy_atoms": 10})

	n, err := promtest.GatherAndCount(reg, "moltrack_validation_records_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 2 {
		t.Errorf("record series = %d, want valid and invalid", n)
	}
	n, err = promtest.GatherAndCount(reg, "moltrack_validation_rule_cache_hits_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Errorf("cache hit series = %d, want 1", n)
	}
}
