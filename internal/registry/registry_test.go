package registry

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/store"
)

func newRegistry(t *testing.T) (*Registry, *store.DB) {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), db
}

func ic50() schema.Property {
	return schema.Property{
		Name:          "ic50",
		EntityType:    schema.AssayResult,
		ValueType:     schema.TypeDouble,
		PropertyClass: schema.ClassMeasured,
		Unit:          "nM",
		Min:           schema.FloatPtr(0),
	}
}

func register(t *testing.T, r *Registry, defs schema.Definitions) []Outcome {
	t.Helper()
	return r.Register(context.Background(), &defs)
}

func TestRegisterIsIdempotent(t *testing.T) {
	r, _ := newRegistry(t)

	first := register(t, r, schema.Definitions{Properties: []schema.Property{ic50()}})
	if first[0].Status != Success || first[0].ID == "" {
		t.Fatalf("first registration = %+v", first[0])
	}

	second := register(t, r, schema.Definitions{Properties: []schema.Property{ic50()}})
	if second[0].Status != Skipped {
		t.Fatalf("second registration = %+v", second[0])
	}
	if second[0].Message != "ic50 already exists" {
		t.Errorf("message = %q", second[0].Message)
	}
	if second[0].ID != first[0].ID {
		t.Errorf("skipped outcome should carry the stored id")
	}
}

func TestRegisterConflict(t *testing.T) {
	r, _ := newRegistry(t)
	register(t, r, schema.Definitions{Properties: []schema.Property{ic50()}})

	changed := ic50()
	changed.ValueType = schema.TypeString
	changed.Min = nil
	out := register(t, r, schema.Definitions{Properties: []schema.Property{changed}})

	if out[0].Status != Failed {
		t.Fatalf("expected failure, got %+v", out[0])
	}
	if !errs.Is(out[0].Err, errs.SchemaConflict) {
		t.Errorf("expected SchemaConflict, got %v", out[0].Err)
	}
	if !strings.Contains(out[0].Message, "value_type") {
		t.Errorf("message %q should name the differing attribute", out[0].Message)
	}
}

func TestRegisterPartialSuccess(t *testing.T) {
	r, _ := newRegistry(t)
	out := register(t, r, schema.Definitions{
		Properties: []schema.Property{
			{Name: "project", EntityType: schema.Compound, ValueType: schema.TypeString},
			{Name: "id", EntityType: schema.Compound, ValueType: schema.TypeString},
			{Name: "purity", EntityType: schema.Batch, ValueType: schema.TypeDouble, SemanticType: "Nope"},
			{Name: "notes_extra", EntityType: schema.Batch, ValueType: schema.TypeString},
		},
	})

	want := []Status{Success, Failed, Failed, Success}
	for i, w := range want {
		if out[i].Status != w {
			t.Errorf("outcome %d (%s) = %s, want %s: %s", i, out[i].Name, out[i].Status, w, out[i].Message)
		}
	}
	if out[1].Message != "id is a reserved name and cannot be used" {
		t.Errorf("reserved name message = %q", out[1].Message)
	}
	if !errs.Is(out[1].Err, errs.InvalidDefinition) || !errs.Is(out[2].Err, errs.InvalidDefinition) {
		t.Errorf("expected InvalidDefinition, got %v / %v", out[1].Err, out[2].Err)
	}

	sch, err := r.Get(context.Background(), schema.Batch)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sch.Properties) != 1 || sch.Properties[0].Name != "notes_extra" {
		t.Errorf("batch properties = %+v", sch.Properties)
	}
}

func TestRegisterRejectsBadConstraint(t *testing.T) {
	r, _ := newRegistry(t)
	p := ic50()
	p.Validators = []string{"> 0", "< < 5"}
	out := register(t, r, schema.Definitions{Properties: []schema.Property{p}})
	if out[0].Status != Failed || !errs.Is(out[0].Err, errs.MalformedConstraint) {
		t.Fatalf("expected MalformedConstraint failure, got %+v", out[0])
	}
}

func TestRegisterSynonymTypes(t *testing.T) {
	r, _ := newRegistry(t)
	out := register(t, r, schema.Definitions{
		Properties: []schema.Property{{Name: "cas", EntityType: schema.Compound, ValueType: schema.TypeString}},
		SynonymTypes: []schema.SynonymType{
			{Property: schema.Property{Name: "corp_alias", EntityType: schema.Compound, ValueType: schema.TypeString, SemanticType: "Synonym"}, Pattern: `CPD-\d+`},
			{Property: schema.Property{Name: "cas", EntityType: schema.Compound, ValueType: schema.TypeString}},
			{Property: schema.Property{Name: "bad", EntityType: schema.Compound, ValueType: schema.TypeString}, Pattern: `(`},
		},
	})

	if out[1].Status != Success {
		t.Errorf("synonym type = %+v", out[1])
	}
	if out[2].Status != Failed || !errs.Is(out[2].Err, errs.SchemaConflict) {
		t.Errorf("synonym sharing a property name should conflict, got %+v", out[2])
	}
	if out[3].Status != Failed {
		t.Errorf("invalid pattern should fail, got %+v", out[3])
	}

	sch, err := r.Get(context.Background(), schema.Compound)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	st, ok := sch.SynonymType("corp_alias")
	if !ok || st.Pattern != `CPD-\d+` {
		t.Errorf("stored synonym type = %+v", st)
	}
}

func TestConcurrentRegistrationHasOneWinner(t *testing.T) {
	r, _ := newRegistry(t)

	const n = 8
	var wg sync.WaitGroup
	outcomes := make([]Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := r.Register(context.Background(), &schema.Definitions{Properties: []schema.Property{ic50()}})
			outcomes[i] = out[0]
		}(i)
	}
	wg.Wait()

	var success, skipped int
	for _, o := range outcomes {
		switch o.Status {
		case Success:
			success++
		case Skipped:
			skipped++
		default:
			t.Errorf("unexpected outcome %+v", o)
		}
	}
	if success != 1 || skipped != n-1 {
		t.Errorf("success=%d skipped=%d, want 1 and %d", success, skipped, n-1)
	}
}

func TestUpdate(t *testing.T) {
	r, db := newRegistry(t)
	ctx := context.Background()
	out := register(t, r, schema.Definitions{Properties: []schema.Property{ic50()}})
	id := out[0].ID

	desired := ic50()
	desired.Unit = "uM"
	if o := r.Update(ctx, id, schema.PropertyEntry(desired)); o.Status != Success {
		t.Fatalf("update unit = %+v", o)
	}
	if o := r.Update(ctx, id, schema.PropertyEntry(desired)); o.Status != Skipped {
		t.Fatalf("repeat update = %+v", o)
	}
	if o := r.Update(ctx, "missing", schema.PropertyEntry(desired)); o.Status != Failed {
		t.Fatalf("update of unknown id = %+v", o)
	}

	// Once data references the property its value type is fixed.
	compoundID, err := db.InsertEntity(ctx, schema.Compound, map[string]any{"canonical_smiles": "CCO"})
	if err != nil {
		t.Fatalf("InsertEntity: %v", err)
	}
	batchID, err := db.InsertEntity(ctx, schema.Batch, map[string]any{"compound_id": compoundID})
	if err != nil {
		t.Fatalf("InsertEntity: %v", err)
	}
	runAssay, err := db.InsertEntity(ctx, schema.Assay, map[string]any{"name": "kinase"})
	if err != nil {
		t.Fatalf("InsertEntity: %v", err)
	}
	runID, err := db.InsertEntity(ctx, schema.AssayRun, map[string]any{"assay_id": runAssay, "name": "run 1"})
	if err != nil {
		t.Fatalf("InsertEntity: %v", err)
	}
	resultID, err := db.InsertEntity(ctx, schema.AssayResult, map[string]any{"batch_id": batchID, "assay_run_id": runID})
	if err != nil {
		t.Fatalf("InsertEntity: %v", err)
	}
	stored, err := db.EntryByID(ctx, id)
	if err != nil {
		t.Fatalf("EntryByID: %v", err)
	}
	if err := db.SetDetail(ctx, schema.AssayResult, resultID, &stored.Property, schema.Double(4.2)); err != nil {
		t.Fatalf("SetDetail: %v", err)
	}

	retyped := desired
	retyped.ValueType = schema.TypeInt
	o := r.Update(ctx, id, schema.PropertyEntry(retyped))
	if o.Status != Failed || !errs.Is(o.Err, errs.SchemaConflict) {
		t.Fatalf("value type change on referenced property = %+v", o)
	}
}

func TestUpdateRenameCollision(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	out := register(t, r, schema.Definitions{Properties: []schema.Property{
		{Name: "alpha", EntityType: schema.Compound, ValueType: schema.TypeString},
		{Name: "beta", EntityType: schema.Compound, ValueType: schema.TypeString},
	}})

	o := r.Update(ctx, out[1].ID, schema.PropertyEntry(schema.Property{Name: "alpha", EntityType: schema.Compound, ValueType: schema.TypeString}))
	if o.Status != Failed || !errs.Is(o.Err, errs.SchemaConflict) {
		t.Fatalf("rename onto existing name = %+v", o)
	}
}

func TestValidators(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	register(t, r, schema.Definitions{Properties: []schema.Property{
		{Name: "start_date", EntityType: schema.AssayRun, ValueType: schema.TypeDatetime},
		{Name: "end_date", EntityType: schema.AssayRun, ValueType: schema.TypeDatetime},
	}})

	out := register(t, r, schema.Definitions{Validators: []schema.Validator{
		{Name: "dates_ordered", EntityType: schema.AssayRun, Expression: "date(${end_date}) > date(${start_date})"},
		{Name: "uses_unknown", EntityType: schema.AssayRun, Expression: "${nope} > 1"},
		{Name: "broken", EntityType: schema.AssayRun, Expression: "1 +"},
		{Name: "uses_fixed", EntityType: schema.AssayRun, Expression: "size(${name}) > 0"},
	}})
	if out[0].Status != Success {
		t.Errorf("dates_ordered = %+v", out[0])
	}
	if out[1].Status != Failed || !errs.Is(out[1].Err, errs.UnknownField) {
		t.Errorf("uses_unknown = %+v", out[1])
	}
	if out[2].Status != Failed || !errs.Is(out[2].Err, errs.MalformedExpression) {
		t.Errorf("broken = %+v", out[2])
	}
	if out[3].Status != Success {
		t.Errorf("uses_fixed = %+v", out[3])
	}

	again := register(t, r, schema.Definitions{Validators: []schema.Validator{
		{Name: "dates_ordered", EntityType: schema.AssayRun, Expression: "date(${end_date}) > date(${start_date})"},
	}})
	if again[0].Status != Skipped {
		t.Errorf("re-registration = %+v", again[0])
	}

	if err := r.DisableValidator(ctx, "dates_ordered"); err != nil {
		t.Fatalf("DisableValidator: %v", err)
	}
	active, err := r.Validators(ctx, schema.AssayRun, true)
	if err != nil {
		t.Fatalf("Validators: %v", err)
	}
	if len(active) != 1 || active[0].Name != "uses_fixed" {
		t.Errorf("active validators = %+v", active)
	}
	if err := r.EnableValidator(ctx, "dates_ordered"); err != nil {
		t.Fatalf("EnableValidator: %v", err)
	}
	if err := r.DisableValidator(ctx, "missing"); !errs.Is(err, errs.InvalidDefinition) {
		t.Errorf("disabling a missing validator = %v", err)
	}
}

func TestCatalogReadsCurrentState(t *testing.T) {
	r, _ := newRegistry(t)
	cat := r.Catalog(context.Background())

	if _, ok, err := cat.Property(schema.AssayResult, "ic50"); ok || err != nil {
		t.Fatalf("ic50 before registration = %v, %v; want not found", ok, err)
	}
	register(t, r, schema.Definitions{Properties: []schema.Property{ic50()}})
	p, ok, err := cat.Property(schema.AssayResult, "ic50")
	if err != nil || !ok || p.ValueType != schema.TypeDouble {
		t.Fatalf("ic50 = %+v, %v, %v", p, ok, err)
	}
}

func TestCatalogReportsStorageErrors(t *testing.T) {
	r, db := newRegistry(t)
	register(t, r, schema.Definitions{Properties: []schema.Property{ic50()}})
	cat := r.Catalog(context.Background())
	db.Close()

	_, ok, err := cat.Property(schema.AssayResult, "ic50")
	if err == nil || ok {
		t.Fatalf("lookup on a closed store = %v, %v; want an error", ok, err)
	}
	if errs.Is(err, errs.UnknownField) {
		t.Errorf("storage error classified as UnknownField: %v", err)
	}
}
