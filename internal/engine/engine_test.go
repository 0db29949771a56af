package engine_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aidanlsb/moltrack/internal/audit"
	"github.com/aidanlsb/moltrack/internal/config"
	"github.com/aidanlsb/moltrack/internal/engine"
	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/query"
	"github.com/aidanlsb/moltrack/internal/registry"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/store"
	"github.com/aidanlsb/moltrack/internal/testutil"
	"github.com/aidanlsb/moltrack/internal/validation"
)

const defs = `
properties:
  - name: project
    entity_type: COMPOUND
    value_type: string
    choices: [X, Y]
  - name: ic50
    entity_type: ASSAY_RESULT
    value_type: double
    property_class: MEASURED
    min: 0
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, cfg *config.Config) (*engine.Engine, *prometheus.Registry) {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		store.SetChemistry(nil)
	})

	reg := prometheus.NewRegistry()
	e, err := engine.New(db, cfg,
		engine.WithLogger(quietLogger()),
		engine.WithChemistry(testutil.FakeChem{}),
		engine.WithRegisterer(reg))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	parsed, err := schema.ParseDefinitions([]byte(defs))
	if err != nil {
		t.Fatalf("ParseDefinitions: %v", err)
	}
	for _, o := range e.RegisterSchema(context.Background(), parsed) {
		if o.Status != registry.Success {
			t.Fatalf("register %s: %s", o.Name, o.Message)
		}
	}
	return e, reg
}

func TestRegisterIsIdempotent(t *testing.T) {
	e, _ := newEngine(t, nil)
	parsed, _ := schema.ParseDefinitions([]byte(defs))

	for _, o := range e.RegisterSchema(context.Background(), parsed) {
		if o.Status != registry.Skipped {
			t.Errorf("%s status = %s, want skipped", o.Name, o.Status)
		}
	}
	s, err := e.Schema(context.Background(), schema.Compound)
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if len(s.Properties) != 1 || s.Properties[0].Name != "project" {
		t.Errorf("compound properties = %+v", s.Properties)
	}
}

func TestValidateUsesRegisteredDefinitions(t *testing.T) {
	e, _ := newEngine(t, nil)
	ctx := context.Background()

	res, err := e.Validate(ctx, schema.Compound, map[string]any{"project": "Z"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.OK {
		t.Error("choice outside the allowed set passed")
	}

	batch, err := e.ValidateRows(ctx, schema.AssayResult, []map[string]any{{"ic50": 1.0}, {"ic50": -1.0}}, "")
	if err != nil {
		t.Fatalf("ValidateRows: %v", err)
	}
	if batch.Policy != validation.RejectAll || len(batch.Accepted) != 0 {
		t.Errorf("batch = %+v, want reject_all to accept nothing", batch)
	}
}

func TestCompileFilterAndMetadata(t *testing.T) {
	cfg := config.Default()
	cfg.Chemistry.AllowDefaultThreshold = true
	cfg.Chemistry.DefaultThreshold = 0.8
	cfg.Metrics.Enabled = true
	e, reg := newEngine(t, cfg)

	filter, err := query.ParseFilter([]byte(`{"operator":"AND","conditions":[
		{"field":"compounds.details.project","operator":"=","value":"X"},
		{"field":"compounds.structure","operator":"IS SIMILAR","value":"Cc1ccc"}]}`))
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	cp, err := e.CompileFilter(context.Background(), filter, schema.Compound)
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if len(cp.Metadata.DefaultedThresholds) != 1 || cp.Metadata.DefaultThreshold == nil || *cp.Metadata.DefaultThreshold != 0.8 {
		t.Errorf("metadata = %+v, want the substituted threshold reported", cp.Metadata)
	}

	_, err = e.CompileFilter(context.Background(), &query.FilterNode{Field: "compounds.details.nope", Operator: "=", Value: "x"}, schema.Compound)
	if !errs.Is(err, errs.UnknownField) {
		t.Fatalf("err = %v, want UnknownField", err)
	}
	n, err := promtest.GatherAndCount(reg, "moltrack_query_compile_errors_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Errorf("compile error series = %d, want 1", n)
	}
}

func TestSearchEndToEnd(t *testing.T) {
	e, _ := newEngine(t, nil)
	ctx := context.Background()
	db := e.Store()

	compound, err := db.InsertEntity(ctx, schema.Compound, map[string]any{"canonical_smiles": "Cc1ccccc1"})
	if err != nil {
		t.Fatalf("InsertEntity: %v", err)
	}
	if _, err := db.InsertEntity(ctx, schema.Compound, map[string]any{"canonical_smiles": "CCO"}); err != nil {
		t.Fatalf("InsertEntity: %v", err)
	}
	project, err := db.Entry(ctx, schema.Compound, "project")
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if err := db.SetDetail(ctx, schema.Compound, compound, &project.Property, schema.String("X")); err != nil {
		t.Fatalf("SetDetail: %v", err)
	}

	threshold := 0.5
	res, err := e.Search(ctx, query.SearchRequest{
		Level:  "compounds",
		Output: []string{"compounds.canonical_smiles", "compounds.details.project"},
		Filter: &query.FilterNode{Field: "compounds.structure", Operator: "IS SIMILAR", Value: "Cc1ccccc1", Threshold: &threshold},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %+v, want one", res.Rows)
	}
	if res.Rows[0]["compounds_details_project"] != "X" {
		t.Errorf("row = %+v", res.Rows[0])
	}
}

func TestOpenCreatesDatabaseDirectory(t *testing.T) {
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "data", "mt.db")

	e, err := engine.Open(context.Background(), cfg, engine.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Validation.ErrorHandling = "skip"
	if _, err := engine.Open(context.Background(), cfg, engine.WithLogger(quietLogger())); err == nil {
		t.Fatal("expected an error for an invalid policy")
	}
}

func TestSchemaHistory(t *testing.T) {
	cfg := config.Default()
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.log")
	e, _ := newEngine(t, cfg)
	ctx := context.Background()

	o := e.RegisterValidator(ctx, schema.Validator{Name: "has_project", EntityType: schema.Compound, Expression: "${project} is not null"})
	if o.Status != registry.Success {
		t.Fatalf("RegisterValidator: %s", o.Message)
	}
	if err := e.SetValidatorActive(ctx, "has_project", false); err != nil {
		t.Fatalf("SetValidatorActive: %v", err)
	}
	if err := e.SetValidatorActive(ctx, "missing", true); err == nil {
		t.Fatal("enabling an unknown validator should fail")
	}
	parsed, _ := schema.ParseDefinitions([]byte(defs))
	e.RegisterSchema(ctx, parsed)

	entries, err := e.History(audit.Filter{})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	// The two properties registered by newEngine come first; the repeated
	// registration is skipped and not recorded.
	want := []struct{ op, name, status string }{
		{audit.OpRegister, "project", "success"},
		{audit.OpRegister, "ic50", "success"},
		{audit.OpRegister, "has_project", "success"},
		{audit.OpDisable, "has_project", "success"},
		{audit.OpEnable, "missing", "failed"},
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %+v", entries)
	}
	for i, w := range want {
		if entries[i].Operation != w.op || entries[i].Name != w.name || entries[i].Status != w.status {
			t.Errorf("entry %d = %+v, want %v", i, entries[i], w)
		}
	}

	byName, _ := e.History(audit.Filter{Name: "has_project"})
	if len(byName) != 2 {
		t.Errorf("history for has_project = %+v", byName)
	}
}

func TestOpenDerivesAuditPath(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Database.DSN = filepath.Join(dir, "mt.db")

	e, err := engine.Open(context.Background(), cfg, engine.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()
	if got, want := e.AuditPath(), filepath.Join(dir, "audit.log"); got != want {
		t.Errorf("AuditPath() = %q, want %q", got, want)
	}

	cfg.Audit.Enabled = false
	cfg.Database.DSN = filepath.Join(dir, "other.db")
	off, err := engine.Open(context.Background(), cfg, engine.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer off.Close()
	if off.AuditPath() != "" {
		t.Errorf("AuditPath() = %q with audit disabled", off.AuditPath())
	}
}
