// Package testutil provides fixtures shared by package tests: an in-memory
// store with registered definitions and a deterministic chemistry engine.
package testutil

import (
	"context"
	"testing"

	"github.com/aidanlsb/moltrack/internal/chem"
	"github.com/aidanlsb/moltrack/internal/registry"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/store"
)

// TestStore builds an in-memory database for a test.
type TestStore struct {
	t      *testing.T
	schema string
	defs   schema.Definitions
	chem   chem.Engine
}

// NewTestStore creates a new test store builder.
// Call Build() to open the database and register definitions.
func NewTestStore(t *testing.T) *TestStore {
	t.Helper()
	return &TestStore{t: t}
}

// WithSchema registers definitions given as YAML.
func (s *TestStore) WithSchema(yaml string) *TestStore {
	s.schema = yaml
	return s
}

// WithProperty registers a property.
func (s *TestStore) WithProperty(p schema.Property) *TestStore {
	s.defs.Properties = append(s.defs.Properties, p)
	return s
}

// WithSynonymType registers a synonym type.
func (s *TestStore) WithSynonymType(st schema.SynonymType) *TestStore {
	s.defs.SynonymTypes = append(s.defs.SynonymTypes, st)
	return s
}

// WithValidator registers a record validator.
func (s *TestStore) WithValidator(v schema.Validator) *TestStore {
	s.defs.Validators = append(s.defs.Validators, v)
	return s
}

// WithChemistry installs e for SQLite structure predicates for the
// duration of the test. Tests using it must not run in parallel.
func (s *TestStore) WithChemistry(e chem.Engine) *TestStore {
	s.chem = e
	return s
}

// Fixture is a built test store.
type Fixture struct {
	DB       *store.DB
	Registry *registry.Registry
	t        *testing.T
}

// Build opens the database and registers every configured definition,
// failing the test on any unsuccessful outcome.
func (s *TestStore) Build() *Fixture {
	s.t.Helper()

	db, err := store.OpenInMemory()
	if err != nil {
		s.t.Fatalf("failed to open store: %v", err)
	}
	s.t.Cleanup(func() { db.Close() })

	if s.chem != nil {
		store.SetChemistry(s.chem)
		s.t.Cleanup(func() { store.SetChemistry(nil) })
	}

	f := &Fixture{DB: db, Registry: registry.New(db), t: s.t}

	defs := s.defs
	if s.schema != "" {
		parsed, err := schema.ParseDefinitions([]byte(s.schema))
		if err != nil {
			s.t.Fatalf("failed to parse schema: %v", err)
		}
		defs.Properties = append(parsed.Properties, defs.Properties...)
		defs.SynonymTypes = append(parsed.SynonymTypes, defs.SynonymTypes...)
		defs.Validators = append(parsed.Validators, defs.Validators...)
	}
	for _, o := range f.Registry.Register(context.Background(), &defs) {
		if o.Status != registry.Success {
			s.t.Fatalf("failed to register %s %s: %s", o.Kind, o.Name, o.Message)
		}
	}
	return f
}

// Insert adds an entity row and returns its id.
func (f *Fixture) Insert(et schema.EntityType, fixed map[string]any) int64 {
	f.t.Helper()
	id, err := f.DB.InsertEntity(context.Background(), et, fixed)
	if err != nil {
		f.t.Fatalf("failed to insert %s: %v", et.Table(), err)
	}
	return id
}

// Set stores a dynamic property value, coercing raw against the
// registered value type.
func (f *Fixture) Set(et schema.EntityType, id int64, name string, raw any) {
	f.t.Helper()
	ctx := context.Background()
	e, err := f.DB.Entry(ctx, et, name)
	if err != nil {
		f.t.Fatalf("unknown property %s.%s: %v", et.Table(), name, err)
	}
	v, err := schema.Coerce(e.ValueType, raw)
	if err != nil {
		f.t.Fatalf("failed to coerce %v for %s: %v", raw, name, err)
	}
	if err := f.DB.SetDetail(ctx, et, id, &e.Property, v); err != nil {
		f.t.Fatalf("failed to set %s: %v", name, err)
	}
}

// Compound inserts a compound with the given structure.
func (f *Fixture) Compound(smiles string) int64 {
	f.t.Helper()
	return f.Insert(schema.Compound, map[string]any{"canonical_smiles": smiles})
}

// Batch inserts a batch of a compound.
func (f *Fixture) Batch(compoundID int64) int64 {
	f.t.Helper()
	return f.Insert(schema.Batch, map[string]any{"compound_id": compoundID})
}

// Result inserts an assay result for a batch under a fresh assay run.
func (f *Fixture) Result(batchID int64) int64 {
	f.t.Helper()
	assayID := f.Insert(schema.Assay, map[string]any{"name": "assay"})
	runID := f.Insert(schema.AssayRun, map[string]any{"assay_id": assayID})
	return f.Insert(schema.AssayResult, map[string]any{"batch_id": batchID, "assay_run_id": runID})
}
