// Package registry owns property, synonym type and validator definitions.
// Registration is an idempotent per-item upsert: the storage uniqueness
// constraint picks the single creator, and every other attempt is compared
// against the stored definition to decide between Skipped and Failed.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/aidanlsb/moltrack/internal/constraint"
	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/metrics"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/store"
)

// Store is the persistence the registry needs. *store.DB implements it.
type Store interface {
	InsertEntry(ctx context.Context, e *schema.Entry) (bool, error)
	Entry(ctx context.Context, et schema.EntityType, name string) (*schema.Entry, error)
	EntryByID(ctx context.Context, id string) (*schema.Entry, error)
	Entries(ctx context.Context, et schema.EntityType) ([]schema.Entry, error)
	UpdateEntry(ctx context.Context, e *schema.Entry) error
	EntryInUse(ctx context.Context, e *schema.Entry) (bool, error)
	SemanticTypeExists(ctx context.Context, name string) (bool, error)
	InsertValidator(ctx context.Context, v *schema.Validator) (bool, error)
	Validator(ctx context.Context, name string) (*schema.Validator, error)
	Validators(ctx context.Context, et schema.EntityType, activeOnly bool) ([]schema.Validator, error)
	SetValidatorActive(ctx context.Context, name string, active bool) error
}

var _ Store = (*store.DB)(nil)

// Status is the three-way result of registering one item.
type Status string

const (
	Success Status = "success"
	Skipped Status = "skipped"
	Failed  Status = "failed"
)

// Outcome reports what happened to one submitted item.
type Outcome struct {
	Kind       string            `json:"kind"`
	Name       string            `json:"name"`
	EntityType schema.EntityType `json:"entity_type,omitempty"`
	Status     Status            `json:"status"`
	Message    string            `json:"message,omitempty"`
	ID         string            `json:"id,omitempty"`
	// Err is the classified cause of a Failed outcome.
	Err error `json:"-"`
}

// Registry registers and serves schema definitions.
type Registry struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	newID   func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithIDGenerator replaces the default UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// New creates a registry over s.
func New(s Store, opts ...Option) *Registry {
	r := &Registry{store: s, logger: slog.Default(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register submits definitions item by item. Each item commits on its own;
// a failure never undoes an earlier success. Outcomes are returned in
// submission order: properties, then synonym types, then validators.
func (r *Registry) Register(ctx context.Context, defs *schema.Definitions) []Outcome {
	var out []Outcome
	for _, p := range defs.Properties {
		out = append(out, r.registerEntry(ctx, schema.PropertyEntry(p)))
	}
	for _, s := range defs.SynonymTypes {
		out = append(out, r.registerEntry(ctx, schema.SynonymEntry(s)))
	}
	for _, v := range defs.Validators {
		out = append(out, r.RegisterValidator(ctx, v))
	}
	return out
}

func (r *Registry) registerEntry(ctx context.Context, e schema.Entry) Outcome {
	e.Normalize()
	o := Outcome{Kind: string(e.Kind), Name: e.Name, EntityType: e.EntityType}

	if err := r.checkEntry(ctx, &e); err != nil {
		return r.finish(o.fail(err))
	}

	e.ID = r.newID()
	created, err := r.store.InsertEntry(ctx, &e)
	if err != nil {
		return r.finish(o.fail(fmt.Errorf("store %s: %w", e.Name, err)))
	}
	if created {
		o.Status, o.ID = Success, e.ID
		return r.finish(o)
	}

	existing, err := r.store.Entry(ctx, e.EntityType, e.Name)
	if err != nil {
		return r.finish(o.fail(fmt.Errorf("load existing %s: %w", e.Name, err)))
	}
	o.ID = existing.ID
	if diffs := existing.Diff(&e); len(diffs) > 0 {
		return r.finish(o.fail(conflict(&e, diffs)))
	}
	o.Status, o.Message = Skipped, fmt.Sprintf("%s already exists", e.Name)
	return r.finish(o)
}

// checkEntry validates a definition and its references before any write.
func (r *Registry) checkEntry(ctx context.Context, e *schema.Entry) error {
	var err error
	if e.Kind == schema.KindSynonym {
		err = e.SynonymType.Check()
	} else {
		err = e.Property.Check()
	}
	if err != nil {
		return &errs.Error{Kind: errs.InvalidDefinition, EntityType: string(e.EntityType), Field: e.Name, Message: err.Error(), Err: err}
	}
	if _, err := constraint.ParseAll(e.Validators, e.ValueType); err != nil {
		var ce *errs.Error
		if errors.As(err, &ce) {
			ce.WithEntity(string(e.EntityType)).WithField(e.Name)
		}
		return err
	}
	if e.SemanticType != "" {
		ok, err := r.store.SemanticTypeExists(ctx, e.SemanticType)
		if err != nil {
			return err
		}
		if !ok {
			return errs.New(errs.InvalidDefinition, "unknown semantic type %q", e.SemanticType).
				WithEntity(string(e.EntityType)).WithField(e.Name)
		}
	}
	return nil
}

func conflict(e *schema.Entry, diffs []string) error {
	return errs.New(errs.SchemaConflict, "%s already exists with different %s", e.Name, joinDiffs(diffs)).
		WithEntity(string(e.EntityType)).WithField(e.Name)
}

func joinDiffs(diffs []string) string {
	return strings.Join(diffs, ", ")
}

// fail records err on the outcome. The message is the classified error's
// own text, without the kind and location prefix.
func (o Outcome) fail(err error) Outcome {
	o.Status, o.Message, o.Err = Failed, err.Error(), err
	var ce *errs.Error
	if errors.As(err, &ce) && ce.Message != "" {
		o.Message = ce.Message
	}
	return o
}

func (r *Registry) finish(o Outcome) Outcome {
	r.metrics.RegistryOutcome(o.Kind, string(o.Status))
	if o.Status == Failed {
		r.logger.Warn("registration failed", "kind", o.Kind, "name", o.Name, "entity_type", o.EntityType, "error", o.Message)
	} else {
		r.logger.Debug("registered", "kind", o.Kind, "name", o.Name, "entity_type", o.EntityType, "status", o.Status)
	}
	return o
}

// Update replaces the definition with the given id. The outcome follows
// registration: Success when changed, Skipped when the desired state is
// already stored, Failed otherwise. A value type cannot change once stored
// data references the definition.
func (r *Registry) Update(ctx context.Context, id string, desired schema.Entry) Outcome {
	desired.Normalize()
	o := Outcome{Kind: string(desired.Kind), Name: desired.Name, EntityType: desired.EntityType, ID: id}

	existing, err := r.store.EntryByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return r.finish(o.fail(errs.New(errs.InvalidDefinition, "no property or synonym type with id %s", id)))
	}
	if err != nil {
		return r.finish(o.fail(err))
	}
	if desired.Kind == "" {
		desired.Kind = existing.Kind
		o.Kind = string(existing.Kind)
	}
	desired.ID = id

	if err := r.checkEntry(ctx, &desired); err != nil {
		return r.finish(o.fail(err))
	}
	diffs := existing.Diff(&desired)
	if existing.Name != desired.Name {
		diffs = append(diffs, "name")
	}
	if len(diffs) == 0 {
		o.Status, o.Message = Skipped, "no changes"
		return r.finish(o)
	}
	for _, d := range diffs {
		if d != "kind" && d != "entity_type" && d != "value_type" {
			continue
		}
		inUse, err := r.store.EntryInUse(ctx, existing)
		if err != nil {
			return r.finish(o.fail(err))
		}
		if inUse {
			return r.finish(o.fail(errs.New(errs.SchemaConflict,
				"%s is referenced by stored data; %s cannot change", existing.Name, d).
				WithEntity(string(existing.EntityType)).WithField(existing.Name)))
		}
	}

	if err := r.store.UpdateEntry(ctx, &desired); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			err = errs.New(errs.SchemaConflict, "%s already exists for %s", desired.Name, desired.EntityType).
				WithEntity(string(desired.EntityType)).WithField(desired.Name)
		}
		return r.finish(o.fail(err))
	}
	o.Status, o.Message = Success, "updated "+strings.Join(diffs, ", ")
	return r.finish(o)
}

// Get returns the schema of one entity type in registration order.
func (r *Registry) Get(ctx context.Context, et schema.EntityType) (*schema.Schema, error) {
	entries, err := r.store.Entries(ctx, et)
	if err != nil {
		return nil, err
	}
	s := &schema.Schema{EntityType: et, Properties: []schema.Property{}, SynonymTypes: []schema.SynonymType{}}
	for _, e := range entries {
		if e.Kind == schema.KindSynonym {
			s.SynonymTypes = append(s.SynonymTypes, e.SynonymType)
			continue
		}
		s.Properties = append(s.Properties, e.Property)
	}
	s.Validators, err = r.store.Validators(ctx, et, false)
	if err != nil {
		return nil, err
	}
	return s, nil
}
