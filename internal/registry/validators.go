package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/expr"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/store"
)

// RegisterValidator registers a record-level rule. The expression must
// compile and may only reference registered names or fixed columns of its
// entity type. New validators start active.
func (r *Registry) RegisterValidator(ctx context.Context, v schema.Validator) Outcome {
	v.Normalize()
	o := Outcome{Kind: "validator", Name: v.Name, EntityType: v.EntityType}

	if err := r.checkValidator(ctx, &v); err != nil {
		return r.finish(o.fail(err))
	}

	v.ID = r.newID()
	v.IsActive = true
	created, err := r.store.InsertValidator(ctx, &v)
	if err != nil {
		return r.finish(o.fail(fmt.Errorf("store %s: %w", v.Name, err)))
	}
	if created {
		o.Status, o.ID = Success, v.ID
		return r.finish(o)
	}

	existing, err := r.store.Validator(ctx, v.Name)
	if err != nil {
		return r.finish(o.fail(fmt.Errorf("load existing %s: %w", v.Name, err)))
	}
	o.ID = existing.ID
	if diffs := existing.Diff(&v); len(diffs) > 0 {
		return r.finish(o.fail(errs.New(errs.SchemaConflict, "%s already exists with different %s", v.Name, joinDiffs(diffs)).
			WithEntity(string(v.EntityType)).WithField(v.Name)))
	}
	o.Status, o.Message = Skipped, fmt.Sprintf("%s already exists", v.Name)
	return r.finish(o)
}

func (r *Registry) checkValidator(ctx context.Context, v *schema.Validator) error {
	if v.Name == "" {
		return errs.New(errs.InvalidDefinition, "validator name is required")
	}
	if !v.EntityType.Valid() {
		return errs.New(errs.InvalidDefinition, "unknown entity type %q", v.EntityType).WithField(v.Name)
	}
	rule, err := expr.Compile(v.Expression)
	if err != nil {
		var ce *errs.Error
		if errors.As(err, &ce) {
			ce.WithEntity(string(v.EntityType)).WithField(v.Name)
		}
		return err
	}

	entries, err := r.store.Entries(ctx, v.EntityType)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		known[e.Name] = true
	}
	for _, name := range rule.Fields() {
		if known[name] {
			continue
		}
		if _, ok := schema.FixedColumn(v.EntityType, name); ok {
			continue
		}
		return errs.New(errs.UnknownField, "validator %s references %q, which is not defined for %s", v.Name, name, v.EntityType).
			WithEntity(string(v.EntityType)).WithField(v.Name).WithFragment(name)
	}
	return nil
}

// Validators lists validators of an entity type in registration order.
func (r *Registry) Validators(ctx context.Context, et schema.EntityType, activeOnly bool) ([]schema.Validator, error) {
	return r.store.Validators(ctx, et, activeOnly)
}

// DisableValidator stops a validator from running without deleting it.
func (r *Registry) DisableValidator(ctx context.Context, name string) error {
	return r.setActive(ctx, name, false)
}

// EnableValidator reactivates a disabled validator.
func (r *Registry) EnableValidator(ctx context.Context, name string) error {
	return r.setActive(ctx, name, true)
}

func (r *Registry) setActive(ctx context.Context, name string, active bool) error {
	err := r.store.SetValidatorActive(ctx, name, active)
	if errors.Is(err, store.ErrNotFound) {
		return errs.New(errs.InvalidDefinition, "validator %q does not exist", name).WithField(name)
	}
	if err != nil {
		return err
	}
	r.logger.Info("validator updated", "name", name, "active", active)
	return nil
}
