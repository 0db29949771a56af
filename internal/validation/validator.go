// Package validation checks records against registered definitions.
//
// Single-field checks run first, per field present in the record and in
// property registration order: type coercion, nullability, min/max bounds,
// choices, then every constraint validator of the property. Synonym values
// are checked against their synonym type's pattern. Active record-level
// validators then run in registration order against the whole record.
// The two passes are independent: a field failure does not skip the
// record-level rules, which see coerced values where coercion succeeded.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aidanlsb/moltrack/internal/constraint"
	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/expr"
	"github.com/aidanlsb/moltrack/internal/metrics"
	"github.com/aidanlsb/moltrack/internal/schema"
)

// DefaultCacheSize bounds each compiled-artifact cache.
const DefaultCacheSize = 256

// Scope tells whether a failure came from a single field or from a
// record-level validator.
type Scope string

const (
	ScopeField  Scope = "field"
	ScopeRecord Scope = "record"
)

// Failure is one validation failure.
type Failure struct {
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
	Scope     Scope  `json:"scope"`
	Validator string `json:"validator,omitempty"`
}

// Result is the outcome of validating one record.
type Result struct {
	OK       bool      `json:"ok"`
	Failures []Failure `json:"failures"`
}

// Source supplies the registered definitions of an entity type.
// *registry.Registry implements it.
type Source interface {
	Get(ctx context.Context, et schema.EntityType) (*schema.Schema, error)
}

// Engine validates records. Definitions are read from the source on each
// call; compiled rules and constraints are cached by source text.
type Engine struct {
	source      Source
	logger      *slog.Logger
	metrics     *metrics.Metrics
	rules       *lru.Cache[string, *expr.Rule]
	constraints *lru.Cache[string, *constraint.Predicate]
	evalOpts    []expr.EvalOption
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records validation results and cache usage.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithEvalOptions passes options to every record-level rule evaluation,
// e.g. a fixed clock in tests.
func WithEvalOptions(opts ...expr.EvalOption) Option {
	return func(e *Engine) { e.evalOpts = append(e.evalOpts, opts...) }
}

// New creates an engine. A non-positive cacheSize uses DefaultCacheSize.
func New(src Source, cacheSize int, opts ...Option) (*Engine, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	rules, err := lru.New[string, *expr.Rule](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule cache: %w", err)
	}
	constraints, err := lru.New[string, *constraint.Predicate](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create constraint cache: %w", err)
	}
	e := &Engine{source: src, logger: slog.Default(), rules: rules, constraints: constraints}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Validate checks one record of et.
func (e *Engine) Validate(ctx context.Context, et schema.EntityType, record map[string]any) (*Result, error) {
	s, err := e.snapshot(ctx, et)
	if err != nil {
		return nil, err
	}
	return e.validate(s, record), nil
}

func (e *Engine) snapshot(ctx context.Context, et schema.EntityType) (*schema.Schema, error) {
	if !et.Valid() {
		return nil, errs.New(errs.UnknownField, "unknown entity type %q", et)
	}
	s, err := e.source.Get(ctx, et)
	if err != nil {
		return nil, fmt.Errorf("load %s schema: %w", et, err)
	}
	return s, nil
}

func (e *Engine) validate(s *schema.Schema, record map[string]any) *Result {
	res := &Result{Failures: []Failure{}}
	fail := func(field, format string, args ...any) {
		res.Failures = append(res.Failures, Failure{Field: field, Scope: ScopeField, Message: fmt.Sprintf(format, args...)})
	}

	// Record-level rules see coerced values where coercion succeeded.
	evalRecord := make(map[string]any, len(record))
	for k, v := range record {
		evalRecord[k] = v
	}

	for i := range s.Properties {
		p := &s.Properties[i]
		raw, present := record[p.Name]
		if !present {
			continue
		}
		v, err := schema.Coerce(p.ValueType, raw)
		if err != nil {
			fail(p.Name, "%s", message(err))
			continue
		}
		evalRecord[p.Name] = v
		if v.IsNull() {
			if !p.IsNullable() {
				fail(p.Name, "Value is required")
			}
			continue
		}

		if f, ok := v.AsFloat(); ok {
			if p.Min != nil && f < *p.Min {
				fail(p.Name, "Value %s is less than the minimum allowed %v", v, *p.Min)
			}
			if p.Max != nil && f > *p.Max {
				fail(p.Name, "Value %s is greater than the maximum allowed %v", v, *p.Max)
			}
		}
		if len(p.Choices) > 0 {
			if str, _ := v.AsString(); !slices.Contains(p.Choices, str) {
				fail(p.Name, "Value %q is not in the allowed choices: %s", str, strings.Join(p.Choices, ", "))
			}
		}
		if len(p.Validators) > 0 {
			conj, err := e.conjunction(p)
			if err != nil {
				fail(p.Name, "%s", message(err))
				continue
			}
			for _, pred := range conj.Failing(v) {
				fail(p.Name, "Value %s does not satisfy %s", v, pred)
			}
		}
	}

	for i := range s.SynonymTypes {
		st := &s.SynonymTypes[i]
		raw, present := record[st.Name]
		if !present || raw == nil {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			fail(st.Name, "expected string, got %v (%T)", raw, raw)
			continue
		}
		if msg := checkPattern(st, value); msg != "" {
			fail(st.Name, "%s", msg)
		}
	}
	fieldFailures := len(res.Failures)

	defaults := make(map[string]any)
	for _, c := range schema.FixedColumns(s.EntityType) {
		defaults[c.Name] = nil
	}
	for _, p := range s.Properties {
		defaults[p.Name] = nil
	}
	for _, st := range s.SynonymTypes {
		defaults[st.Name] = nil
	}
	opts := append([]expr.EvalOption{expr.WithDefaults(defaults)}, e.evalOpts...)

	for _, v := range s.Validators {
		if !v.IsActive {
			continue
		}
		f := Failure{Scope: ScopeRecord, Validator: v.Name}
		rule, err := e.rule(v.Expression)
		if err != nil {
			f.Message = fmt.Sprintf("Validator %s could not be compiled: %s", v.Name, message(err))
			res.Failures = append(res.Failures, f)
			continue
		}
		ok, err := rule.Evaluate(evalRecord, opts...)
		switch {
		case err != nil:
			f.Message = fmt.Sprintf("Validator %s could not be evaluated: %s", v.Name, message(err))
		case !ok && v.Description != "":
			f.Message = fmt.Sprintf("Record failed validator %s: %s", v.Name, v.Description)
		case !ok:
			f.Message = fmt.Sprintf("Record failed validator %s", v.Name)
		default:
			continue
		}
		res.Failures = append(res.Failures, f)
	}

	res.OK = len(res.Failures) == 0
	e.metrics.Validation(string(s.EntityType), fieldFailures, len(res.Failures)-fieldFailures)
	if !res.OK {
		e.logger.Debug("record failed validation", "entity_type", s.EntityType, "failures", len(res.Failures))
	}
	return res
}

// ValidateSynonym checks a value about to be attached under synonym type
// name. An unknown synonym type is an error; a value not fully matching
// the pattern is a failed result.
func (e *Engine) ValidateSynonym(ctx context.Context, et schema.EntityType, name, value string) (*Result, error) {
	s, err := e.snapshot(ctx, et)
	if err != nil {
		return nil, err
	}
	st, ok := s.SynonymType(name)
	if !ok {
		return nil, errs.New(errs.UnknownField, "synonym type %q is not registered for %s", name, et).
			WithEntity(string(et)).WithField(name)
	}
	res := &Result{OK: true, Failures: []Failure{}}
	if msg := checkPattern(st, value); msg != "" {
		res.OK = false
		res.Failures = append(res.Failures, Failure{Field: name, Scope: ScopeField, Message: msg})
	}
	return res, nil
}

func checkPattern(st *schema.SynonymType, value string) string {
	ok, err := st.MatchesPattern(value)
	if err != nil {
		return fmt.Sprintf("Pattern %q of %s is invalid: %v", st.Pattern, st.Name, err)
	}
	if !ok {
		return fmt.Sprintf("Value %q does not match the pattern %s", value, st.Pattern)
	}
	return ""
}

func (e *Engine) rule(src string) (*expr.Rule, error) {
	if r, ok := e.rules.Get(src); ok {
		e.metrics.RuleCache(true)
		return r, nil
	}
	e.metrics.RuleCache(false)
	r, err := expr.Compile(src)
	if err != nil {
		return nil, err
	}
	e.rules.Add(src, r)
	return r, nil
}

func (e *Engine) conjunction(p *schema.Property) (constraint.Conjunction, error) {
	out := make(constraint.Conjunction, 0, len(p.Validators))
	for _, src := range p.Validators {
		key := string(p.ValueType) + "\x00" + src
		if pred, ok := e.constraints.Get(key); ok {
			e.metrics.RuleCache(true)
			out = append(out, pred)
			continue
		}
		e.metrics.RuleCache(false)
		pred, err := constraint.Parse(src, p.ValueType)
		if err != nil {
			return nil, err
		}
		e.constraints.Add(key, pred)
		out = append(out, pred)
	}
	return out, nil
}

// message prefers the classified message over the decorated Error text.
func message(err error) string {
	var ce *errs.Error
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return err.Error()
}
