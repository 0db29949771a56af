// Package query compiles structured filter trees and search requests over
// fixed columns, dynamic details and chemistry operators into relational
// predicates and level-anchored query plans.
package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aidanlsb/moltrack/internal/chem"
	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/schema"
)

// Options configures compilation. They are explicit inputs so a compiled
// predicate is reproducible from its inputs alone.
type Options struct {
	Sensitivity chem.Sensitivity
	Metric      chem.Metric
	// DefaultThreshold is substituted for a missing IS SIMILAR threshold
	// only when AllowDefaultThreshold is set. Substitutions are reported
	// in the compiled metadata.
	DefaultThreshold      float64
	AllowDefaultThreshold bool
	Graph                 *Graph
}

// Compiler resolves fields against a catalog and compiles filters and
// plans. It holds no mutable state.
type Compiler struct {
	catalog Catalog
	opts    Options
}

// NewCompiler creates a compiler. Zero option values fall back to
// ALL_LAYERS, tanimoto and the default level graph.
func NewCompiler(cat Catalog, opts Options) *Compiler {
	if opts.Sensitivity == "" {
		opts.Sensitivity = chem.AllLayers
	}
	if opts.Metric == "" {
		opts.Metric = chem.Tanimoto
	}
	if opts.Graph == nil {
		opts.Graph = DefaultGraph()
	}
	return &Compiler{catalog: cat, opts: opts}
}

// Condition is a compiled filter node: either a group or a leaf.
type Condition struct {
	Group    GroupOp
	Children []*Condition
	Leaf     *Leaf
}

// Leaf is a compiled comparison.
type Leaf struct {
	Field     *Field
	Operator  Operator
	Values    []schema.Value
	Threshold float64
	// Path joins the anchor level to the field's level.
	Path Path

	rawValue     interface{}
	rawThreshold *float64
}

// Metadata reports the settings a predicate was compiled with.
type Metadata struct {
	Sensitivity      chem.Sensitivity `json:"sensitivity"`
	SimilarityMetric chem.Metric      `json:"similarity_metric"`
	// DefaultedThresholds lists fields whose similarity threshold came
	// from configuration rather than the request.
	DefaultedThresholds []string `json:"defaulted_thresholds,omitempty"`
	DefaultThreshold    *float64 `json:"default_threshold,omitempty"`
	Fields              []string `json:"fields,omitempty"`
}

// CompiledPredicate is a filter compiled for one anchor level.
type CompiledPredicate struct {
	EntityType schema.EntityType
	Root       *Condition
	Metadata   Metadata
}

// Compile validates and compiles a filter tree anchored at et. A nil tree
// compiles to a predicate that matches everything.
func (c *Compiler) Compile(root *FilterNode, et schema.EntityType) (*CompiledPredicate, error) {
	if !et.Valid() {
		return nil, errs.New(errs.UnknownField, "unknown entity type %q", et)
	}
	cp := &CompiledPredicate{
		EntityType: et,
		Metadata: Metadata{
			Sensitivity:      c.opts.Sensitivity,
			SimilarityMetric: c.opts.Metric,
		},
	}
	if root == nil {
		return cp, nil
	}
	cond, err := c.compileNode(root, et, &cp.Metadata)
	if err != nil {
		return nil, err
	}
	cp.Root = cond
	return cp, nil
}

func (c *Compiler) compileNode(n *FilterNode, et schema.EntityType, meta *Metadata) (*Condition, error) {
	if n == nil {
		return nil, errs.New(errs.MalformedFilter, "null condition").WithEntity(string(et))
	}
	if !n.IsGroup() {
		leaf, err := c.compileLeaf(n, et, meta)
		if err != nil {
			return nil, err
		}
		return &Condition{Leaf: leaf}, nil
	}

	op, ok := parseGroupOp(n.Operator)
	if !ok {
		return nil, errs.New(errs.MalformedFilter, "unknown group operator %q", n.Operator).WithFragment(n.Operator)
	}
	if len(n.Conditions) == 0 {
		return nil, errs.New(errs.MalformedFilter, "%s group has no conditions", op)
	}
	if op == GroupNot && len(n.Conditions) != 1 {
		return nil, errs.New(errs.MalformedFilter, "NOT requires exactly one condition, got %d", len(n.Conditions))
	}

	cond := &Condition{Group: op}
	for _, child := range n.Conditions {
		cc, err := c.compileNode(child, et, meta)
		if err != nil {
			return nil, err
		}
		cond.Children = append(cond.Children, cc)
	}
	return cond, nil
}

func (c *Compiler) compileLeaf(n *FilterNode, et schema.EntityType, meta *Metadata) (*Leaf, error) {
	if len(n.Conditions) > 0 {
		return nil, errs.New(errs.MalformedFilter, "a condition cannot have both a field and nested conditions").WithField(n.Field)
	}
	field, err := resolveField(c.catalog, n.Field)
	if err != nil {
		return nil, err
	}
	op, ok := ParseOperator(n.Operator)
	if !ok {
		return nil, errs.New(errs.UnsupportedOperator, "unknown operator %q", n.Operator).
			WithField(n.Field).WithFragment(n.Operator)
	}
	if !operatorAllowed(op, field) {
		what := string(field.ValueType)
		switch {
		case field.Column.Structure:
			what = "structure"
		case field.Column.Representation:
			what = "structure representation"
		}
		return nil, errs.New(errs.UnsupportedOperator, "operator %s is not valid for %s field", op, what).
			WithField(n.Field).WithFragment(string(op))
	}
	if n.Threshold != nil && op != OpSimilar {
		return nil, errs.New(errs.MalformedFilter, "threshold only applies to %s", OpSimilar).WithField(n.Field)
	}

	path, err := c.opts.Graph.ShortestPath(et, field.Level)
	if err != nil {
		return nil, err
	}

	leaf := &Leaf{Field: field, Operator: op, Path: path, rawValue: n.Value, rawThreshold: n.Threshold}
	if err := c.bindValues(leaf, n, meta); err != nil {
		return nil, err
	}
	meta.Fields = appendUnique(meta.Fields, field.Key())
	return leaf, nil
}

func (c *Compiler) bindValues(leaf *Leaf, n *FilterNode, meta *Metadata) error {
	field := leaf.Field
	mismatch := func(format string, args ...any) error {
		return errs.New(errs.TypeMismatch, format, args...).WithField(n.Field).WithFragment(fmt.Sprint(n.Value))
	}

	switch op := leaf.Operator; {
	case op == OpExists:
		return nil

	case field.Column.Structure:
		s, ok := n.Value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return mismatch("%s expects a structure string", op)
		}
		leaf.Values = []schema.Value{schema.String(s)}
		if op != OpSimilar {
			return nil
		}
		switch {
		case n.Threshold != nil:
			leaf.Threshold = *n.Threshold
		case c.opts.AllowDefaultThreshold:
			leaf.Threshold = c.opts.DefaultThreshold
			meta.DefaultedThresholds = append(meta.DefaultedThresholds, n.Field)
			t := c.opts.DefaultThreshold
			meta.DefaultThreshold = &t
		default:
			return errs.New(errs.MissingThreshold, "%s requires a threshold", OpSimilar).WithField(n.Field)
		}
		if leaf.Threshold < 0 || leaf.Threshold > 1 {
			return errs.New(errs.TypeMismatch, "threshold %v must be between 0 and 1", leaf.Threshold).WithField(n.Field)
		}
		return nil

	case op.takesList():
		items, ok := n.Value.([]interface{})
		if !ok {
			return mismatch("%s expects a list value", op)
		}
		if len(items) == 0 {
			return mismatch("%s expects a non-empty list", op)
		}
		if op == OpRange && len(items) != 2 {
			return mismatch("RANGE expects exactly two values, got %d", len(items))
		}
		for _, item := range items {
			v, err := coerceFilterValue(field.ValueType, item)
			if err != nil {
				return mismatch("value %v is not a valid %s", item, field.ValueType)
			}
			leaf.Values = append(leaf.Values, v)
		}
		if op == OpRange {
			if cmp, err := schema.Compare(leaf.Values[0], leaf.Values[1]); err != nil || cmp >= 0 {
				return mismatch("RANGE lower bound must be less than upper bound")
			}
		}
		return nil

	case op == OpLike || op == OpContains || op == OpStartsWith || op == OpEndsWith:
		s, ok := n.Value.(string)
		if !ok {
			return mismatch("%s expects a string value", op)
		}
		leaf.Values = []schema.Value{schema.String(s)}
		return nil
	}

	if n.Value == nil {
		return mismatch("%s requires a value", leaf.Operator)
	}
	v, err := coerceFilterValue(field.ValueType, n.Value)
	if err != nil {
		return mismatch("value %v is not a valid %s", n.Value, field.ValueType)
	}
	leaf.Values = []schema.Value{v}
	return nil
}

// coerceFilterValue coerces a decoded JSON value. Qualified numbers such
// as "<5" are not meaningful as filter operands.
func coerceFilterValue(vt schema.ValueType, raw interface{}) (schema.Value, error) {
	v, err := schema.Coerce(vt, raw)
	if err != nil {
		return v, err
	}
	if v.IsNull() {
		return v, errs.New(errs.TypeMismatch, "null is not a valid operand")
	}
	if v.Qualifier() != schema.QualEqual {
		return v, errs.New(errs.TypeMismatch, "qualified value %v is not a valid operand", raw)
	}
	return v, nil
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// Filter re-serializes the compiled predicate into a filter tree that
// compiles to the same predicate.
func (cp *CompiledPredicate) Filter() *FilterNode {
	if cp == nil || cp.Root == nil {
		return nil
	}
	return cp.Root.filter()
}

func (c *Condition) filter() *FilterNode {
	if c.Leaf != nil {
		return &FilterNode{
			Field:     c.Leaf.Field.Ref,
			Operator:  string(c.Leaf.Operator),
			Value:     c.Leaf.rawValue,
			Threshold: c.Leaf.rawThreshold,
		}
	}
	n := &FilterNode{Operator: string(c.Group)}
	for _, child := range c.Children {
		n.Conditions = append(n.Conditions, child.filter())
	}
	return n
}

// String renders the predicate in infix form with explicit grouping.
func (cp *CompiledPredicate) String() string {
	return cp.Filter().String()
}

// MarshalJSON encodes the re-serialized filter tree with its metadata.
func (cp *CompiledPredicate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EntityType schema.EntityType `json:"entity_type"`
		Filter     *FilterNode       `json:"filter,omitempty"`
		Expression string            `json:"expression,omitempty"`
		Metadata   Metadata          `json:"metadata"`
	}{cp.EntityType, cp.Filter(), cp.String(), cp.Metadata})
}
