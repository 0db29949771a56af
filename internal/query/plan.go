package query

import (
	"fmt"
	"strings"

	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/slugs"
	"github.com/aidanlsb/moltrack/internal/sqlutil"
)

// AggOp is an aggregation operation.
type AggOp string

const (
	AggAvg          AggOp = "AVG"
	AggSum          AggOp = "SUM"
	AggCount        AggOp = "COUNT"
	AggMin          AggOp = "MIN"
	AggMax          AggOp = "MAX"
	AggMedian       AggOp = "MED"
	AggStdev        AggOp = "STDEV"
	AggUnique       AggOp = "UNIQUE"
	AggNulls        AggOp = "NULLS"
	AggConcatUnique AggOp = "CONCAT UNIQUE"
)

var aggOps = []AggOp{AggAvg, AggSum, AggCount, AggMin, AggMax, AggMedian, AggStdev, AggUnique, AggNulls, AggConcatUnique}

// ParseAggOp normalizes an aggregation name. MEDIAN and STDDEV are
// accepted as aliases.
func ParseAggOp(s string) (AggOp, bool) {
	norm := strings.Join(strings.Fields(strings.ToUpper(s)), " ")
	switch norm {
	case "MEDIAN":
		return AggMedian, true
	case "STDDEV":
		return AggStdev, true
	}
	for _, op := range aggOps {
		if string(op) == norm {
			return op, true
		}
	}
	return "", false
}

func (op AggOp) numericOnly() bool {
	switch op {
	case AggAvg, AggSum, AggMedian, AggStdev:
		return true
	}
	return false
}

// resultType is the value type an aggregation produces over a field of
// type vt.
func (op AggOp) resultType(vt schema.ValueType) schema.ValueType {
	switch op {
	case AggCount, AggUnique, AggNulls:
		return schema.TypeInt
	case AggAvg, AggMedian, AggStdev:
		return schema.TypeDouble
	case AggConcatUnique:
		return schema.TypeString
	}
	return vt
}

// AggregationSpec asks for one aggregation of one field.
type AggregationSpec struct {
	Field     string `json:"field" yaml:"field"`
	Operation string `json:"operation" yaml:"operation"`
}

// SearchRequest is the request shape accepted by "search plan" and
// "search run".
type SearchRequest struct {
	Level        string            `json:"level" yaml:"level"`
	Output       []string          `json:"output" yaml:"output"`
	Aggregations []AggregationSpec `json:"aggregations,omitempty" yaml:"aggregations,omitempty"`
	Filter       *FilterNode       `json:"filter,omitempty" yaml:"-"`
	Limit        int               `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Column is one output column of a plan.
type Column struct {
	Alias       string           `json:"alias"`
	FieldRef    string           `json:"field"`
	Aggregation AggOp            `json:"aggregation,omitempty"`
	ValueType   schema.ValueType `json:"value_type"`
	GroupKey    bool             `json:"group_key,omitempty"`
	Joins       []string         `json:"joins,omitempty"`

	field *Field
	path  Path
}

// QueryPlan is a level-anchored search: one row per entity of EntityType,
// with grouping keys and aggregations over related levels as columns.
type QueryPlan struct {
	EntityType schema.EntityType  `json:"entity_type"`
	Columns    []Column           `json:"columns"`
	GroupBy    []string           `json:"group_by"`
	Predicate  *CompiledPredicate `json:"predicate,omitempty"`
	Limit      int                `json:"limit,omitempty"`
	Metadata   Metadata           `json:"metadata"`
}

// PlanRequest plans a decoded search request.
func (c *Compiler) PlanRequest(req SearchRequest) (*QueryPlan, error) {
	et, err := schema.ParseEntityType(req.Level)
	if err != nil {
		return nil, errs.Wrap(errs.UnknownField, err, fmt.Sprintf("unknown level %q", req.Level))
	}
	plan, err := c.Plan(req.Output, req.Filter, req.Aggregations, et)
	if err != nil {
		return nil, err
	}
	if req.Limit < 0 {
		return nil, errs.New(errs.MalformedFilter, "limit must not be negative")
	}
	plan.Limit = req.Limit
	return plan, nil
}

// Plan resolves output fields and aggregations anchored at et. The anchor's
// id is always the first grouping key. Non-aggregated fields become
// grouping keys and must be reachable without fanning out; a field on a
// one-to-many path has to be aggregated.
func (c *Compiler) Plan(output []string, filter *FilterNode, aggs []AggregationSpec, et schema.EntityType) (*QueryPlan, error) {
	pred, err := c.Compile(filter, et)
	if err != nil {
		return nil, err
	}
	plan := &QueryPlan{EntityType: et, Predicate: pred, Metadata: pred.Metadata}

	idRef := et.Table() + ".id"
	anchor, err := resolveField(c.catalog, idRef)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	addKey := func(f *Field, path Path) {
		key := f.Key()
		if seen[key] {
			return
		}
		seen[key] = true
		plan.GroupBy = append(plan.GroupBy, key)
		plan.Columns = append(plan.Columns, Column{
			Alias:     slugs.ColumnAlias(key),
			FieldRef:  f.Ref,
			ValueType: f.ValueType,
			GroupKey:  true,
			Joins:     describePath(path),
			field:     f,
			path:      path,
		})
	}
	addKey(anchor, nil)

	groupTypes := map[string]schema.ValueType{anchor.Key(): anchor.ValueType}
	for _, ref := range output {
		f, err := resolveField(c.catalog, ref)
		if err != nil {
			return nil, err
		}
		path, err := c.opts.Graph.ShortestPath(et, f.Level)
		if err != nil {
			return nil, err
		}
		if path.ToMany() {
			return nil, errs.New(errs.CardinalityViolation,
				"%s is one-to-many from %s; request it through an aggregation", ref, et.Table()).
				WithEntity(string(et)).WithField(ref)
		}
		groupTypes[f.Key()] = f.ValueType
		addKey(f, path)
	}

	aggSeen := map[string]bool{}
	for _, spec := range aggs {
		op, ok := ParseAggOp(spec.Operation)
		if !ok {
			return nil, errs.New(errs.UnsupportedOperator, "unknown aggregation %q", spec.Operation).
				WithField(spec.Field).WithFragment(spec.Operation)
		}
		f, err := resolveField(c.catalog, spec.Field)
		if err != nil {
			return nil, err
		}
		if op.numericOnly() && !f.ValueType.IsNumeric() {
			return nil, errs.New(errs.UnsupportedOperator, "%s requires a numeric field, %s is %s", op, spec.Field, f.ValueType).
				WithField(spec.Field).WithFragment(string(op))
		}
		path, err := c.opts.Graph.ShortestPath(et, f.Level)
		if err != nil {
			return nil, err
		}
		result := op.resultType(f.ValueType)
		if gt, grouped := groupTypes[f.Key()]; grouped && gt != result {
			return nil, errs.New(errs.AmbiguousGrouping,
				"%s is both a grouping key (%s) and aggregated by %s (%s)", spec.Field, gt, op, result).
				WithField(spec.Field)
		}

		id := string(op) + " " + f.Key()
		if aggSeen[id] {
			continue
		}
		aggSeen[id] = true
		plan.Columns = append(plan.Columns, Column{
			Alias:       slugs.ColumnAlias(string(op), f.Key()),
			FieldRef:    f.Ref,
			Aggregation: op,
			ValueType:   result,
			Joins:       describePath(path),
			field:       f,
			path:        path,
		})
	}

	for _, col := range plan.Columns {
		plan.Metadata.Fields = appendUnique(plan.Metadata.Fields, col.field.Key())
	}
	return plan, nil
}

func describePath(path Path) []string {
	var out []string
	for _, s := range path {
		if s.Bridge != "" {
			out = append(out, fmt.Sprintf("%s.%s = %s.%s", s.Bridge, s.BridgeFrom, s.From.Table(), s.FromKey),
				fmt.Sprintf("%s.%s = %s.%s", s.To.Table(), s.ToKey, s.Bridge, s.BridgeTo))
			continue
		}
		out = append(out, fmt.Sprintf("%s.%s = %s.%s", s.To.Table(), s.ToKey, s.From.Table(), s.FromKey))
	}
	return out
}

// SQL renders the plan as a single SELECT with one row per anchor entity.
// Related levels are read through correlated subqueries, so no GROUP BY is
// needed: the anchor id is already unique.
func (p *QueryPlan) SQL(d Dialect) (string, []any, error) {
	r := &renderer{d: d, sensitivity: p.Metadata.Sensitivity, metric: p.Metadata.SimilarityMetric}

	selects := make([]string, 0, len(p.Columns))
	for _, col := range p.Columns {
		expr, err := r.column(col)
		if err != nil {
			return "", nil, err
		}
		selects = append(selects, fmt.Sprintf("%s AS %s", expr, col.Alias))
	}

	var root *Condition
	if p.Predicate != nil {
		root = p.Predicate.Root
	}
	where, err := r.condition(root)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s %s", strings.Join(selects, ", "), p.EntityType.Table(), anchorAlias)
	if root != nil {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	fmt.Fprintf(&b, " ORDER BY %s.id", anchorAlias)
	if p.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", p.Limit)
	}
	return sqlutil.Rebind(d.Kind(), b.String()), r.args, nil
}

func (r *renderer) column(col Column) (string, error) {
	f := col.field
	if col.Aggregation == "" && len(col.path) == 0 {
		return r.value(f, anchorAlias), nil
	}

	s := &scope{}
	var owner string
	if len(col.path) == 0 {
		// Aggregating an anchor field still reads it through a subquery so
		// every aggregate renders the same way.
		owner = r.alias("j")
		s.from = append(s.from, f.Level.Table()+" "+owner)
		s.where = append(s.where, fmt.Sprintf("%s.id = %s.id", owner, anchorAlias))
	} else {
		owner = r.walk(col.path, s)
	}

	expr := r.value(f, owner)
	if col.Aggregation != "" {
		agg, err := r.d.Aggregate(col.Aggregation, expr)
		if err != nil {
			return "", errs.Wrap(errs.UnsupportedOperator, err, err.Error())
		}
		expr = agg
	}
	return fmt.Sprintf("(SELECT %s FROM %s WHERE %s)", expr,
		strings.Join(s.from, ", "), strings.Join(s.where, " AND ")), nil
}

// value reads f for the row aliased owner. A dynamic field is a scalar
// lookup in the details table, so rows without a value read as NULL.
func (r *renderer) value(f *Field, owner string) string {
	if !f.Dynamic {
		return owner + "." + physicalColumn(f)
	}
	d := r.alias("d")
	r.args = append(r.args, f.Property.ID)
	return fmt.Sprintf("(SELECT %s.%s FROM %s %s WHERE %s.%s = %s.id AND %s.property_id = ?)",
		d, ValueColumn(f.ValueType), f.Level.DetailsTable(), d, d, f.Level.DetailsKey(), owner, d)
}
