package query

import (
	"fmt"
	"strings"

	"github.com/aidanlsb/moltrack/internal/chem"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/sqlutil"
)

// anchorAlias is the alias of the anchor level's table in rendered SQL.
const anchorAlias = "a"

// renderer accumulates arguments and hands out unique table aliases.
type renderer struct {
	d           Dialect
	sensitivity chem.Sensitivity
	metric      chem.Metric
	n           int
	args        []any
}

func (r *renderer) alias(prefix string) string {
	r.n++
	return fmt.Sprintf("%s%d", prefix, r.n)
}

// SQL renders the predicate as a boolean expression over the anchor table,
// aliased "a". An empty predicate renders as "1=1".
func (cp *CompiledPredicate) SQL(d Dialect) (string, []any, error) {
	r := &renderer{d: d, sensitivity: cp.Metadata.Sensitivity, metric: cp.Metadata.SimilarityMetric}
	where, err := r.condition(cp.Root)
	if err != nil {
		return "", nil, err
	}
	return sqlutil.Rebind(d.Kind(), where), r.args, nil
}

func (r *renderer) condition(c *Condition) (string, error) {
	if c == nil {
		return "1=1", nil
	}
	if c.Leaf != nil {
		return r.leaf(c.Leaf)
	}

	parts := make([]string, 0, len(c.Children))
	for _, child := range c.Children {
		s, err := r.condition(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if c.Group == GroupNot {
		return "NOT (" + parts[0] + ")", nil
	}
	return "(" + strings.Join(parts, " "+string(c.Group)+" ") + ")", nil
}

// scope is the FROM list and join conditions reaching a field from the
// anchor row.
type scope struct {
	from  []string
	where []string
	// target is the alias of the field's level (or its details row).
	target string
}

// walk joins the path steps starting at the anchor alias and returns the
// alias of the last level.
func (r *renderer) walk(path Path, s *scope) string {
	prev := anchorAlias
	for _, step := range path {
		next := r.alias("j")
		if step.Bridge != "" {
			b := r.alias("b")
			s.from = append(s.from, step.Bridge+" "+b)
			s.where = append(s.where,
				fmt.Sprintf("%s.%s = %s.%s", b, step.BridgeFrom, prev, step.FromKey),
				fmt.Sprintf("%s.%s = %s.%s", next, step.ToKey, b, step.BridgeTo))
		} else {
			s.where = append(s.where, fmt.Sprintf("%s.%s = %s.%s", next, step.ToKey, prev, step.FromKey))
		}
		s.from = append(s.from, step.To.Table()+" "+next)
		prev = next
	}
	return prev
}

// leaf renders one comparison. Fields on the anchor's own fixed columns are
// compared inline; anything else becomes an EXISTS over the joined rows, so
// a cross-level condition holds when at least one related row satisfies it.
func (r *renderer) leaf(l *Leaf) (string, error) {
	f := l.Field
	if !f.Dynamic && len(l.Path) == 0 {
		return r.compare(l, anchorAlias+"."+physicalColumn(f), "")
	}

	s := &scope{}
	owner := r.walk(l.Path, s)
	var expr, qual string
	if f.Dynamic {
		d := r.alias("d")
		s.from = append(s.from, f.Level.DetailsTable()+" "+d)
		s.where = append(s.where,
			fmt.Sprintf("%s.%s = %s.id", d, f.Level.DetailsKey(), owner),
			fmt.Sprintf("%s.property_id = ?", d))
		r.args = append(r.args, f.Property.ID)
		expr = d + "." + ValueColumn(f.ValueType)
		if f.ValueType.IsNumeric() {
			qual = d + ".value_qualifier"
		}
	} else {
		expr = owner + "." + physicalColumn(f)
	}

	cond, err := r.compare(l, expr, qual)
	if err != nil {
		return "", err
	}
	s.where = append(s.where, cond)
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s)",
		strings.Join(s.from, ", "), strings.Join(s.where, " AND ")), nil
}

// physicalColumn maps a fixed field to its stored column. Structure
// searches run against the canonical SMILES.
func physicalColumn(f *Field) string {
	if f.Column.Structure {
		return "canonical_smiles"
	}
	return f.Column.Name
}

func (r *renderer) compare(l *Leaf, expr, qual string) (string, error) {
	raw := make([]any, len(l.Values))
	for i, v := range l.Values {
		raw[i] = v.Raw()
	}

	switch l.Operator {
	case OpExists:
		return expr + " IS NOT NULL", nil
	case OpSimilar:
		r.args = append(r.args, raw[0], l.Threshold)
		return r.d.Similarity(r.metric, expr) + " >= ?", nil
	case OpHasSubstructure:
		r.args = append(r.args, raw[0])
		return r.d.HasSubstructure(expr), nil
	case OpIsSubstructureOf:
		r.args = append(r.args, raw[0])
		return r.d.IsSubstructureOf(expr), nil
	}

	if l.Field.Column.Structure && l.Operator == OpEq {
		sql, args := r.d.ExactMatch(expr, raw[0].(string), r.sensitivity)
		r.args = append(r.args, args...)
		return sql, nil
	}

	switch l.Operator {
	case OpIn, OpNotIn:
		placeholders, args := sqlutil.InClauseArgs(raw)
		r.args = append(r.args, args...)
		return r.qualified(qual, fmt.Sprintf("%s %s (%s)", expr, l.Operator, placeholders), "", ""), nil
	case OpLike:
		r.args = append(r.args, raw[0])
		return expr + " LIKE ?", nil
	case OpContains:
		r.args = append(r.args, "%"+escapeLikePattern(raw[0].(string))+"%")
		return r.d.ILike(expr), nil
	case OpStartsWith:
		r.args = append(r.args, escapeLikePattern(raw[0].(string))+"%")
		return expr + " LIKE ? ESCAPE '\\'", nil
	case OpEndsWith:
		r.args = append(r.args, "%"+escapeLikePattern(raw[0].(string)))
		return expr + " LIKE ? ESCAPE '\\'", nil
	case OpRange:
		r.args = append(r.args, raw[0], raw[1])
		return r.qualified(qual, fmt.Sprintf("%s >= ? AND %s <= ?", expr, expr), "", ""), nil
	case OpOn:
		t, _ := l.Values[0].AsTime()
		r.args = append(r.args, t.UTC().Format("2006-01-02"))
		return r.d.DateOf(expr) + " = ?", nil
	}

	op := string(l.Operator)
	switch l.Operator {
	case OpBefore:
		op = "<"
	case OpAfter:
		op = ">"
	}
	cmp := fmt.Sprintf("%s %s ?", expr, op)
	r.args = append(r.args, raw[0])
	if qual == "" {
		return cmp, nil
	}

	// A qualified value satisfies the comparison when every value it
	// admits does.
	switch op {
	case "<", "<=":
		r.args = append(r.args, raw[0])
		return r.qualified(qual, cmp, fmt.Sprintf("%s <= ?", expr), ""), nil
	case ">", ">=":
		r.args = append(r.args, raw[0])
		return r.qualified(qual, cmp, "", fmt.Sprintf("%s >= ?", expr)), nil
	case "!=":
		r.args = append(r.args, raw[0], raw[0])
		return r.qualified(qual, cmp, fmt.Sprintf("%s <= ?", expr), fmt.Sprintf("%s >= ?", expr)), nil
	}
	return r.qualified(qual, cmp, "", ""), nil
}

// qualified combines the condition for unqualified values with the
// conditions under which "<v" and ">v" values match. Arguments must already
// be appended in the same order.
func (r *renderer) qualified(qual, exact, less, greater string) string {
	if qual == "" {
		return exact
	}
	parts := []string{fmt.Sprintf("(%s = %d AND %s)", qual, schema.QualEqual, exact)}
	if less != "" {
		parts = append(parts, fmt.Sprintf("(%s = %d AND %s)", qual, schema.QualLess, less))
	}
	if greater != "" {
		parts = append(parts, fmt.Sprintf("(%s = %d AND %s)", qual, schema.QualGreater, greater))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// escapeLikePattern escapes LIKE wildcards so user text matches literally.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
