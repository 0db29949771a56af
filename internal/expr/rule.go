// Package expr implements the record-level rule language: a small
// expression grammar with arithmetic, comparison, logical, membership and
// conditional operators plus a closed set of built-in functions.
package expr

import (
	"sort"
	"time"

	"github.com/aidanlsb/moltrack/internal/errs"
)

// Rule is a compiled expression. It is immutable and safe to evaluate
// concurrently against many records.
type Rule struct {
	source string
	text   string
	root   Node
	fields []string
}

// Compile preprocesses and parses src. Syntax errors, unknown functions,
// wrong arity and invalid literal patterns are reported here rather than at
// evaluation time.
func Compile(src string) (*Rule, error) {
	text := Preprocess(src)
	root, err := ParseExpr(text)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var fields []string
	walk(root, func(n Node) {
		if id, ok := n.(*Ident); ok {
			if _, dup := seen[id.Name]; !dup {
				seen[id.Name] = struct{}{}
				fields = append(fields, id.Name)
			}
		}
	})
	sort.Strings(fields)

	return &Rule{source: src, text: text, root: root, fields: fields}, nil
}

// Source returns the expression as written.
func (r *Rule) Source() string { return r.source }

// String renders the parsed AST with explicit grouping.
func (r *Rule) String() string { return r.root.String() }

// Fields returns the sorted field names the rule references.
func (r *Rule) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// Evaluate runs the rule against record. It fails with EvaluationError if a
// referenced field is absent without a default, a function receives the
// wrong type, or the result is not a bool.
func (r *Rule) Evaluate(record map[string]interface{}, opts ...EvalOption) (bool, error) {
	ev := &evaluator{rule: r, record: record, now: time.Now}
	for _, opt := range opts {
		opt(ev)
	}
	v, err := ev.eval(r.root)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, errs.New(errs.EvaluationError, "rule must evaluate to a bool, got %s", typeName(v)).WithFragment(r.source)
	}
	return b, nil
}
