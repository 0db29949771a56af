package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aidanlsb/moltrack/internal/errs"
)

// GroupOp combines child conditions.
type GroupOp string

const (
	GroupAnd GroupOp = "AND"
	GroupOr  GroupOp = "OR"
	GroupNot GroupOp = "NOT"
)

// FilterNode is the tree-shaped filter accepted from callers. A node with
// conditions (or a group operator and no field) is a group; anything with a
// field is a leaf.
type FilterNode struct {
	Operator   string        `json:"operator"`
	Conditions []*FilterNode `json:"conditions,omitempty"`
	Field      string        `json:"field,omitempty"`
	Value      interface{}   `json:"value,omitempty"`
	Threshold  *float64      `json:"threshold,omitempty"`
}

// IsGroup reports whether n is a group node.
func (n *FilterNode) IsGroup() bool {
	if n.Field != "" {
		return false
	}
	if n.Conditions != nil {
		return true
	}
	_, ok := parseGroupOp(n.Operator)
	return ok
}

func parseGroupOp(s string) (GroupOp, bool) {
	switch op := GroupOp(strings.ToUpper(strings.TrimSpace(s))); op {
	case GroupAnd, GroupOr, GroupNot:
		return op, true
	}
	return "", false
}

// ParseFilter decodes a filter tree from JSON. Numbers keep full precision
// until they are coerced against a field's value type.
func ParseFilter(data []byte) (*FilterNode, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var n FilterNode
	if err := dec.Decode(&n); err != nil {
		return nil, errs.Wrap(errs.MalformedFilter, err, fmt.Sprintf("invalid filter JSON: %v", err))
	}
	return &n, nil
}

// ParseRequest decodes a search request from JSON the same way ParseFilter
// decodes a filter.
func ParseRequest(data []byte) (*SearchRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var req SearchRequest
	if err := dec.Decode(&req); err != nil {
		return nil, errs.Wrap(errs.MalformedFilter, err, fmt.Sprintf("invalid search request JSON: %v", err))
	}
	if strings.TrimSpace(req.Level) == "" {
		return nil, errs.New(errs.MalformedFilter, "search request has no level")
	}
	return &req, nil
}

// String renders the tree in infix form with explicit grouping.
func (n *FilterNode) String() string {
	if n == nil {
		return ""
	}
	if n.IsGroup() {
		op, _ := parseGroupOp(n.Operator)
		if op == GroupNot {
			if len(n.Conditions) == 1 {
				return "NOT " + n.Conditions[0].String()
			}
			return "NOT ()"
		}
		parts := make([]string, len(n.Conditions))
		for i, c := range n.Conditions {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " "+string(op)+" ") + ")"
	}
	var b strings.Builder
	b.WriteString(n.Field)
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(n.Operator))
	if n.Value != nil {
		v, _ := json.Marshal(n.Value)
		b.WriteByte(' ')
		b.Write(v)
	}
	if n.Threshold != nil {
		fmt.Fprintf(&b, " THRESHOLD %g", *n.Threshold)
	}
	return b.String()
}
