package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/aidanlsb/moltrack/internal/schema"
)

// Policy decides what happens to a batch containing invalid rows.
type Policy string

const (
	// RejectAll rejects the whole batch if any row is invalid.
	RejectAll Policy = "reject_all"
	// RejectRow drops invalid rows and accepts the rest.
	RejectRow Policy = "reject_row"
)

// ParsePolicy is case-insensitive; empty means RejectAll.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return RejectAll, nil
	case RejectAll, RejectRow:
		return p, nil
	}
	return "", fmt.Errorf("unknown error handling policy %q (want reject_all or reject_row)", s)
}

// RowResult is the result of one row, by its position in the batch.
type RowResult struct {
	Row int `json:"row"`
	Result
}

// BatchResult reports which rows of a batch may be written.
type BatchResult struct {
	Policy   Policy      `json:"policy"`
	Accepted []int       `json:"accepted"`
	Rejected []RowResult `json:"rejected"`
}

// OK reports whether every row was accepted.
func (b *BatchResult) OK() bool {
	return len(b.Rejected) == 0
}

// ValidateRows validates each row independently against one schema
// snapshot and applies policy to the outcome.
func (e *Engine) ValidateRows(ctx context.Context, et schema.EntityType, rows []map[string]any, policy Policy) (*BatchResult, error) {
	s, err := e.snapshot(ctx, et)
	if err != nil {
		return nil, err
	}
	out := &BatchResult{Policy: policy, Accepted: []int{}, Rejected: []RowResult{}}
	for i, row := range rows {
		res := e.validate(s, row)
		if res.OK {
			out.Accepted = append(out.Accepted, i)
			continue
		}
		out.Rejected = append(out.Rejected, RowResult{Row: i, Result: *res})
	}
	if policy == RejectAll && len(out.Rejected) > 0 {
		out.Accepted = []int{}
	}
	e.logger.Debug("batch validated", "entity_type", et, "policy", policy,
		"accepted", len(out.Accepted), "rejected", len(out.Rejected))
	return out, nil
}
