package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aidanlsb/moltrack/internal/query"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/sqlutil"
)

// Result holds the rows of an executed plan keyed by column alias.
type Result struct {
	Columns []query.Column   `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	SQL     string           `json:"sql,omitempty"`
	Args    []any            `json:"args,omitempty"`
}

// Execute renders a plan for the backend's dialect and runs it.
func (d *DB) Execute(ctx context.Context, plan *query.QueryPlan) (*Result, error) {
	stmt, args, err := plan.SQL(query.DialectFor(d.dialect))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}
	out, err := sqlutil.ScanMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("read search results: %w", err)
	}
	d.logger.Debug("search executed", "entity_type", plan.EntityType, "rows", len(out), "elapsed", time.Since(start))

	for _, row := range out {
		for _, col := range plan.Columns {
			row[col.Alias] = normalizeCell(col.ValueType, row[col.Alias])
		}
	}
	if out == nil {
		out = []map[string]any{}
	}
	return &Result{Columns: plan.Columns, Rows: out, SQL: stmt, Args: args}, nil
}

// normalizeCell maps driver values onto the column's value type. SQLite
// returns booleans as integers and timestamps as text.
func normalizeCell(vt schema.ValueType, v any) any {
	if v == nil {
		return nil
	}
	switch vt {
	case schema.TypeBool:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case schema.TypeDatetime:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return v
}
