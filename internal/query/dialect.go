package query

import (
	"fmt"

	"github.com/aidanlsb/moltrack/internal/chem"
	"github.com/aidanlsb/moltrack/internal/sqlutil"
)

// Dialect spells the engine-specific parts of rendered SQL. All parameters
// are written as "?" and rebound afterwards.
type Dialect interface {
	Kind() sqlutil.Dialect
	// ILike is a case-insensitive LIKE with backslash escaping.
	ILike(expr string) string
	// DateOf truncates a datetime expression to its calendar date.
	DateOf(expr string) string
	Similarity(metric chem.Metric, mol string) string
	HasSubstructure(mol string) string
	IsSubstructureOf(mol string) string
	// ExactMatch compares a stored structure to a query structure at the
	// given sensitivity.
	ExactMatch(mol string, query string, sensitivity chem.Sensitivity) (string, []any)
	Aggregate(op AggOp, expr string) (string, error)
}

// DialectFor returns the renderer for a storage dialect.
func DialectFor(d sqlutil.Dialect) Dialect {
	if d == sqlutil.Postgres {
		return postgresDialect{}
	}
	return sqliteDialect{}
}

type sqliteDialect struct{}

func (sqliteDialect) Kind() sqlutil.Dialect { return sqlutil.SQLite }

func (sqliteDialect) ILike(expr string) string {
	return fmt.Sprintf("LOWER(%s) LIKE LOWER(?) ESCAPE '\\'", expr)
}

func (sqliteDialect) DateOf(expr string) string {
	return fmt.Sprintf("substr(%s, 1, 10)", expr)
}

// The mol_* functions are registered by the storage layer and delegate to
// the configured chemistry engine.
func (sqliteDialect) Similarity(metric chem.Metric, mol string) string {
	return fmt.Sprintf("mol_similarity(%s, ?, '%s')", mol, metric)
}

func (sqliteDialect) HasSubstructure(mol string) string {
	return fmt.Sprintf("mol_substruct(%s, ?) = 1", mol)
}

func (sqliteDialect) IsSubstructureOf(mol string) string {
	return fmt.Sprintf("mol_substruct(?, %s) = 1", mol)
}

func (sqliteDialect) ExactMatch(mol string, query string, sensitivity chem.Sensitivity) (string, []any) {
	return fmt.Sprintf("mol_equal(%s, ?, ?) = 1", mol), []any{query, string(sensitivity)}
}

func (sqliteDialect) Aggregate(op AggOp, expr string) (string, error) {
	switch op {
	case AggAvg, AggSum, AggCount, AggMin, AggMax:
		return fmt.Sprintf("%s(%s)", op, expr), nil
	case AggUnique:
		return fmt.Sprintf("COUNT(DISTINCT %s)", expr), nil
	case AggNulls:
		return fmt.Sprintf("SUM(CASE WHEN %s IS NULL THEN 1 ELSE 0 END)", expr), nil
	case AggConcatUnique:
		return fmt.Sprintf("group_concat(DISTINCT %s)", expr), nil
	case AggMedian:
		return fmt.Sprintf("agg_median(json_group_array(%s))", expr), nil
	case AggStdev:
		return fmt.Sprintf("agg_stdev(json_group_array(%s))", expr), nil
	}
	return "", fmt.Errorf("aggregation %s is not supported by sqlite", op)
}

// postgresDialect targets PostgreSQL with the RDKit cartridge installed.
type postgresDialect struct{}

func (postgresDialect) Kind() sqlutil.Dialect { return sqlutil.Postgres }

func (postgresDialect) ILike(expr string) string {
	return fmt.Sprintf("%s ILIKE ?", expr)
}

func (postgresDialect) DateOf(expr string) string {
	return fmt.Sprintf("CAST(%s AS DATE)", expr)
}

func (postgresDialect) Similarity(metric chem.Metric, mol string) string {
	fn := "tanimoto_sml"
	if metric == chem.Dice {
		fn = "dice_sml"
	}
	return fmt.Sprintf("%s(morganbv_fp(mol_from_smiles(%s::cstring)), morganbv_fp(mol_from_smiles(CAST(? AS cstring))))", fn, mol)
}

func (postgresDialect) HasSubstructure(mol string) string {
	return fmt.Sprintf("mol_from_smiles(%s::cstring) @> mol_from_smiles(CAST(? AS cstring))", mol)
}

func (postgresDialect) IsSubstructureOf(mol string) string {
	return fmt.Sprintf("mol_from_smiles(%s::cstring) <@ mol_from_smiles(CAST(? AS cstring))", mol)
}

// ExactMatch uses the layered hash function installed alongside the
// cartridge; the sensitivity parameter selects the layers.
func (postgresDialect) ExactMatch(mol string, query string, sensitivity chem.Sensitivity) (string, []any) {
	sql := fmt.Sprintf("mol_layer_hash(%s, ?) = mol_layer_hash(CAST(? AS text), ?)", mol)
	return sql, []any{string(sensitivity), query, string(sensitivity)}
}

func (postgresDialect) Aggregate(op AggOp, expr string) (string, error) {
	switch op {
	case AggAvg, AggSum, AggCount, AggMin, AggMax:
		return fmt.Sprintf("%s(%s)", op, expr), nil
	case AggUnique:
		return fmt.Sprintf("COUNT(DISTINCT %s)", expr), nil
	case AggNulls:
		return fmt.Sprintf("COUNT(*) FILTER (WHERE %s IS NULL)", expr), nil
	case AggConcatUnique:
		return fmt.Sprintf("string_agg(DISTINCT CAST(%s AS text), ',')", expr), nil
	case AggMedian:
		return fmt.Sprintf("percentile_cont(0.5) WITHIN GROUP (ORDER BY %s)", expr), nil
	case AggStdev:
		return fmt.Sprintf("stddev_samp(%s)", expr), nil
	}
	return "", fmt.Errorf("aggregation %s is not supported by postgres", op)
}
