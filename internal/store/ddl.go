package store

import (
	"fmt"
	"strings"

	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/sqlutil"
)

// parentOf maps foreign key columns of fixed tables to their parent table.
var parentOf = map[string]string{
	"compound_id":  "compounds",
	"batch_id":     "batches",
	"assay_id":     "assays",
	"assay_run_id": "assay_runs",
}

type typeMap struct {
	serial, timestamp, now string
	types                  map[schema.ValueType]string
}

var typeMaps = map[sqlutil.Dialect]typeMap{
	sqlutil.SQLite: {
		serial:    "INTEGER PRIMARY KEY AUTOINCREMENT",
		timestamp: "TEXT",
		now:       "(strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))",
		types: map[schema.ValueType]string{
			schema.TypeString:   "TEXT",
			schema.TypeDouble:   "REAL",
			schema.TypeInt:      "INTEGER",
			schema.TypeBool:     "INTEGER",
			schema.TypeDatetime: "TEXT",
			schema.TypeUUID:     "TEXT",
		},
	},
	sqlutil.Postgres: {
		serial:    "BIGSERIAL PRIMARY KEY",
		timestamp: "TIMESTAMPTZ",
		now:       "now()",
		types: map[schema.ValueType]string{
			schema.TypeString:   "TEXT",
			schema.TypeDouble:   "DOUBLE PRECISION",
			schema.TypeInt:      "BIGINT",
			schema.TypeBool:     "BOOLEAN",
			schema.TypeDatetime: "TIMESTAMPTZ",
			schema.TypeUUID:     "UUID",
		},
	},
}

// ddl returns the statements creating every table, in dependency order.
// Statements are executed one at a time.
func ddl(d sqlutil.Dialect) []string {
	tm := typeMaps[d]
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS semantic_types (
			name TEXT PRIMARY KEY,
			description TEXT
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS properties (
			seq %s,
			id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			value_type TEXT NOT NULL,
			property_class TEXT NOT NULL,
			unit TEXT,
			friendly_name TEXT,
			description TEXT,
			semantic_type TEXT REFERENCES semantic_types(name),
			min_value %s,
			max_value %s,
			choices TEXT,
			validators TEXT,
			nullable %s NOT NULL,
			pattern TEXT,
			created_at %s NOT NULL DEFAULT %s,
			updated_at %s NOT NULL DEFAULT %s,
			UNIQUE (name, entity_type)
		)`, tm.serial, tm.types[schema.TypeDouble], tm.types[schema.TypeDouble], tm.types[schema.TypeBool],
			tm.timestamp, tm.now, tm.timestamp, tm.now),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS validators (
			seq %s,
			id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL UNIQUE,
			entity_type TEXT NOT NULL,
			expression TEXT NOT NULL,
			description TEXT,
			is_active %s NOT NULL,
			created_at %s NOT NULL DEFAULT %s
		)`, tm.serial, tm.types[schema.TypeBool], tm.timestamp, tm.now),
	}

	for _, et := range schema.EntityTypes {
		stmts = append(stmts, entityTable(et, tm), detailsTable(et, tm))
	}

	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS batch_additions (
			batch_id BIGINT NOT NULL REFERENCES batches(id),
			addition_id BIGINT NOT NULL REFERENCES additions(id),
			PRIMARY KEY (batch_id, addition_id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS synonyms (
			id %s,
			entity_type TEXT NOT NULL,
			entity_id BIGINT NOT NULL,
			synonym_type_id TEXT NOT NULL REFERENCES properties(id),
			value TEXT NOT NULL,
			UNIQUE (synonym_type_id, value)
		)`, tm.serial),
		`CREATE INDEX IF NOT EXISTS idx_properties_entity ON properties(entity_type, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_compound ON batches(compound_id)`,
		`CREATE INDEX IF NOT EXISTS idx_assay_results_batch ON assay_results(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_assay_results_run ON assay_results(assay_run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_assay_runs_assay ON assay_runs(assay_id)`,
	)
	return stmts
}

func entityTable(et schema.EntityType, tm typeMap) string {
	var cols []string
	for _, c := range schema.FixedColumns(et) {
		switch {
		case c.Structure:
			continue
		case c.Name == "id":
			cols = append(cols, "id "+tm.serial)
		case c.Name == "created_at" || c.Name == "updated_at":
			cols = append(cols, fmt.Sprintf("%s %s NOT NULL DEFAULT %s", c.Name, tm.timestamp, tm.now))
		case parentOf[c.Name] != "":
			cols = append(cols, fmt.Sprintf("%s %s NOT NULL REFERENCES %s(id)", c.Name, tm.types[schema.TypeInt], parentOf[c.Name]))
		default:
			cols = append(cols, c.Name+" "+tm.types[c.ValueType])
		}
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t\t\t%s\n\t\t)", et.Table(), strings.Join(cols, ",\n\t\t\t"))
}

func detailsTable(et schema.EntityType, tm typeMap) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			%s %s NOT NULL REFERENCES %s(id),
			property_id TEXT NOT NULL REFERENCES properties(id),
			value_num %s,
			value_string TEXT,
			value_datetime %s,
			value_uuid %s,
			value_bool %s,
			value_qualifier INTEGER NOT NULL DEFAULT 0,
			UNIQUE (%s, property_id)
		)`, et.DetailsTable(), tm.serial, et.DetailsKey(), tm.types[schema.TypeInt], et.Table(),
		tm.types[schema.TypeDouble], tm.types[schema.TypeDatetime], tm.types[schema.TypeUUID], tm.types[schema.TypeBool],
		et.DetailsKey())
}
