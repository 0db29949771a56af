package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/aidanlsb/moltrack/internal/query"
	"github.com/aidanlsb/moltrack/internal/schema"
)

// writer runs entity writes against the database or an open transaction.
type writer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx writes entity rows inside one transaction.
type Tx struct {
	tx *sql.Tx
	d  *DB
}

// InTx runs fn in a transaction, committing when fn returns nil and rolling
// back otherwise. fn must do all of its database work through tx.
func (d *DB) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Tx{tx: sqlTx, d: d}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			d.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// InsertEntity is DB.InsertEntity inside the transaction.
func (t *Tx) InsertEntity(ctx context.Context, et schema.EntityType, fixed map[string]any) (int64, error) {
	return t.d.insertEntity(ctx, t.tx, et, fixed)
}

// SetDetail is DB.SetDetail inside the transaction.
func (t *Tx) SetDetail(ctx context.Context, et schema.EntityType, entityID int64, prop *schema.Property, v schema.Value) error {
	return t.d.setDetail(ctx, t.tx, et, entityID, prop, v)
}

// AddSynonym is DB.AddSynonym inside the transaction.
func (t *Tx) AddSynonym(ctx context.Context, et schema.EntityType, entityID int64, st *schema.SynonymType, value string) error {
	return t.d.addSynonym(ctx, t.tx, et, entityID, st, value)
}

// LinkAddition is DB.LinkAddition inside the transaction.
func (t *Tx) LinkAddition(ctx context.Context, batchID, additionID int64) error {
	return t.d.linkAddition(ctx, t.tx, batchID, additionID)
}

// InsertEntity inserts one row into an entity level's table and returns its
// id. Keys of fixed must be fixed columns of et; values are coerced to the
// column's value type.
func (d *DB) InsertEntity(ctx context.Context, et schema.EntityType, fixed map[string]any) (int64, error) {
	return d.insertEntity(ctx, d.db, et, fixed)
}

func (d *DB) insertEntity(ctx context.Context, w writer, et schema.EntityType, fixed map[string]any) (int64, error) {
	names := make([]string, 0, len(fixed))
	for name := range fixed {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names))
	for _, name := range names {
		col, ok := schema.FixedColumn(et, name)
		if !ok || col.Structure || name == "id" {
			return 0, fmt.Errorf("%s is not a writable column of %s", name, et.Table())
		}
		v, err := schema.Coerce(col.ValueType, fixed[name])
		if err != nil {
			return 0, fmt.Errorf("%s.%s: %w", et.Table(), name, err)
		}
		args = append(args, v.Raw())
	}

	stmt := "INSERT INTO " + et.Table() + " DEFAULT VALUES RETURNING id"
	if len(names) > 0 {
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id", et.Table(),
			strings.Join(names, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "))
	}
	var id int64
	if err := w.QueryRowContext(ctx, d.rebind(stmt), args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", et.Table(), err)
	}
	return id, nil
}

// SetDetail stores the value of a dynamic property for one entity,
// replacing any previous value. A null value clears every value column.
func (d *DB) SetDetail(ctx context.Context, et schema.EntityType, entityID int64, prop *schema.Property, v schema.Value) error {
	return d.setDetail(ctx, d.db, et, entityID, prop, v)
}

func (d *DB) setDetail(ctx context.Context, w writer, et schema.EntityType, entityID int64, prop *schema.Property, v schema.Value) error {
	if prop.EntityType != et {
		return fmt.Errorf("property %s belongs to %s, not %s", prop.Name, prop.EntityType, et)
	}
	col := query.ValueColumn(prop.ValueType)
	var raw any
	if !v.IsNull() {
		coerced, err := schema.Coerce(prop.ValueType, v)
		if err != nil {
			return err
		}
		raw = coerced.Raw()
		v = coerced
	}

	key := et.DetailsKey()
	stmt := fmt.Sprintf(`INSERT INTO %s (%s, property_id, %s, value_qualifier) VALUES (?, ?, ?, ?)
		ON CONFLICT (%s, property_id) DO UPDATE SET %s = excluded.%s, value_qualifier = excluded.value_qualifier`,
		et.DetailsTable(), key, col, key, col, col)
	if _, err := w.ExecContext(ctx, d.rebind(stmt), entityID, prop.ID, raw, int(v.Qualifier())); err != nil {
		return fmt.Errorf("set %s.%s: %w", et.Table(), prop.Name, err)
	}
	return nil
}

// AddSynonym attaches a synonym value to an entity. Synonym values are
// unique per synonym type.
func (d *DB) AddSynonym(ctx context.Context, et schema.EntityType, entityID int64, st *schema.SynonymType, value string) error {
	return d.addSynonym(ctx, d.db, et, entityID, st, value)
}

func (d *DB) addSynonym(ctx context.Context, w writer, et schema.EntityType, entityID int64, st *schema.SynonymType, value string) error {
	_, err := w.ExecContext(ctx, d.rebind(
		`INSERT INTO synonyms (entity_type, entity_id, synonym_type_id, value) VALUES (?, ?, ?, ?)`),
		string(et), entityID, st.ID, value)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("synonym %s=%s: %w", st.Name, value, ErrDuplicate)
		}
		return fmt.Errorf("add synonym %s: %w", st.Name, err)
	}
	return nil
}

// LinkAddition relates a batch to an addition.
func (d *DB) LinkAddition(ctx context.Context, batchID, additionID int64) error {
	return d.linkAddition(ctx, d.db, batchID, additionID)
}

func (d *DB) linkAddition(ctx context.Context, w writer, batchID, additionID int64) error {
	_, err := w.ExecContext(ctx, d.rebind(
		`INSERT INTO batch_additions (batch_id, addition_id) VALUES (?, ?) ON CONFLICT DO NOTHING`),
		batchID, additionID)
	if err != nil {
		return fmt.Errorf("link batch %d to addition %d: %w", batchID, additionID, err)
	}
	return nil
}
