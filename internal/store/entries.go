package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/sqlutil"
)

const entryColumns = `seq, id, kind, name, entity_type, value_type, property_class, unit, friendly_name,
	description, semantic_type, min_value, max_value, choices, validators, nullable, pattern`

// InsertEntry inserts a property or synonym type unless one with the same
// name and entity type exists. created is false when the uniqueness
// constraint suppressed the insert; concurrent identical inserts produce
// exactly one creator.
func (d *DB) InsertEntry(ctx context.Context, e *schema.Entry) (created bool, err error) {
	choices, validators, err := encodeLists(e)
	if err != nil {
		return false, err
	}
	res, err := d.db.ExecContext(ctx, d.rebind(`
		INSERT INTO properties (id, kind, name, entity_type, value_type, property_class, unit, friendly_name,
			description, semantic_type, min_value, max_value, choices, validators, nullable, pattern)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, entity_type) DO NOTHING`),
		e.ID, string(e.Kind), e.Name, string(e.EntityType), string(e.ValueType), string(e.PropertyClass),
		nullString(e.Unit), nullString(e.FriendlyName), nullString(e.Description), nullString(e.SemanticType),
		nullFloat(e.Min), nullFloat(e.Max), choices, validators, e.IsNullable(), nullString(e.Pattern))
	if err != nil {
		if isUniqueViolation(err) {
			// The id collided; names are handled by ON CONFLICT.
			return false, fmt.Errorf("insert %s: %w", e.Name, ErrDuplicate)
		}
		return false, fmt.Errorf("insert %s: %w", e.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Entry loads an entry by entity type and name.
func (d *DB) Entry(ctx context.Context, et schema.EntityType, name string) (*schema.Entry, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(
		`SELECT `+entryColumns+` FROM properties WHERE entity_type = ? AND name = ?`), string(et), name)
	return scanEntry(row)
}

// EntryByID loads an entry by its identifier.
func (d *DB) EntryByID(ctx context.Context, id string) (*schema.Entry, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(`SELECT `+entryColumns+` FROM properties WHERE id = ?`), id)
	return scanEntry(row)
}

// Entries lists the entries of an entity type in registration order. An
// empty entity type lists every entry.
func (d *DB) Entries(ctx context.Context, et schema.EntityType) ([]schema.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM properties`
	var args []any
	if et != "" {
		query += ` WHERE entity_type = ?`
		args = append(args, string(et))
	}
	rows, err := d.db.QueryContext(ctx, d.rebind(query+` ORDER BY seq`), args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	return sqlutil.ScanRows(rows, func(r *sql.Rows) (schema.Entry, error) {
		e, err := scanEntry(r)
		if err != nil {
			return schema.Entry{}, err
		}
		return *e, nil
	})
}

// UpdateEntry overwrites the attributes of the entry with e.ID. A rename
// onto an existing name returns ErrDuplicate.
func (d *DB) UpdateEntry(ctx context.Context, e *schema.Entry) error {
	choices, validators, err := encodeLists(e)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx, d.rebind(`
		UPDATE properties SET name = ?, entity_type = ?, value_type = ?, property_class = ?, unit = ?,
			friendly_name = ?, description = ?, semantic_type = ?, min_value = ?, max_value = ?,
			choices = ?, validators = ?, nullable = ?, pattern = ?, updated_at = `+typeMaps[d.dialect].now+`
		WHERE id = ?`),
		e.Name, string(e.EntityType), string(e.ValueType), string(e.PropertyClass), nullString(e.Unit),
		nullString(e.FriendlyName), nullString(e.Description), nullString(e.SemanticType),
		nullFloat(e.Min), nullFloat(e.Max), choices, validators, e.IsNullable(), nullString(e.Pattern), e.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update %s: %w", e.Name, ErrDuplicate)
		}
		return fmt.Errorf("update %s: %w", e.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// EntryInUse reports whether stored entity data references the entry.
func (d *DB) EntryInUse(ctx context.Context, e *schema.Entry) (bool, error) {
	query := `SELECT 1 FROM ` + e.EntityType.DetailsTable() + ` WHERE property_id = ? LIMIT 1`
	if e.Kind == schema.KindSynonym {
		query = `SELECT 1 FROM synonyms WHERE synonym_type_id = ? LIMIT 1`
	}
	var one int
	err := d.db.QueryRowContext(ctx, d.rebind(query), e.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check usage of %s: %w", e.Name, err)
	}
	return true, nil
}

// SemanticTypeExists reports whether a semantic type is defined.
func (d *DB) SemanticTypeExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, d.rebind(`SELECT 1 FROM semantic_types WHERE name = ?`), name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// InsertValidator inserts a record-level validator unless one with the same
// name exists.
func (d *DB) InsertValidator(ctx context.Context, v *schema.Validator) (created bool, err error) {
	res, err := d.db.ExecContext(ctx, d.rebind(`
		INSERT INTO validators (id, name, entity_type, expression, description, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING`),
		v.ID, v.Name, string(v.EntityType), v.Expression, nullString(v.Description), v.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("insert validator %s: %w", v.Name, ErrDuplicate)
		}
		return false, fmt.Errorf("insert validator %s: %w", v.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const validatorColumns = `id, name, entity_type, expression, description, is_active`

// Validator loads a validator by name.
func (d *DB) Validator(ctx context.Context, name string) (*schema.Validator, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(`SELECT `+validatorColumns+` FROM validators WHERE name = ?`), name)
	v, err := scanValidator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// Validators lists validators of an entity type in registration order. An
// empty entity type lists all of them.
func (d *DB) Validators(ctx context.Context, et schema.EntityType, activeOnly bool) ([]schema.Validator, error) {
	query := `SELECT ` + validatorColumns + ` FROM validators WHERE 1=1`
	var args []any
	if et != "" {
		query += ` AND entity_type = ?`
		args = append(args, string(et))
	}
	if activeOnly {
		query += ` AND is_active = ?`
		args = append(args, true)
	}
	rows, err := d.db.QueryContext(ctx, d.rebind(query+` ORDER BY seq`), args...)
	if err != nil {
		return nil, fmt.Errorf("list validators: %w", err)
	}
	defer rows.Close()
	return sqlutil.ScanRows(rows, func(r *sql.Rows) (schema.Validator, error) {
		v, err := scanValidator(r)
		if err != nil {
			return schema.Validator{}, err
		}
		return *v, nil
	})
}

// SetValidatorActive soft-enables or soft-disables a validator.
func (d *DB) SetValidatorActive(ctx context.Context, name string, active bool) error {
	res, err := d.db.ExecContext(ctx, d.rebind(`UPDATE validators SET is_active = ? WHERE name = ?`), active, name)
	if err != nil {
		return fmt.Errorf("update validator %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*schema.Entry, error) {
	var (
		e                                                 schema.Entry
		kind, et, vt, pc                                  string
		unit, friendly, desc, semantic, choices, vals, pt sql.NullString
		lo, hi                                            sql.NullFloat64
		nullable                                          bool
	)
	err := s.Scan(&e.Seq, &e.ID, &kind, &e.Name, &et, &vt, &pc, &unit, &friendly,
		&desc, &semantic, &lo, &hi, &choices, &vals, &nullable, &pt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	e.Kind = schema.Kind(kind)
	e.EntityType = schema.EntityType(et)
	e.ValueType = schema.ValueType(vt)
	e.PropertyClass = schema.PropertyClass(pc)
	e.Unit, e.FriendlyName, e.Description, e.SemanticType = unit.String, friendly.String, desc.String, semantic.String
	e.Pattern = pt.String
	e.Nullable = schema.BoolPtr(nullable)
	if lo.Valid {
		e.Min = schema.FloatPtr(lo.Float64)
	}
	if hi.Valid {
		e.Max = schema.FloatPtr(hi.Float64)
	}
	if choices.Valid && choices.String != "" {
		if err := json.Unmarshal([]byte(choices.String), &e.Choices); err != nil {
			return nil, fmt.Errorf("decode choices of %s: %w", e.Name, err)
		}
	}
	if vals.Valid && vals.String != "" {
		if err := json.Unmarshal([]byte(vals.String), &e.Validators); err != nil {
			return nil, fmt.Errorf("decode validators of %s: %w", e.Name, err)
		}
	}
	return &e, nil
}

func scanValidator(s scanner) (*schema.Validator, error) {
	var (
		v      schema.Validator
		et     string
		desc   sql.NullString
		active bool
	)
	if err := s.Scan(&v.ID, &v.Name, &et, &v.Expression, &desc, &active); err != nil {
		return nil, err
	}
	v.EntityType = schema.EntityType(et)
	v.Description = desc.String
	v.IsActive = active
	return &v, nil
}

func encodeLists(e *schema.Entry) (choices, validators any, err error) {
	if len(e.Choices) > 0 {
		b, err := json.Marshal(e.Choices)
		if err != nil {
			return nil, nil, err
		}
		choices = string(b)
	}
	if len(e.Validators) > 0 {
		b, err := json.Marshal(e.Validators)
		if err != nil {
			return nil, nil, err
		}
		validators = string(b)
	}
	return choices, validators, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
